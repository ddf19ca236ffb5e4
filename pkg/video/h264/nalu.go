package h264

// NALUType is the type of a NALU.
type NALUType uint8

// NALU types.
const (
	NALUTypeNonIDR              NALUType = 1
	NALUTypeIDR                 NALUType = 5
	NALUTypeSEI                 NALUType = 6
	NALUTypeSPS                 NALUType = 7
	NALUTypePPS                 NALUType = 8
	NALUTypeAccessUnitDelimiter NALUType = 9
)

func (t NALUType) String() string {
	switch t {
	case NALUTypeNonIDR:
		return "NonIDR"
	case NALUTypeIDR:
		return "IDR"
	case NALUTypeSEI:
		return "SEI"
	case NALUTypeSPS:
		return "SPS"
	case NALUTypePPS:
		return "PPS"
	case NALUTypeAccessUnitDelimiter:
		return "AccessUnitDelimiter"
	}
	return "unknown"
}

// TypeOf returns the type of a NALU, 0 for an empty one.
func TypeOf(nalu []byte) NALUType {
	if len(nalu) == 0 {
		return 0
	}
	return NALUType(nalu[0] & 0x1f)
}

// EmulationPreventionRemove removes the 0x03 bytes inserted after
// every 0x00 0x00 pair. buf is returned as is when there are none.
func EmulationPreventionRemove(buf []byte) []byte {
	var ret []byte
	zeros := 0
	for i, b := range buf {
		if zeros >= 2 && b == 3 {
			if ret == nil {
				ret = append(make([]byte, 0, len(buf)), buf[:i]...)
			}
			zeros = 0
			continue
		}
		if ret != nil {
			ret = append(ret, b)
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	if ret == nil {
		return buf
	}
	return ret
}
