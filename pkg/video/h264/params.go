package h264

import (
	"errors"
)

// ErrParameterSetsMissing is returned when an access unit
// has no SPS or no PPS.
var ErrParameterSetsMissing = errors.New("SPS or PPS missing")

// FindParameterSets returns copies of the first SPS and PPS in nalus.
func FindParameterSets(nalus [][]byte) ([]byte, []byte, error) {
	var sps, pps []byte
	for _, nalu := range nalus {
		switch TypeOf(nalu) {
		case NALUTypeSPS:
			if sps == nil {
				sps = append([]byte(nil), nalu...)
			}
		case NALUTypePPS:
			if pps == nil {
				pps = append([]byte(nil), nalu...)
			}
		}
	}
	if sps == nil || pps == nil {
		return nil, nil, ErrParameterSetsMissing
	}
	return sps, pps, nil
}

func trimStartCode(buf []byte) []byte {
	codes := startCodes(buf)
	if len(codes) == 0 || codes[0].pos != 0 {
		return buf
	}
	return buf[codes[0].length:]
}

// ParameterSets returns copies of the SPS and PPS that lead an
// Annex-B access unit. spsSize and ppsSize are the sizes of the
// SPS and PPS including their start codes as announced by the
// encoder. When they are zero or do not describe a SPS followed
// by a PPS, the access unit is scanned instead.
func ParameterSets(frame []byte, spsSize int, ppsSize int) ([]byte, []byte, error) {
	if spsSize > 0 && ppsSize > 0 && spsSize+ppsSize <= len(frame) {
		sps := trimStartCode(frame[:spsSize])
		pps := trimStartCode(frame[spsSize : spsSize+ppsSize])
		if TypeOf(sps) == NALUTypeSPS && TypeOf(pps) == NALUTypePPS {
			return append([]byte(nil), sps...), append([]byte(nil), pps...), nil
		}
	}

	nalus, err := AnnexBUnmarshal(frame)
	if err != nil {
		return nil, nil, err
	}
	return FindParameterSets(nalus)
}
