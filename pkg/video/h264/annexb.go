package h264

import (
	"encoding/binary"
	"errors"
)

// MaxNALUSize is the maximum size of a NALU.
// with a 250 Mbps H264 video, the maximum NALU size is 2.2MB.
const MaxNALUSize = 3 * 1024 * 1024

// Annex-B errors.
var (
	ErrAnnexBNoStartCode = errors.New("missing start code")
	ErrAnnexBEmpty       = errors.New("empty NALU")
)

type startCode struct {
	pos    int // First byte of the start code.
	length int // 3 or 4.
}

// startCodes returns every start code in buf. A zero byte directly
// before a 3 byte start code makes it a 4 byte start code.
func startCodes(buf []byte) []startCode {
	var codes []startCode
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] != 0 || buf[i+1] != 0 || buf[i+2] != 1 {
			continue
		}
		if i > 0 && buf[i-1] == 0 {
			codes = append(codes, startCode{pos: i - 1, length: 4})
		} else {
			codes = append(codes, startCode{pos: i, length: 3})
		}
		i += 2
	}
	return codes
}

// IsAnnexB reports whether buf starts with a start code.
func IsAnnexB(buf []byte) bool {
	codes := startCodes(buf)
	return len(codes) != 0 && codes[0].pos == 0
}

// AnnexBUnmarshal decodes NALUs from the Annex-B stream format.
// The returned NALUs point into buf.
func AnnexBUnmarshal(buf []byte) ([][]byte, error) {
	codes := startCodes(buf)
	if len(codes) == 0 || codes[0].pos != 0 {
		return nil, ErrAnnexBNoStartCode
	}

	ret := make([][]byte, 0, len(codes))
	for i, code := range codes {
		start := code.pos + code.length
		end := len(buf)
		if i+1 < len(codes) {
			end = codes[i+1].pos
		}
		if start == end {
			return nil, ErrAnnexBEmpty
		}
		if end-start > MaxNALUSize {
			return nil, AVCCnaluSizeTooBigError{NALUSize: end - start}
		}
		ret = append(ret, buf[start:end])
	}
	return ret, nil
}

func annexBEncodeSize(nalus [][]byte) int {
	n := 0
	for _, nalu := range nalus {
		n += 4 + len(nalu)
	}
	return n
}

// AnnexBEncode encodes NALUs into the Annex-B stream format.
func AnnexBEncode(nalus [][]byte) []byte {
	buf := make([]byte, annexBEncodeSize(nalus))
	pos := 0

	for _, nalu := range nalus {
		pos += copy(buf[pos:], []byte{0x00, 0x00, 0x00, 0x01})
		pos += copy(buf[pos:], nalu)
	}

	return buf
}

// AnnexBToAVCCInPlace replaces every 4 byte start code in buf with
// the big endian length of the NALU that follows it, which keeps the
// size of buf unchanged. It returns false and leaves buf untouched if
// buf is not Annex-B or uses any 3 byte start code.
func AnnexBToAVCCInPlace(buf []byte) bool {
	codes := startCodes(buf)
	if len(codes) == 0 || codes[0].pos != 0 {
		return false
	}
	for _, code := range codes {
		if code.length != 4 {
			return false
		}
	}
	for i, code := range codes {
		start := code.pos + 4
		end := len(buf)
		if i+1 < len(codes) {
			end = codes[i+1].pos
		}
		binary.BigEndian.PutUint32(buf[code.pos:], uint32(end-start))
	}
	return true
}

// ToAVCC converts an Annex-B access unit to AVCC. When every start
// code is 4 bytes long the conversion happens in place and buf is
// returned, otherwise a new buffer is allocated.
func ToAVCC(buf []byte) ([]byte, error) {
	if AnnexBToAVCCInPlace(buf) {
		return buf, nil
	}
	nalus, err := AnnexBUnmarshal(buf)
	if err != nil {
		return nil, err
	}
	return AVCCMarshal(nalus), nil
}
