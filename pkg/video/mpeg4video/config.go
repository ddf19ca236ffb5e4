// Package mpeg4video handles MPEG-4 Visual (ISO/IEC 14496-2) elementary streams.
package mpeg4video

import (
	"bytes"
	"errors"
)

// Start codes.
const (
	VisualObjectSequenceStartCode = 0xb0
	VisualObjectStartCode         = 0xb5
	VOPStartCode                  = 0xb6
)

// Errors.
var (
	ErrNoStartCode = errors.New("missing start code")
	ErrNoConfig    = errors.New("frame has no configuration headers")
)

var startCodePrefix = []byte{0x00, 0x00, 0x01}

// Config returns a copy of the configuration headers (visual object
// sequence, visual object and video object layer) that precede the
// first VOP of frame. It is the DecoderSpecificInfo of the stream.
func Config(frame []byte) ([]byte, error) {
	if !bytes.HasPrefix(frame, startCodePrefix) || len(frame) < 4 {
		return nil, ErrNoStartCode
	}

	end := len(frame)
	vop := []byte{0x00, 0x00, 0x01, VOPStartCode}
	if i := bytes.Index(frame, vop); i >= 0 {
		end = i
	}
	if end == 0 {
		return nil, ErrNoConfig
	}

	return append([]byte(nil), frame[:end]...), nil
}

// IsVOP reports whether frame starts directly with a VOP.
func IsVOP(frame []byte) bool {
	return len(frame) >= 4 &&
		bytes.HasPrefix(frame, startCodePrefix) &&
		frame[3] == VOPStartCode
}

// VOPCodingType returns the vop_coding_type of the first VOP in frame:
// 0 I, 1 P, 2 B, 3 S. It returns -1 if frame holds no VOP.
func VOPCodingType(frame []byte) int {
	i := bytes.Index(frame, []byte{0x00, 0x00, 0x01, VOPStartCode})
	if i < 0 || i+4 >= len(frame) {
		return -1
	}
	return int(frame[i+4] >> 6)
}
