package encapsuler

import (
	"fmt"

	"flashrec/pkg/video/h264"
	"flashrec/pkg/video/mpeg4video"
	"flashrec/pkg/video/recindex"
)

// Codec of a frame.
type Codec uint8

// Codecs.
const (
	CodecUnknown Codec = iota
	CodecVLIB
	CodecP264
	CodecMPEG4Visual
	CodecMPEG4AVC
	CodecMotionJPEG
)

func (c Codec) String() string {
	switch c {
	case CodecVLIB:
		return "VLIB"
	case CodecP264:
		return "P264"
	case CodecMPEG4Visual:
		return "MPEG-4 Visual"
	case CodecMPEG4AVC:
		return "H264"
	case CodecMotionJPEG:
		return "MJPEG"
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// FrameType as reported by the encoder, or as classified.
type FrameType uint8

// Frame types.
const (
	FrameTypeUnknown FrameType = iota
	FrameTypeIDR
	FrameTypeI
	FrameTypeP
	FrameTypeJPEG
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeIDR:
		return "IDR"
	case FrameTypeI:
		return "I"
	case FrameTypeP:
		return "P"
	case FrameTypeJPEG:
		return "JPEG"
	}
	return "unknown"
}

// canStartRecording reports whether a recording can begin with t.
func canStartRecording(t FrameType) bool {
	return t == FrameTypeIDR || t == FrameTypeI || t == FrameTypeJPEG
}

// variant is the per codec behavior.
type variant int

const (
	variantUnsupported variant = iota
	variantAVC
	variantMPEG4
	variantJPEG
)

func variantOf(c Codec) variant {
	switch c {
	case CodecMPEG4AVC:
		return variantAVC
	case CodecMPEG4Visual:
		return variantMPEG4
	case CodecMotionJPEG:
		return variantJPEG
	}
	return variantUnsupported
}

// classify returns the type of a frame. The encoder reported type
// wins, the payload is only inspected when it is unknown.
func (v variant) classify(raw FrameType, payload []byte) FrameType {
	switch v {
	case variantJPEG:
		return FrameTypeJPEG

	case variantAVC:
		switch raw {
		case FrameTypeIDR, FrameTypeI, FrameTypeP:
			return raw
		case FrameTypeUnknown:
			return classifyAVC(payload)
		}

	case variantMPEG4:
		switch raw {
		case FrameTypeIDR, FrameTypeI, FrameTypeP:
			return raw
		case FrameTypeUnknown:
			return classifyMPEG4(payload)
		}
	}
	return FrameTypeUnknown
}

func classifyAVC(payload []byte) FrameType {
	nalus, err := h264.AnnexBUnmarshal(payload)
	if err != nil {
		return FrameTypeUnknown
	}
	for _, nalu := range nalus {
		switch h264.TypeOf(nalu) {
		case h264.NALUTypeIDR:
			return FrameTypeIDR
		case h264.NALUTypeNonIDR:
			return FrameTypeP
		}
	}
	return FrameTypeUnknown
}

func classifyMPEG4(payload []byte) FrameType {
	switch mpeg4video.VOPCodingType(payload) {
	case 0:
		return FrameTypeI
	case 1, 2, 3:
		return FrameTypeP
	}
	return FrameTypeUnknown
}

func (t FrameType) sampleType() recindex.SampleType {
	switch t {
	case FrameTypeIDR:
		return recindex.TypeIDR
	case FrameTypeI:
		return recindex.TypeI
	case FrameTypeP:
		return recindex.TypeP
	case FrameTypeJPEG:
		return recindex.TypeJPEG
	}
	return recindex.TypeUnknown
}

func frameTypeOf(t recindex.SampleType) FrameType {
	switch t {
	case recindex.TypeIDR:
		return FrameTypeIDR
	case recindex.TypeI:
		return FrameTypeI
	case recindex.TypeP:
		return FrameTypeP
	case recindex.TypeJPEG:
		return FrameTypeJPEG
	}
	return FrameTypeUnknown
}
