package encapsuler

import (
	"errors"

	"flashrec/pkg/video/mp4"
	"flashrec/pkg/video/mp4/bitio"
)

// Errors.
var (
	// ErrWaitingForIFrame is not a failure, the caller
	// should keep feeding frames.
	ErrWaitingForIFrame = errors.New("waiting for I-frame")

	ErrFrameCountLimitReached = errors.New("frame count limit reached")
	ErrNothingToEncapsulate   = errors.New("nothing to encapsulate")
	ErrBadParameter           = errors.New("bad parameter")
	ErrIO                     = errors.New("i/o error")
	ErrInvalidated            = errors.New("recording already finished or cleaned up")
	ErrAlreadyFinalized       = errors.New("media file already finalized")
)

// Kind is the error kind of a returned error.
type Kind int

// Error kinds.
const (
	KindOk Kind = iota
	KindWaitingForIFrame
	KindFrameCountLimitReached
	KindNothingToEncapsulate
	KindIO
	KindAllocation
	KindBadParameter
	KindMalformedAtom
	KindTruncatedData
	KindBufferOverflow
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "Ok"
	case KindWaitingForIFrame:
		return "WaitingForIFrame"
	case KindFrameCountLimitReached:
		return "FrameCountLimitReached"
	case KindNothingToEncapsulate:
		return "NothingToEncapsulate"
	case KindIO:
		return "IoError"
	case KindAllocation:
		return "AllocationError"
	case KindBadParameter:
		return "BadParameter"
	case KindMalformedAtom:
		return "MalformedAtom"
	case KindTruncatedData:
		return "TruncatedData"
	case KindBufferOverflow:
		return "BufferOverflow"
	}
	return "Unknown"
}

// KindOf returns the kind of err. Errors that match no
// other kind are reported as KindIO.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOk
	case errors.Is(err, ErrWaitingForIFrame):
		return KindWaitingForIFrame
	case errors.Is(err, ErrFrameCountLimitReached):
		return KindFrameCountLimitReached
	case errors.Is(err, ErrNothingToEncapsulate):
		return KindNothingToEncapsulate
	case errors.Is(err, ErrBadParameter), errors.Is(err, ErrInvalidated):
		return KindBadParameter
	case errors.Is(err, mp4.ErrAllocation):
		return KindAllocation
	case errors.Is(err, bitio.ErrBufferOverflow):
		return KindBufferOverflow
	case errors.Is(err, bitio.ErrTruncatedData):
		return KindTruncatedData
	case errors.Is(err, mp4.ErrMalformedAtom), errors.Is(err, mp4.ErrAtomNotFound):
		return KindMalformedAtom
	}
	return KindIO
}

// Failed reports whether err must stop the recording.
func Failed(err error) bool {
	return err != nil && !errors.Is(err, ErrWaitingForIFrame)
}
