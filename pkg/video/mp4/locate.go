package mp4

import (
	"errors"
	"fmt"
	"io"

	"flashrec/pkg/video/mp4/bitio"
)

// Errors.
var (
	ErrMalformedAtom = errors.New("malformed atom")
	ErrAtomNotFound  = errors.New("atom not found")
	ErrAllocation    = errors.New("allocation refused")
)

// MaxAtomData is the largest payload the readers will allocate.
const MaxAtomData = 64 * 1024 * 1024

// BoxHeader is a located box.
type BoxHeader struct {
	Type BoxType

	// Offset of the first header byte.
	Offset int64

	// Size is the total box size including the header.
	Size uint64

	// HeaderSize is 8, or 16 when an extended size follows.
	HeaderSize uint64
}

// PayloadSize returns the size of the box without its header.
func (h BoxHeader) PayloadSize() uint64 {
	return h.Size - h.HeaderSize
}

// PayloadOffset returns the offset of the first payload byte.
func (h BoxHeader) PayloadOffset() int64 {
	return h.Offset + int64(h.HeaderSize)
}

// End returns the offset of the first byte after the box.
func (h BoxHeader) End() int64 {
	return h.Offset + int64(h.Size)
}

// Both 0 and 1 announce an 8 byte extended size. Recordings written
// by older firmware use 0 where ISOBMFF uses 1 and must stay readable.
func isExtendedSize(size uint32) bool {
	return size == 0 || size == 1
}

// readBoxHeader reads a header at the current position.
// It returns io.EOF if the stream ends before a complete header.
func readBoxHeader(r io.ReadSeeker) (BoxHeader, error) {
	offset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return BoxHeader{}, err
	}

	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:8]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return BoxHeader{}, io.EOF
		}
		return BoxHeader{}, err
	}

	h := BoxHeader{Offset: offset, HeaderSize: 8}
	size32 := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	copy(h.Type[:], buf[4:8])

	if !isExtendedSize(size32) {
		h.Size = uint64(size32)
	} else {
		if _, err := io.ReadFull(r, buf[8:16]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return BoxHeader{}, io.EOF
			}
			return BoxHeader{}, err
		}
		h.HeaderSize = 16
		br := bitio.NewReader(buf[8:16])
		h.Size, _ = br.ReadUint64()
	}
	return h, nil
}

// locate walks sibling boxes from the current position until typ is
// found, the stream ends or end is reached. end < 0 means no limit.
// On success the stream is positioned at the start of the payload.
func locate(r io.ReadSeeker, typ BoxType, end int64) (BoxHeader, bool, error) {
	for {
		h, err := readBoxHeader(r)
		if errors.Is(err, io.EOF) {
			return BoxHeader{}, false, nil
		}
		if err != nil {
			return BoxHeader{}, false, err
		}
		if end >= 0 && h.Offset >= end {
			return BoxHeader{}, false, nil
		}
		if h.Type == typ {
			return h, true, nil
		}
		if h.Size < h.HeaderSize {
			// Walking on would loop or go backwards.
			return BoxHeader{}, false, nil
		}
		if _, err := r.Seek(h.End(), io.SeekStart); err != nil {
			return BoxHeader{}, false, err
		}
	}
}

// LocateBox searches the sibling boxes starting at the current stream
// position for typ. The returned size includes the header. When found
// the stream is positioned at the first payload byte.
func LocateBox(r io.ReadSeeker, typ BoxType) (bool, uint64, error) {
	h, found, err := locate(r, typ, -1)
	if err != nil {
		return false, 0, err
	}
	return found, h.Size, nil
}

// LocateBoxHeader is LocateBox returning the full header. The
// header of a box that is still open, like the mdat of an unfinished
// recording, is returned with a Size smaller than its HeaderSize.
func LocateBoxHeader(r io.ReadSeeker, typ BoxType) (BoxHeader, bool, error) {
	return locate(r, typ, -1)
}

// LocateNestedBox descends path starting at the current position,
// e.g. moov/trak/mdia/mdhd. Each step only searches inside the box
// found by the previous step. The stream is left at the payload of
// the last box.
func LocateNestedBox(r io.ReadSeeker, path ...BoxType) (BoxHeader, error) {
	var h BoxHeader
	end := int64(-1)
	for _, typ := range path {
		var found bool
		var err error
		h, found, err = locate(r, typ, end)
		if err != nil {
			return BoxHeader{}, err
		}
		if !found {
			return BoxHeader{}, fmt.Errorf("%w: %v", ErrAtomNotFound, typ)
		}
		end = h.End()
	}
	return h, nil
}

// readPayload reads the payload of a located box.
func readPayload(r io.Reader, h BoxHeader) ([]byte, error) {
	size := h.PayloadSize()
	if size > MaxAtomData {
		return nil, fmt.Errorf("%w: %v payload of %d bytes", ErrAllocation, h.Type, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read %v: %w", h.Type, err)
	}
	return payload, nil
}

// ReadFpsFromMdhd returns the timescale of a version 0 mdhd payload,
// which is the frame rate for files written by this package.
func ReadFpsFromMdhd(payload []byte) (uint32, error) {
	if len(payload) < 16 {
		return 0, fmt.Errorf("%w: mdhd payload is %d bytes", ErrMalformedAtom, len(payload))
	}
	r := bitio.NewReader(payload)

	// Version and flags, creation and modification time.
	if err := r.Skip(12); err != nil {
		return 0, err
	}
	return r.ReadUint32()
}

// ReadFpsFromFile rewinds r and reads the frame rate from
// moov/trak/mdia/mdhd.
func ReadFpsFromFile(r io.ReadSeeker) (uint32, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	h, err := LocateNestedBox(r,
		StrToBoxType("moov"),
		StrToBoxType("trak"),
		StrToBoxType("mdia"),
		StrToBoxType("mdhd"),
	)
	if err != nil {
		return 0, err
	}
	payload, err := readPayload(r, h)
	if err != nil {
		return 0, err
	}
	return ReadFpsFromMdhd(payload)
}

// ExtractInnerData returns a copy of the u32 length prefixed data at
// the start of payload. Nothing is allocated if the declared length
// does not fit.
func ExtractInnerData(payload []byte) ([]byte, error) {
	r := bitio.NewReader(payload)
	innerLength, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAtom, err)
	}
	if uint64(innerLength) > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: inner length %d, %d bytes remaining",
			ErrMalformedAtom, innerLength, r.Remaining())
	}
	if innerLength > MaxAtomData {
		return nil, fmt.Errorf("%w: inner length %d", ErrAllocation, innerLength)
	}
	return r.ReadBytes(int(innerLength))
}

// ReadAtomData rewinds r, finds the top level box typ and returns
// the length prefixed data stored in its payload.
func ReadAtomData(r io.ReadSeeker, typ BoxType) ([]byte, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	h, found, err := locate(r, typ, -1)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %v", ErrAtomNotFound, typ)
	}
	payload, err := readPayload(r, h)
	if err != nil {
		return nil, err
	}
	return ExtractInnerData(payload)
}

// LocateBoxInBuffer walks the boxes in buf starting at offset and
// returns the offset of the header of the first box of type typ.
func LocateBoxInBuffer(buf []byte, offset int, typ BoxType) (int, error) {
	for offset >= 0 && offset < len(buf) {
		r := bitio.NewReader(buf[offset:])
		size32, err := r.ReadUint32()
		if err != nil {
			return 0, err
		}
		rawType, err := r.ReadBytes(4)
		if err != nil {
			return 0, err
		}

		size := uint64(size32)
		headerSize := uint64(8)
		if isExtendedSize(size32) {
			if size, err = r.ReadUint64(); err != nil {
				return 0, err
			}
			headerSize = 16
		}

		if BoxType(rawType) == typ {
			return offset, nil
		}
		if size < headerSize || size > uint64(len(buf)-offset) {
			return 0, fmt.Errorf("%w: %s size %d at offset %d",
				ErrMalformedAtom, rawType, size, offset)
		}
		offset += int(size)
	}
	return 0, fmt.Errorf("%w: %v", ErrAtomNotFound, typ)
}
