package recindex

import (
	"errors"
	"fmt"
	"strconv"
)

// SampleType is the type character of a record.
type SampleType byte

// Sample types.
const (
	TypeIDR     SampleType = 'I'
	TypeI       SampleType = 'i'
	TypeP       SampleType = 'P'
	TypeJPEG    SampleType = 'J'
	TypeUnknown SampleType = '?'
)

// IsSync reports whether samples of this type can be decoded alone.
func (t SampleType) IsSync() bool {
	return t == TypeIDR || t == TypeI || t == TypeJPEG
}

func (t SampleType) valid() bool {
	switch t {
	case TypeIDR, TypeI, TypeP, TypeJPEG, TypeUnknown:
		return true
	}
	return false
}

// Record describes one sample in the media file.
type Record struct {
	Size uint32
	Type SampleType
}

// ErrInvalidRecord invalid record.
var ErrInvalidRecord = errors.New("invalid record")

const recordSeparator = '|'

// AppendMarshal appends the marshaled record to buf.
func (r Record) AppendMarshal(buf []byte) []byte {
	buf = strconv.AppendUint(buf, uint64(r.Size), 10)
	buf = append(buf, ':', byte(r.Type), recordSeparator)
	return buf
}

// Marshal record.
func (r Record) Marshal() []byte {
	return r.AppendMarshal(make([]byte, 0, 16))
}

// Unmarshal a record without its trailing separator.
func (r *Record) Unmarshal(buf []byte) error {
	if len(buf) < 3 || buf[len(buf)-2] != ':' {
		return fmt.Errorf("%w: %q", ErrInvalidRecord, buf)
	}

	size, err := strconv.ParseUint(string(buf[:len(buf)-2]), 10, 32)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidRecord, buf, err)
	}

	typ := SampleType(buf[len(buf)-1])
	if !typ.valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidRecord, typ)
	}

	r.Size = uint32(size)
	r.Type = typ
	return nil
}
