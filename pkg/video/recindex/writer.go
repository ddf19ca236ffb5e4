package recindex

import (
	"fmt"
	"io"
)

// Syncer is implemented by *os.File.
type Syncer interface {
	Sync() error
}

// Writer appends records to an index file.
type Writer struct {
	out  io.Writer
	sync bool

	buf []byte
}

// NewWriter creates a new Writer and writes the header. If sync is
// true and out implements Syncer, every write is flushed to stable
// storage before returning.
func NewWriter(out io.Writer, header Header, sync bool) (*Writer, error) {
	w := &Writer{
		out:  out,
		sync: sync,
		buf:  make([]byte, 0, 32),
	}

	if _, err := out.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.flush(); err != nil {
		return nil, err
	}

	return w, nil
}

// WriteRecord writes a single record with one write call.
func (w *Writer) WriteRecord(r Record) error {
	w.buf = r.AppendMarshal(w.buf[:0])
	if _, err := w.out.Write(w.buf); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if !w.sync {
		return nil
	}
	s, ok := w.out.(Syncer)
	if !ok {
		return nil
	}
	if err := s.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}
