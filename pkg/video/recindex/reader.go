package recindex

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Suffix is appended to the media file path to get the index path.
const Suffix = ".index"

// IndexPath returns the index path of a media file.
func IndexPath(mediaPath string) string {
	return mediaPath + Suffix
}

// MediaPath returns the media path of an index file.
func MediaPath(indexPath string) (string, bool) {
	if !strings.HasSuffix(indexPath, Suffix) {
		return "", false
	}
	mediaPath := strings.TrimSuffix(indexPath, Suffix)
	if mediaPath == "" || os.IsPathSeparator(mediaPath[len(mediaPath)-1]) {
		return "", false
	}
	return mediaPath, true
}

// Index is a parsed index file.
type Index struct {
	Header  Header
	Records []Record

	// Bytes after the last complete record, left by a write
	// that was interrupted.
	Trailing int
}

// TotalSize returns the sum of the record sizes.
func (i *Index) TotalSize() uint64 {
	var total uint64
	for _, r := range i.Records {
		total += uint64(r.Size)
	}
	return total
}

// Read parses an index file. A trailing incomplete record is
// discarded. If a complete record is invalid, the records before it
// are returned together with an error wrapping ErrInvalidRecord.
func Read(in io.Reader) (*Index, error) {
	br := bufio.NewReader(in)

	var index Index
	if _, err := index.Header.Unmarshal(br); err != nil {
		return nil, fmt.Errorf("unmarshal header: %w", err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}

	for len(body) > 0 {
		end := bytes.IndexByte(body, recordSeparator)
		if end == -1 {
			index.Trailing = len(body)
			break
		}

		var r Record
		if err := r.Unmarshal(body[:end]); err != nil {
			return &index, err
		}
		index.Records = append(index.Records, r)
		body = body[end+1:]
	}

	return &index, nil
}
