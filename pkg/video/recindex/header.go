package recindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Magic is the first word of every index file.
const Magic = "FLASHREC"

// Version of the index format.
const Version = 4

// Header index file header.
type Header struct {
	Codec  uint8
	Width  uint16
	Height uint16
	FPS    uint32
}

// Header errors.
var (
	ErrNoHeader           = errors.New("missing header")
	ErrInvalidHeader      = errors.New("invalid header")
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// Marshal header.
func (h Header) Marshal() []byte {
	return []byte(fmt.Sprintf("%s %d %d %d %d %d\n",
		Magic, Version, h.Codec, h.Width, h.Height, h.FPS))
}

// Unmarshal header from reader. Returns the number of bytes read.
func (h *Header) Unmarshal(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrNoHeader
		}
		return 0, err
	}

	fields := strings.Fields(line)
	if len(fields) != 6 || fields[0] != Magic {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
	}

	version, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: version: %w", ErrInvalidHeader, err)
	}
	if version != Version {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	codec, err := strconv.ParseUint(fields[2], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: codec: %w", ErrInvalidHeader, err)
	}
	width, err := strconv.ParseUint(fields[3], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: width: %w", ErrInvalidHeader, err)
	}
	height, err := strconv.ParseUint(fields[4], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: height: %w", ErrInvalidHeader, err)
	}
	fps, err := strconv.ParseUint(fields[5], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: fps: %w", ErrInvalidHeader, err)
	}
	if fps == 0 {
		return 0, fmt.Errorf("%w: fps is zero", ErrInvalidHeader)
	}

	h.Codec = uint8(codec)
	h.Width = uint16(width)
	h.Height = uint16(height)
	h.FPS = uint32(fps)

	return len(line), nil
}
