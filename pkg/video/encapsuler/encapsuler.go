// Package encapsuler writes video frames to a MP4 file that can be
// recovered if the process dies before the file is finalized.
//
// While recording, the file holds ftyp and an open mdat. Every frame
// is also described by a record in an index file next to it. Finish
// appends moov and removes the index, TryFixInfoFile rebuilds moov
// from the index after a crash.
package encapsuler

import (
	"errors"
	"fmt"
	"os"

	"flashrec/pkg/log"
	"flashrec/pkg/video/h264"
	"flashrec/pkg/video/mp4muxer"
	"flashrec/pkg/video/mpeg4video"
	"flashrec/pkg/video/recindex"
)

// MaxPathLength is the maximum length of a media file path.
const MaxPathLength = 256

// FrameHeader describes a frame passed to AddSlice.
type FrameHeader struct {
	Codec Codec

	// Payload size, zero if unknown.
	FrameSize   uint32
	FrameNumber uint32

	Width  uint16
	Height uint16

	// Milliseconds.
	Timestamp int64

	FrameType FrameType

	// H264 only, size of the leading SPS and PPS including
	// their start codes. Zero if absent or unknown.
	SPSSize uint32
	PPSSize uint32
}

// Recording is a media file being written.
// It must not be used from multiple goroutines at the same time.
type Recording struct {
	path string
	fps  uint32
	opts options

	// Set once the first sample is written.
	started bool
	codec   Codec
	variant variant
	info    mp4muxer.Info

	file      *os.File
	indexFile *os.File
	index     *recindex.Writer

	samples         sampleTable
	dataSize        uint64
	lastFrameNumber uint32

	// Reused for H264 conversion.
	scratch []byte

	// Set after a write failed, the files no longer agree.
	err error

	invalidated bool
}

// New returns a recording that will be written to path. Nothing is
// created until the first frame that can start a recording.
func New(path string, fps uint32, opts ...Option) (*Recording, error) {
	if path == "" || len(path) > MaxPathLength {
		return nil, fmt.Errorf("%w: path length %d", ErrBadParameter, len(path))
	}
	if fps == 0 {
		return nil, fmt.Errorf("%w: fps is zero", ErrBadParameter)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Recording{
		path:    path,
		fps:     fps,
		opts:    o,
		samples: newSampleTable(o.frameLimit),
	}, nil
}

// Path returns the media file path.
func (r *Recording) Path() string {
	return r.path
}

// IndexPath returns the path of the recovery index.
func (r *Recording) IndexPath() string {
	return recindex.IndexPath(r.path)
}

// FrameCount returns the number of written frames.
func (r *Recording) FrameCount() int {
	return r.samples.len()
}

// AddSlice writes a frame. ErrWaitingForIFrame is returned, and
// the frame dropped, until a frame that can start a recording
// arrives. Any other error ends the recording.
func (r *Recording) AddSlice(h FrameHeader, payload []byte) error {
	if r.invalidated {
		return ErrInvalidated
	}
	if r.err != nil {
		return r.err
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadParameter)
	}
	if h.FrameSize != 0 && int(h.FrameSize) != len(payload) {
		return fmt.Errorf("%w: frame size %d, payload is %d bytes",
			ErrBadParameter, h.FrameSize, len(payload))
	}

	v := variantOf(h.Codec)
	if v == variantUnsupported {
		return fmt.Errorf("%w: unsupported codec %v", ErrBadParameter, h.Codec)
	}
	if r.started && h.Codec != r.codec {
		return fmt.Errorf("%w: codec changed from %v to %v", ErrBadParameter, r.codec, h.Codec)
	}

	typ := v.classify(h.FrameType, payload)

	if !r.started {
		if !canStartRecording(typ) {
			return ErrWaitingForIFrame
		}
		if err := r.start(h, v, payload); err != nil {
			return err
		}
	} else if h.FrameNumber != 0 && h.FrameNumber != r.lastFrameNumber+1 {
		r.opts.logf(log.LevelDebug, r.path, "frame number jumped from %d to %d",
			r.lastFrameNumber, h.FrameNumber)
	}

	if err := r.addSample(h, typ, payload); err != nil {
		if !r.started {
			r.rollback()
		}
		return err
	}
	r.started = true
	r.lastFrameNumber = h.FrameNumber
	return nil
}

func (r *Recording) addSample(h FrameHeader, typ FrameType, payload []byte) error {
	if r.samples.full() {
		r.opts.logf(log.LevelWarning, r.path, "frame limit %d reached", r.samples.limit)
		return ErrFrameCountLimitReached
	}

	data, err := r.prepare(payload)
	if err != nil {
		return err
	}
	if uint64(len(data)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: frame of %d bytes", ErrBadParameter, len(data))
	}

	if err := r.write(data, typ); err != nil {
		r.err = err
		r.opts.logf(log.LevelError, r.path, "write frame: %v", err)
		return err
	}

	return r.samples.add(sampleEntry{
		size:      uint32(len(data)),
		typ:       typ,
		timestamp: h.Timestamp,
	})
}

// rollback removes the files opened for a first frame that
// could not be written.
func (r *Recording) rollback() {
	r.closeFiles()
	os.Remove(r.path)
	os.Remove(r.IndexPath())
	r.dataSize = 0
}

func (r *Recording) start(h FrameHeader, v variant, payload []byte) error {
	width, height := h.Width, h.Height

	var desc *mp4muxer.SampleDescription
	switch v {
	case variantAVC:
		sps, pps, err := h264.ParameterSets(payload, int(h.SPSSize), int(h.PPSSize))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadParameter, err)
		}
		desc, err = mp4muxer.H264Description(sps, pps)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadParameter, err)
		}
		if width == 0 || height == 0 {
			var s h264.SPS
			if err := s.Unmarshal(sps); err == nil {
				width, height = uint16(s.Width()), uint16(s.Height())
			}
		}

	case variantMPEG4:
		config, err := mpeg4video.Config(payload)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadParameter, err)
		}
		desc = mp4muxer.MPEG4Description(config)

	case variantJPEG:
		desc = mp4muxer.JPEGDescription()
	}

	if width == 0 || height == 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrBadParameter, width, height)
	}

	header := recindex.Header{
		Codec:  uint8(h.Codec),
		Width:  width,
		Height: height,
		FPS:    r.fps,
	}
	if err := r.openFiles(header); err != nil {
		return err
	}

	r.codec = h.Codec
	r.variant = v
	r.info = mp4muxer.Info{
		Width:        width,
		Height:       height,
		FPS:          r.fps,
		Description:  desc,
		DataOffset:   uint64(mp4muxer.DataOffset),
		CreationTime: r.opts.now(),
		Location:     r.info.Location,
	}

	r.opts.logf(log.LevelInfo, r.path, "recording %v %dx%d at %d fps",
		h.Codec, width, height, r.fps)
	return nil
}

// openFiles creates the index before the media file. A media file
// without an index cannot be recovered, the reverse is only stale.
func (r *Recording) openFiles(header recindex.Header) error {
	indexFile, err := os.OpenFile(r.IndexPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	index, err := recindex.NewWriter(indexFile, header, r.opts.syncIndex)
	if err != nil {
		indexFile.Close()
		os.Remove(r.IndexPath())
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	file, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		indexFile.Close()
		os.Remove(r.IndexPath())
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := mp4muxer.WriteHeader(file); err != nil {
		file.Close()
		indexFile.Close()
		os.Remove(r.path)
		os.Remove(r.IndexPath())
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	r.file = file
	r.indexFile = indexFile
	r.index = index
	return nil
}

// prepare returns the bytes stored for payload. payload is
// never modified or retained.
func (r *Recording) prepare(payload []byte) ([]byte, error) {
	if r.variant != variantAVC {
		return payload, nil
	}

	r.scratch = append(r.scratch[:0], payload...)
	data, err := h264.ToAVCC(r.scratch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadParameter, err)
	}
	return data, nil
}

// write stores the sample and then its index record. The record
// is only written once the sample is durable.
func (r *Recording) write(data []byte, typ FrameType) error {
	offset := mp4muxer.DataOffset + int64(r.dataSize)
	if _, err := r.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("%w: write sample: %w", ErrIO, err)
	}
	if r.opts.syncIndex {
		if err := r.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync: %w", ErrIO, err)
		}
	}

	record := recindex.Record{Size: uint32(len(data)), Type: typ.sampleType()}
	if err := r.index.WriteRecord(record); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	r.dataSize += uint64(len(data))
	return nil
}

// SetGPSInfos sets the location written when the recording is finished.
func (r *Recording) SetGPSInfos(latitude float64, longitude float64, altitude float64) {
	if r.invalidated {
		return
	}
	r.info.Location = &mp4muxer.Location{
		Latitude:  latitude,
		Longitude: longitude,
		Altitude:  altitude,
	}
}

// Finish writes moov and removes the index. The recording can
// not be used afterwards. If finalizing fails, the files are kept
// so they can be recovered.
func (r *Recording) Finish() error {
	if r.invalidated {
		return ErrInvalidated
	}
	r.invalidated = true

	if !r.started {
		return ErrNothingToEncapsulate
	}

	err := finalize(r.file, r.info, r.samples.muxerSamples(), r.dataSize)
	if err != nil {
		r.closeFiles()
		r.opts.logf(log.LevelError, r.path, "finalize: %v", err)
		return err
	}

	if err := r.closeFiles(); err != nil {
		return err
	}
	if err := os.Remove(r.IndexPath()); err != nil {
		return fmt.Errorf("%w: remove index: %w", ErrIO, err)
	}

	r.opts.logf(log.LevelInfo, r.path, "finished %d frames", r.samples.len())
	return nil
}

// closeFiles closes both files and returns the first error.
func (r *Recording) closeFiles() error {
	var firstErr error
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			firstErr = fmt.Errorf("%w: close media: %w", ErrIO, err)
		}
		r.file = nil
	}
	if r.indexFile != nil {
		if err := r.indexFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: close index: %w", ErrIO, err)
		}
		r.indexFile = nil
	}
	return firstErr
}

// Cleanup closes and removes both files. The recording can not be
// used afterwards. The first error is returned but every step is
// attempted.
func (r *Recording) Cleanup() error {
	if r.invalidated {
		return ErrInvalidated
	}
	r.invalidated = true

	firstErr := r.closeFiles()
	if !r.started {
		return firstErr
	}

	for _, path := range []string{r.path, r.IndexPath()} {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	r.opts.logf(log.LevelInfo, r.path, "cleaned up after %d frames", r.samples.len())
	return firstErr
}

// finalize appends moov after the sample data and closes mdat.
func finalize(file *os.File, info mp4muxer.Info, samples []mp4muxer.Sample, dataSize uint64) error {
	moov, err := mp4muxer.GenerateMoov(info, samples)
	if err != nil {
		return fmt.Errorf("generate moov: %w", err)
	}

	moovOffset := mp4muxer.DataOffset + int64(dataSize)
	if _, err := file.WriteAt(moov, moovOffset); err != nil {
		return fmt.Errorf("%w: write moov: %w", ErrIO, err)
	}
	if err := file.Truncate(moovOffset + int64(len(moov))); err != nil {
		return fmt.Errorf("%w: truncate: %w", ErrIO, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}

	// mdat is patched last, an interrupted finalize
	// still leaves a recoverable file.
	err = mp4muxer.PatchMdatSize(file, mp4muxer.DataOffset-mp4muxer.MdatHeaderSize, dataSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	return nil
}
