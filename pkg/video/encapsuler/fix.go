package encapsuler

import (
	"errors"
	"fmt"
	"io"
	"os"

	"flashrec/pkg/log"
	"flashrec/pkg/video/h264"
	"flashrec/pkg/video/mp4"
	"flashrec/pkg/video/mp4muxer"
	"flashrec/pkg/video/mpeg4video"
	"flashrec/pkg/video/recindex"
)

// TryFixInfoFile finalizes the media file of an index left behind
// by a recording that was never finished. It returns true if the
// media file was finalized and the index removed.
func TryFixInfoFile(indexPath string, opts ...Option) bool {
	return FixInfoFile(indexPath, opts...) == nil
}

// FixInfoFile is TryFixInfoFile returning the reason of a failure.
// A media file that already has moov is never modified.
func FixInfoFile(indexPath string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	mediaPath, ok := recindex.MediaPath(indexPath)
	if !ok {
		return fmt.Errorf("%w: not an index path: %v", ErrBadParameter, indexPath)
	}

	err := fixInfoFile(mediaPath, indexPath, &o)
	if err != nil {
		o.logf(log.LevelError, mediaPath, "recovery failed: %v", err)
		return err
	}
	return nil
}

func fixInfoFile(mediaPath string, indexPath string, o *options) error {
	index, err := readIndex(indexPath, o, mediaPath)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(mediaPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer file.Close()

	finalized, err := isFinalized(file)
	if err != nil {
		return err
	}
	if finalized {
		return ErrAlreadyFinalized
	}

	dataOffset, err := findDataOffset(file)
	if err != nil {
		return err
	}
	if dataOffset != mp4muxer.DataOffset {
		return fmt.Errorf("%w: unexpected data offset %d", mp4.ErrMalformedAtom, dataOffset)
	}

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	available := uint64(0)
	if stat.Size() > dataOffset {
		available = uint64(stat.Size() - dataOffset)
	}

	// Only keep the samples that were completely written.
	records := index.Records
	var dataSize uint64
	for i, record := range records {
		if dataSize+uint64(record.Size) > available {
			o.logf(log.LevelWarning, mediaPath,
				"media data ends after %d of %d samples", i, len(records))
			records = records[:i]
			break
		}
		dataSize += uint64(record.Size)
	}
	if len(records) == 0 {
		return ErrNothingToEncapsulate
	}

	desc, err := recoverDescription(file, dataOffset, Codec(index.Header.Codec), records[0])
	if err != nil {
		return err
	}

	fps := index.Header.FPS
	samples := make([]mp4muxer.Sample, len(records))
	for i, record := range records {
		samples[i] = mp4muxer.Sample{
			Size:  record.Size,
			Sync:  canStartRecording(frameTypeOf(record.Type)),
			Delta: 1,
		}
	}

	info := mp4muxer.Info{
		Width:        index.Header.Width,
		Height:       index.Header.Height,
		FPS:          fps,
		Description:  desc,
		DataOffset:   uint64(dataOffset),
		CreationTime: stat.ModTime(),
	}
	if err := finalize(file, info, samples, dataSize); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := os.Remove(indexPath); err != nil {
		return fmt.Errorf("%w: remove index: %w", ErrIO, err)
	}

	o.logf(log.LevelInfo, mediaPath, "recovered %d frames", len(records))
	return nil
}

func readIndex(indexPath string, o *options, mediaPath string) (*recindex.Index, error) {
	indexFile, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer indexFile.Close()

	index, err := recindex.Read(indexFile)
	if err != nil {
		if index == nil {
			return nil, fmt.Errorf("%w: %w", ErrBadParameter, err)
		}
		// Keep the records before the invalid one.
		o.logf(log.LevelWarning, mediaPath, "index: %v", err)
	}
	if index.Trailing != 0 {
		o.logf(log.LevelDebug, mediaPath, "discarding %d bytes of partial record", index.Trailing)
	}
	if variantOf(Codec(index.Header.Codec)) == variantUnsupported {
		return nil, fmt.Errorf("%w: unsupported codec %v", ErrBadParameter, Codec(index.Header.Codec))
	}
	return index, nil
}

// findDataOffset returns the offset of the first sample.
func findDataOffset(file *os.File) (int64, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	h, found, err := mp4.LocateBoxHeader(file, mp4.StrToBoxType("mdat"))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: mdat", mp4.ErrAtomNotFound)
	}
	return h.PayloadOffset(), nil
}

// recoverDescription derives the sample description from the
// first sample.
func recoverDescription(
	file *os.File,
	dataOffset int64,
	codec Codec,
	first recindex.Record,
) (*mp4muxer.SampleDescription, error) {
	v := variantOf(codec)
	if v == variantJPEG {
		return mp4muxer.JPEGDescription(), nil
	}

	if first.Size > mp4.MaxAtomData {
		return nil, fmt.Errorf("%w: first sample is %d bytes", mp4.ErrAllocation, first.Size)
	}
	sample := make([]byte, first.Size)
	if _, err := file.ReadAt(sample, dataOffset); err != nil {
		return nil, fmt.Errorf("%w: read first sample: %w", ErrIO, err)
	}

	switch v {
	case variantAVC:
		nalus, err := h264.AVCCUnmarshal(sample)
		if err != nil {
			return nil, fmt.Errorf("%w: first sample: %w", mp4.ErrMalformedAtom, err)
		}
		sps, pps, err := h264.FindParameterSets(nalus)
		if err != nil {
			return nil, fmt.Errorf("%w: first sample: %w", mp4.ErrMalformedAtom, err)
		}
		desc, err := mp4muxer.H264Description(sps, pps)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", mp4.ErrMalformedAtom, err)
		}
		return desc, nil

	case variantMPEG4:
		config, err := mpeg4video.Config(sample)
		if err != nil {
			return nil, fmt.Errorf("%w: first sample: %w", mp4.ErrMalformedAtom, err)
		}
		return mp4muxer.MPEG4Description(config), nil
	}
	return nil, fmt.Errorf("%w: unsupported codec %v", ErrBadParameter, codec)
}

// IsFinalized reports whether the media file at path has moov.
func IsFinalized(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer file.Close()
	return isFinalized(file)
}

// isFinalized walks the top level boxes. The open mdat of an
// unfinished file has a zero size which ends the walk.
func isFinalized(r io.ReadSeeker) (bool, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	found, _, err := mp4.LocateBox(r, mp4.StrToBoxType("moov"))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return found, nil
}
