package encapsuler

import (
	"flashrec/pkg/video/mp4muxer"
)

// DefaultFrameLimit is the maximum number of frames in a recording.
const DefaultFrameLimit = 131072

type sampleEntry struct {
	size      uint32
	typ       FrameType
	timestamp int64 // Milliseconds.
}

// sampleTable is an append only list of the written samples.
type sampleTable struct {
	entries []sampleEntry
	limit   int
}

func newSampleTable(limit int) sampleTable {
	return sampleTable{limit: limit}
}

func (t *sampleTable) len() int {
	return len(t.entries)
}

func (t *sampleTable) full() bool {
	return len(t.entries) >= t.limit
}

func (t *sampleTable) add(e sampleEntry) error {
	if t.full() {
		return ErrFrameCountLimitReached
	}
	t.entries = append(t.entries, e)
	return nil
}

func (t *sampleTable) muxerSamples() []mp4muxer.Sample {
	samples := make([]mp4muxer.Sample, len(t.entries))
	for i, e := range t.entries {
		samples[i] = mp4muxer.Sample{
			Size:      e.size,
			Sync:      canStartRecording(e.typ),
			Timestamp: e.timestamp,
		}
	}
	return samples
}
