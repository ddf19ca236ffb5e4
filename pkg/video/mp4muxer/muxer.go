package mp4muxer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"flashrec/pkg/video/mp4"
)

// Errors.
var (
	ErrNoSamples     = errors.New("no samples")
	ErrInvalidFPS    = errors.New("invalid fps")
	ErrNoDescription = errors.New("missing sample description")
)

const (
	videoTrackID   = 1
	movieTimescale = 1000

	// Seconds between 1904-01-01 and 1970-01-01.
	mp4EpochOffset = 2082844800

	// Language field of ©xyz.
	xyzLanguage = 0x15c7
)

// Sample is a sample in the media data region.
type Sample struct {
	Size uint32
	Sync bool

	// Timestamp in milliseconds.
	Timestamp int64

	// Duration in frames. Derived from the timestamps when zero.
	Delta uint32
}

// Location is a GPS position.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// ISO6709 formats the location as "+DD.DDDD+DDD.DDDD+AAA.AAA/".
func (l Location) ISO6709() string {
	return fmt.Sprintf("%+08.4f%+09.4f%+08.3f/", l.Latitude, l.Longitude, l.Altitude)
}

// Info describes the video track.
type Info struct {
	Width       uint16
	Height      uint16
	FPS         uint32
	Description *SampleDescription

	// File offset of the first sample.
	DataOffset uint64

	CreationTime time.Time

	// Optional.
	Location *Location
}

// sampleDeltas returns the duration of each sample in 1/fps units.
// A delta that is not positive falls back to one frame. The last
// sample lasts one frame.
func sampleDeltas(samples []Sample, fps uint32) []uint32 {
	deltas := make([]uint32, len(samples))
	for i := range samples {
		deltas[i] = 1
		if samples[i].Delta != 0 {
			deltas[i] = samples[i].Delta
			continue
		}
		if i+1 == len(samples) {
			break
		}
		ms := samples[i+1].Timestamp - samples[i].Timestamp
		if ms <= 0 {
			continue
		}
		d := math.Round(float64(ms) * float64(fps) / 1000)
		if d >= 1 && d <= math.MaxUint32 {
			deltas[i] = uint32(d)
		}
	}
	return deltas
}

type tables struct {
	stts     []mp4.SttsEntry
	stss     []uint32
	stsz     []uint32
	stco     []uint32
	co64     []uint64
	duration uint64 // In 1/fps units.
}

func generateTables(samples []Sample, fps uint32, dataOffset uint64) tables {
	var t tables
	t.stsz = make([]uint32, 0, len(samples))
	offsets := make([]uint64, 0, len(samples))

	pos := dataOffset
	for i, delta := range sampleDeltas(samples, fps) {
		sample := samples[i]

		if len(t.stts) > 0 && t.stts[len(t.stts)-1].SampleDelta == delta {
			t.stts[len(t.stts)-1].SampleCount++
		} else {
			t.stts = append(t.stts, mp4.SttsEntry{
				SampleCount: 1,
				SampleDelta: delta,
			})
		}
		t.duration += uint64(delta)

		t.stsz = append(t.stsz, sample.Size)
		if sample.Sync {
			t.stss = append(t.stss, uint32(len(t.stsz)))
		}

		// One chunk per sample.
		offsets = append(offsets, pos)
		pos += uint64(sample.Size)
	}

	if offsets[len(offsets)-1] > math.MaxUint32 {
		t.co64 = offsets
		return t
	}
	t.stco = make([]uint32, len(offsets))
	for i, offset := range offsets {
		t.stco[i] = uint32(offset)
	}
	return t
}

func mp4Time(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.Unix() + mp4EpochOffset)
}

// GenerateMoov returns the marshaled moov box of a recording.
func GenerateMoov(info Info, samples []Sample) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if info.FPS == 0 {
		return nil, ErrInvalidFPS
	}
	if info.Description == nil {
		return nil, ErrNoDescription
	}

	t := generateTables(samples, info.FPS, info.DataOffset)
	movieDuration := t.duration * movieTimescale / uint64(info.FPS)
	creationTime := mp4Time(info.CreationTime)

	/*
	   moov
	   - mvhd
	   - trak
	   - udta
	     - ©xyz
	*/

	mvhd := &mp4.Mvhd{
		Timescale:   movieTimescale,
		Rate:        65536,
		Volume:      256,
		Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		NextTrackID: videoTrackID + 1,
	}
	if movieDuration > math.MaxUint32 || creationTime > math.MaxUint32 {
		mvhd.FullBox.Version = 1
		mvhd.CreationTimeV1 = creationTime
		mvhd.ModificationTimeV1 = creationTime
		mvhd.DurationV1 = movieDuration
	} else {
		mvhd.CreationTimeV0 = uint32(creationTime)
		mvhd.ModificationTimeV0 = uint32(creationTime)
		mvhd.DurationV0 = uint32(movieDuration)
	}

	moov := mp4.Boxes{
		Box: &mp4.Moov{},
		Children: []mp4.Boxes{
			{Box: mvhd},
			generateTrak(info, t, movieDuration, creationTime),
		},
	}

	if info.Location != nil {
		moov.Children = append(moov.Children, mp4.Boxes{
			Box: &mp4.Udta{},
			Children: []mp4.Boxes{
				{Box: &mp4.Xyz{
					Language: xyzLanguage,
					Location: info.Location.ISO6709(),
				}},
			},
		})
	}

	buf, err := moov.MarshalToBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal moov: %w", err)
	}
	return buf, nil
}

func generateTrak(info Info, t tables, movieDuration uint64, creationTime uint64) mp4.Boxes {
	/*
	   trak
	   - tkhd
	   - mdia
	     - mdhd
	     - hdlr
	     - minf
	*/

	tkhd := &mp4.Tkhd{
		FullBox: mp4.FullBox{
			Flags: [3]byte{0, 0, 3},
		},
		TrackID: videoTrackID,
		Matrix:  [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		Width:   uint32(info.Width) * 65536,
		Height:  uint32(info.Height) * 65536,
	}
	mdhd := &mp4.Mdhd{
		Timescale: info.FPS, // the number of time units that pass per second
		Language:  [3]byte{'u', 'n', 'd'},
	}

	if movieDuration > math.MaxUint32 || t.duration > math.MaxUint32 ||
		creationTime > math.MaxUint32 {
		tkhd.FullBox.Version = 1
		tkhd.CreationTimeV1 = creationTime
		tkhd.ModificationTimeV1 = creationTime
		tkhd.DurationV1 = movieDuration
		mdhd.FullBox.Version = 1
		mdhd.CreationTimeV1 = creationTime
		mdhd.ModificationTimeV1 = creationTime
		mdhd.DurationV1 = t.duration
	} else {
		tkhd.CreationTimeV0 = uint32(creationTime)
		tkhd.ModificationTimeV0 = uint32(creationTime)
		tkhd.DurationV0 = uint32(movieDuration)
		mdhd.CreationTimeV0 = uint32(creationTime)
		mdhd.ModificationTimeV0 = uint32(creationTime)
		mdhd.DurationV0 = uint32(t.duration)
	}

	return mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: tkhd},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: mdhd},
					{Box: &mp4.Hdlr{
						HandlerType: [4]byte{'v', 'i', 'd', 'e'},
						Name:        "VideoHandler",
					}},
					generateMinf(info, t),
				},
			},
		},
	}
}

func generateMinf(info Info, t tables) mp4.Boxes {
	/*
	   minf
	   - vmhd
	   - dinf
	     - dref
	       - url
	   - stbl
	     - stsd
	     - stts
	     - stss
	     - stsc
	     - stsz
	     - stco | co64
	*/

	var chunkOffsets mp4.Boxes
	if t.co64 != nil {
		chunkOffsets = mp4.Boxes{Box: &mp4.Co64{ChunkOffsets: t.co64}}
	} else {
		chunkOffsets = mp4.Boxes{Box: &mp4.Stco{ChunkOffsets: t.stco}}
	}

	stbl := mp4.Boxes{
		Box: &mp4.Stbl{},
		Children: []mp4.Boxes{
			info.Description.stsd(info.Width, info.Height),
			{Box: &mp4.Stts{
				Entries: t.stts,
			}},
			{Box: &mp4.Stss{
				SampleNumbers: t.stss,
			}},
			{Box: &mp4.Stsc{
				Entries: []mp4.StscEntry{{
					FirstChunk:             1,
					SamplesPerChunk:        1,
					SampleDescriptionIndex: 1,
				}},
			}},
			{Box: &mp4.Stsz{
				SampleCount: uint32(len(t.stsz)),
				EntrySizes:  t.stsz,
			}},
			chunkOffsets,
		},
	}

	return mp4.Boxes{
		Box: &mp4.Minf{},
		Children: []mp4.Boxes{
			{Box: &mp4.Vmhd{
				FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}},
			}},
			{
				Box: &mp4.Dinf{},
				Children: []mp4.Boxes{
					{
						Box: &mp4.Dref{EntryCount: 1},
						Children: []mp4.Boxes{
							{Box: &mp4.URL{
								FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}},
							}},
						},
					},
				},
			},
			stbl,
		},
	}
}
