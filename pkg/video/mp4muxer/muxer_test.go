package mp4muxer

import (
	"bytes"
	"math"
	"testing"
	"time"

	"flashrec/pkg/video/mp4"

	amp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x1f, 0xda, 0x01, 0x40, 0x16, 0xe4}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

func TestSampleDeltas(t *testing.T) {
	testCases := []struct {
		name       string
		timestamps []int64
		fps        uint32
		expected   []uint32
	}{
		{"single", []int64{0}, 25, []uint32{1}},
		{"constant", []int64{0, 40, 80, 120}, 25, []uint32{1, 1, 1, 1}},
		{"gap", []int64{0, 40, 200}, 25, []uint32{1, 4, 1}},
		{"rounding", []int64{0, 33, 67}, 30, []uint32{1, 1, 1}},
		{"backwards", []int64{100, 50, 90}, 25, []uint32{1, 1, 1}},
		{"equal", []int64{100, 100, 140}, 25, []uint32{1, 1, 1}},
		{"too short", []int64{0, 10, 50}, 25, []uint32{1, 1, 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			samples := make([]Sample, len(tc.timestamps))
			for i, ts := range tc.timestamps {
				samples[i].Timestamp = ts
			}
			require.Equal(t, tc.expected, sampleDeltas(samples, tc.fps))
		})
	}
}

func TestSampleDeltasExplicit(t *testing.T) {
	// Millisecond timestamps cannot express these frame steps.
	samples := []Sample{
		{Timestamp: 0, Delta: 1},
		{Timestamp: 0, Delta: 1},
		{Timestamp: 1, Delta: 2},
		{Timestamp: 2},
	}
	require.Equal(t, []uint32{1, 1, 2, 1}, sampleDeltas(samples, 1500))
}

func TestGenerateTables(t *testing.T) {
	samples := []Sample{
		{Size: 10, Sync: true, Timestamp: 0},
		{Size: 20, Timestamp: 40},
		{Size: 30, Timestamp: 80},
		{Size: 40, Sync: true, Timestamp: 200},
		{Size: 50, Timestamp: 240},
	}
	tb := generateTables(samples, 25, 48)

	require.Equal(t, []mp4.SttsEntry{
		{SampleCount: 2, SampleDelta: 1},
		{SampleCount: 1, SampleDelta: 3},
		{SampleCount: 2, SampleDelta: 1},
	}, tb.stts)
	require.Equal(t, []uint32{1, 4}, tb.stss)
	require.Equal(t, []uint32{10, 20, 30, 40, 50}, tb.stsz)
	require.Equal(t, []uint32{48, 58, 78, 108, 148}, tb.stco)
	require.Nil(t, tb.co64)
	require.Equal(t, uint64(7), tb.duration)
}

func TestGenerateTablesCo64(t *testing.T) {
	samples := []Sample{
		{Size: math.MaxUint32, Sync: true},
		{Size: 100},
	}
	tb := generateTables(samples, 25, 48)
	require.Nil(t, tb.stco)
	require.Equal(t, []uint64{48, 48 + math.MaxUint32}, tb.co64)
}

func TestISO6709(t *testing.T) {
	l := Location{Latitude: 48.8583, Longitude: 2.2945, Altitude: 35}
	require.Equal(t, "+48.8583+002.2945+035.000/", l.ISO6709())

	l = Location{Latitude: -33.8568, Longitude: -151.2153, Altitude: -1.5}
	require.Equal(t, "-33.8568-151.2153-001.500/", l.ISO6709())
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf))

	expected := []byte{
		0, 0, 0, 0x20, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm',
		0, 0, 2, 0, // Minor version.
		'i', 's', 'o', 'm',
		'i', 's', 'o', '2',
		'a', 'v', 'c', '1',
		'm', 'p', '4', '1',
		0, 0, 0, 1, 'm', 'd', 'a', 't',
		0, 0, 0, 0, 0, 0, 0, 0, // Large size.
	}
	require.Equal(t, expected, buf.Bytes())
	require.Equal(t, int64(len(expected)), DataOffset)
}

type writerAt struct {
	buf []byte
}

func (w *writerAt) WriteAt(p []byte, off int64) (int, error) {
	return copy(w.buf[off:], p), nil
}

func TestPatchMdatSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf))
	buf.Write([]byte{1, 2, 3, 4, 5})

	w := &writerAt{buf: buf.Bytes()}
	require.NoError(t, PatchMdatSize(w, DataOffset-MdatHeaderSize, 5))

	r := bytes.NewReader(w.buf)
	h, found, err := mp4.LocateBoxHeader(r, mp4.StrToBoxType("mdat"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, DataOffset-MdatHeaderSize, h.Offset)
	require.Equal(t, uint64(21), h.Size)
	require.Equal(t, uint64(5), h.PayloadSize())
}

func TestGenerateMoovErrors(t *testing.T) {
	info := Info{Width: 64, Height: 48, FPS: 25, Description: JPEGDescription()}

	_, err := GenerateMoov(info, nil)
	require.ErrorIs(t, err, ErrNoSamples)

	samples := []Sample{{Size: 1, Sync: true}}

	noFPS := info
	noFPS.FPS = 0
	_, err = GenerateMoov(noFPS, samples)
	require.ErrorIs(t, err, ErrInvalidFPS)

	noDesc := info
	noDesc.Description = nil
	_, err = GenerateMoov(noDesc, samples)
	require.ErrorIs(t, err, ErrNoDescription)
}

// writeFile returns a complete media file with the given samples.
func writeFile(t *testing.T, info Info, samples []Sample) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf))
	var dataSize uint64
	for _, s := range samples {
		buf.Write(make([]byte, s.Size))
		dataSize += uint64(s.Size)
	}

	info.DataOffset = uint64(DataOffset)
	moov, err := GenerateMoov(info, samples)
	require.NoError(t, err)
	buf.Write(moov)

	w := &writerAt{buf: buf.Bytes()}
	require.NoError(t, PatchMdatSize(w, DataOffset-MdatHeaderSize, dataSize))
	return w.buf
}

func extract(t *testing.T, file []byte, path ...amp4.BoxType) amp4.IBox {
	t.Helper()
	boxes, err := amp4.ExtractBoxWithPayload(bytes.NewReader(file), nil, amp4.BoxPath(path))
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	return boxes[0].Payload
}

func stblPath(typ amp4.BoxType) []amp4.BoxType {
	return []amp4.BoxType{
		amp4.BoxTypeMoov(),
		amp4.BoxTypeTrak(),
		amp4.BoxTypeMdia(),
		amp4.BoxTypeMinf(),
		amp4.BoxTypeStbl(),
		typ,
	}
}

func TestGenerateMoov(t *testing.T) {
	samples := []Sample{
		{Size: 100, Sync: true, Timestamp: 1000},
		{Size: 20, Timestamp: 1040},
		{Size: 30, Timestamp: 1080},
		{Size: 120, Sync: true, Timestamp: 1200},
	}
	info := Info{
		Width:        640,
		Height:       480,
		FPS:          25,
		Description:  JPEGDescription(),
		CreationTime: time.Unix(1600000000, 0),
	}
	file := writeFile(t, info, samples)

	stsz := extract(t, file, stblPath(amp4.BoxTypeStsz())...).(*amp4.Stsz)
	require.Equal(t, uint32(4), stsz.SampleCount)
	require.Equal(t, []uint32{100, 20, 30, 120}, stsz.EntrySize)

	stss := extract(t, file, stblPath(amp4.BoxTypeStss())...).(*amp4.Stss)
	require.Equal(t, []uint32{1, 4}, stss.SampleNumber)

	stco := extract(t, file, stblPath(amp4.BoxTypeStco())...).(*amp4.Stco)
	require.Equal(t, []uint32{48, 148, 168, 198}, stco.ChunkOffset)

	stts := extract(t, file, stblPath(amp4.BoxTypeStts())...).(*amp4.Stts)
	require.Equal(t, []amp4.SttsEntry{
		{SampleCount: 2, SampleDelta: 1},
		{SampleCount: 1, SampleDelta: 3},
		{SampleCount: 1, SampleDelta: 1},
	}, stts.Entries)

	mdhd := extract(t, file,
		amp4.BoxTypeMoov(), amp4.BoxTypeTrak(), amp4.BoxTypeMdia(), amp4.BoxTypeMdhd(),
	).(*amp4.Mdhd)
	require.Equal(t, uint32(25), mdhd.Timescale)
	require.Equal(t, uint32(6), mdhd.DurationV0)
	require.Equal(t, uint32(1600000000+mp4EpochOffset), mdhd.CreationTimeV0)

	mvhd := extract(t, file, amp4.BoxTypeMoov(), amp4.BoxTypeMvhd()).(*amp4.Mvhd)
	require.Equal(t, uint32(movieTimescale), mvhd.Timescale)
	require.Equal(t, uint32(240), mvhd.DurationV0)

	tkhd := extract(t, file, amp4.BoxTypeMoov(), amp4.BoxTypeTrak(), amp4.BoxTypeTkhd()).(*amp4.Tkhd)
	require.Equal(t, uint32(videoTrackID), tkhd.TrackID)
	require.Equal(t, uint32(640*65536), tkhd.Width)
	require.Equal(t, uint32(480*65536), tkhd.Height)

	// Media data covers exactly the samples.
	h, found, err := mp4.LocateBoxHeader(bytes.NewReader(file), mp4.StrToBoxType("mdat"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(270), h.PayloadSize())

	fps, err := mp4.ReadFpsFromFile(bytes.NewReader(file))
	require.NoError(t, err)
	require.Equal(t, uint32(25), fps)
}

func TestGenerateMoovLocation(t *testing.T) {
	samples := []Sample{{Size: 10, Sync: true}}
	info := Info{
		Width:       64,
		Height:      48,
		FPS:         30,
		Description: JPEGDescription(),
		Location:    &Location{Latitude: 1.5, Longitude: -2.25, Altitude: 3},
	}
	file := writeFile(t, info, samples)

	h, err := mp4.LocateNestedBox(bytes.NewReader(file),
		mp4.StrToBoxType("moov"), mp4.StrToBoxType("udta"), mp4.BoxType{0xa9, 'x', 'y', 'z'})
	require.NoError(t, err)

	payload := file[h.PayloadOffset() : h.End()]
	loc := "+01.5000-002.2500+003.000/"
	expected := append([]byte{0, byte(len(loc)), 0x15, 0xc7}, loc...)
	require.Equal(t, expected, payload)

	// Without a location there is no udta.
	info.Location = nil
	file = writeFile(t, info, samples)
	_, err = mp4.LocateNestedBox(bytes.NewReader(file),
		mp4.StrToBoxType("moov"), mp4.StrToBoxType("udta"))
	require.ErrorIs(t, err, mp4.ErrAtomNotFound)
}

func TestGenerateMoovMPEG4(t *testing.T) {
	config := []byte{0x00, 0x00, 0x01, 0xb0, 0x01, 0x00, 0x00, 0x01, 0xb5, 0x09}
	info := Info{
		Width:       352,
		Height:      288,
		FPS:         25,
		Description: MPEG4Description(config),
	}
	file := writeFile(t, info, []Sample{{Size: 10, Sync: true}})

	h, err := mp4.LocateNestedBox(bytes.NewReader(file),
		mp4.StrToBoxType("moov"), mp4.StrToBoxType("trak"), mp4.StrToBoxType("mdia"),
		mp4.StrToBoxType("minf"), mp4.StrToBoxType("stbl"), mp4.StrToBoxType("stsd"))
	require.NoError(t, err)
	stsdPayload := file[h.PayloadOffset() : h.End()]

	mp4v := stsdPayload[8:]
	require.Equal(t, []byte("mp4v"), mp4v[4:8])
	// Data reference index.
	require.Equal(t, []byte{0, 1}, mp4v[14:16])
	// 352x288.
	require.Equal(t, []byte{0x01, 0x60, 0x01, 0x20}, mp4v[32:36])
	require.Equal(t, []byte("esds"), mp4v[8+78+4:8+78+8])
	require.True(t, bytes.Contains(stsdPayload, config))
}

func TestGenerateMoovH264(t *testing.T) {
	desc, err := H264Description(testSPS, testPPS)
	require.NoError(t, err)
	require.Equal(t, mp4.StrToBoxType("avc1"), desc.EntryType())

	info := Info{Width: 1280, Height: 720, FPS: 30, Description: desc}
	file := writeFile(t, info, []Sample{{Size: 10, Sync: true}})

	h, err := mp4.LocateNestedBox(bytes.NewReader(file),
		mp4.StrToBoxType("moov"), mp4.StrToBoxType("trak"), mp4.StrToBoxType("mdia"),
		mp4.StrToBoxType("minf"), mp4.StrToBoxType("stbl"), mp4.StrToBoxType("stsd"))
	require.NoError(t, err)

	// stsd payload: full box header, entry count, avc1.
	avc1 := file[h.PayloadOffset()+8 : h.End()]
	require.Equal(t, []byte("avc1"), avc1[4:8])

	avcCOffset := 8 + 78
	avcC := avc1[avcCOffset:]
	require.Equal(t, []byte("avcC"), avcC[4:8])
	require.Equal(t, []byte{
		1,          // Configuration version.
		0x42,       // Profile.
		0xc0,       // Profile compatibility.
		0x1f,       // Level.
		0xff,       // Length size minus one.
		0xe1,       // Number of SPS.
		0x00, 0x09, // SPS length.
	}, avcC[8:16])
	require.Equal(t, testSPS, avcC[16:25])
	require.Equal(t, []byte{1, 0x00, 0x04}, avcC[25:28])
	require.Equal(t, testPPS, avcC[28:32])
}

func TestH264DescriptionInvalidSPS(t *testing.T) {
	_, err := H264Description(testPPS, testPPS)
	require.Error(t, err)
}

func TestGenerateMoovLarge(t *testing.T) {
	samples := []Sample{
		{Size: math.MaxUint32, Sync: true},
		{Size: 10, Timestamp: 40},
	}
	info := Info{
		Width:       64,
		Height:      48,
		FPS:         25,
		Description: JPEGDescription(),
		DataOffset:  uint64(DataOffset),
	}
	moov, err := GenerateMoov(info, samples)
	require.NoError(t, err)

	_, err = mp4.LocateNestedBox(bytes.NewReader(moov),
		mp4.StrToBoxType("moov"), mp4.StrToBoxType("trak"), mp4.StrToBoxType("mdia"),
		mp4.StrToBoxType("minf"), mp4.StrToBoxType("stbl"), mp4.StrToBoxType("co64"))
	require.NoError(t, err)

	_, err = mp4.LocateNestedBox(bytes.NewReader(moov),
		mp4.StrToBoxType("moov"), mp4.StrToBoxType("trak"), mp4.StrToBoxType("mdia"),
		mp4.StrToBoxType("minf"), mp4.StrToBoxType("stbl"), mp4.StrToBoxType("stco"))
	require.ErrorIs(t, err, mp4.ErrAtomNotFound)
}
