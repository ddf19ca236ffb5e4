package mp4

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func box(size uint32, typ string, payload ...byte) []byte {
	b := []byte{byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size)}
	b = append(b, typ...)
	return append(b, payload...)
}

func extBox(marker uint32, size uint64, typ string, payload ...byte) []byte {
	b := box(marker, typ)
	for i := 7; i >= 0; i-- {
		b = append(b, byte(size>>(i*8)))
	}
	return append(b, payload...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestLocateBox(t *testing.T) {
	ftyp := box(16, "ftyp", 'i', 's', 'o', 'm', 0, 0, 2, 0)
	free := box(100, "free", make([]byte, 92)...)
	moov := box(12, "moov", 1, 2, 3, 4)

	t.Run("ftypFreeMoov", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, free, moov))
		found, size, err := LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(12), size)

		// Positioned at the payload.
		pos, _ := r.Seek(0, io.SeekCurrent)
		require.Equal(t, int64(16+100+8), pos)
	})
	t.Run("first", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, free, moov))
		found, size, err := LocateBox(r, StrToBoxType("ftyp"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(16), size)
	})
	t.Run("notFound", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, free))
		found, _, err := LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.False(t, found)
	})
	// Size 0 followed by a 64 bit size is how older recordings
	// were written. It is not the ISOBMFF meaning of size 0.
	t.Run("legacyExtendedSizeZero", func(t *testing.T) {
		mdat := extBox(0, 40, "mdat", make([]byte, 24)...)
		r := bytes.NewReader(concat(ftyp, mdat, moov))
		found, size, err := LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(12), size)

		r = bytes.NewReader(concat(ftyp, mdat, moov))
		found, size, err = LocateBox(r, StrToBoxType("mdat"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(40), size)
	})
	t.Run("extendedSizeOne", func(t *testing.T) {
		mdat := extBox(1, 20, "mdat", 1, 2, 3, 4)
		r := bytes.NewReader(concat(ftyp, mdat, moov))
		found, size, err := LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(12), size)
	})
	t.Run("sizeSmallerThanHeader", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, box(4, "free"), moov))
		found, _, err := LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.False(t, found)
	})
	t.Run("openBox", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, box(1, "mdat", 0, 0, 0, 0, 0, 0, 0, 0, 0xaa), moov))
		h, found, err := LocateBoxHeader(r, StrToBoxType("mdat"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(0), h.Size)
		require.Equal(t, int64(len(ftyp)+16), h.PayloadOffset())

		// Boxes after an open box can not be reached.
		r = bytes.NewReader(concat(ftyp, box(1, "mdat", 0, 0, 0, 0, 0, 0, 0, 0, 0xaa), moov))
		found, _, err = LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.False(t, found)
	})
	t.Run("truncatedHeader", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, []byte{0, 0, 0}))
		found, _, err := LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.False(t, found)
	})
	t.Run("truncatedExtendedSize", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, box(1, "mdat", 0, 0)))
		found, _, err := LocateBox(r, StrToBoxType("moov"))
		require.NoError(t, err)
		require.False(t, found)
	})
}

func testMoov(t *testing.T, fps uint32) []byte {
	t.Helper()
	tree := Boxes{
		Box: &Moov{},
		Children: []Boxes{
			{Box: &Trak{}, Children: []Boxes{
				{Box: &Mdia{}, Children: []Boxes{
					{Box: &Mdhd{
						Timescale: fps,
						Language:  [3]byte{'u', 'n', 'd'},
					}},
				}},
			}},
		},
	}
	buf, err := tree.MarshalToBytes()
	require.NoError(t, err)
	return buf
}

func TestLocateNestedBox(t *testing.T) {
	ftyp := box(16, "ftyp", 'i', 's', 'o', 'm', 0, 0, 2, 0)

	t.Run("ok", func(t *testing.T) {
		r := bytes.NewReader(concat(ftyp, testMoov(t, 25)))
		h, err := LocateNestedBox(r,
			StrToBoxType("moov"),
			StrToBoxType("trak"),
			StrToBoxType("mdia"),
			StrToBoxType("mdhd"),
		)
		require.NoError(t, err)
		require.Equal(t, uint64(32), h.Size)
		require.Equal(t, uint64(24), h.PayloadSize())
		require.Equal(t, int64(16+8+8+8), h.Offset)
	})
	t.Run("staysInsideParent", func(t *testing.T) {
		moov := box(16, "moov", box(8, "trak")...)
		moov = append(moov, box(8, "free")...)
		r := bytes.NewReader(concat(moov, box(8, "mdia")))
		_, err := LocateNestedBox(r, StrToBoxType("moov"), StrToBoxType("mdia"))
		require.ErrorIs(t, err, ErrAtomNotFound)
	})
	t.Run("missing", func(t *testing.T) {
		r := bytes.NewReader(ftyp)
		_, err := LocateNestedBox(r, StrToBoxType("moov"))
		require.ErrorIs(t, err, ErrAtomNotFound)
	})
}

func TestReadFps(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		ftyp := box(16, "ftyp", 'i', 's', 'o', 'm', 0, 0, 2, 0)
		mdat := extBox(1, 20, "mdat", 1, 2, 3, 4)
		r := bytes.NewReader(concat(ftyp, mdat, testMoov(t, 30)))

		// Not at the start on purpose.
		_, err := r.Seek(20, io.SeekStart)
		require.NoError(t, err)

		fps, err := ReadFpsFromFile(r)
		require.NoError(t, err)
		require.Equal(t, uint32(30), fps)
	})
	t.Run("noMoov", func(t *testing.T) {
		r := bytes.NewReader(box(16, "ftyp", make([]byte, 8)...))
		_, err := ReadFpsFromFile(r)
		require.ErrorIs(t, err, ErrAtomNotFound)
	})
	t.Run("payload", func(t *testing.T) {
		payload := []byte{
			0, 0, 0, 0, // version, flags
			0, 0, 0, 1, // creation time
			0, 0, 0, 2, // modification time
			0, 0, 0, 0x19, // timescale
		}
		fps, err := ReadFpsFromMdhd(payload)
		require.NoError(t, err)
		require.Equal(t, uint32(25), fps)
	})
	t.Run("short", func(t *testing.T) {
		_, err := ReadFpsFromMdhd(make([]byte, 15))
		require.ErrorIs(t, err, ErrMalformedAtom)
	})
}

func TestExtractInnerData(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		payload := []byte{0, 0, 0, 3, 'a', 'b', 'c', 'x', 'y'}
		data, err := ExtractInnerData(payload)
		require.NoError(t, err)
		require.Equal(t, []byte("abc"), data)
		require.Equal(t, 3, cap(data))

		// The result does not alias the payload.
		payload[4] = 'z'
		require.Equal(t, []byte("abc"), data)
	})
	t.Run("empty", func(t *testing.T) {
		data, err := ExtractInnerData([]byte{0, 0, 0, 0})
		require.NoError(t, err)
		require.Empty(t, data)
	})
	t.Run("overflow", func(t *testing.T) {
		data, err := ExtractInnerData([]byte{0, 0, 0, 5, 'a', 'b'})
		require.ErrorIs(t, err, ErrMalformedAtom)
		require.Nil(t, data)
	})
	t.Run("hugeLength", func(t *testing.T) {
		data, err := ExtractInnerData([]byte{0xff, 0xff, 0xff, 0xff, 'a'})
		require.ErrorIs(t, err, ErrMalformedAtom)
		require.Nil(t, data)
	})
	t.Run("noLength", func(t *testing.T) {
		_, err := ExtractInnerData([]byte{0, 0})
		require.ErrorIs(t, err, ErrMalformedAtom)
	})
}

func TestReadAtomData(t *testing.T) {
	ftyp := box(16, "ftyp", 'i', 's', 'o', 'm', 0, 0, 2, 0)
	prrt := box(8+4+5, "prrt", 0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o')
	r := bytes.NewReader(concat(ftyp, prrt))

	data, err := ReadAtomData(r, StrToBoxType("prrt"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	_, err = ReadAtomData(r, StrToBoxType("moov"))
	require.ErrorIs(t, err, ErrAtomNotFound)
}

func TestLocateBoxInBuffer(t *testing.T) {
	buf := concat(
		box(16, "ftyp", make([]byte, 8)...),
		extBox(1, 20, "mdat", 1, 2, 3, 4),
		box(8, "moov"),
	)

	offset, err := LocateBoxInBuffer(buf, 0, StrToBoxType("moov"))
	require.NoError(t, err)
	require.Equal(t, 36, offset)

	offset, err = LocateBoxInBuffer(buf, 16, StrToBoxType("mdat"))
	require.NoError(t, err)
	require.Equal(t, 16, offset)

	_, err = LocateBoxInBuffer(buf, 0, StrToBoxType("udta"))
	require.ErrorIs(t, err, ErrAtomNotFound)

	bad := concat(box(16, "ftyp", make([]byte, 8)...), box(200, "free"))
	_, err = LocateBoxInBuffer(bad, 0, StrToBoxType("moov"))
	require.ErrorIs(t, err, ErrMalformedAtom)
}
