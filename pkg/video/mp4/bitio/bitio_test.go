package bitio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	buf := NewBuffer(19)
	w := NewWriter(buf)

	w.TryWriteFourCC([4]byte{'m', 'd', 'h', 'd'})
	w.TryWriteByte(0x01)
	w.TryWriteUint16(0x0203)
	w.TryWriteUint32(0x04050607)
	w.TryWriteUint64(0x08090a0b0c0d0e0f)
	require.NoError(t, w.TryError)

	expected := []byte{
		'm', 'd', 'h', 'd',
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}
	require.Equal(t, expected, buf.Bytes())
}

func TestWriterOverflow(t *testing.T) {
	t.Run("uint32", func(t *testing.T) {
		buf := NewBuffer(6)
		w := NewWriter(buf)

		w.TryWriteUint32(1)
		w.TryWriteUint32(2)
		require.ErrorIs(t, w.TryError, ErrBufferOverflow)

		// Nothing of the failed write reaches the buffer.
		require.Equal(t, []byte{0, 0, 0, 1}, buf.Bytes())
	})
	t.Run("sticky", func(t *testing.T) {
		buf := NewBuffer(1)
		w := NewWriter(buf)

		w.TryWriteUint16(1)
		w.TryWriteByte(2)
		require.ErrorIs(t, w.TryError, ErrBufferOverflow)
		require.Equal(t, 0, buf.Len())
	})
	t.Run("byte", func(t *testing.T) {
		buf := NewBuffer(0)
		require.ErrorIs(t, buf.WriteByte(1), ErrBufferOverflow)
	})
	t.Run("exactFit", func(t *testing.T) {
		buf := NewBuffer(4)
		n, err := buf.Write([]byte{1, 2, 3, 4})
		require.NoError(t, err)
		require.Equal(t, 4, n)
		require.Equal(t, 4, buf.Cap())
	})
}

func TestReader(t *testing.T) {
	r := NewReader([]byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0, 0, 0, 0, 0, 0, 0x01, 0x00,
		0xaa, 0xbb,
	})

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(1), u8)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0203), u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x04050607), u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(256), u64)

	require.Equal(t, 2, r.Remaining())
	b, err := r.ReadBytes(2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xaa, 0xbb}, b)
	require.Equal(t, 0, r.Remaining())
}

func TestReaderTruncated(t *testing.T) {
	testCases := map[string]func(r *Reader) error{
		"uint8": func(r *Reader) error {
			_, err := r.ReadUint8()
			return err
		},
		"uint16": func(r *Reader) error {
			r.ReadUint8() //nolint:errcheck
			_, err := r.ReadUint16()
			return err
		},
		"uint32": func(r *Reader) error {
			_, err := r.ReadUint32()
			return err
		},
		"uint64": func(r *Reader) error {
			_, err := r.ReadUint64()
			return err
		},
		"bytes": func(r *Reader) error {
			_, err := r.ReadBytes(3)
			return err
		},
		"negative": func(r *Reader) error {
			_, err := r.ReadBytes(-1)
			return err
		},
		"skip": func(r *Reader) error {
			return r.Skip(5)
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			buf := []byte{1, 2}
			if name == "uint8" {
				buf = nil
			}
			r := NewReader(buf)
			err := tc(r)
			require.ErrorIs(t, err, ErrTruncatedData)
		})
	}
}

func TestSwapUint64(t *testing.T) {
	require.Equal(t, uint64(0x0807060504030201), SwapUint64(0x0102030405060708))
	require.Equal(t, uint64(0x0102030405060708), SwapUint64(SwapUint64(0x0102030405060708)))
}
