package mpeg4video

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testVOS = []byte{0x00, 0x00, 0x01, 0xb0, 0x01}
	testVO  = []byte{0x00, 0x00, 0x01, 0xb5, 0x89, 0x13}
	testVOL = []byte{0x00, 0x00, 0x01, 0x20, 0x00, 0x84, 0x40, 0x06}
	testI   = []byte{0x00, 0x00, 0x01, 0xb6, 0x10, 0x60, 0x12}
	testP   = []byte{0x00, 0x00, 0x01, 0xb6, 0x50, 0x11}
)

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestConfig(t *testing.T) {
	t.Run("headers", func(t *testing.T) {
		frame := concat(testVOS, testVO, testVOL, testI)
		conf, err := Config(frame)
		require.NoError(t, err)
		require.Equal(t, concat(testVOS, testVO, testVOL), conf)

		frame[4] = 0xff
		require.Equal(t, byte(0x01), conf[4])
	})
	t.Run("headersOnly", func(t *testing.T) {
		conf, err := Config(testVOL)
		require.NoError(t, err)
		require.Equal(t, testVOL, conf)
	})
	t.Run("vopOnly", func(t *testing.T) {
		_, err := Config(testP)
		require.ErrorIs(t, err, ErrNoConfig)
	})
	t.Run("noStartCode", func(t *testing.T) {
		_, err := Config([]byte{0xff, 0xd8, 0xff, 0xe0})
		require.ErrorIs(t, err, ErrNoStartCode)
	})
}

func TestVOP(t *testing.T) {
	require.True(t, IsVOP(testP))
	require.False(t, IsVOP(concat(testVOL, testI)))

	require.Equal(t, 0, VOPCodingType(concat(testVOL, testI)))
	require.Equal(t, 1, VOPCodingType(testP))
	require.Equal(t, -1, VOPCodingType(testVOL))
}
