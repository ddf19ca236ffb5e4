package encapsuler

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"flashrec/pkg/video/mp4"
	"flashrec/pkg/video/mp4/bitio"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		err      error
		expected Kind
	}{
		{nil, KindOk},
		{ErrWaitingForIFrame, KindWaitingForIFrame},
		{ErrFrameCountLimitReached, KindFrameCountLimitReached},
		{ErrNothingToEncapsulate, KindNothingToEncapsulate},
		{fmt.Errorf("%w: x", ErrBadParameter), KindBadParameter},
		{ErrInvalidated, KindBadParameter},
		{fmt.Errorf("%w: %w", ErrIO, os.ErrPermission), KindIO},
		{fmt.Errorf("a: %w", mp4.ErrAllocation), KindAllocation},
		{fmt.Errorf("a: %w", mp4.ErrMalformedAtom), KindMalformedAtom},
		{mp4.ErrAtomNotFound, KindMalformedAtom},
		{bitio.ErrTruncatedData, KindTruncatedData},
		{bitio.ErrBufferOverflow, KindBufferOverflow},
		{errors.New("other"), KindIO},
	}
	for _, tc := range testCases {
		t.Run(tc.expected.String(), func(t *testing.T) {
			require.Equal(t, tc.expected, KindOf(tc.err))
		})
	}
}

func TestFailed(t *testing.T) {
	require.False(t, Failed(nil))
	require.False(t, Failed(ErrWaitingForIFrame))
	require.True(t, Failed(ErrFrameCountLimitReached))
	require.True(t, Failed(fmt.Errorf("%w: x", ErrIO)))
}
