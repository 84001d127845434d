package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrWorldBusy,
		ErrBadRequest,
		ErrInvalidTarget,
		ErrQueueOverflow,
		ErrStale,
		ErrInternal,
	}
	for _, c := range cases {
		require.True(t, IsKnownCode(c), c)
	}
	require.False(t, IsKnownCode("E_NOT_DEFINED"))
}

func TestCodeFor(t *testing.T) {
	require.Empty(t, CodeFor(nil))
	require.Equal(t, ErrInvalidTarget, CodeFor(fmt.Errorf("%w: x", ErrBadTarget)))
	require.Equal(t, ErrBadRequest, CodeFor(fmt.Errorf("%w: x", ErrBadAct)))
	require.Equal(t, ErrInternal, CodeFor(errors.New("boom")))
	for _, err := range []error{ErrBadAct, ErrBadTarget, errors.New("x")} {
		require.True(t, IsKnownCode(CodeFor(err)))
	}
}
