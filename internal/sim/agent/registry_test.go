package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateDestroyInvalidatesHandle(t *testing.T) {
	r := NewRegistry()
	a := r.Create()
	b := r.Create()
	require.True(t, r.Valid(a))
	require.True(t, r.Valid(b))
	require.Equal(t, 2, r.Len())

	require.True(t, r.Destroy(a))
	require.False(t, r.Valid(a))
	require.False(t, r.Destroy(a), "double destroy must be rejected")

	// Slot reuse bumps the generation so the old handle stays stale.
	c := r.Create()
	require.Equal(t, a.Index(), c.Index())
	require.NotEqual(t, a, c)
	require.False(t, r.Valid(a))
	require.True(t, r.Valid(c))
}

func TestRegistry_NilAndUnknown(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Valid(Nil))
	require.False(t, r.Valid(makeHandle(7, 1)))
}

func TestRegistry_Each(t *testing.T) {
	r := NewRegistry()
	a, b, c := r.Create(), r.Create(), r.Create()
	r.Destroy(b)
	var got []Handle
	r.Each(func(h Handle) { got = append(got, h) })
	require.Equal(t, []Handle{a, c}, got)
}

func TestHandle_StringRoundTrip(t *testing.T) {
	r := NewRegistry()
	h := r.Create()
	parsed, err := ParseHandle(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = ParseHandle("B1.1")
	require.Error(t, err)
	_, err = ParseHandle("A1.0")
	require.Error(t, err)
	require.Equal(t, "A-", Nil.String())
}
