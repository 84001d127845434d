package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/sim/applier"
)

func TestTickLogger_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir, "shard-test", nil)

	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	for tick := uint64(1); tick <= 3; tick++ {
		l.WriteReport(applier.TickReport{
			Tick:    tick,
			Applied: int(tick),
			Dropped: map[applier.DropReason]int{applier.DropPreempted: 1},
		})
	}
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, l.WriteTick(applier.TickReport{Tick: 4}))
	require.NoError(t, l.Close())

	files, err := TickFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	var got []TickEntry
	for _, f := range files {
		require.NoError(t, ReadTicks(f, func(e TickEntry) error {
			got = append(got, e)
			return nil
		}))
	}
	require.Len(t, got, 4)
	for i, e := range got {
		require.Equal(t, uint64(i+1), e.Report.Tick)
		require.Equal(t, l.RunID(), e.RunID)
		require.Equal(t, "shard-test", e.WorldID)
	}
	require.Equal(t, 1, got[0].Report.Dropped[applier.DropPreempted])
}

func TestTickLogger_AppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	first := NewTickLogger(dir, "w", nil)
	first.w.now = clock
	require.NoError(t, first.WriteTick(applier.TickReport{Tick: 1}))
	require.NoError(t, first.Close())

	second := NewTickLogger(dir, "w", nil)
	second.w.now = clock
	require.NoError(t, second.WriteTick(applier.TickReport{Tick: 2}))
	require.NoError(t, second.Close())
	require.NotEqual(t, first.RunID(), second.RunID())

	files, err := TickFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	var runs []string
	require.NoError(t, ReadTicks(files[0], func(e TickEntry) error {
		runs = append(runs, e.RunID)
		return nil
	}))
	require.Equal(t, []string{first.RunID(), second.RunID()}, runs)
}
