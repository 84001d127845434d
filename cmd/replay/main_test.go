package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	persistlog "botcraft.ai/internal/persistence/log"
	"botcraft.ai/internal/sim/applier"
)

func entry(run string, tick uint64, ms float64, drops map[applier.DropReason]int) persistlog.TickEntry {
	return persistlog.TickEntry{
		RunID:  run,
		Report: applier.TickReport{Tick: tick, Applied: 2, Drained: 3, DurationMS: ms, Dropped: drops},
	}
}

func TestSummary_AggregatesDropsAndGaps(t *testing.T) {
	s := newSummary(5)
	s.add(entry("a", 1, 1, map[applier.DropReason]int{applier.DropPreempted: 1}))
	s.add(entry("a", 2, 9, map[applier.DropReason]int{applier.DropPreempted: 2, applier.DropStaleHandle: 1}))
	s.add(entry("a", 4, 2, nil))
	s.add(entry("b", 1, 6, nil))

	require.Equal(t, 4, s.ticks)
	require.Equal(t, 1, s.gaps)
	require.Equal(t, 3, s.dropped[applier.DropPreempted])
	require.Equal(t, 8, s.applied)
	require.Len(t, s.slow, 2)

	var b strings.Builder
	s.print(&b)
	out := b.String()
	require.Contains(t, out, "ticks=4 range=[1,4] runs=2 gaps=1")
	require.Contains(t, out, "dropped=4")
	require.Contains(t, out, "preempted")
	require.Contains(t, out, "slow ticks (> 5.0ms): 2")
	require.Contains(t, out, "tick=2 ms=9.000 run=a")
}

func TestFilter(t *testing.T) {
	f := filter{run: "a", from: 2, to: 3}
	require.False(t, f.match(entry("b", 2, 0, nil)))
	require.False(t, f.match(entry("a", 1, 0, nil)))
	require.True(t, f.match(entry("a", 3, 0, nil)))
	require.False(t, f.match(entry("a", 4, 0, nil)))
	require.True(t, filter{}.match(entry("x", 99, 0, nil)))
}

func TestJournalRoundTripThroughSummary(t *testing.T) {
	dir := t.TempDir()
	tl := persistlog.NewTickLogger(dir, "w", nil)
	for tick := uint64(1); tick <= 5; tick++ {
		tl.WriteReport(applier.TickReport{Tick: tick, Dropped: map[applier.DropReason]int{applier.DropDuplicate: 1}})
	}
	require.NoError(t, tl.Close())

	files, err := persistlog.TickFiles(dir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	s := newSummary(0)
	for _, f := range files {
		require.NoError(t, persistlog.ReadTicks(f, func(e persistlog.TickEntry) error {
			s.add(e)
			return nil
		}))
	}
	require.Equal(t, 5, s.ticks)
	require.Equal(t, 5, s.dropped[applier.DropDuplicate])
	require.Equal(t, 0, s.gaps)
}
