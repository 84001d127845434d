package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/observerproto"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
)

func TestModel_AggregatesAndTrimsRecent(t *testing.T) {
	watch, err := parseWatch("A1.1, A2.1")
	require.NoError(t, err)
	m := newModel(watch)

	for tick := uint64(1); tick <= recentTicks+5; tick++ {
		msg := observerproto.TickMsg{
			Type:    observerproto.TypeTick,
			WorldID: "w1",
			Report: applier.TickReport{
				Tick:       tick,
				Applied:    1,
				DurationMS: float64(tick % 7),
				Dropped:    map[applier.DropReason]int{applier.DropExpired: 1},
			},
		}
		if tick == 3 {
			msg.Missed = 2
		}
		if tick == recentTicks+5 {
			msg.Intents = []arbiter.Intent{{Agent: watch[0], Tier: "COMBAT", Priority: 3, Source: "combat", ActionID: 9}}
		}
		m.add(msg)
	}

	rows := m.rows()
	require.Len(t, rows, recentTicks)
	require.Equal(t, "25", rows[0][0])
	require.Equal(t, "6", rows[len(rows)-1][0])

	require.Equal(t, "expired                25", m.renderDrops())
	require.Equal(t, uint64(6), m.slowest.Tick)

	status := m.renderStatus()
	require.Contains(t, status, "world=w1")
	require.Contains(t, status, "ticks=25")
	require.Contains(t, status, "missed=2")

	intents := strings.Split(m.renderIntents(), "\n")
	require.Len(t, intents, 2)
	require.Contains(t, intents[0], "A1.1  COMBAT p=3 src=combat id=9")
	require.Contains(t, intents[1], "idle")
}

func TestParseWatch(t *testing.T) {
	hs, err := parseWatch("")
	require.NoError(t, err)
	require.Empty(t, hs)

	hs, err = parseWatch("A3.2,")
	require.NoError(t, err)
	require.Equal(t, []agent.Handle{hs[0]}, hs)
	require.Equal(t, "A3.2", hs[0].String())

	_, err = parseWatch("bogus")
	require.Error(t, err)
}
