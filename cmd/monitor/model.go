package main

import (
	"fmt"
	"sort"
	"strings"

	"botcraft.ai/internal/observerproto"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
)

const recentTicks = 20

// model is the monitor state, updated by the stream reader and rendered on
// the UI goroutine.
type model struct {
	worldID string
	recent  []applier.TickReport
	totals  map[applier.DropReason]int
	intents map[agent.Handle]arbiter.Intent
	watch   []agent.Handle

	ticks   int
	missed  int
	applied int
	slowest applier.TickReport
}

func newModel(watch []agent.Handle) *model {
	return &model{
		totals:  map[applier.DropReason]int{},
		intents: map[agent.Handle]arbiter.Intent{},
		watch:   watch,
	}
}

func (m *model) add(msg observerproto.TickMsg) {
	m.worldID = msg.WorldID
	rep := msg.Report
	m.ticks++
	m.missed += msg.Missed
	m.applied += rep.Applied
	for r, n := range rep.Dropped {
		m.totals[r] += n
	}
	if rep.DurationMS > m.slowest.DurationMS {
		m.slowest = rep
	}

	m.recent = append(m.recent, rep)
	if len(m.recent) > recentTicks {
		m.recent = m.recent[len(m.recent)-recentTicks:]
	}

	// Watched agents without an entry have no active intent.
	clear(m.intents)
	for _, in := range msg.Intents {
		m.intents[in.Agent] = in
	}
}

// rows returns the recent ticks newest first as table cells.
func (m *model) rows() [][]string {
	out := make([][]string, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		out = append(out, []string{
			fmt.Sprintf("%d", r.Tick),
			fmt.Sprintf("%d", r.Agents),
			fmt.Sprintf("%d", r.Drained),
			fmt.Sprintf("%d", r.Applied),
			fmt.Sprintf("%d", r.DroppedTotal()),
			fmt.Sprintf("%d", r.Stalled),
			fmt.Sprintf("%.2f", r.DurationMS),
		})
	}
	return out
}

func (m *model) renderDrops() string {
	if len(m.totals) == 0 {
		return "no drops"
	}
	reasons := make([]applier.DropReason, 0, len(m.totals))
	for r := range m.totals {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if m.totals[reasons[i]] != m.totals[reasons[j]] {
			return m.totals[reasons[i]] > m.totals[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	var b strings.Builder
	for _, r := range reasons {
		fmt.Fprintf(&b, "%-22s %d\n", r, m.totals[r])
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderIntents() string {
	if len(m.watch) == 0 {
		return "no agents watched (-watch A1.1,A2.1)"
	}
	var b strings.Builder
	for _, h := range m.watch {
		in, ok := m.intents[h]
		if !ok {
			fmt.Fprintf(&b, "%s  [gray]idle[-]\n", h)
			continue
		}
		fmt.Fprintf(&b, "%s  %s p=%d src=%s id=%d\n", h, in.Tier, in.Priority, in.Source, in.ActionID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderStatus() string {
	return fmt.Sprintf("world=%s ticks=%d applied=%d missed=%d slowest=%d (%.2fms)",
		m.worldID, m.ticks, m.applied, m.missed, m.slowest.Tick, m.slowest.DurationMS)
}

func parseWatch(s string) ([]agent.Handle, error) {
	var out []agent.Handle
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := agent.ParseHandle(part)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
