// Package behavior holds sample decision logic: one behavior tree per agent,
// picked by role when the agent is first seen. Leaves read only the
// snapshot and emit actions at the tier priority they stand for.
package behavior

import (
	"context"
	"sync"

	bt "github.com/joeycumines/go-behaviortree"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/decision"
	"botcraft.ai/internal/sim/snapshot"
)

const (
	SourceSurvival  = "survival"
	SourceHazard    = "hazard"
	SourceInterrupt = "interrupt"
	SourceEncounter = "encounter"
	SourceRole      = "role"
	SourceKiting    = "kiting"
	SourceFormation = "formation"
	SourceCombat    = "combat"
	SourceRoutine   = "routine"
	SourceIdle      = "idle"
)

// Bot is the decider for one agent. The pipeline never runs two decisions
// for the same agent at once; the mutex only covers misuse.
type Bot struct {
	agent  agent.Handle
	role   snapshot.Role
	params Params
	tree   bt.Node

	mu   sync.Mutex
	snap snapshot.Snapshot
	out  []action.Action
}

var _ decision.Decider = (*Bot)(nil)

// Source returns a decider factory for the pipeline.
func Source(p Params) func(agent.Handle, snapshot.Role) decision.Decider {
	return func(h agent.Handle, role snapshot.Role) decision.Decider {
		return New(h, role, p)
	}
}

func New(h agent.Handle, role snapshot.Role, p Params) *Bot {
	b := &Bot{agent: h, role: role, params: p}
	b.tree = b.build()
	return b
}

func (b *Bot) Role() snapshot.Role { return b.role }

// Decide ticks the tree once against snap.
func (b *Bot) Decide(ctx context.Context, snap snapshot.Snapshot) []action.Action {
	if ctx.Err() != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = snap
	b.out = nil
	if _, err := b.tree.Tick(); err != nil {
		return nil
	}
	out := b.out
	b.out = nil
	return out
}

func (b *Bot) emit(a action.Action) {
	a.Agent = b.agent
	b.out = append(b.out, a)
}

// leaf adapts a predicate-with-effect into a tree node: true means it acted.
func leaf(fn func() bool) bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		if fn() {
			return bt.Success, nil
		}
		return bt.Failure, nil
	})
}

func (b *Bot) build() bt.Node {
	var branches []bt.Node
	add := func(fns ...func() bool) {
		for _, fn := range fns {
			branches = append(branches, leaf(fn))
		}
	}

	add(b.survive, b.escapeHazard)
	switch b.role {
	case snapshot.RoleTank:
		add(b.interrupt, b.encounter, b.holdThreat, b.formation, b.fight, b.routine, b.wander)
	case snapshot.RoleHealer:
		add(b.encounter, b.heal, b.mendLeader, b.stayInRange, b.formation, b.routine, b.wander)
	case snapshot.RoleDPS:
		add(b.interrupt, b.encounter, b.kite, b.formation, b.fight, b.routine, b.wander)
	case snapshot.RoleGatherer:
		add(b.routine, b.formation, b.wander)
	default:
		add(b.wander)
	}
	return bt.New(bt.Selector, branches...)
}
