package world

import (
	"context"
	"time"

	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []agent.Handle

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case h := <-w.leave:
			pendingLeaves = append(pendingLeaves, h)
		case req := <-w.inspect:
			w.handleInspect(req)
		case <-ticker.C:
			w.step(ctx, pendingJoins, pendingLeaves)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick on the caller's goroutine.
// It is meant for tests and replays; never mix it with a running Run.
func (w *World) StepOnce(ctx context.Context) (uint64, applier.TickReport) {
	tick := w.tick.Load()
	return tick, w.step(ctx, nil, nil)
}

func (w *World) step(ctx context.Context, joins []JoinRequest, leaves []agent.Handle) applier.TickReport {
	start := time.Now()
	tick := w.tick.Load()

	w.handleJoins(joins)
	w.handleLeaves(leaves)
	w.respawnDue(tick)
	w.updateHazards(tick)
	w.updateEncounter(tick)
	w.rebuildGrid()
	w.updateTargets()
	w.updateCasts(tick)

	var rep applier.TickReport
	if w.pipe != nil {
		rep = w.pipe.Step(ctx, tick)
	}

	w.moveAgents()
	w.rebuildGrid()
	w.applyHazardDamage()
	w.updateObjectives()
	w.reapDead(tick)

	w.publishMetrics(tick, rep, time.Since(start))
	w.tick.Add(1)
	return rep
}

func (w *World) handleInspect(req inspectReq) {
	resp := inspectResp{}
	if a, ok := w.agents[req.Agent]; ok {
		resp = inspectResp{View: viewOf(a, w.tick.Load()), OK: true}
	}
	select {
	case req.Resp <- resp:
	default:
	}
}

func viewOf(a *Agent, tick uint64) AgentView {
	return AgentView{
		Agent:      a.Handle,
		Name:       a.Name,
		Role:       a.Role,
		Team:       a.Team,
		Squad:      a.Squad,
		Pos:        a.Pos,
		Health:     a.Health,
		Target:     a.Target,
		MoveKind:   a.MoveKind,
		MoveSource: a.MoveSource,
		Casting:    a.CastingUntil > tick,
	}
}
