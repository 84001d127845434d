// Package world is a small authoritative simulation that drives the decision
// pipeline: bots in squads, hostiles that cast area attacks, and lethal
// hazard zones. All state belongs to the goroutine running Run (or calling
// StepOnce); other goroutines talk to it through request channels.
package world

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync/atomic"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/snapshot"
)

const (
	TeamBots     = 0
	TeamHostiles = 1
)

// Stepper runs the decision pipeline for one tick. It calls back into the
// world (Capture, Resolve, Apply*) on the calling goroutine.
type Stepper interface {
	Step(ctx context.Context, tick uint64) applier.TickReport
}

type Agent struct {
	Handle    agent.Handle
	Name      string
	Role      snapshot.Role
	Team      int
	Squad     int
	Pos       geom.Vec3
	Health    int
	MaxHealth int
	Target    agent.Handle

	Objective    geom.Vec3
	HasObjective bool

	// Movement state set by ApplyMove.
	MoveKind   action.MoveKind
	MoveSource string
	Dest       geom.Vec3
	Follow     agent.Handle
	Offset     geom.Vec3

	// CastingUntil is the tick a hostile's area cast lands; 0 when idle.
	CastingUntil uint64
}

func (a *Agent) moving() bool { return a.MoveKind != 0 && a.MoveKind != action.MoveStop }

type squad struct {
	members []agent.Handle
	offsets map[agent.Handle]geom.Vec3
}

type hazardZone struct {
	snapshot.Hazard
	untilTick uint64
}

type respawn struct {
	at    uint64
	name  string
	role  snapshot.Role
	team  int
	squad int
}

type World struct {
	cfg Config
	log *slog.Logger
	rng *rand.Rand

	reg     *agent.Registry
	agents  map[agent.Handle]*Agent
	squads  []*squad
	hazards []hazardZone
	grid    grid

	pending     []respawn
	completions []applier.Completion

	encounterUntil uint64
	encounterPos   geom.Vec3

	pipe Stepper

	tick atomic.Uint64

	join    chan JoinRequest
	leave   chan agent.Handle
	inspect chan inspectReq
	stop    chan struct{}

	metrics  atomic.Value
	counters counters
}

type counters struct {
	moves      uint64
	casts      uint64
	interacts  uint64
	arrivals   uint64
	deaths     uint64
	respawns   uint64
	interrupts uint64
}

func New(cfg Config, logger *slog.Logger) *World {
	cfg = cfg.withDefaults()
	w := &World{
		cfg:     cfg,
		log:     logging.OrDiscard(logger),
		rng:     rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15)),
		reg:     agent.NewRegistry(),
		agents:  map[agent.Handle]*Agent{},
		grid:    newGrid(cfg.ThreatRange),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan agent.Handle, 64),
		inspect: make(chan inspectReq, 64),
		stop:    make(chan struct{}),
	}
	w.populate()
	w.publishMetrics(0, applier.TickReport{}, 0)
	return w
}

// Attach sets the pipeline stepped each tick. Call before Run.
func (w *World) Attach(p Stepper) { w.pipe = p }

func (w *World) ID() string { return w.cfg.ID }

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

var squadRoles = []snapshot.Role{snapshot.RoleTank, snapshot.RoleHealer, snapshot.RoleDPS, snapshot.RoleDPS, snapshot.RoleGatherer}

func (w *World) populate() {
	for i := 0; i < w.cfg.Bots; i++ {
		sq := i / w.cfg.SquadSize
		role := squadRoles[(i%w.cfg.SquadSize)%len(squadRoles)]
		w.spawn("bot", role, TeamBots, sq)
	}
	for i := 0; i < w.cfg.Hostiles; i++ {
		w.spawn("hostile", snapshot.RoleIdle, TeamHostiles, -1)
	}
}

func (w *World) spawn(name string, role snapshot.Role, team, sq int) *Agent {
	h := w.reg.Create()
	a := &Agent{
		Handle:    h,
		Name:      name,
		Role:      role,
		Team:      team,
		Squad:     -1,
		Health:    w.cfg.MaxHealth,
		MaxHealth: w.cfg.MaxHealth,
	}
	if team == TeamBots {
		a.Pos = w.randomPoint(w.cfg.ArenaRadius * 0.25)
	} else {
		a.Pos = w.randomPoint(w.cfg.ArenaRadius)
	}
	if role == snapshot.RoleGatherer {
		a.Objective, a.HasObjective = w.randomPoint(w.cfg.ArenaRadius), true
	}
	if sq >= 0 {
		for len(w.squads) <= sq {
			w.squads = append(w.squads, &squad{offsets: map[agent.Handle]geom.Vec3{}})
		}
		s := w.squads[sq]
		slot := len(s.members)
		angle := float64(slot) * 2 * math.Pi / float64(w.cfg.SquadSize)
		s.members = append(s.members, h)
		s.offsets[h] = geom.Vec3{X: 2 * math.Cos(angle), Z: 2 * math.Sin(angle)}
		a.Squad = sq
	}
	w.agents[h] = a
	return a
}

func (w *World) destroy(h agent.Handle) {
	a, ok := w.agents[h]
	if !ok {
		return
	}
	delete(w.agents, h)
	w.reg.Destroy(h)
	if a.Squad >= 0 && a.Squad < len(w.squads) {
		s := w.squads[a.Squad]
		for i, m := range s.members {
			if m == h {
				s.members = append(s.members[:i], s.members[i+1:]...)
				break
			}
		}
		delete(s.offsets, h)
	}
}

// leaderOf returns the squad leader for a, or Nil when a leads or has no squad.
func (w *World) leaderOf(a *Agent) (agent.Handle, geom.Vec3) {
	if a.Squad < 0 || a.Squad >= len(w.squads) {
		return agent.Nil, geom.Vec3{}
	}
	s := w.squads[a.Squad]
	if len(s.members) == 0 || s.members[0] == a.Handle {
		return agent.Nil, geom.Vec3{}
	}
	return s.members[0], s.offsets[a.Handle]
}

func (w *World) randomPoint(radius float64) geom.Vec3 {
	r := radius * math.Sqrt(w.rng.Float64())
	t := w.rng.Float64() * 2 * math.Pi
	return geom.Vec3{X: r * math.Cos(t), Z: r * math.Sin(t)}
}

func rallyFor(team int) geom.Vec3 {
	if team == TeamHostiles {
		return geom.Vec3{X: 100}
	}
	return geom.Vec3{}
}
