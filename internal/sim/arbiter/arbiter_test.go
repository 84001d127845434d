package arbiter

import (
	"bytes"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func req(ag agent.Handle, prio uint8, src string, at time.Time) Request {
	return Request{Agent: ag, Priority: prio, Source: src, Kind: action.KindMove, SubmittedAt: at, Now: at}
}

func handles(n int) []agent.Handle {
	reg := agent.NewRegistry()
	out := make([]agent.Handle, n)
	for i := range out {
		out[i] = reg.Create()
	}
	return out
}

func TestArbiter_HigherPriorityAlwaysPreempts(t *testing.T) {
	ag := handles(1)[0]
	for p2 := 0; p2 < 255; p2 += 17 {
		for p1 := p2 + 1; p1 <= 255; p1 += 13 {
			a := New(Config{MaxHold: time.Minute}, nil)
			require.True(t, a.TryAcquire(req(ag, uint8(p2), "low", t0)).Granted)
			d := a.TryAcquire(req(ag, uint8(p1), "high", t0.Add(time.Second)))
			require.True(t, d.Granted, "p1=%d p2=%d", p1, p2)
			require.Equal(t, ReasonHigherPriority, d.Reason)
			require.Equal(t, "low", d.Preempted.Source)
			s, _ := a.Get(ag)
			require.Equal(t, uint8(p1), s.Priority)
		}
	}
}

func TestArbiter_EqualPriorityNeverThrashes(t *testing.T) {
	ag := handles(1)[0]
	a := New(Config{MaxHold: time.Minute}, nil)
	require.True(t, a.TryAcquire(req(ag, action.PriorityCombat, "combat.melee", t0)).Granted)

	for i := 1; i <= 50; i++ {
		d := a.TryAcquire(req(ag, action.PriorityCombat, "combat.ranged", t0.Add(time.Duration(i)*time.Millisecond)))
		require.False(t, d.Granted)
		require.Equal(t, ReasonIncumbentWinsTie, d.Reason)
	}
	s, ok := a.Get(ag)
	require.True(t, ok)
	require.Equal(t, "combat.melee", s.Source)
	require.Equal(t, uint64(50), a.Stats().Rejections)
}

func TestArbiter_EqualPriorityEarlierSubmissionWins(t *testing.T) {
	ag := handles(1)[0]
	a := New(Config{}, nil)
	late := req(ag, 40, "late", t0.Add(10*time.Millisecond))
	early := req(ag, 40, "early", t0)
	early.Now = late.Now

	require.True(t, a.TryAcquire(late).Granted)
	d := a.TryAcquire(early)
	require.True(t, d.Granted)
	require.Equal(t, ReasonEarlierTie, d.Reason)
	require.Equal(t, "late", d.Preempted.Source)
}

func TestArbiter_SameSourceRenewalKeepsHeldSince(t *testing.T) {
	ag := handles(1)[0]
	a := New(Config{MaxHold: time.Second}, nil)
	a.TryAcquire(req(ag, 50, "formation", t0))
	d := a.TryAcquire(req(ag, 50, "formation", t0.Add(500*time.Millisecond)))
	require.True(t, d.Granted)
	require.Equal(t, ReasonRenewed, d.Reason)

	s, _ := a.Get(ag)
	require.Equal(t, t0, s.HeldSince)

	// The hold still lapses, so a lower tier can get in.
	d = a.TryAcquire(req(ag, 5, "idle", t0.Add(time.Second)))
	require.True(t, d.Granted)
	require.Equal(t, ReasonExpired, d.Reason)
}

func TestArbiter_RenewalKeepsOriginalSubmissionForTies(t *testing.T) {
	ag := handles(1)[0]
	a := New(Config{MaxHold: time.Minute}, nil)
	require.True(t, a.TryAcquire(req(ag, 40, "a", t0)).Granted)
	d := a.TryAcquire(req(ag, 40, "a", t0.Add(2*time.Second)))
	require.Equal(t, ReasonRenewed, d.Reason)

	// b was submitted after a first took the slot, so it loses the tie.
	rival := req(ag, 40, "b", t0.Add(time.Second))
	rival.Now = t0.Add(3 * time.Second)
	d = a.TryAcquire(rival)
	require.False(t, d.Granted)
	require.Equal(t, ReasonIncumbentWinsTie, d.Reason)

	s, _ := a.Get(ag)
	require.Equal(t, "a", s.Source)
	require.Equal(t, t0, s.SubmittedAt)
}

func TestArbiter_LowerPriorityRejectedUntilExpiry(t *testing.T) {
	ag := handles(1)[0]
	a := New(Config{MaxHold: 2 * time.Second}, nil)
	a.TryAcquire(req(ag, 200, "stuck", t0))

	d := a.TryAcquire(req(ag, 20, "routine", t0.Add(time.Second)))
	require.False(t, d.Granted)
	require.Equal(t, ReasonLowerPriority, d.Reason)
	require.Equal(t, "stuck", d.Incumbent.Source)

	require.Equal(t, 0, a.Sweep(t0.Add(time.Second)))
	require.Equal(t, 1, a.Sweep(t0.Add(2*time.Second)))
	require.Zero(t, a.Len())
}

func TestArbiter_ActionExpiryEndsSlot(t *testing.T) {
	ag := handles(1)[0]
	a := New(Config{MaxHold: time.Minute}, nil)
	r := req(ag, 230, "interrupt", t0)
	r.ExpiresAt = t0.Add(100 * time.Millisecond)
	a.TryAcquire(r)

	d := a.TryAcquire(req(ag, 40, "combat", t0.Add(200*time.Millisecond)))
	require.True(t, d.Granted)
	require.Equal(t, ReasonExpired, d.Reason)
}

func TestArbiter_ReleaseOnlyByHolder(t *testing.T) {
	ag := handles(1)[0]
	a := New(Config{}, nil)
	a.TryAcquire(req(ag, 20, "routine", t0))

	require.False(t, a.Release(ag, "combat"))
	require.Equal(t, 1, a.Len())
	require.True(t, a.Release(ag, "routine"))
	require.Zero(t, a.Len())
	require.False(t, a.Release(ag, "routine"))

	a.TryAcquire(req(ag, 20, "routine", t0))
	a.Forget(ag)
	require.Zero(t, a.Len())
}

func TestArbiter_FormationFollowPreemptedByHazardEscape(t *testing.T) {
	hs := handles(2)
	ag, leader := hs[0], hs[1]
	var buf bytes.Buffer
	a := New(Config{}, logging.New(&buf, logging.LevelTrace))

	follow := action.NewMove(ag, action.PriorityFormation, "formation", action.Move{Kind: action.MoveFollow, Target: leader})
	follow.ID, follow.SubmittedAt = 1, t0
	require.True(t, a.TryAcquire(RequestFor(follow, t0)).Granted)

	escape := action.MoveTo(ag, action.PriorityHazard, "hazard", geom.Vec3{X: 10})
	escape.ID, escape.SubmittedAt = 2, t0.Add(50*time.Millisecond)
	d := a.TryAcquire(RequestFor(escape, escape.SubmittedAt))

	require.True(t, d.Granted)
	require.Equal(t, "formation", d.Preempted.Source)
	require.Equal(t, action.PriorityFormation, d.Preempted.Priority)
	require.Contains(t, buf.String(), "intent preempted")
	require.Contains(t, buf.String(), "preempted_source=formation")
	require.Contains(t, buf.String(), "level=TRACE")

	a.Publish(7)
	in, ok := a.Query(ag)
	require.True(t, ok)
	require.Equal(t, "hazard", in.Source)
	require.Equal(t, "hazard", in.Tier)
}

// Offers from many producers funnel through one owner, as the tick
// goroutine does with drained actions. Concurrent readers use Query.
func TestArbiter_AtMostOneSlotPerAgentUnderRandomOffers(t *testing.T) {
	hs := handles(32)
	a := New(Config{MaxHold: 50 * time.Millisecond}, nil)
	offers := make(chan Request, 256)

	var producers sync.WaitGroup
	for p := 0; p < 8; p++ {
		producers.Add(1)
		go func(seed uint64) {
			defer producers.Done()
			rng := rand.New(rand.NewPCG(seed, seed*31+7))
			for i := 0; i < 2000; i++ {
				at := t0.Add(time.Duration(rng.IntN(1000)) * time.Millisecond)
				offers <- req(hs[rng.IntN(len(hs))], uint8(rng.IntN(256)), "src"+string(rune('a'+rng.IntN(4))), at)
			}
		}(uint64(p + 1))
	}
	go func() {
		producers.Wait()
		close(offers)
	}()

	stopReaders := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stopReaders:
					return
				default:
				}
				for _, h := range hs {
					if in, ok := a.Query(h); ok && in.Agent != h {
						t.Errorf("view for %s holds intent of %s", h, in.Agent)
					}
				}
			}
		}()
	}

	n := 0
	for r := range offers {
		before, held := a.Get(r.Agent)
		d := a.TryAcquire(r)
		after, ok := a.Get(r.Agent)
		require.True(t, ok, "slot must exist after any offer once held or granted")
		if d.Granted {
			require.Equal(t, r.Source, after.Source)
			require.Equal(t, r.Priority, after.Priority)
			if held && !before.Expired(r.Now) {
				require.GreaterOrEqual(t, r.Priority, before.Priority)
			}
		} else {
			require.Equal(t, before, after)
		}
		require.LessOrEqual(t, a.Len(), len(hs))
		if n++; n%100 == 0 {
			a.Publish(uint64(n))
		}
	}
	close(stopReaders)
	readers.Wait()
	require.LessOrEqual(t, len(a.Published().Intents), len(hs))
}
