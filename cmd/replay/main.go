package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	persistlog "botcraft.ai/internal/persistence/log"
	"botcraft.ai/internal/sim/applier"
)

func main() {
	var (
		worldDir = flag.String("world_dir", "", "world data dir containing ticks/ticks-*.jsonl.zst")
		file     = flag.String("file", "", "single journal file (overrides -world_dir)")
		runID    = flag.String("run", "", "only entries of this run id (optional)")
		fromTick = flag.Uint64("from_tick", 0, "first tick to include (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "last tick to include (inclusive, optional)")
		perTick  = flag.Bool("per_tick", false, "print one line per tick")
		slowMS   = flag.Float64("slow_ms", 0, "list ticks slower than this many milliseconds (optional)")
	)
	flag.Parse()

	var files []string
	switch {
	case *file != "":
		files = []string{*file}
	case *worldDir != "":
		var err error
		files, err = persistlog.TickFiles(*worldDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list journal:", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "missing -world_dir or -file")
		os.Exit(2)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found")
		os.Exit(1)
	}

	f := filter{run: *runID, from: *fromTick, to: *toTick}
	sum := newSummary(*slowMS)
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(e persistlog.TickEntry) error {
			if !f.match(e) {
				return nil
			}
			if *perTick {
				printTick(os.Stdout, e)
			}
			sum.add(e)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
	}
	sum.print(os.Stdout)
	if sum.ticks == 0 {
		os.Exit(1)
	}
}

type filter struct {
	run      string
	from, to uint64
}

func (f filter) match(e persistlog.TickEntry) bool {
	if f.run != "" && e.RunID != f.run {
		return false
	}
	if e.Report.Tick < f.from {
		return false
	}
	return f.to == 0 || e.Report.Tick <= f.to
}

type summary struct {
	runs      map[string]int
	ticks     int
	firstTick uint64
	lastTick  uint64

	drained, applied, released, preempted, swept int
	evicted, overflowed, stalled, skipped        int
	dropped                                      map[applier.DropReason]int

	maxMS   float64
	totalMS float64
	slowMS  float64
	slow    []persistlog.TickEntry
	gaps    int
	prev    map[string]uint64
}

func newSummary(slowMS float64) *summary {
	return &summary{
		runs:    map[string]int{},
		dropped: map[applier.DropReason]int{},
		slowMS:  slowMS,
		prev:    map[string]uint64{},
	}
}

func (s *summary) add(e persistlog.TickEntry) {
	r := e.Report
	if s.ticks == 0 || r.Tick < s.firstTick {
		s.firstTick = r.Tick
	}
	if r.Tick > s.lastTick {
		s.lastTick = r.Tick
	}
	if p, ok := s.prev[e.RunID]; ok && r.Tick != p+1 {
		s.gaps++
	}
	s.prev[e.RunID] = r.Tick
	s.ticks++
	s.runs[e.RunID]++

	s.drained += r.Drained
	s.applied += r.Applied
	s.released += r.Released
	s.preempted += r.Preempted
	s.swept += r.Swept
	s.evicted += r.Evicted
	s.overflowed += r.Overflowed
	s.stalled += r.Stalled
	s.skipped += r.Skipped
	for k, v := range r.Dropped {
		s.dropped[k] += v
	}
	s.totalMS += r.DurationMS
	if r.DurationMS > s.maxMS {
		s.maxMS = r.DurationMS
	}
	if s.slowMS > 0 && r.DurationMS > s.slowMS {
		s.slow = append(s.slow, e)
	}
}

func printTick(w io.Writer, e persistlog.TickEntry) {
	r := e.Report
	var drops []string
	for _, k := range r.DropReasons() {
		drops = append(drops, fmt.Sprintf("%s=%d", k, r.Dropped[k]))
	}
	fmt.Fprintf(w, "tick=%d agents=%d drained=%d applied=%d preempted=%d evicted=%d overflowed=%d stalled=%d ms=%.3f drops=[%s]\n",
		r.Tick, r.Agents, r.Drained, r.Applied, r.Preempted, r.Evicted, r.Overflowed, r.Stalled, r.DurationMS, strings.Join(drops, " "))
}

func (s *summary) print(w io.Writer) {
	if s.ticks == 0 {
		fmt.Fprintln(w, "no ticks matched")
		return
	}
	runs := make([]string, 0, len(s.runs))
	for id := range s.runs {
		runs = append(runs, id)
	}
	sort.Strings(runs)

	fmt.Fprintf(w, "ticks=%d range=[%d,%d] runs=%d gaps=%d\n", s.ticks, s.firstTick, s.lastTick, len(runs), s.gaps)
	for _, id := range runs {
		fmt.Fprintf(w, "  run %s ticks=%d\n", id, s.runs[id])
	}
	fmt.Fprintf(w, "drained=%d applied=%d released=%d preempted=%d swept=%d\n", s.drained, s.applied, s.released, s.preempted, s.swept)
	fmt.Fprintf(w, "queue evicted=%d overflowed=%d; decisions stalled=%d skipped=%d\n", s.evicted, s.overflowed, s.stalled, s.skipped)

	total := 0
	for _, v := range s.dropped {
		total += v
	}
	fmt.Fprintf(w, "dropped=%d\n", total)
	for _, reason := range applier.AllDropReasons {
		if n := s.dropped[reason]; n > 0 {
			fmt.Fprintf(w, "  %-22s %8d  %5.1f%%\n", reason, n, 100*float64(n)/float64(total))
		}
	}
	fmt.Fprintf(w, "tick ms avg=%.3f max=%.3f\n", s.totalMS/float64(s.ticks), s.maxMS)
	if len(s.slow) > 0 {
		sort.Slice(s.slow, func(i, j int) bool { return s.slow[i].Report.DurationMS > s.slow[j].Report.DurationMS })
		fmt.Fprintf(w, "slow ticks (> %.1fms): %d\n", s.slowMS, len(s.slow))
		for i, e := range s.slow {
			if i == 10 {
				break
			}
			fmt.Fprintf(w, "  tick=%d ms=%.3f run=%s\n", e.Report.Tick, e.Report.DurationMS, e.RunID)
		}
	}
}
