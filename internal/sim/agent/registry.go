package agent

// Registry allocates handles and tracks which ones are live.
// It is owned by the world goroutine; it is not safe for concurrent use.
type Registry struct {
	gens []uint32 // generation per slot; odd = live
	free []uint32
	live int
}

func NewRegistry() *Registry {
	// Slot 0 is reserved so index 0 never appears in a live handle.
	return &Registry{gens: []uint32{0}}
}

// Create allocates a new live handle, reusing a freed slot when one exists.
func (r *Registry) Create() Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.gens))
		r.gens = append(r.gens, 0)
	}
	r.gens[idx]++
	r.live++
	return makeHandle(idx, r.gens[idx])
}

// Destroy invalidates h. Returns false for stale or unknown handles.
func (r *Registry) Destroy(h Handle) bool {
	if !r.Valid(h) {
		return false
	}
	idx := h.Index()
	r.gens[idx]++
	r.free = append(r.free, idx)
	r.live--
	return true
}

// Valid reports whether h refers to a live agent.
func (r *Registry) Valid(h Handle) bool {
	if h == Nil {
		return false
	}
	idx := h.Index()
	if idx == 0 || int(idx) >= len(r.gens) {
		return false
	}
	g := r.gens[idx]
	return g%2 == 1 && g == h.Generation()
}

func (r *Registry) Len() int { return r.live }

// Each calls fn for every live handle in slot order.
func (r *Registry) Each(fn func(Handle)) {
	for idx := 1; idx < len(r.gens); idx++ {
		if g := r.gens[idx]; g%2 == 1 {
			fn(makeHandle(uint32(idx), g))
		}
	}
}
