// Package agent defines the stable, generation-checked handles used to refer
// to simulated agents from any goroutine. A handle never grants access to live
// state; it must be resolved by the owning world on its own goroutine.
package agent

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle packs a slot index (high 32 bits) and a generation (low 32 bits).
// The zero Handle is never issued.
type Handle uint64

// Nil is the zero, invalid handle.
const Nil Handle = 0

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(index)<<32 | uint64(gen))
}

func (h Handle) Index() uint32      { return uint32(h >> 32) }
func (h Handle) Generation() uint32 { return uint32(h) }
func (h Handle) IsNil() bool        { return h == Nil }

func (h Handle) String() string {
	if h == Nil {
		return "A-"
	}
	return fmt.Sprintf("A%d.%d", h.Index(), h.Generation())
}

// ParseHandle parses the String form ("A12.3").
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "A") {
		return Nil, fmt.Errorf("bad handle %q", s)
	}
	idxStr, genStr, ok := strings.Cut(s[1:], ".")
	if !ok {
		return Nil, fmt.Errorf("bad handle %q", s)
	}
	idx, err := strconv.ParseUint(idxStr, 10, 32)
	if err != nil {
		return Nil, fmt.Errorf("bad handle index %q: %w", s, err)
	}
	gen, err := strconv.ParseUint(genStr, 10, 32)
	if err != nil {
		return Nil, fmt.Errorf("bad handle generation %q: %w", s, err)
	}
	h := makeHandle(uint32(idx), uint32(gen))
	if h.Generation() == 0 {
		return Nil, fmt.Errorf("bad handle %q: zero generation", s)
	}
	return h, nil
}

func (h Handle) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Handle) UnmarshalText(b []byte) error {
	if string(b) == "A-" {
		*h = Nil
		return nil
	}
	v, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
