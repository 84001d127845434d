package world

import (
	"math"

	"botcraft.ai/internal/sim/geom"
)

type cellKey struct{ x, z int }

// grid is a per-tick spatial hash used for threat and target queries.
type grid struct {
	cell  float64
	cells map[cellKey][]*Agent
}

func newGrid(cell float64) grid {
	if cell <= 0 {
		cell = 16
	}
	return grid{cell: cell, cells: map[cellKey][]*Agent{}}
}

func (g *grid) key(p geom.Vec3) cellKey {
	return cellKey{int(math.Floor(p.X / g.cell)), int(math.Floor(p.Z / g.cell))}
}

func (g *grid) reset() {
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
}

func (g *grid) insert(a *Agent) {
	k := g.key(a.Pos)
	g.cells[k] = append(g.cells[k], a)
}

// near calls fn for every agent within r of p.
func (g *grid) near(p geom.Vec3, r float64, fn func(a *Agent, dist float64)) {
	lo := g.key(geom.Vec3{X: p.X - r, Z: p.Z - r})
	hi := g.key(geom.Vec3{X: p.X + r, Z: p.Z + r})
	for x := lo.x; x <= hi.x; x++ {
		for z := lo.z; z <= hi.z; z++ {
			for _, a := range g.cells[cellKey{x, z}] {
				if d := p.Dist(a.Pos); d <= r {
					fn(a, d)
				}
			}
		}
	}
}
