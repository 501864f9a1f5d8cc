// Package partition implements the 3D spatial grid used to assign
// agents to workers, the grid-id bijection, neighbor enumeration, and
// load-based rebalancing.
package partition

import (
	"sync"

	"github.com/fieldforge/orchestrator/internal/scenario"
)

// GridDims is the Nx × Ny × Nz cell count of the partition grid.
type GridDims struct {
	Nx, Ny, Nz uint32
}

// Cells returns the total number of grid cells.
func (d GridDims) Cells() uint32 { return d.Nx * d.Ny * d.Nz }

// CellID encodes a 3D cell index into a dense id.
//
// The source repository's formula (ix*ny + iy + iz) collides for any
// 3D grid — e.g. (0,1,0) and (0,0,1) both map to 1 when Ny=2. This is
// the corrected row-major encoding, verified bijective by
// TestCellIDBijection.
func CellID(ix, iy, iz uint32, d GridDims) uint32 {
	return ix*d.Ny*d.Nz + iy*d.Nz + iz
}

// CellCoords decodes a CellID back into (ix, iy, iz). Inverse of CellID.
func CellCoords(id uint32, d GridDims) (ix, iy, iz uint32) {
	ix = id / (d.Ny * d.Nz)
	rem := id % (d.Ny * d.Nz)
	iy = rem / d.Nz
	iz = rem % d.Nz
	return
}

// PositionToCell maps a world position to a (possibly clamped) cell
// index, reporting whether the position fell outside world bounds
// (OutOfBounds).
func PositionToCell(pos [3]float64, bounds scenario.AABB, d GridDims) (ix, iy, iz uint32, outOfBounds bool) {
	cellOf := func(v, lo, hi float64, n uint32) (uint32, bool) {
		if n == 0 || hi <= lo {
			return 0, true
		}
		oob := v < lo || v >= hi
		raw := int64((v - lo) / (hi - lo) * float64(n))
		if raw < 0 {
			return 0, true
		}
		if raw >= int64(n) {
			return n - 1, true
		}
		return uint32(raw), oob
	}

	ix, oobX := cellOf(pos[0], bounds.Min[0], bounds.Max[0], d.Nx)
	iy, oobY := cellOf(pos[1], bounds.Min[1], bounds.Max[1], d.Ny)
	iz, oobZ := cellOf(pos[2], bounds.Min[2], bounds.Max[2], d.Nz)
	outOfBounds = oobX || oobY || oobZ
	return ix, iy, iz, outOfBounds
}

// NeighborCells enumerates the 26-connected (or 8-connected, when one
// axis has a single cell) neighbors of a cell.
func NeighborCells(ix, iy, iz uint32, d GridDims) []uint32 {
	out := make([]uint32, 0, 26)
	for dz := -1; dz <= 1; dz++ {
		if d.Nz == 1 && dz != 0 {
			continue
		}
		nz := int64(iz) + int64(dz)
		if nz < 0 || nz >= int64(d.Nz) {
			continue
		}
		for dy := -1; dy <= 1; dy++ {
			ny := int64(iy) + int64(dy)
			if ny < 0 || ny >= int64(d.Ny) {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				nx := int64(ix) + int64(dx)
				if nx < 0 || nx >= int64(d.Nx) {
					continue
				}
				out = append(out, CellID(uint32(nx), uint32(ny), uint32(nz), d))
			}
		}
	}
	return out
}

// RebalanceInterval is the default tick period between load checks.
const RebalanceInterval = 600

// RebalanceThreshold is the max/mean agent-count ratio that triggers a
// boundary shift.
const RebalanceThreshold = 1.5

// Partitioner assigns workers to contiguous slabs of the grid along the
// X axis and answers position/worker/neighbor queries against that
// assignment. Slab partitioning keeps the scheme simple and keeps
// NeighborPartitions a pure arithmetic lookup (worker-1, worker+1)
// rather than a graph walk.
type Partitioner struct {
	mu     sync.Mutex
	dims   GridDims
	bounds scenario.AABB

	// cellXToWorker[ix] is the worker owning every cell whose x-index is
	// ix, for all iy, iz. Length Nx.
	cellXToWorker []uint32
	numWorkers    uint32
}

// NewPartitioner builds a Partitioner that divides dims.Nx x-columns as
// evenly as possible across numWorkers contiguous slabs. If numWorkers
// exceeds Nx, extra workers are left with an empty
// slab (they simply own no cells).
func NewPartitioner(dims GridDims, bounds scenario.AABB, numWorkers uint32) *Partitioner {
	p := &Partitioner{
		dims:          dims,
		bounds:        bounds,
		numWorkers:    numWorkers,
		cellXToWorker: make([]uint32, dims.Nx),
	}
	p.assignSlabs()
	return p
}

// assignSlabs distributes the Nx columns across p.numWorkers workers in
// contiguous, near-equal runs (the first Nx%numWorkers workers get one
// extra column). Must be called with p.mu held or during construction.
func (p *Partitioner) assignSlabs() {
	if p.numWorkers == 0 {
		return
	}
	nx := p.dims.Nx
	base := nx / p.numWorkers
	extra := nx % p.numWorkers

	ix := uint32(0)
	for w := uint32(0); w < p.numWorkers; w++ {
		run := base
		if w < extra {
			run++
		}
		for i := uint32(0); i < run && ix < nx; i++ {
			p.cellXToWorker[ix] = w
			ix++
		}
	}
	// The runs above sum to nx, so this loop finds no leftover columns;
	// it only guarantees every column ends up assigned exactly once.
	for ; ix < nx; ix++ {
		p.cellXToWorker[ix] = p.numWorkers - 1
	}
}

// WorkerForPosition returns the worker owning pos, clamping
// out-of-bounds positions to the nearest edge cell (matching
// PositionToCell's clamping behavior) and reporting whether the
// position was out of bounds.
func (p *Partitioner) WorkerForPosition(pos [3]float64) (workerID uint32, outOfBounds bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ix, _, _, oob := PositionToCell(pos, p.bounds, p.dims)
	if len(p.cellXToWorker) == 0 {
		return 0, oob
	}
	return p.cellXToWorker[ix], oob
}

// WorkerBounds returns the AABB spanning a worker's owned x-range over
// the full y/z extent of the scenario bounds.
func (p *Partitioner) WorkerBounds(workerID uint32) (scenario.AABB, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lo, hi, found := p.xRange(workerID)
	if !found {
		return scenario.AABB{}, false
	}

	dx := (p.bounds.Max[0] - p.bounds.Min[0]) / float64(p.dims.Nx)
	out := p.bounds
	out.Min[0] = p.bounds.Min[0] + float64(lo)*dx
	out.Max[0] = p.bounds.Min[0] + float64(hi+1)*dx
	return out, true
}

// xRange returns the inclusive [lo, hi] column range owned by workerID.
func (p *Partitioner) xRange(workerID uint32) (lo, hi uint32, found bool) {
	for ix, w := range p.cellXToWorker {
		if w != workerID {
			continue
		}
		if !found {
			lo = uint32(ix)
			found = true
		}
		hi = uint32(ix)
	}
	return lo, hi, found
}

// NeighborPartitions returns the workers adjacent to workerID under the
// slab scheme: the immediate neighbors in x are always workerID-1 and
// workerID+1, when they own at least one column.
func (p *Partitioner) NeighborPartitions(workerID uint32) []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]uint32, 0, 2)
	if workerID > 0 && p.ownsAnyColumn(workerID-1) {
		out = append(out, workerID-1)
	}
	if p.ownsAnyColumn(workerID + 1) {
		out = append(out, workerID+1)
	}
	return out
}

func (p *Partitioner) ownsAnyColumn(workerID uint32) bool {
	for _, w := range p.cellXToWorker {
		if w == workerID {
			return true
		}
	}
	return false
}

// NumWorkers returns the configured worker count.
func (p *Partitioner) NumWorkers() uint32 { return p.numWorkers }

// Rebalance inspects per-worker agent counts and, if the busiest worker
// exceeds RebalanceThreshold times the mean, shifts one boundary column
// from the busiest worker to a neighbor. counts must be indexed by
// worker id, length numWorkers. Returns true if a shift was made.
func (p *Partitioner) Rebalance(counts []int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(counts) == 0 {
		return false
	}
	total, maxCount, maxWorker := 0, -1, uint32(0)
	for w, c := range counts {
		total += c
		if c > maxCount {
			maxCount = c
			maxWorker = uint32(w)
		}
	}
	mean := float64(total) / float64(len(counts))
	if mean <= 0 || float64(maxCount)/mean <= RebalanceThreshold {
		return false
	}

	lo, hi, found := p.xRange(maxWorker)
	if !found || lo == hi {
		return false // a single-column slab cannot shed a column
	}

	leftLoad, haveLeft := loadOf(counts, maxWorker, -1)
	rightLoad, haveRight := loadOf(counts, maxWorker, 1)

	var target uint32
	var shiftLo bool
	switch {
	case haveLeft && (!haveRight || leftLoad <= rightLoad):
		target, shiftLo = maxWorker-1, true
	case haveRight:
		target, shiftLo = maxWorker+1, false
	default:
		return false
	}

	if shiftLo {
		p.cellXToWorker[lo] = target
	} else {
		p.cellXToWorker[hi] = target
	}
	return true
}

func loadOf(counts []int, worker uint32, delta int) (int, bool) {
	idx := int(worker) + delta
	if idx < 0 || idx >= len(counts) {
		return 0, false
	}
	return counts[idx], true
}
