package partition

import (
	"testing"

	"github.com/fieldforge/orchestrator/internal/scenario"
)

func TestCellIDBijection(t *testing.T) {
	d := GridDims{Nx: 4, Ny: 3, Nz: 2}
	seen := make(map[uint32][3]uint32)
	for ix := uint32(0); ix < d.Nx; ix++ {
		for iy := uint32(0); iy < d.Ny; iy++ {
			for iz := uint32(0); iz < d.Nz; iz++ {
				id := CellID(ix, iy, iz, d)
				if other, dup := seen[id]; dup {
					t.Fatalf("CellID collision: (%d,%d,%d) and %v both map to %d", ix, iy, iz, other, id)
				}
				seen[id] = [3]uint32{ix, iy, iz}

				gx, gy, gz := CellCoords(id, d)
				if gx != ix || gy != iy || gz != iz {
					t.Fatalf("CellCoords(%d) = (%d,%d,%d), want (%d,%d,%d)", id, gx, gy, gz, ix, iy, iz)
				}
			}
		}
	}
	if uint32(len(seen)) != d.Cells() {
		t.Fatalf("got %d distinct ids, want %d", len(seen), d.Cells())
	}
}

func TestPartitionerSlabsCoverAllWorkers(t *testing.T) {
	bounds := scenario.AABB{Min: [3]float64{0, 0, 0}, Max: [3]float64{100, 100, 100}}
	p := NewPartitioner(GridDims{Nx: 4, Ny: 4, Nz: 1}, bounds, 4)

	for w := uint32(0); w < 4; w++ {
		if _, ok := p.WorkerBounds(w); !ok {
			t.Fatalf("worker %d has no assigned slab", w)
		}
	}

	for ix := uint32(0); ix < 4; ix++ {
		pos := [3]float64{float64(ix)*25 + 1, 50, 50}
		workerID, oob := p.WorkerForPosition(pos)
		if oob {
			t.Fatalf("position %v unexpectedly out of bounds", pos)
		}
		if workerID != ix {
			t.Fatalf("column %d assigned to worker %d, want %d", ix, workerID, ix)
		}
	}
}

func TestRebalancePreservesColumnCount(t *testing.T) {
	bounds := scenario.AABB{Min: [3]float64{0, 0, 0}, Max: [3]float64{100, 100, 100}}
	p := NewPartitioner(GridDims{Nx: 8, Ny: 1, Nz: 1}, bounds, 2)

	before := append([]uint32(nil), p.cellXToWorker...)

	shifted := p.Rebalance([]int{1000, 10})
	if !shifted {
		t.Fatal("expected Rebalance to shift a column under a 100x load skew")
	}

	after := p.cellXToWorker
	if len(before) != len(after) {
		t.Fatalf("column count changed: %d -> %d", len(before), len(after))
	}

	changed := 0
	for i := range before {
		if before[i] != after[i] {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("expected exactly one column to move, got %d", changed)
	}
}

func TestNeighborPartitionsSlabAdjacency(t *testing.T) {
	bounds := scenario.AABB{Min: [3]float64{0, 0, 0}, Max: [3]float64{100, 100, 100}}
	p := NewPartitioner(GridDims{Nx: 4, Ny: 1, Nz: 1}, bounds, 4)

	if got := p.NeighborPartitions(0); len(got) != 1 || got[0] != 1 {
		t.Fatalf("worker 0 neighbors = %v, want [1]", got)
	}
	if got := p.NeighborPartitions(3); len(got) != 1 || got[0] != 2 {
		t.Fatalf("worker 3 neighbors = %v, want [2]", got)
	}
	mid := p.NeighborPartitions(1)
	if len(mid) != 2 || mid[0] != 0 || mid[1] != 2 {
		t.Fatalf("worker 1 neighbors = %v, want [0 2]", mid)
	}
}
