package cellgrid

import "math"

// ID is the discrete lattice coordinate of a cell: floor(coord/cell_size)
// per axis. As a plain comparable struct it works directly as a Go map
// key, with no hashing step required (spec.md §9 suggests x*P+y hashing
// is acceptable, but Go map keys need no explicit hash function).
type ID struct {
	X, Y int32
}

// FindCellID computes the lattice coordinate containing (x, y) at the
// given cell size. The z coordinate is accepted by callers throughout the
// data model but never consulted here: binning is 2D-only.
func FindCellID(x, y, cellSize float64) ID {
	return ID{
		X: int32(math.Floor(x / cellSize)),
		Y: int32(math.Floor(y / cellSize)),
	}
}

// Cell is one entry in a Map: a square tile of space, the per-array row
// lists it owns, and the halo-overlap bookkeeping the manager fills in
// during load-balance and halo exchange.
type Cell struct {
	ID        ID
	CellSize  float64
	Centroid  [2]float64
	BoxMin    [2]float64
	BoxMax    [2]float64
	IsBoundary bool
	NbrProcs  map[int]struct{}

	// LIndices[k] is the ordered sequence of row indices into particle
	// array k; GIndices[k] is the parallel sequence of global ids, i.e.
	// len(LIndices[k]) == len(GIndices[k]) always, and
	// GIndices[k][i] == gid_k[LIndices[k][i]].
	LIndices [][]int
	GIndices [][]uint32
}

// NewCell constructs a Cell at id with the given cell size and ghost-layer
// count, sized for narrays particle arrays. The bounding box is inflated
// by (layers+0.5)*cellSize beyond the centroid on every side, per
// spec.md §3.
func NewCell(id ID, cellSize float64, narrays, ghostLayers int) *Cell {
	cx := (float64(id.X) + 0.5) * cellSize
	cy := (float64(id.Y) + 0.5) * cellSize
	inflate := (float64(ghostLayers) + 0.5) * cellSize

	return &Cell{
		ID:       id,
		CellSize: cellSize,
		Centroid: [2]float64{cx, cy},
		BoxMin:   [2]float64{cx - inflate, cy - inflate},
		BoxMax:   [2]float64{cx + inflate, cy + inflate},
		NbrProcs: make(map[int]struct{}),
		LIndices: make([][]int, narrays),
		GIndices: make([][]uint32, narrays),
	}
}

// Box returns the cell's inflated bounding box, used for halo-overlap
// queries against the partitioner.
func (c *Cell) Box() Box {
	return Box{MinX: c.BoxMin[0], MinY: c.BoxMin[1], MaxX: c.BoxMax[0], MaxY: c.BoxMax[1]}
}

// Append records row r (with global id gid) as belonging to this cell, for
// particle array k.
func (c *Cell) Append(k, r int, gid uint32) {
	c.LIndices[k] = append(c.LIndices[k], r)
	c.GIndices[k] = append(c.GIndices[k], gid)
}

// MarkNeighbor records rank as a process whose partition overlaps this
// cell's inflated box, and marks the cell as a boundary cell. Self is
// never recorded: a cell is only a boundary cell because some *other*
// rank's partition overlaps it.
func (c *Cell) MarkNeighbor(rank, self int) {
	if rank == self {
		return
	}
	c.NbrProcs[rank] = struct{}{}
	c.IsBoundary = true
}
