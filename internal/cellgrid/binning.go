package cellgrid

import "github.com/cellmesh/parallelmgr/internal/pmerrors"

// Bin assigns the rows in S (indices into particle array k, with
// coordinates x, y and global ids gid, all indexed by row) into m, per
// spec.md §4.1: for each row r, compute cid = find_cell_id((x[r],y[r]),
// cellSize), obtain or create m[cid], and append r and gid[r] to that
// cell's k-th index lists.
//
// Bin does not clear m first — callers own the "clear before bulk rebind"
// discipline (spec.md §3/§5), since binning is also used incrementally to
// add a single array's rows to an already-populated map.
func Bin(m *Map, k int, rows []int, x, y []float64, gid []uint32, cellSize float64, narrays, ghostLayers int) error {
	if cellSize <= 0 {
		return pmerrors.New(pmerrors.InvariantViolation, "cell size must be positive, got %g", cellSize)
	}
	for _, r := range rows {
		id := FindCellID(x[r], y[r], cellSize)
		cell := m.GetOrCreate(id, cellSize, narrays, ghostLayers)
		cell.Append(k, r, gid[r])
	}
	return nil
}

// AllRows returns [0, n) as a row index slice, a convenience for callers
// binning an entire array.
func AllRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// CheckConsistency verifies the cell-content invariant (spec.md §8,
// property 1) for every cell in m, for particle array k: every row r in
// cell.LIndices[k] must still hash to that cell's id at the given cell
// size, and cell.GIndices[k][i] must equal gid[cell.LIndices[k][i]].
func CheckConsistency(m *Map, k int, x, y []float64, gid []uint32, cellSize float64) error {
	var violation error
	m.Each(func(c *Cell) {
		if violation != nil {
			return
		}
		if k >= len(c.LIndices) {
			return
		}
		for i, r := range c.LIndices[k] {
			if FindCellID(x[r], y[r], cellSize) != c.ID {
				violation = pmerrors.New(pmerrors.InvariantViolation,
					"row %d bins to %v, not owning cell %v", r, FindCellID(x[r], y[r], cellSize), c.ID)
				return
			}
			if c.GIndices[k][i] != gid[r] {
				violation = pmerrors.New(pmerrors.InvariantViolation,
					"cell %v gid mismatch at row %d: have %d want %d", c.ID, r, c.GIndices[k][i], gid[r])
				return
			}
		}
	})
	return violation
}
