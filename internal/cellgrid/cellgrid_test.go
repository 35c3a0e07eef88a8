package cellgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenario A from spec.md §8: coordinates (0.1,0.1), (0.4,0.2), (1.2,0.2),
// (0.3,1.1), all h=0.5, radius_scale=2.0 -> cell_size=1.0; the four rows
// land in cells (0,0),(0,0),(1,0),(0,1), i.e. three occupied cells.
func scenarioAInputs() (x, y []float64, gid []uint32) {
	x = []float64{0.1, 0.4, 1.2, 0.3}
	y = []float64{0.1, 0.2, 0.2, 1.1}
	gid = []uint32{0, 1, 2, 3}
	return
}

func TestFindCellIDScenarioA(t *testing.T) {
	x, y, _ := scenarioAInputs()
	cellSize := 1.0

	want := []ID{{0, 0}, {0, 0}, {1, 0}, {0, 1}}
	for i := range x {
		assert.Equal(t, want[i], FindCellID(x[i], y[i], cellSize), "row %d", i)
	}
}

func TestBinScenarioA(t *testing.T) {
	x, y, gid := scenarioAInputs()
	cellSize := 1.0

	m := NewMap()
	require.NoError(t, Bin(m, 0, AllRows(len(x)), x, y, gid, cellSize, 1, 2))

	assert.Equal(t, 3, m.Len())

	c00, ok := m.Get(ID{0, 0})
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, c00.LIndices[0])
	assert.Equal(t, []uint32{0, 1}, c00.GIndices[0])

	c10, ok := m.Get(ID{1, 0})
	require.True(t, ok)
	assert.Equal(t, []int{2}, c10.LIndices[0])

	c01, ok := m.Get(ID{0, 1})
	require.True(t, ok)
	assert.Equal(t, []int{3}, c01.LIndices[0])
}

func TestCheckConsistencyPassesOnValidBinning(t *testing.T) {
	x, y, gid := scenarioAInputs()
	cellSize := 1.0

	m := NewMap()
	require.NoError(t, Bin(m, 0, AllRows(len(x)), x, y, gid, cellSize, 1, 2))
	assert.NoError(t, CheckConsistency(m, 0, x, y, gid, cellSize))
}

func TestCheckConsistencyCatchesDisagreement(t *testing.T) {
	x, y, gid := scenarioAInputs()
	cellSize := 1.0

	m := NewMap()
	require.NoError(t, Bin(m, 0, AllRows(len(x)), x, y, gid, cellSize, 1, 2))

	// Corrupt the gid mirror in one cell.
	c, _ := m.Get(ID{0, 0})
	c.GIndices[0][0] = 999

	err := CheckConsistency(m, 0, x, y, gid, cellSize)
	assert.Error(t, err)
}

func TestBoxIntersects(t *testing.T) {
	a := Box{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	b := Box{MinX: 0.5, MinY: 0.5, MaxX: 2, MaxY: 2}
	c := Box{MinX: 5, MinY: 5, MaxX: 6, MaxY: 6}

	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))
}

func TestNeighbors3x3(t *testing.T) {
	m := NewMap()
	for _, id := range []ID{{0, 0}, {1, 0}, {0, 1}, {5, 5}} {
		m.GetOrCreate(id, 1.0, 1, 2)
	}

	nbrs := m.Neighbors3x3(ID{0, 0})
	assert.Len(t, nbrs, 3) // (0,0), (1,0), (0,1) are within the 3x3 block; (5,5) is not

	empty := m.Neighbors3x3(ID{5, 5})
	assert.Len(t, empty, 1) // only itself
}

func TestCellBoxInflation(t *testing.T) {
	c := NewCell(ID{0, 0}, 1.0, 1, 2)
	// centroid = (0.5, 0.5); inflate = (2+0.5)*1.0 = 2.5
	assert.InDelta(t, 0.5, c.Centroid[0], 1e-9)
	assert.InDelta(t, -2.0, c.BoxMin[0], 1e-9)
	assert.InDelta(t, 3.0, c.BoxMax[0], 1e-9)
}
