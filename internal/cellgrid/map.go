package cellgrid

// Map is a rank-local mapping from cell id to Cell, holding non-empty
// cells only. Per spec.md §3, a Map's contents are rebuilt — never
// incrementally mutated — at well-defined points in the update cycle:
// after initial binning, after load-balance exchange, after halo
// exchange, and on every Update call. Map itself only enforces "clear
// then rebuild"; callers (internal/manager) decide when to call Clear.
type Map struct {
	cells map[ID]*Cell
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{cells: make(map[ID]*Cell)}
}

// Clear empties the map. The cell map is never left half-mutated: callers
// must call Clear before a bulk rebind, not interleave clearing with
// binning.
func (m *Map) Clear() {
	m.cells = make(map[ID]*Cell)
}

// Len returns the number of occupied cells.
func (m *Map) Len() int { return len(m.cells) }

// Get returns the cell at id, if present.
func (m *Map) Get(id ID) (*Cell, bool) {
	c, ok := m.cells[id]
	return c, ok
}

// GetOrCreate returns the cell at id, constructing it (with the given
// cell size, array count and ghost-layer count) on first insertion into
// an empty bin.
func (m *Map) GetOrCreate(id ID, cellSize float64, narrays, ghostLayers int) *Cell {
	c, ok := m.cells[id]
	if !ok {
		c = NewCell(id, cellSize, narrays, ghostLayers)
		m.cells[id] = c
	}
	return c
}

// Delete removes the cell at id, e.g. when it is reassigned to another
// rank during load balancing.
func (m *Map) Delete(id ID) {
	delete(m.cells, id)
}

// Each calls fn for every occupied cell. Iteration order is unspecified
// (Go map order), matching "non-empty cells only" with no ordering
// guarantee in the data model.
func (m *Map) Each(fn func(*Cell)) {
	for _, c := range m.cells {
		fn(c)
	}
}

// IDs returns every occupied cell id, in unspecified order.
func (m *Map) IDs() []ID {
	ids := make([]ID, 0, len(m.cells))
	for id := range m.cells {
		ids = append(ids, id)
	}
	return ids
}

// Neighbors3x3 returns every occupied cell within the 3x3 block of cells
// centered on id (id itself plus its eight lattice neighbors), as used by
// the neighbor query (spec.md §4.6).
func (m *Map) Neighbors3x3(id ID) []*Cell {
	var out []*Cell
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			if c, ok := m.cells[ID{X: id.X + dx, Y: id.Y + dy}]; ok {
				out = append(out, c)
			}
		}
	}
	return out
}
