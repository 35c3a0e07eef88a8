// Package partition implements the geometric-partitioner adapter of
// spec.md §4.5: it maintains per-local-cell centroid coordinates and
// dense cell global ids, invokes a balance procedure to reassign cell
// ownership across ranks, inverts one side's transfer list into the
// other's, and answers box-overlap queries used by halo exchange (§4.4).
// The concrete partitioning algorithm is an implementation choice (RCB,
// RIB, HSFC); the rest of the core depends only on the Partitioner
// interface.
package partition

import "github.com/cellmesh/parallelmgr/internal/cellgrid"

// List is a transfer list at object (cell) granularity:
// (localIds, globalIds, procs, count), matching spec.md §6's
// (exportLocalIds, exportGlobalIds, exportProcs, numExport) shape. On the
// export side Procs holds destination ranks; on the import side (the
// result of InvertLists) it holds source ranks, and LocalIds is left nil
// since the destination's local row numbering for an as-yet-unreceived
// object doesn't exist yet.
type List struct {
	LocalIDs  []int
	GlobalIDs []uint32
	Procs     []int
}

// Count returns the number of entries in the list.
func (l List) Count() int { return len(l.GlobalIDs) }

// Partitioner is the adapter interface the manager depends on. Balance
// and InvertLists are collective: every rank must call them at the same
// logical point in the update cycle (spec.md §5). SetNumObjects,
// SetObjects and BoxOverlap are local to the calling rank.
type Partitioner interface {
	// SetNumObjects records this rank's local object count and the
	// global total (already known from the dense cell-gid prefix sum the
	// manager computes before calling into the partitioner).
	SetNumObjects(local, global int)

	// SetObjects loads this rank's object centroids and their dense
	// global ids, in the same order: centroids[i] is the object with
	// global id gids[i].
	SetObjects(centroids [][2]float64, gids []uint32)

	// Balance runs the partitioning algorithm and returns, for this
	// rank, the export list of objects that must move to a different
	// rank to balance ownership. LocalIDs index into the slice most
	// recently passed to SetObjects.
	Balance() (List, error)

	// InvertLists computes the mirror-image list for a known list: given
	// an export list it returns the corresponding import list (and vice
	// versa).
	InvertLists(known List) (List, error)

	// BoxOverlap returns every rank (including self) whose partition's
	// sub-domain intersects box. Valid only after Balance has run at
	// least once.
	BoxOverlap(box cellgrid.Box) ([]int, error)
}
