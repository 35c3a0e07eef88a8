// Package exchange implements the particle-array exchange protocols of
// spec.md §4.3 (load-balance exchange) and §4.4 (halo exchange): grouping
// rows by destination, a count_recv_data expectation round, and a
// deterministic lower-half-first/upper-half-last send/receive schedule per
// configured property.
package exchange

// RowSet is a particle-level transfer list: the row-granularity analogue of
// partition.List. On the export side Procs holds destination ranks; on the
// import side (produced by the manager from partition.Partitioner.InvertLists
// plus global-id resolution) LocalIDs is nil, since an unreceived row has no
// local index yet.
type RowSet struct {
	LocalIDs  []int
	GlobalIDs []uint32
	Procs     []int
}

// Count returns the number of rows in the set.
func (r RowSet) Count() int { return len(r.GlobalIDs) }
