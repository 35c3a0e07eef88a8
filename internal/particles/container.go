package particles

// Container is the ParticleArray contract the core consumes, as specified
// in spec.md §6. It is deliberately narrow: the core never needs anything
// from a particle array beyond these five operations. Production embedders
// may satisfy this interface with their own columnar container instead of
// using the conforming Array implementation this package also provides.
type Container interface {
	// Length returns the current row count N.
	Length() int

	// GetCArray returns the named property's backing vector as a Variant.
	// The boolean is false if the property does not exist.
	GetCArray(name string) (Variant, bool)

	// Resize changes the row count to newN, preserving existing rows in
	// place. Rows beyond the old length are uninitialized (zero-valued).
	Resize(newN int) error

	// RemoveParticles removes the given rows (sorted, unique row indices)
	// in one pass, compacting everything after each removed row leftward.
	RemoveParticles(rows []int) error

	// AlignParticles stably partitions rows into [Local | Remote | Ghost]
	// segments ordered by the tag property, and returns the boundary
	// offsets (localEnd, remoteEnd); rows [0,localEnd) are Local,
	// [localEnd,remoteEnd) are Remote, [remoteEnd,N) are Ghost.
	AlignParticles() (localEnd, remoteEnd int, err error)
}
