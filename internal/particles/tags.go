package particles

// Tag classifies a particle row. Local rows are owned by this rank,
// Remote rows are haloed copies of another rank's Local rows, and Ghost
// rows are periodic images (periodic-boundary ghosting itself is out of
// scope per spec.md §1, but the tag value is part of the data model).
const (
	TagLocal  int32 = 0
	TagRemote int32 = 1
	TagGhost  int32 = 2
)

// PropTag and PropGid name the two properties every particle array carries
// regardless of the physics set: the ownership tag and the dense global id.
const (
	PropTag = "tag"
	PropGid = "gid"
)
