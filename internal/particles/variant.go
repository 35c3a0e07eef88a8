package particles

import "github.com/cellmesh/parallelmgr/internal/pmerrors"

// Kind identifies the element type backing one named property vector.
// The four kinds mirror the element types the external ParticleArray
// contract (spec.md §6) exposes through GetCArray's kind introspection.
type Kind string

const (
	KindDouble Kind = "double"
	KindUint   Kind = "unsigned int"
	KindInt    Kind = "int"
	KindLong   Kind = "long"
)

// Variant carries exactly one non-nil slice matching its Kind. Routing
// lb_props through Variant rather than interface{}-per-element keeps the
// exchange protocol's send/receive buffers monomorphic per property, as
// spec.md §9 calls for ("a tagged-variant buffer path selected by the
// property's element kind").
type Variant struct {
	Kind    Kind
	Float64 []float64
	Uint32  []uint32
	Int32   []int32
	Int64   []int64
}

// Len returns the length of whichever slice is populated.
func (v Variant) Len() int {
	switch v.Kind {
	case KindDouble:
		return len(v.Float64)
	case KindUint:
		return len(v.Uint32)
	case KindInt:
		return len(v.Int32)
	case KindLong:
		return len(v.Int64)
	default:
		return 0
	}
}

// Gather builds a new Variant holding the rows at the given indices, in
// order. Used to build per-destination send buffers during exchange.
func (v Variant) Gather(rows []int) Variant {
	out := Variant{Kind: v.Kind}
	switch v.Kind {
	case KindDouble:
		out.Float64 = make([]float64, len(rows))
		for i, r := range rows {
			out.Float64[i] = v.Float64[r]
		}
	case KindUint:
		out.Uint32 = make([]uint32, len(rows))
		for i, r := range rows {
			out.Uint32[i] = v.Uint32[r]
		}
	case KindInt:
		out.Int32 = make([]int32, len(rows))
		for i, r := range rows {
			out.Int32[i] = v.Int32[r]
		}
	case KindLong:
		out.Int64 = make([]int64, len(rows))
		for i, r := range rows {
			out.Int64[i] = v.Int64[r]
		}
	}
	return out
}

// WriteAt overwrites the rows starting at offset with the contents of src,
// in order. The destination must already be large enough.
func (v Variant) WriteAt(offset int, src Variant) error {
	if v.Kind != src.Kind {
		return pmerrors.New(pmerrors.InvariantViolation, "variant kind mismatch: dst=%s src=%s", v.Kind, src.Kind)
	}
	switch v.Kind {
	case KindDouble:
		copy(v.Float64[offset:], src.Float64)
	case KindUint:
		copy(v.Uint32[offset:], src.Uint32)
	case KindInt:
		copy(v.Int32[offset:], src.Int32)
	case KindLong:
		copy(v.Int64[offset:], src.Int64)
	}
	return nil
}
