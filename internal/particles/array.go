package particles

import (
	"sort"

	"github.com/cellmesh/parallelmgr/internal/pmerrors"
)

// Array is a conforming, dependency-free implementation of the Container
// contract: a named mapping from property name to a dense, homogeneously
// typed vector, all vectors kept at equal length N.
type Array struct {
	n     int
	order []string // property names in sorted order, for deterministic iteration/debugging
	props map[string]Variant
}

// NewArray builds an empty Array with the given properties, in the given
// kinds, at length 0. Callers grow it with Resize.
func NewArray(kinds map[string]Kind) *Array {
	a := &Array{props: make(map[string]Variant, len(kinds))}
	// Sort for deterministic property iteration order across runs.
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.props[name] = Variant{Kind: kinds[name]}
		a.order = append(a.order, name)
	}
	return a
}

func (a *Array) Length() int { return a.n }

func (a *Array) GetCArray(name string) (Variant, bool) {
	v, ok := a.props[name]
	return v, ok
}

// Resize changes every property vector to length newN, preserving existing
// rows and zero-initializing any newly appended rows.
func (a *Array) Resize(newN int) error {
	if newN < 0 {
		return pmerrors.New(pmerrors.InvariantViolation, "resize to negative length %d", newN)
	}
	for name, v := range a.props {
		a.props[name] = resizeVariant(v, newN)
	}
	a.n = newN
	return nil
}

func resizeVariant(v Variant, newN int) Variant {
	switch v.Kind {
	case KindDouble:
		v.Float64 = resizeF64(v.Float64, newN)
	case KindUint:
		v.Uint32 = resizeU32(v.Uint32, newN)
	case KindInt:
		v.Int32 = resizeI32(v.Int32, newN)
	case KindLong:
		v.Int64 = resizeI64(v.Int64, newN)
	}
	return v
}

func resizeF64(s []float64, n int) []float64 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]float64, n)
	copy(out, s)
	return out
}

func resizeU32(s []uint32, n int) []uint32 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]uint32, n)
	copy(out, s)
	return out
}

func resizeI32(s []int32, n int) []int32 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]int32, n)
	copy(out, s)
	return out
}

func resizeI64(s []int64, n int) []int64 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]int64, n)
	copy(out, s)
	return out
}

// RemoveParticles removes the given rows (must be sorted ascending, unique)
// from every property in one left-compaction pass.
func (a *Array) RemoveParticles(rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	keep := make([]int, 0, a.n-len(rows))
	ri := 0
	for r := 0; r < a.n; r++ {
		if ri < len(rows) && rows[ri] == r {
			ri++
			continue
		}
		keep = append(keep, r)
	}
	return a.permute(keep)
}

// permute rewrites every property vector to hold exactly the rows named by
// order, in that order, and updates n accordingly.
func (a *Array) permute(order []int) error {
	for name, v := range a.props {
		a.props[name] = v.Gather(order)
	}
	a.n = len(order)
	return nil
}

// AlignParticles stably partitions rows into [Local | Remote | Ghost] by
// the tag property and returns the segment boundaries.
func (a *Array) AlignParticles() (int, int, error) {
	tagV, ok := a.props[PropTag]
	if !ok || tagV.Kind != KindInt {
		return 0, 0, pmerrors.New(pmerrors.ConfigError, "particle array has no int 'tag' property")
	}

	var localRows, remoteRows, ghostRows []int
	for r, t := range tagV.Int32 {
		switch t {
		case TagLocal:
			localRows = append(localRows, r)
		case TagRemote:
			remoteRows = append(remoteRows, r)
		default:
			ghostRows = append(ghostRows, r)
		}
	}

	order := make([]int, 0, a.n)
	order = append(order, localRows...)
	order = append(order, remoteRows...)
	order = append(order, ghostRows...)

	if err := a.permute(order); err != nil {
		return 0, 0, err
	}
	return len(localRows), len(localRows) + len(remoteRows), nil
}
