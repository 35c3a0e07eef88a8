package particles

import "github.com/cellmesh/parallelmgr/internal/pmerrors"

// Wrapper caches typed references to the coordinate, smoothing-length and
// global-id vectors of one particle array: the subset every array the
// parallel manager binds touches on nearly every operation (binning, bounds
// reduction, neighbor queries, gid renumbering). It holds no logic of its
// own beyond that caching; it exists purely so callers stop re-resolving
// the same property name through GetCArray on every row access.
type Wrapper struct {
	Container

	X, Y, H []float64
	Z       []float64 // nil when the container carries no "z" property
	Gid     []uint32
}

// Wrap builds a Wrapper over c, re-resolving every cached slice from the
// container's current property vectors. Callers must call Refresh after
// any operation that resizes or reorders c (resize, remove, align,
// exchange).
func Wrap(c Container) (*Wrapper, error) {
	w := &Wrapper{Container: c}
	if err := w.Refresh(); err != nil {
		return nil, err
	}
	return w, nil
}

// Refresh re-resolves every cached slice from the underlying container.
// Row indices and backing arrays are not stable across a resize, removal,
// alignment, or exchange, so any code holding a Wrapper must refresh it
// afterward.
func (w *Wrapper) Refresh() error {
	get := func(name string) ([]float64, error) {
		v, ok := w.GetCArray(name)
		if !ok {
			return nil, pmerrors.New(pmerrors.ConfigError, "particle array missing required property %q", name)
		}
		if v.Kind != KindDouble {
			return nil, pmerrors.New(pmerrors.ConfigError, "property %q is not a double vector", name)
		}
		return v.Float64, nil
	}

	var err error
	if w.X, err = get("x"); err != nil {
		return err
	}
	if w.Y, err = get("y"); err != nil {
		return err
	}
	if w.H, err = get("h"); err != nil {
		return err
	}

	w.Z = nil
	if zv, ok := w.GetCArray("z"); ok && zv.Kind == KindDouble {
		w.Z = zv.Float64
	}

	gidV, ok := w.GetCArray(PropGid)
	if !ok || gidV.Kind != KindUint {
		return pmerrors.New(pmerrors.ConfigError, "particle array missing unsigned int 'gid' property")
	}
	w.Gid = gidV.Uint32

	return nil
}
