package partition

import (
	"github.com/cellmesh/parallelmgr/internal/comm"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
)

// NewFromMethod builds the Partitioner a config's lb_method selects. "rcb",
// "rib" and "hsfc" all currently resolve to RCBPartitioner — see DESIGN.md
// for why RIB/HSFC aren't implemented as distinct algorithms.
func NewFromMethod(method string, c comm.Communicator) (Partitioner, error) {
	switch method {
	case "", "rcb", "rib", "hsfc":
		return NewRCB(c), nil
	default:
		return nil, pmerrors.New(pmerrors.ConfigError, "unknown lb_method %q", method)
	}
}
