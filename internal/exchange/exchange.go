package exchange

import (
	"sort"
	"strings"

	"github.com/cellmesh/parallelmgr/internal/comm"
	"github.com/cellmesh/parallelmgr/internal/particles"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
	"go.uber.org/zap"
)

// exchangeTagBase is the low end of the point-to-point tag range exchange
// reserves on a shared Communicator; internal/partition reserves [1000,2000).
const exchangeTagBase = 2000

// Exchange owns one particle array and runs the load-balance (§4.3) and
// halo (§4.4) protocols against it over a Communicator. One Exchange
// instance is bound to one particle array and one logical round (LB or
// remote); the manager constructs a fresh Exchange per array per round,
// giving each a distinct channel so their tags never collide on the shared
// Communicator.
type Exchange struct {
	container particles.Container
	props     []string
	propIndex map[string]int
	comm      comm.Communicator
	channel   int
	logger    *zap.Logger
}

// New builds an Exchange over container, transferring the named properties
// in the given order (the order must be identical on every rank, per
// spec.md §5). channel must be unique per Exchange instance sharing the
// same Communicator (the manager assigns one per particle array per round).
func New(container particles.Container, props []string, c comm.Communicator, channel int, logger *zap.Logger) (*Exchange, error) {
	propIndex := make(map[string]int, len(props))
	for i, name := range props {
		if _, ok := container.GetCArray(name); !ok {
			return nil, pmerrors.New(pmerrors.ConfigError, "unknown lb_props entry %q", name)
		}
		propIndex[name] = i
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exchange{
		container: container,
		props:     props,
		propIndex: propIndex,
		comm:      c,
		channel:   channel,
		logger:    logger,
	}, nil
}

func (e *Exchange) tagCount() int { return exchangeTagBase + e.channel*1000 }

func (e *Exchange) tagPayload(name string) int {
	return exchangeTagBase + e.channel*1000 + 1 + e.propIndex[name]
}

// LBExchange runs the load-balance protocol of spec.md §4.3: exported rows
// are removed from the local array and imported rows are appended in their
// place.
func (e *Exchange) LBExchange(export, imp RowSet) error {
	_, err := e.run(export, imp, true)
	return err
}

// RemoteExchange runs the halo protocol of spec.md §4.4: no rows are
// removed locally, and the appended import range is tagged Remote
// regardless of the tag value carried on the wire.
func (e *Exchange) RemoteExchange(export, imp RowSet) error {
	base, err := e.run(export, imp, false)
	if err != nil {
		return err
	}
	tagVar, ok := e.container.GetCArray(particles.PropTag)
	if !ok || tagVar.Kind != particles.KindInt {
		return pmerrors.New(pmerrors.ConfigError, "particle array has no int 'tag' property")
	}
	for i := base; i < e.container.Length(); i++ {
		tagVar.Int32[i] = particles.TagRemote
	}
	return nil
}

// run implements the shared body of §4.3/§4.4: the count_recv_data
// handshake, row removal (when remove is true), resize, and the
// deterministic per-property transfer schedule. It returns the row index
// at which imported rows begin (the pre-resize length).
func (e *Exchange) run(export, imp RowSet, remove bool) (int, error) {
	size := e.comm.Size()
	self := e.comm.Rank()

	exportRows := make([][]int, size)
	for i, d := range export.Procs {
		exportRows[d] = append(exportRows[d], export.LocalIDs[i])
	}
	importCounts := make([]int, size)
	for _, s := range imp.Procs {
		importCounts[s]++
	}

	if err := e.checkRecvCounts(exportRows, importCounts); err != nil {
		return 0, err
	}

	// Step 1: gather per-destination send buffers for every property before
	// the container is mutated by removal/resize.
	sendBuffers := make([]map[string][]byte, size)
	for d := 0; d < size; d++ {
		if d == self || len(exportRows[d]) == 0 {
			continue
		}
		perProp := make(map[string][]byte, len(e.props))
		for _, name := range e.props {
			v, ok := e.container.GetCArray(name)
			if !ok {
				return 0, pmerrors.New(pmerrors.ConfigError, "lb_props entry %q missing from particle array", name)
			}
			perProp[name] = encodeVariant(v.Gather(exportRows[d]))
		}
		sendBuffers[d] = perProp
	}

	if remove {
		sortedExport := append([]int(nil), export.LocalIDs...)
		sort.Ints(sortedExport)
		if err := e.container.RemoveParticles(sortedExport); err != nil {
			return 0, pmerrors.Wrap(pmerrors.InvariantViolation, err, "removing exported rows")
		}
	}

	base := e.container.Length()
	if err := e.container.Resize(base + imp.Count()); err != nil {
		return 0, pmerrors.Wrap(pmerrors.InvariantViolation, err, "resizing for %d imported rows", imp.Count())
	}

	lowerSrcs, upperSrcs := splitByRank(size, self)
	offset := make(map[int]int, size)
	cursor := base
	for _, s := range lowerSrcs {
		offset[s] = cursor
		cursor += importCounts[s]
	}
	for _, s := range upperSrcs {
		offset[s] = cursor
		cursor += importCounts[s]
	}

	// Step 5: deterministic lower-half-first/upper-half-last schedule,
	// repeated once per property, in lb_props order.
	for _, name := range e.props {
		v, ok := e.container.GetCArray(name)
		if !ok {
			return 0, pmerrors.New(pmerrors.ConfigError, "lb_props entry %q missing from particle array", name)
		}
		if err := e.transferProperty(name, v, lowerSrcs, upperSrcs, offset, importCounts, sendBuffers); err != nil {
			return 0, err
		}
	}

	e.logger.Debug("exchange round complete",
		zap.String("properties", strings.Join(e.props, ",")),
		zap.Int("exported", export.Count()),
		zap.Int("imported", imp.Count()),
		zap.Bool("removed_local_rows", remove),
	)

	return base, nil
}

// checkRecvCounts implements the count_recv_data step: every rank tells
// each other rank how many rows it expects to receive from it, and checks
// the count the others sent back against its own actual export count to
// that rank.
func (e *Exchange) checkRecvCounts(exportRows [][]int, importCounts []int) error {
	size := e.comm.Size()
	self := e.comm.Rank()

	for o := 0; o < size; o++ {
		if o == self {
			continue
		}
		if err := e.comm.Send(o, e.tagCount(), encodeCount(importCounts[o])); err != nil {
			return pmerrors.Wrap(pmerrors.TransportError, err, "sending receive-count expectation to rank %d", o)
		}
	}
	for o := 0; o < size; o++ {
		if o == self {
			continue
		}
		buf, err := e.comm.Recv(o, e.tagCount())
		if err != nil {
			return pmerrors.Wrap(pmerrors.TransportError, err, "receiving receive-count expectation from rank %d", o)
		}
		expected, err := decodeCount(buf)
		if err != nil {
			return err
		}
		actual := len(exportRows[o])
		if expected != actual {
			return pmerrors.New(pmerrors.SizeMismatch,
				"rank %d: rank %d expects %d rows but rank %d is exporting %d", self, o, expected, self, actual)
		}
	}
	return nil
}

func (e *Exchange) transferProperty(name string, v particles.Variant, lowerSrcs, upperSrcs []int, offset map[int]int, importCounts []int, sendBuffers []map[string][]byte) error {
	self := e.comm.Rank()
	size := e.comm.Size()

	recvFrom := func(s int) error {
		n := importCounts[s]
		if n == 0 {
			return nil
		}
		buf, err := e.comm.Recv(s, e.tagPayload(name))
		if err != nil {
			return pmerrors.Wrap(pmerrors.TransportError, err, "receiving property %q from rank %d", name, s)
		}
		decoded, err := decodeVariant(v.Kind, buf)
		if err != nil {
			return err
		}
		if decoded.Len() != n {
			return pmerrors.New(pmerrors.SizeMismatch, "property %q: expected %d rows from rank %d, decoded %d", name, n, s, decoded.Len())
		}
		return v.WriteAt(offset[s], decoded)
	}

	for _, s := range lowerSrcs {
		if err := recvFrom(s); err != nil {
			return err
		}
	}
	for d := 0; d < size; d++ {
		if d == self {
			continue
		}
		buf, ok := sendBuffers[d][name]
		if !ok {
			continue
		}
		if err := e.comm.Send(d, e.tagPayload(name), buf); err != nil {
			return pmerrors.Wrap(pmerrors.TransportError, err, "sending property %q to rank %d", name, d)
		}
	}
	for _, s := range upperSrcs {
		if err := recvFrom(s); err != nil {
			return err
		}
	}
	return nil
}

func splitByRank(size, self int) (lower, upper []int) {
	for s := 0; s < self; s++ {
		lower = append(lower, s)
	}
	for s := self + 1; s < size; s++ {
		upper = append(upper, s)
	}
	return lower, upper
}
