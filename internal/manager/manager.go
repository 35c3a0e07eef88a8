// Package manager implements the parallel manager: the coordinator that
// binds several particle arrays, maintains the cell map, drives global
// bounds reduction, requests a partition from the geometric partitioner,
// runs the load-balance and halo exchange protocols in sequence, and
// answers neighbor queries (spec.md §4.2, §4.6).
package manager

import (
	"math"
	"sort"
	"time"

	"github.com/cellmesh/parallelmgr/internal/cellgrid"
	"github.com/cellmesh/parallelmgr/internal/comm"
	"github.com/cellmesh/parallelmgr/internal/exchange"
	"github.com/cellmesh/parallelmgr/internal/particles"
	"github.com/cellmesh/parallelmgr/internal/partition"
	"github.com/cellmesh/parallelmgr/internal/pmconfig"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
	"github.com/cellmesh/parallelmgr/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Manager is the parallel manager described by spec.md §4.2: one instance
// per rank, bound to a fixed set of particle arrays, a Communicator, and a
// Partitioner.
type Manager struct {
	cfg         *pmconfig.Config
	comm        comm.Communicator
	partitioner partition.Partitioner
	logger      *zap.Logger
	metrics     *telemetry.Metrics

	arrays    []particles.Container
	wrap      []*particles.Wrapper
	arrayName []string
	nameIndex map[string]int

	cellMap  *cellgrid.Map
	cellSize float64
}

// New builds a Manager bound to the containers named in cfg.ParticleArray.
// arrays must have an entry for every name cfg.ParticleArray lists, and
// every array must carry double "x","y","h" and uint "gid" and int "tag"
// properties, plus every property cfg.LBProps names.
func New(cfg *pmconfig.Config, c comm.Communicator, arrays map[string]particles.Container, logger *zap.Logger, metrics *telemetry.Metrics) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	}

	partitioner, err := partition.NewFromMethod(cfg.LBMethod, c)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:         cfg,
		comm:        c,
		partitioner: partitioner,
		logger:      logger,
		metrics:     metrics,
		nameIndex:   make(map[string]int, len(cfg.ParticleArray)),
		cellMap:     cellgrid.NewMap(),
	}

	for i, name := range cfg.ParticleArray {
		container, ok := arrays[name]
		if !ok {
			return nil, pmerrors.New(pmerrors.ConfigError, "particle array %q listed in config but not provided", name)
		}
		if err := validateArrayShape(container); err != nil {
			return nil, err
		}
		for _, prop := range cfg.LBProps {
			if _, ok := container.GetCArray(prop); !ok {
				return nil, pmerrors.New(pmerrors.ConfigError, "particle array %q missing lb_props entry %q", name, prop)
			}
		}
		w, err := particles.Wrap(container)
		if err != nil {
			return nil, err
		}

		m.arrays = append(m.arrays, container)
		m.wrap = append(m.wrap, w)
		m.arrayName = append(m.arrayName, name)
		m.nameIndex[name] = i
	}

	return m, nil
}

func validateArrayShape(c particles.Container) error {
	for _, req := range []struct {
		name string
		kind particles.Kind
	}{
		{"x", particles.KindDouble},
		{"y", particles.KindDouble},
		{"h", particles.KindDouble},
		{particles.PropGid, particles.KindUint},
		{particles.PropTag, particles.KindInt},
	} {
		v, ok := c.GetCArray(req.name)
		if !ok || v.Kind != req.kind {
			return pmerrors.New(pmerrors.ConfigError, "particle array missing required %s property %q", req.kind, req.name)
		}
	}
	return nil
}

// Update runs one full orchestration cycle per spec.md §4.2 steps 1-5f.
// initial is accepted for API parity with the spec's update(initial) entry
// point; it carries no distinct branch here because step 1's "drop every
// non-Local row" is already a no-op on an array that starts all-Local.
func (m *Manager) Update(initial bool) error {
	start := time.Now()
	m.logger.Debug("update starting", zap.Bool("initial", initial), zap.Int("rank", m.comm.Rank()))

	phase := func(name string, fn func() error) error {
		t0 := time.Now()
		err := fn()
		m.metrics.ObservePhaseDuration("manager", name, time.Since(t0).Seconds())
		return err
	}

	if err := phase("drop_halo", func() error {
		for k := range m.arrays {
			if err := m.dropNonLocal(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := phase("renumber_gids", func() error {
		for k := range m.arrays {
			if err := m.renumberGids(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := phase("bin", func() error {
		cellSize, err := m.computeCellSize()
		if err != nil {
			return err
		}
		m.cellSize = cellSize
		m.cellMap.Clear()
		return m.binAll()
	}); err != nil {
		return err
	}

	var cellIDs []cellgrid.ID
	var cellGIDs []uint32
	var centroids [][2]float64
	var globalCells int
	if err := phase("number_cells", func() error {
		var err error
		cellIDs, cellGIDs, centroids, globalCells, err = m.cellObjects()
		return err
	}); err != nil {
		return err
	}

	if m.comm.Size() > 1 {
		m.partitioner.SetNumObjects(len(cellIDs), globalCells)
		m.partitioner.SetObjects(centroids, cellGIDs)

		var export partition.List
		if err := phase("partition", func() error {
			var err error
			export, err = m.partitioner.Balance()
			return err
		}); err != nil {
			return err
		}

		if err := phase("lb_exchange", func() error {
			return m.runLoadBalance(cellIDs, export)
		}); err != nil {
			return err
		}

		if err := phase("rebin_local", func() error {
			m.cellMap.Clear()
			return m.binAll()
		}); err != nil {
			return err
		}

		if err := phase("halo_exchange", func() error {
			return m.runHalo()
		}); err != nil {
			return err
		}
	}

	total, boundary := m.cellStats()
	m.metrics.SetCellCounts("all", total, boundary)

	boundaries := make([][2]int, len(m.arrays))
	if err := phase("compact", func() error {
		for k, c := range m.arrays {
			localEnd, remoteEnd, err := c.AlignParticles()
			if err != nil {
				return err
			}
			if err := m.wrap[k].Refresh(); err != nil {
				return err
			}
			boundaries[k] = [2]int{localEnd, remoteEnd}
		}
		return nil
	}); err != nil {
		return err
	}
	for k, name := range m.arrayName {
		local := boundaries[k][0]
		remote := boundaries[k][1] - boundaries[k][0]
		m.metrics.SetParticleCounts(name, local, remote)
	}

	m.logger.Debug("update complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Manager) binAll() error {
	for k, c := range m.arrays {
		w := m.wrap[k]
		if err := cellgrid.Bin(m.cellMap, k, cellgrid.AllRows(c.Length()), w.X, w.Y, w.Gid, m.cellSize, len(m.arrays), m.cfg.GhostLayers); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) cellStats() (total, boundary int) {
	total = m.cellMap.Len()
	m.cellMap.Each(func(c *cellgrid.Cell) {
		if c.IsBoundary {
			boundary++
		}
	})
	return total, boundary
}

// dropNonLocal implements §4.2 step 1: stably partition array k by tag and
// truncate to the Local prefix.
func (m *Manager) dropNonLocal(k int) error {
	c := m.arrays[k]
	localEnd, _, err := c.AlignParticles()
	if err != nil {
		return err
	}
	if err := c.Resize(localEnd); err != nil {
		return err
	}
	return m.wrap[k].Refresh()
}

// renumberGids implements §4.2 step 2: a dense, contiguous gid assignment
// derived from an Allgather of per-rank Local counts.
func (m *Manager) renumberGids(k int) error {
	c := m.arrays[k]
	local := c.Length()
	counts, err := m.comm.Allgather(local)
	if err != nil {
		return pmerrors.Wrap(pmerrors.TransportError, err, "allgather for gid renumbering of array %q", m.arrayName[k])
	}
	offset := 0
	for r := 0; r < m.comm.Rank(); r++ {
		offset += counts[r]
	}
	gid := m.wrap[k].Gid
	for i := 0; i < local; i++ {
		gid[i] = uint32(offset + i)
	}
	return nil
}

// computeCellSize implements §4.1's global bounds reduction and §3's
// cell-size formula, clamped per §7's InvariantViolation recovery note.
func (m *Manager) computeCellSize() (float64, error) {
	minX, minY, minZ := math.Inf(1), math.Inf(1), math.Inf(1)
	maxX, maxY, maxZ := math.Inf(-1), math.Inf(-1), math.Inf(-1)
	maxH := 0.0

	for k, c := range m.arrays {
		w := m.wrap[k]
		for r := 0; r < c.Length(); r++ {
			minX, maxX = math.Min(minX, w.X[r]), math.Max(maxX, w.X[r])
			minY, maxY = math.Min(minY, w.Y[r]), math.Max(maxY, w.Y[r])
			if w.Z != nil {
				minZ, maxZ = math.Min(minZ, w.Z[r]), math.Max(maxZ, w.Z[r])
			}
			maxH = math.Max(maxH, w.H[r])
		}
	}

	local := []float64{minX, minY, minZ, maxX, maxY, maxZ, maxH}
	ops := []comm.ReduceOp{comm.OpMin, comm.OpMin, comm.OpMin, comm.OpMax, comm.OpMax, comm.OpMax, comm.OpMax}
	global, err := m.comm.Allreduce(local, ops)
	if err != nil {
		return 0, pmerrors.Wrap(pmerrors.TransportError, err, "allreduce for global bounds")
	}

	if m.cfg.Domain.Enabled {
		if global[0] < m.cfg.Domain.MinX || global[3] > m.cfg.Domain.MaxX ||
			global[1] < m.cfg.Domain.MinY || global[4] > m.cfg.Domain.MaxY {
			return 0, pmerrors.New(pmerrors.InvariantViolation, "global particle extent exceeds the configured domain limits")
		}
	}

	cellSize := m.cfg.RadiusScale * global[6]
	// Only a vanishing Mh (e.g. every h is zero) is degenerate; any
	// ordinary cell size, including one below 1.0, is used as computed.
	if cellSize < 1e-6 {
		m.logger.Warn("degenerate cell size clamped to 1.0", zap.Float64("computed", cellSize))
		cellSize = 1.0
	}
	return cellSize, nil
}

// cellObjects implements §4.2 step 4: sort this rank's occupied cells into
// a deterministic order and assign dense global ids via the same
// prefix-sum scheme renumberGids uses for particles.
func (m *Manager) cellObjects() ([]cellgrid.ID, []uint32, [][2]float64, int, error) {
	ids := m.cellMap.IDs()
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].X != ids[j].X {
			return ids[i].X < ids[j].X
		}
		return ids[i].Y < ids[j].Y
	})

	counts, err := m.comm.Allgather(len(ids))
	if err != nil {
		return nil, nil, nil, 0, pmerrors.Wrap(pmerrors.TransportError, err, "allgather for cell gid renumbering")
	}
	offset, global := 0, 0
	for r, n := range counts {
		if r < m.comm.Rank() {
			offset += n
		}
		global += n
	}

	gids := make([]uint32, len(ids))
	centroids := make([][2]float64, len(ids))
	for i, id := range ids {
		gids[i] = uint32(offset + i)
		cell, ok := m.cellMap.Get(id)
		if !ok {
			return nil, nil, nil, 0, pmerrors.New(pmerrors.InvariantViolation, "cell %v vanished between IDs() and Get()", id)
		}
		centroids[i] = cell.Centroid
	}
	return ids, gids, centroids, global, nil
}

// runLoadBalance implements §4.2 step 5b and §4.3: project the cell-level
// export list to a particle-level list per array, invert it to learn the
// matching import list, and run the load-balance protocol.
func (m *Manager) runLoadBalance(cellIDs []cellgrid.ID, export partition.List) error {
	for k, c := range m.arrays {
		rows, gids, procs := m.projectCellExport(cellIDs, export, k)

		importList, err := m.partitioner.InvertLists(partition.List{GlobalIDs: gids, Procs: procs})
		if err != nil {
			return err
		}

		exportRS := exchange.RowSet{LocalIDs: rows, GlobalIDs: gids, Procs: procs}
		importRS := exchange.RowSet{GlobalIDs: importList.GlobalIDs, Procs: importList.Procs}

		ex, err := exchange.New(c, m.cfg.LBProps, m.comm, k, m.logger)
		if err != nil {
			return err
		}
		if err := ex.LBExchange(exportRS, importRS); err != nil {
			return err
		}
		if err := m.wrap[k].Refresh(); err != nil {
			return err
		}

		m.metrics.AddExchangeRows(m.arrayName[k], "export", len(rows))
		m.metrics.AddExchangeRows(m.arrayName[k], "import", len(importList.Procs))
	}
	return nil
}

// projectCellExport turns the partitioner's cell-level export list
// (indexed into cellIDs) into row-level (localId, globalId, destProc)
// triples for particle array k, per §4.3's "project cell-level export
// lists to particle-level lists" sub-step.
func (m *Manager) projectCellExport(cellIDs []cellgrid.ID, export partition.List, k int) (rows []int, gids []uint32, procs []int) {
	for i, localIdx := range export.LocalIDs {
		dest := export.Procs[i]
		cell, ok := m.cellMap.Get(cellIDs[localIdx])
		if !ok {
			continue
		}
		for j, r := range cell.LIndices[k] {
			rows = append(rows, r)
			gids = append(gids, cell.GIndices[k][j])
			procs = append(procs, dest)
		}
	}
	return rows, gids, procs
}

// runHalo implements §4.4: mark every cell's overlapping ranks via
// box-overlap queries, build per-array export lists of every Local row in
// a boundary cell addressed to each overlapping rank, invert them, and run
// the halo protocol. Newly-arrived Remote rows are bound into the cell map
// afterward, per §4.2 step 5e.
func (m *Manager) runHalo() error {
	var markErr error
	m.cellMap.Each(func(cell *cellgrid.Cell) {
		if markErr != nil {
			return
		}
		ranks, err := m.partitioner.BoxOverlap(cell.Box())
		if err != nil {
			markErr = err
			return
		}
		for _, r := range ranks {
			cell.MarkNeighbor(r, m.comm.Rank())
		}
	})
	if markErr != nil {
		return markErr
	}

	for k, c := range m.arrays {
		var rows []int
		var gids []uint32
		var procs []int
		m.cellMap.Each(func(cell *cellgrid.Cell) {
			for dest := range cell.NbrProcs {
				for j, r := range cell.LIndices[k] {
					rows = append(rows, r)
					gids = append(gids, cell.GIndices[k][j])
					procs = append(procs, dest)
				}
			}
		})

		importList, err := m.partitioner.InvertLists(partition.List{GlobalIDs: gids, Procs: procs})
		if err != nil {
			return err
		}

		exportRS := exchange.RowSet{LocalIDs: rows, GlobalIDs: gids, Procs: procs}
		importRS := exchange.RowSet{GlobalIDs: importList.GlobalIDs, Procs: importList.Procs}

		ex, err := exchange.New(c, m.cfg.LBProps, m.comm, len(m.arrays)+k, m.logger)
		if err != nil {
			return err
		}

		beforeLen := c.Length()
		if err := ex.RemoteExchange(exportRS, importRS); err != nil {
			return err
		}
		afterLen := c.Length()
		if err := m.wrap[k].Refresh(); err != nil {
			return err
		}

		if afterLen > beforeLen {
			w := m.wrap[k]
			newRows := make([]int, afterLen-beforeLen)
			for i := range newRows {
				newRows[i] = beforeLen + i
			}
			if err := cellgrid.Bin(m.cellMap, k, newRows, w.X, w.Y, w.Gid, m.cellSize, len(m.arrays), m.cfg.GhostLayers); err != nil {
				return err
			}
		}

		m.metrics.AddExchangeRows(m.arrayName[k], "export", len(rows))
		m.metrics.AddExchangeRows(m.arrayName[k], "import", len(importList.Procs))
	}
	return nil
}

// GetNearestParticles implements §4.6: all srcArray rows within either
// endpoint's kernel radius of dstArray row i.
func (m *Manager) GetNearestParticles(srcArray, dstArray string, i int) ([]int, error) {
	srcK, ok := m.nameIndex[srcArray]
	if !ok {
		return nil, pmerrors.New(pmerrors.ConfigError, "unknown particle array %q", srcArray)
	}
	dstK, ok := m.nameIndex[dstArray]
	if !ok {
		return nil, pmerrors.New(pmerrors.ConfigError, "unknown particle array %q", dstArray)
	}

	dst := m.arrays[dstK]
	srcW, dstW := m.wrap[srcK], m.wrap[dstK]
	if i < 0 || i >= dst.Length() {
		return nil, pmerrors.New(pmerrors.InvariantViolation, "row %d out of range for array %q (length %d)", i, dstArray, dst.Length())
	}

	xi, yi := dstW.X[i], dstW.Y[i]
	hi := m.cfg.RadiusScale * dstW.H[i]
	cid := cellgrid.FindCellID(xi, yi, m.cellSize)

	// Go slices self-grow on append; the spec's "grown in 50-row
	// increments" describes a fixed-capacity C output buffer and has no
	// externally observable effect here.
	var out []int
	for _, cell := range m.cellMap.Neighbors3x3(cid) {
		if srcK >= len(cell.LIndices) {
			continue
		}
		for _, r := range cell.LIndices[srcK] {
			xj, yj := srcW.X[r], srcW.Y[r]
			hj := m.cfg.RadiusScale * srcW.H[r]
			d := math.Hypot(xi-xj, yi-yj)
			if d < hi || d < hj {
				out = append(out, r)
			}
		}
	}
	return out, nil
}
