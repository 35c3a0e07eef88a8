package partition

import (
	"math"
	"sort"

	"github.com/cellmesh/parallelmgr/internal/cellgrid"
	"github.com/cellmesh/parallelmgr/internal/comm"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
)

// Message tags are partitioned by package to share one Communicator's
// mailbox namespace safely: partition uses [1000,2000), exchange uses
// 2000 and up (a block of 1000 tags per exchange channel). Collectives (Allreduce/Allgather/Barrier) carry no tag and
// never collide with point-to-point traffic.
const (
	tagGatherCentroids = 1000
	tagGatherGIDs      = 1001
	tagAssignment      = 1002
	tagInvertCount     = 1003
	tagInvertPayload   = 1004
)

// rootRank is the rank that computes the global bisection and broadcasts
// the result. Any fixed rank works; 0 is conventional.
const rootRank = 0

// RCBPartitioner implements Partitioner with recursive coordinate
// bisection: the full set of object centroids (gathered to rootRank) is
// recursively split in half along its longest axis, log2(size) times,
// until each rank owns a contiguous, roughly equal-sized slice. This
// mirrors — at the level of "recurse over a bounds-and-membership
// structure, splitting it in two" — the teacher's quadtree split
// (core/wall_composition/spatial/spatial_index.go splitNode), adapted from
// a fixed 4-way quadrant split to a 2-way longest-axis split repeated
// log2(N) times (see DESIGN.md).
type RCBPartitioner struct {
	c    comm.Communicator
	self int
	size int

	localTotal  int
	globalTotal int

	centroids [][2]float64
	gids      []uint32

	// owner[g] is the rank cell g is assigned to, valid after Balance.
	owner []int32
	// boxes[r] is rank r's post-balance sub-domain bounding box.
	boxes []cellgrid.Box
}

// NewRCB builds an RCBPartitioner bound to the given communicator.
func NewRCB(c comm.Communicator) *RCBPartitioner {
	return &RCBPartitioner{c: c, self: c.Rank(), size: c.Size()}
}

func (p *RCBPartitioner) SetNumObjects(local, global int) {
	p.localTotal = local
	p.globalTotal = global
}

func (p *RCBPartitioner) SetObjects(centroids [][2]float64, gids []uint32) {
	p.centroids = centroids
	p.gids = gids
}

// Balance gathers every rank's centroids to rootRank, computes a global
// RCB assignment and per-rank bounding boxes there, and broadcasts both
// back. It returns this rank's export list: local cells whose new owner
// differs from self.
func (p *RCBPartitioner) Balance() (List, error) {
	if p.size == 1 {
		p.owner = make([]int32, p.globalTotal)
		box := unionBox(p.centroids)
		p.boxes = []cellgrid.Box{box}
		return List{}, nil
	}

	var owner []int32
	var boxes []cellgrid.Box

	if p.self == rootRank {
		allCentroids := make([][2]float64, p.globalTotal)
		allGIDs := make([]uint32, 0, p.globalTotal)

		place := func(gids []uint32, centroids [][2]float64) error {
			for i, g := range gids {
				if int(g) >= len(allCentroids) {
					return pmerrors.New(pmerrors.InvariantViolation, "cell gid %d exceeds global total %d", g, len(allCentroids))
				}
				allCentroids[g] = centroids[i]
			}
			allGIDs = append(allGIDs, gids...)
			return nil
		}
		if err := place(p.gids, p.centroids); err != nil {
			return List{}, err
		}

		for src := 0; src < p.size; src++ {
			if src == rootRank {
				continue
			}
			gidBuf, err := p.c.Recv(src, tagGatherGIDs)
			if err != nil {
				return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "gathering cell gids from rank %d", src)
			}
			gids, err := decodeGIDs(gidBuf)
			if err != nil {
				return List{}, err
			}
			cBuf, err := p.c.Recv(src, tagGatherCentroids)
			if err != nil {
				return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "gathering cell centroids from rank %d", src)
			}
			centroids, err := decodeCentroids(cBuf)
			if err != nil {
				return List{}, err
			}
			if err := place(gids, centroids); err != nil {
				return List{}, err
			}
		}

		sort.Slice(allGIDs, func(i, j int) bool { return allGIDs[i] < allGIDs[j] })
		owner = bisect(allCentroids, p.size)
		boxes = perRankBoxes(allCentroids, owner, p.size)

		payload := encodeAssignment(owner, boxes)
		for dst := 0; dst < p.size; dst++ {
			if dst == rootRank {
				continue
			}
			if err := p.c.Send(dst, tagAssignment, payload); err != nil {
				return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "broadcasting assignment to rank %d", dst)
			}
		}
	} else {
		if err := p.c.Send(rootRank, tagGatherGIDs, encodeGIDs(p.gids)); err != nil {
			return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "sending cell gids to root")
		}
		if err := p.c.Send(rootRank, tagGatherCentroids, encodeCentroids(p.centroids)); err != nil {
			return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "sending cell centroids to root")
		}
		buf, err := p.c.Recv(rootRank, tagAssignment)
		if err != nil {
			return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "receiving assignment from root")
		}
		owner, boxes, err = decodeAssignment(buf)
		if err != nil {
			return List{}, err
		}
	}

	p.owner = owner
	p.boxes = boxes

	var export List
	for i, g := range p.gids {
		dest := int(owner[g])
		if dest != p.self {
			export.LocalIDs = append(export.LocalIDs, i)
			export.GlobalIDs = append(export.GlobalIDs, g)
			export.Procs = append(export.Procs, dest)
		}
	}
	return export, nil
}

// BoxOverlap returns every rank whose post-balance sub-domain bounding
// box intersects box, including self.
func (p *RCBPartitioner) BoxOverlap(box cellgrid.Box) ([]int, error) {
	if p.boxes == nil {
		return nil, pmerrors.New(pmerrors.InvariantViolation, "box overlap queried before Balance assigned partition boxes")
	}
	var out []int
	for r, b := range p.boxes {
		if b.Intersects(box) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, pmerrors.New(pmerrors.InvariantViolation, "cell box overlaps no partition's sub-domain")
	}
	return out, nil
}

// InvertLists computes the mirror-image list for known: an O(size) fan-out
// count exchange followed by a payload exchange, grouping known's entries
// by Proc.
func (p *RCBPartitioner) InvertLists(known List) (List, error) {
	byDest := make([][]uint32, p.size)
	for i, g := range known.GlobalIDs {
		d := known.Procs[i]
		byDest[d] = append(byDest[d], g)
	}

	for d := 0; d < p.size; d++ {
		if d == p.self {
			continue
		}
		if err := p.c.Send(d, tagInvertCount, encodeCount(len(byDest[d]))); err != nil {
			return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "sending invert-count to rank %d", d)
		}
	}
	recvCounts := make([]int, p.size)
	for s := 0; s < p.size; s++ {
		if s == p.self {
			continue
		}
		buf, err := p.c.Recv(s, tagInvertCount)
		if err != nil {
			return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "receiving invert-count from rank %d", s)
		}
		n, err := decodeCount(buf)
		if err != nil {
			return List{}, err
		}
		recvCounts[s] = n
	}

	for d := 0; d < p.size; d++ {
		if d == p.self {
			continue
		}
		if err := p.c.Send(d, tagInvertPayload, encodeGIDs(byDest[d])); err != nil {
			return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "sending invert-payload to rank %d", d)
		}
	}

	var result List
	for s := 0; s < p.size; s++ {
		if s == p.self {
			continue
		}
		buf, err := p.c.Recv(s, tagInvertPayload)
		if err != nil {
			return List{}, pmerrors.Wrap(pmerrors.TransportError, err, "receiving invert-payload from rank %d", s)
		}
		gids, err := decodeGIDs(buf)
		if err != nil {
			return List{}, err
		}
		if len(gids) != recvCounts[s] {
			return List{}, pmerrors.New(pmerrors.SizeMismatch,
				"rank %d: expected %d inverted entries from rank %d, received %d", p.self, recvCounts[s], s, len(gids))
		}
		for _, g := range gids {
			result.GlobalIDs = append(result.GlobalIDs, g)
			result.Procs = append(result.Procs, s)
		}
	}
	return result, nil
}

// bisect recursively splits centroids (indexed by global id) into
// nparts contiguous groups along each group's longest axis, returning the
// owning rank for every global id.
func bisect(centroids [][2]float64, nparts int) []int32 {
	owner := make([]int32, len(centroids))
	ids := make([]int, len(centroids))
	for i := range ids {
		ids[i] = i
	}
	assignRange(centroids, ids, 0, nparts, owner)
	return owner
}

// assignRange assigns every id in ids to a rank in [rankLo, rankLo+nranks),
// recursively bisecting along the longest axis until nranks == 1.
func assignRange(centroids [][2]float64, ids []int, rankLo, nranks int, owner []int32) {
	if nranks <= 1 || len(ids) == 0 {
		for _, id := range ids {
			owner[id] = int32(rankLo)
		}
		return
	}

	axis := longestAxis(centroids, ids)
	sort.Slice(ids, func(i, j int) bool { return centroids[ids[i]][axis] < centroids[ids[j]][axis] })

	leftRanks := nranks / 2
	rightRanks := nranks - leftRanks
	split := len(ids) * leftRanks / nranks

	assignRange(centroids, ids[:split], rankLo, leftRanks, owner)
	assignRange(centroids, ids[split:], rankLo+leftRanks, rightRanks, owner)
}

func longestAxis(centroids [][2]float64, ids []int) int {
	if len(ids) == 0 {
		return 0
	}
	minX, maxX := centroids[ids[0]][0], centroids[ids[0]][0]
	minY, maxY := centroids[ids[0]][1], centroids[ids[0]][1]
	for _, id := range ids[1:] {
		p := centroids[id]
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	if maxX-minX >= maxY-minY {
		return 0
	}
	return 1
}

// perRankBoxes computes each rank's post-balance bounding box. A rank
// assigned zero cells (possible when size exceeds the global cell count)
// gets an empty box — MinX/MinY set past MaxX/MaxY — so it never
// spuriously Intersects a real query box the way a zero-valued Box at the
// origin would.
func perRankBoxes(centroids [][2]float64, owner []int32, size int) []cellgrid.Box {
	boxes := make([]cellgrid.Box, size)
	for r := range boxes {
		boxes[r] = cellgrid.Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	}
	init := make([]bool, size)
	for i, p := range centroids {
		r := owner[i]
		if !init[r] {
			boxes[r] = cellgrid.Box{MinX: p[0], MaxX: p[0], MinY: p[1], MaxY: p[1]}
			init[r] = true
			continue
		}
		if p[0] < boxes[r].MinX {
			boxes[r].MinX = p[0]
		}
		if p[0] > boxes[r].MaxX {
			boxes[r].MaxX = p[0]
		}
		if p[1] < boxes[r].MinY {
			boxes[r].MinY = p[1]
		}
		if p[1] > boxes[r].MaxY {
			boxes[r].MaxY = p[1]
		}
	}
	return boxes
}

func unionBox(centroids [][2]float64) cellgrid.Box {
	if len(centroids) == 0 {
		return cellgrid.Box{}
	}
	b := cellgrid.Box{MinX: centroids[0][0], MaxX: centroids[0][0], MinY: centroids[0][1], MaxY: centroids[0][1]}
	for _, p := range centroids[1:] {
		if p[0] < b.MinX {
			b.MinX = p[0]
		}
		if p[0] > b.MaxX {
			b.MaxX = p[0]
		}
		if p[1] < b.MinY {
			b.MinY = p[1]
		}
		if p[1] > b.MaxY {
			b.MaxY = p[1]
		}
	}
	return b
}
