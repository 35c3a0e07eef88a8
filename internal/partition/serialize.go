package partition

import (
	"encoding/binary"
	"math"

	"github.com/cellmesh/parallelmgr/internal/cellgrid"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
)

// Wire encoding for the small, fixed-shape payloads the partitioner moves
// between ranks (centroids, gids, assignments, partition boxes). These are
// control-plane messages, not the bulk particle data §4.3 moves, so a
// compact hand-rolled binary.LittleEndian codec is plenty; it avoids
// pulling in a general-purpose serialization library for a handful of
// fixed-width fields.

func encodeGIDs(gids []uint32) []byte {
	buf := make([]byte, 4+4*len(gids))
	binary.LittleEndian.PutUint32(buf, uint32(len(gids)))
	for i, g := range gids {
		binary.LittleEndian.PutUint32(buf[4+4*i:], g)
	}
	return buf
}

func decodeGIDs(buf []byte) ([]uint32, error) {
	if len(buf) < 4 {
		return nil, pmerrors.New(pmerrors.TransportError, "truncated gid payload")
	}
	n := binary.LittleEndian.Uint32(buf)
	if len(buf) < int(4+4*n) {
		return nil, pmerrors.New(pmerrors.TransportError, "truncated gid payload body")
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[4+4*i:])
	}
	return out, nil
}

func encodeCentroids(c [][2]float64) []byte {
	buf := make([]byte, 4+16*len(c))
	binary.LittleEndian.PutUint32(buf, uint32(len(c)))
	for i, p := range c {
		binary.LittleEndian.PutUint64(buf[4+16*i:], math.Float64bits(p[0]))
		binary.LittleEndian.PutUint64(buf[4+16*i+8:], math.Float64bits(p[1]))
	}
	return buf
}

func decodeCentroids(buf []byte) ([][2]float64, error) {
	if len(buf) < 4 {
		return nil, pmerrors.New(pmerrors.TransportError, "truncated centroid payload")
	}
	n := binary.LittleEndian.Uint32(buf)
	if len(buf) < int(4+16*n) {
		return nil, pmerrors.New(pmerrors.TransportError, "truncated centroid payload body")
	}
	out := make([][2]float64, n)
	for i := range out {
		out[i][0] = math.Float64frombits(binary.LittleEndian.Uint64(buf[4+16*i:]))
		out[i][1] = math.Float64frombits(binary.LittleEndian.Uint64(buf[4+16*i+8:]))
	}
	return out, nil
}

func encodeAssignment(owner []int32, boxes []cellgrid.Box) []byte {
	buf := make([]byte, 4+4*len(owner)+4+32*len(boxes))
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(owner)))
	off += 4
	for _, o := range owner {
		binary.LittleEndian.PutUint32(buf[off:], uint32(o))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(boxes)))
	off += 4
	for _, b := range boxes {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(b.MinX))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(b.MinY))
		binary.LittleEndian.PutUint64(buf[off+16:], math.Float64bits(b.MaxX))
		binary.LittleEndian.PutUint64(buf[off+24:], math.Float64bits(b.MaxY))
		off += 32
	}
	return buf
}

func decodeAssignment(buf []byte) ([]int32, []cellgrid.Box, error) {
	if len(buf) < 4 {
		return nil, nil, pmerrors.New(pmerrors.TransportError, "truncated assignment payload")
	}
	off := 0
	n := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if len(buf) < off+4*int(n)+4 {
		return nil, nil, pmerrors.New(pmerrors.TransportError, "truncated assignment owner body")
	}
	owner := make([]int32, n)
	for i := range owner {
		owner[i] = int32(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	nb := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if len(buf) < off+32*int(nb) {
		return nil, nil, pmerrors.New(pmerrors.TransportError, "truncated assignment box body")
	}
	boxes := make([]cellgrid.Box, nb)
	for i := range boxes {
		boxes[i] = cellgrid.Box{
			MinX: math.Float64frombits(binary.LittleEndian.Uint64(buf[off:])),
			MinY: math.Float64frombits(binary.LittleEndian.Uint64(buf[off+8:])),
			MaxX: math.Float64frombits(binary.LittleEndian.Uint64(buf[off+16:])),
			MaxY: math.Float64frombits(binary.LittleEndian.Uint64(buf[off+24:])),
		}
		off += 32
	}
	return owner, boxes, nil
}

func encodeCount(n int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(n))
	return buf
}

func decodeCount(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, pmerrors.New(pmerrors.TransportError, "truncated count payload")
	}
	return int(binary.LittleEndian.Uint32(buf)), nil
}
