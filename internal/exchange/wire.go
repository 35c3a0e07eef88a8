package exchange

import (
	"encoding/binary"
	"math"

	"github.com/cellmesh/parallelmgr/internal/particles"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
)

// Wire encoding for property send/receive buffers: a length-prefixed,
// kind-homogeneous vector. The kind itself travels out of band (both sides
// already agree on it via the shared lb_props/kind resolution done at
// Exchange construction), so the payload carries only length + data.

func encodeVariant(v particles.Variant) []byte {
	switch v.Kind {
	case particles.KindDouble:
		buf := make([]byte, 4+8*len(v.Float64))
		binary.LittleEndian.PutUint32(buf, uint32(len(v.Float64)))
		for i, f := range v.Float64 {
			binary.LittleEndian.PutUint64(buf[4+8*i:], math.Float64bits(f))
		}
		return buf
	case particles.KindUint:
		buf := make([]byte, 4+4*len(v.Uint32))
		binary.LittleEndian.PutUint32(buf, uint32(len(v.Uint32)))
		for i, x := range v.Uint32 {
			binary.LittleEndian.PutUint32(buf[4+4*i:], x)
		}
		return buf
	case particles.KindInt:
		buf := make([]byte, 4+4*len(v.Int32))
		binary.LittleEndian.PutUint32(buf, uint32(len(v.Int32)))
		for i, x := range v.Int32 {
			binary.LittleEndian.PutUint32(buf[4+4*i:], uint32(x))
		}
		return buf
	case particles.KindLong:
		buf := make([]byte, 4+8*len(v.Int64))
		binary.LittleEndian.PutUint32(buf, uint32(len(v.Int64)))
		for i, x := range v.Int64 {
			binary.LittleEndian.PutUint64(buf[4+8*i:], uint64(x))
		}
		return buf
	default:
		return make([]byte, 4)
	}
}

func decodeVariant(kind particles.Kind, buf []byte) (particles.Variant, error) {
	if len(buf) < 4 {
		return particles.Variant{}, pmerrors.New(pmerrors.TransportError, "truncated variant payload")
	}
	n := binary.LittleEndian.Uint32(buf)
	out := particles.Variant{Kind: kind}
	switch kind {
	case particles.KindDouble:
		if len(buf) < int(4+8*n) {
			return out, pmerrors.New(pmerrors.TransportError, "truncated double variant body")
		}
		out.Float64 = make([]float64, n)
		for i := range out.Float64 {
			out.Float64[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[4+8*i:]))
		}
	case particles.KindUint:
		if len(buf) < int(4+4*n) {
			return out, pmerrors.New(pmerrors.TransportError, "truncated uint variant body")
		}
		out.Uint32 = make([]uint32, n)
		for i := range out.Uint32 {
			out.Uint32[i] = binary.LittleEndian.Uint32(buf[4+4*i:])
		}
	case particles.KindInt:
		if len(buf) < int(4+4*n) {
			return out, pmerrors.New(pmerrors.TransportError, "truncated int variant body")
		}
		out.Int32 = make([]int32, n)
		for i := range out.Int32 {
			out.Int32[i] = int32(binary.LittleEndian.Uint32(buf[4+4*i:]))
		}
	case particles.KindLong:
		if len(buf) < int(4+8*n) {
			return out, pmerrors.New(pmerrors.TransportError, "truncated long variant body")
		}
		out.Int64 = make([]int64, n)
		for i := range out.Int64 {
			out.Int64[i] = int64(binary.LittleEndian.Uint64(buf[4+8*i:]))
		}
	default:
		return out, pmerrors.New(pmerrors.ConfigError, "unknown variant kind %q", kind)
	}
	return out, nil
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
