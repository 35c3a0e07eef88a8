package exchange

import (
	"testing"
	"time"

	"github.com/cellmesh/parallelmgr/internal/comm"
	"github.com/cellmesh/parallelmgr/internal/particles"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testKinds = map[string]particles.Kind{
	"x":   particles.KindDouble,
	"y":   particles.KindDouble,
	"gid": particles.KindUint,
	"tag": particles.KindInt,
}

var testProps = []string{"x", "y", "gid", "tag"}

func fixture(xs, ys []float64, gids []uint32) *particles.Array {
	a := particles.NewArray(testKinds)
	n := len(xs)
	_ = a.Resize(n)
	x, _ := a.GetCArray("x")
	y, _ := a.GetCArray("y")
	gid, _ := a.GetCArray("gid")
	copy(x.Float64, xs)
	copy(y.Float64, ys)
	copy(gid.Uint32, gids)
	// tag defaults to zero (Local) via Resize's zero-initialization.
	return a
}

func TestLBExchangeMovesRowsAndRemovesFromSender(t *testing.T) {
	rank0 := fixture([]float64{0, 1, 2}, []float64{0, 0, 0}, []uint32{0, 1, 2})
	rank1 := fixture([]float64{10, 11}, []float64{0, 0}, []uint32{3, 4})

	comms := comm.NewLocal(2, 2*time.Second)
	ex0, err := New(rank0, testProps, comms[0], 0, nil)
	require.NoError(t, err)
	ex1, err := New(rank1, testProps, comms[1], 0, nil)
	require.NoError(t, err)

	export0 := RowSet{LocalIDs: []int{2}, GlobalIDs: []uint32{2}, Procs: []int{1}}
	import0 := RowSet{}
	export1 := RowSet{}
	import1 := RowSet{GlobalIDs: []uint32{2}, Procs: []int{0}}

	var g errgroup.Group
	g.Go(func() error { return ex0.LBExchange(export0, import0) })
	g.Go(func() error { return ex1.LBExchange(export1, import1) })
	require.NoError(t, g.Wait())

	assert.Equal(t, 2, rank0.Length())
	x0, _ := rank0.GetCArray("x")
	assert.Equal(t, []float64{0, 1}, x0.Float64)

	assert.Equal(t, 3, rank1.Length())
	x1, _ := rank1.GetCArray("x")
	gid1, _ := rank1.GetCArray("gid")
	tag1, _ := rank1.GetCArray("tag")
	assert.Equal(t, 2.0, x1.Float64[2])
	assert.Equal(t, uint32(2), gid1.Uint32[2])
	assert.Equal(t, particles.TagLocal, tag1.Int32[2])
}

func TestRemoteExchangeAppendsAndTagsRemote(t *testing.T) {
	rank0 := fixture([]float64{0, 1, 2}, []float64{0, 0, 0}, []uint32{0, 1, 2})
	rank1 := fixture([]float64{10, 11}, []float64{0, 0}, []uint32{3, 4})

	comms := comm.NewLocal(2, 2*time.Second)
	ex0, err := New(rank0, testProps, comms[0], 0, nil)
	require.NoError(t, err)
	ex1, err := New(rank1, testProps, comms[1], 0, nil)
	require.NoError(t, err)

	export0 := RowSet{LocalIDs: []int{2}, GlobalIDs: []uint32{2}, Procs: []int{1}}
	import0 := RowSet{}
	export1 := RowSet{}
	import1 := RowSet{GlobalIDs: []uint32{2}, Procs: []int{0}}

	var g errgroup.Group
	g.Go(func() error { return ex0.RemoteExchange(export0, import0) })
	g.Go(func() error { return ex1.RemoteExchange(export1, import1) })
	require.NoError(t, g.Wait())

	// rank0 kept its row: no removal in the halo protocol.
	assert.Equal(t, 3, rank0.Length())

	require.Equal(t, 3, rank1.Length())
	tag1, _ := rank1.GetCArray("tag")
	x1, _ := rank1.GetCArray("x")
	assert.Equal(t, 2.0, x1.Float64[2])
	assert.Equal(t, particles.TagRemote, tag1.Int32[2], "imported halo row must be tagged Remote regardless of wire tag value")
}

func TestLBExchangeSizeMismatchIsFatal(t *testing.T) {
	rank0 := fixture([]float64{0, 1}, []float64{0, 0}, []uint32{0, 1})
	rank1 := fixture([]float64{10}, []float64{0}, []uint32{2})

	comms := comm.NewLocal(2, 200*time.Millisecond)
	ex0, err := New(rank0, testProps, comms[0], 0, nil)
	require.NoError(t, err)
	ex1, err := New(rank1, testProps, comms[1], 0, nil)
	require.NoError(t, err)

	// rank0 really does export 1 row to rank1, and rank1 really exports
	// none to rank0. Both sides' import claims are wrong in a way that
	// each rank's own count_recv_data check catches before any payload is
	// exchanged, so neither blocks waiting on a message the other never
	// sends.
	export0 := RowSet{LocalIDs: []int{1}, GlobalIDs: []uint32{1}, Procs: []int{1}}
	import0 := RowSet{GlobalIDs: []uint32{99}, Procs: []int{1}} // wrongly claims 1 from rank1
	export1 := RowSet{}
	import1 := RowSet{} // wrongly claims 0 from rank0

	var g errgroup.Group
	g.Go(func() error { return ex0.LBExchange(export0, import0) })
	g.Go(func() error { return ex1.LBExchange(export1, import1) })
	err = g.Wait()
	require.Error(t, err)
	assert.True(t, pmerrors.IsSizeMismatch(err))
}

func TestNewRejectsUnknownProperty(t *testing.T) {
	a := particles.NewArray(testKinds)
	comms := comm.NewLocal(1, time.Second)
	_, err := New(a, []string{"not_a_real_property"}, comms[0], 0, nil)
	require.Error(t, err)
	assert.True(t, pmerrors.IsConfigError(err))
}
