package comm

import (
	"sync"
	"time"

	"github.com/cellmesh/parallelmgr/internal/pmerrors"
)

// rendezvous is a reusable all-to-one-to-all barrier: every rank submits
// a value, the last arriver combines them, and every rank (including the
// last) receives the combined result. It is the building block both
// Allreduce and Allgather are implemented on top of — modeled on the
// worker/fan-in rendezvous the reference corpus's errgroup-based parallel
// analyzer uses to join concurrent results (see DESIGN.md, internal/comm
// entry), adapted from a WaitGroup-per-batch shape to a repeatable,
// round-based barrier since Update runs many collectives in sequence.
type rendezvous struct {
	n       int
	timeout time.Duration

	mu  sync.Mutex
	cur *round
}

type round struct {
	mu     sync.Mutex
	data   []interface{}
	count  int
	doneCh chan struct{}
	result []interface{}
}

func newRendezvous(n int, timeout time.Duration) *rendezvous {
	return &rendezvous{n: n, timeout: timeout}
}

// do submits value for rank, combines all n values with combine once
// every rank has submitted for this round, and returns the combined
// result to every rank.
func (r *rendezvous) do(rank int, value interface{}, combine func([]interface{}) interface{}) ([]interface{}, error) {
	r.mu.Lock()
	if r.cur == nil {
		r.cur = &round{data: make([]interface{}, r.n), doneCh: make(chan struct{})}
	}
	rnd := r.cur
	r.mu.Unlock()

	rnd.mu.Lock()
	rnd.data[rank] = value
	rnd.count++
	isLast := rnd.count == r.n
	var doneCh chan struct{}
	if isLast {
		combined := combine(rnd.data)
		rnd.result = []interface{}{combined}
		r.mu.Lock()
		r.cur = nil
		r.mu.Unlock()
	}
	doneCh = rnd.doneCh
	rnd.mu.Unlock()

	if isLast {
		close(doneCh)
		return rnd.result, nil
	}

	if r.timeout <= 0 {
		<-doneCh
	} else {
		select {
		case <-doneCh:
		case <-time.After(r.timeout):
			return nil, pmerrors.New(pmerrors.TransportError,
				"rank %d timed out waiting for the other %d ranks to enter the collective", rank, r.n-1)
		}
	}
	return rnd.result, nil
}
