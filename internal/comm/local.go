package comm

import (
	"sync"
	"time"

	"github.com/cellmesh/parallelmgr/internal/pmerrors"
)

// hub is the shared state behind a group of Local communicators: the
// point-to-point mailboxes and the collective rendezvous they all submit
// to. It is never exposed directly; callers only see the per-rank Local
// values NewLocal returns.
type hub struct {
	n          int
	rv         *rendezvous
	mailboxMu  sync.Mutex
	mailboxes  map[mailKey]chan []byte
	bufferSize int
}

type mailKey struct {
	src, dest, tag int
}

// Local is an in-process Communicator: one goroutine per rank, coordinated
// through channels and a shared rendezvous barrier, with no memory shared
// between ranks except through explicit Send/Recv/collective calls. This
// is the communicator cmd/pmdemo and the multi-rank test scenarios
// (spec.md §8, scenarios C/D) run against.
type Local struct {
	h    *hub
	rank int
}

// NewLocal builds n Local communicators, one per rank, sharing one hub.
// timeout bounds how long any collective call waits for the other ranks
// (zero disables the bound).
func NewLocal(n int, timeout time.Duration) []*Local {
	h := &hub{
		n:          n,
		rv:         newRendezvous(n, timeout),
		mailboxes:  make(map[mailKey]chan []byte),
		bufferSize: 64,
	}
	comms := make([]*Local, n)
	for r := 0; r < n; r++ {
		comms[r] = &Local{h: h, rank: r}
	}
	return comms
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.h.n }

func (l *Local) mailbox(src, dest, tag int) chan []byte {
	key := mailKey{src, dest, tag}
	l.h.mailboxMu.Lock()
	defer l.h.mailboxMu.Unlock()
	ch, ok := l.h.mailboxes[key]
	if !ok {
		ch = make(chan []byte, l.h.bufferSize)
		l.h.mailboxes[key] = ch
	}
	return ch
}

func (l *Local) Send(dest, tag int, data []byte) error {
	if dest < 0 || dest >= l.h.n {
		return pmerrors.New(pmerrors.TransportError, "send to out-of-range rank %d (size %d)", dest, l.h.n)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	l.mailbox(l.rank, dest, tag) <- payload
	return nil
}

func (l *Local) Recv(src, tag int) ([]byte, error) {
	if src < 0 || src >= l.h.n {
		return nil, pmerrors.New(pmerrors.TransportError, "recv from out-of-range rank %d (size %d)", src, l.h.n)
	}
	return <-l.mailbox(src, l.rank, tag), nil
}

func (l *Local) Allreduce(local []float64, ops []ReduceOp) ([]float64, error) {
	if len(local) != len(ops) {
		return nil, pmerrors.New(pmerrors.TransportError, "allreduce: %d values but %d ops", len(local), len(ops))
	}
	results, err := l.h.rv.do(l.rank, local, func(all []interface{}) interface{} {
		out := make([]float64, len(ops))
		for i, op := range ops {
			v := all[0].([]float64)[i]
			for r := 1; r < len(all); r++ {
				x := all[r].([]float64)[i]
				switch op {
				case OpMin:
					if x < v {
						v = x
					}
				case OpMax:
					if x > v {
						v = x
					}
				}
			}
			out[i] = v
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return results[0].([]float64), nil
}

func (l *Local) Allgather(local int) ([]int, error) {
	results, err := l.h.rv.do(l.rank, local, func(all []interface{}) interface{} {
		out := make([]int, len(all))
		for i, v := range all {
			out[i] = v.(int)
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return results[0].([]int), nil
}

func (l *Local) Barrier() error {
	_, err := l.h.rv.do(l.rank, struct{}{}, func(all []interface{}) interface{} { return struct{}{} })
	return err
}
