// Package comm defines the collective operations the id-space bookkeeping
// relies on.
//
// Every cooperating process (rank) must invoke a collective the same number of
// times and in the same order. A rank that skips a call leaves the others
// blocked forever. Call sites must never decide whether to reduce based on data
// that only exists on the local rank.
package comm

import (
	"context"
	"sync"
	"sync/atomic"
)

// A Communicator connects the ranks that build the same simulation.
type Communicator interface {
	// Rank returns the index of the calling process within the group.
	Rank() int

	// Size returns the number of processes in the group.
	Size() int

	// AllReduceMax returns the maximum of local over all ranks. It blocks until
	// every rank has contributed.
	AllReduceMax(ctx context.Context, local uint64) (uint64, error)
}

// NewSingle returns the communicator of a job with a single rank.
func NewSingle() Communicator {
	return single{}
}

type single struct{}

func (single) Rank() int { return 0 }

func (single) Size() int { return 1 }

func (single) AllReduceMax(ctx context.Context, local uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return local, nil
}

// NewLocalGroup creates n communicators that reduce with each other inside the
// current process. Each one must be driven by its own goroutine. A group whose
// collective was abandoned through context cancellation must not be reused.
func NewLocalGroup(n int) []Communicator {
	if n < 1 {
		panic("comm: a group needs at least one rank")
	}

	g := &localGroup{size: n, current: newRound()}

	members := make([]Communicator, n)
	for i := range members {
		members[i] = &localMember{group: g, rank: i}
	}

	return members
}

type round struct {
	value   uint64
	arrived int
	done    chan struct{}
}

func newRound() *round {
	return &round{done: make(chan struct{})}
}

type localGroup struct {
	mu      sync.Mutex
	size    int
	current *round
}

func (g *localGroup) reduce(ctx context.Context, local uint64) (uint64, error) {
	g.mu.Lock()
	r := g.current
	r.value = max(r.value, local)
	r.arrived++

	if r.arrived == g.size {
		g.current = newRound()
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.value, nil
	case <-ctx.Done():
		// A round that completed still counts.
		select {
		case <-r.done:
			return r.value, nil
		default:
			return 0, ctx.Err()
		}
	}
}

type localMember struct {
	group *localGroup
	rank  int
}

func (m *localMember) Rank() int { return m.rank }

func (m *localMember) Size() int { return m.group.size }

func (m *localMember) AllReduceMax(
	ctx context.Context,
	local uint64,
) (uint64, error) {
	return m.group.reduce(ctx, local)
}

// Counting wraps a communicator and counts the collectives issued through it.
// Comparing counts across ranks is the cheapest way to catch asymmetric call
// sites in tests.
type Counting struct {
	Communicator

	calls atomic.Uint64
}

// NewCounting wraps c.
func NewCounting(c Communicator) *Counting {
	return &Counting{Communicator: c}
}

// AllReduceMax forwards to the wrapped communicator.
func (c *Counting) AllReduceMax(
	ctx context.Context,
	local uint64,
) (uint64, error) {
	c.calls.Add(1)
	return c.Communicator.AllReduceMax(ctx, local)
}

// Calls returns the number of collectives issued so far.
func (c *Counting) Calls() uint64 {
	return c.calls.Load()
}
