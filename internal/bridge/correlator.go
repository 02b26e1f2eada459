package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandonline/filebridge/internal/fault"
	"github.com/brandonline/filebridge/internal/metrics"
	"github.com/brandonline/filebridge/internal/protocol"
)

// DefaultMaxPending bounds the pending-request table so a stalled agent
// cannot grow it without limit.
const DefaultMaxPending = 64

// result is what a waiter receives: either the agent's response or a
// classified failure (timeout, disconnect).
type result struct {
	resp *protocol.Response
	err  error
}

// pendingRequest is one in-flight operation awaiting its matched response.
type pendingRequest struct {
	id      string
	action  string
	created time.Time
	done    chan result // buffered 1; written exactly once
}

// Correlator matches asynchronous agent responses back to their originating
// request by id. The pending table is mutated by both the sending path and
// the receiving path and is guarded by a single mutex; a slot is always
// removed from the table before it is resolved, which makes the resolution
// exactly-once by construction.
type Correlator struct {
	mu         sync.Mutex
	pending    map[string]*pendingRequest
	maxPending int
}

// NewCorrelator creates a correlator with the given pending bound.
// A non-positive bound falls back to DefaultMaxPending.
func NewCorrelator(maxPending int) *Correlator {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Correlator{
		pending:    make(map[string]*pendingRequest),
		maxPending: maxPending,
	}
}

// register allocates a fresh request id and an unresolved slot for it.
func (c *Correlator) register(action string) (*pendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) >= c.maxPending {
		return nil, fault.New(fault.OperationFailed, "pending request limit reached (%d)", c.maxPending)
	}

	p := &pendingRequest{
		id:      uuid.New().String(),
		action:  action,
		created: time.Now(),
		done:    make(chan result, 1),
	}
	c.pending[p.id] = p
	metrics.SetPendingRequests(len(c.pending))
	return p, nil
}

// drop removes a slot without resolving it. A response arriving for a
// dropped id is discarded as unmatched.
func (c *Correlator) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	metrics.SetPendingRequests(len(c.pending))
	c.mu.Unlock()
}

// Deliver routes an agent response to its waiter. Responses for unknown or
// already-resolved ids are discarded silently.
func (c *Correlator) Deliver(resp *protocol.Response) {
	c.mu.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
		metrics.SetPendingRequests(len(c.pending))
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	p.done <- result{resp: resp}
}

// CancelAll resolves every still-pending slot with the given failure and
// clears the table. Called when the agent connection is destroyed.
func (c *Correlator) CancelAll(reason error) {
	c.mu.Lock()
	cancelled := make([]*pendingRequest, 0, len(c.pending))
	for _, p := range c.pending {
		cancelled = append(cancelled, p)
	}
	c.pending = make(map[string]*pendingRequest)
	metrics.SetPendingRequests(0)
	c.mu.Unlock()

	for _, p := range cancelled {
		p.done <- result{err: reason}
	}
}

// Pending returns the number of in-flight requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
