// Package correlation matches outgoing requests to their eventual
// responses. Pure bookkeeping, no I/O.
package correlation

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrUnknownRequest = errors.New("response does not match any request")
	ErrRequestTimeout = errors.New("request timed out")
)

// Result is delivered to exactly one waiter per request id.
type Result struct {
	Payload json.RawMessage
	Err     error
}

// Table tracks in-flight request ids. Settled ids are remembered for a
// while so that a late response to a timed-out request can be told apart
// from a response to an id that was never issued.
type Table struct {
	mu      sync.Mutex
	pending map[string]chan Result
	settled *expirable.LRU[string, struct{}]
}

func NewTable() *Table {
	return &Table{
		pending: make(map[string]chan Result),
		settled: expirable.NewLRU[string, struct{}](1024, nil, time.Minute),
	}
}

// Add registers a waiter for id. The channel is buffered so settling never
// blocks the transport read path.
func (t *Table) Add(id string) <-chan Result {
	ch := make(chan Result, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

// Settle resolves the waiter for id with payload. Settling an id that has
// already been settled or discarded is a no-op; settling an id that was
// never issued is a protocol error.
func (t *Table) Settle(id string, payload json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.pending[id]
	if !ok {
		if _, wasLive := t.settled.Get(id); wasLive {
			return nil
		}
		return ErrUnknownRequest
	}

	delete(t.pending, id)
	t.settled.Add(id, struct{}{})
	ch <- Result{Payload: payload}
	return nil
}

// Discard removes the waiter for id without resolving it, reporting
// whether a waiter was still pending. Used by the timeout path; a Settle
// racing in first wins and Discard reports false.
func (t *Table) Discard(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.settled.Add(id, struct{}{})
	return ok
}

// Pending reports the number of in-flight requests.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
