// Package broker composes the correlation table, event bus, transport link
// and state snapshot into the single façade apps talk to.
package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/spookfox-dev/spookfox-go-broker/internal/browser"
	"github.com/spookfox-dev/spookfox-go-broker/internal/bus"
	"github.com/spookfox-dev/spookfox-go-broker/internal/correlation"
	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
	"github.com/spookfox-dev/spookfox-go-broker/internal/state"
	"github.com/spookfox-dev/spookfox-go-broker/internal/transport"
	"github.com/spookfox-dev/spookfox-go-broker/internal/wire"
)

// Topics published on the event bus.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventNewState     = "newstate"
)

// PeerLink is the slice of the connector the broker depends on.
type PeerLink interface {
	Send(data []byte) error
	Messages() <-chan []byte
	Drop()
}

// Handler answers one peer-initiated request. The returned value becomes
// the reply payload; a returned error becomes an error-status reply.
type Handler func(ctx context.Context, payload json.RawMessage) (interface{}, error)

type Broker struct {
	link    PeerLink
	browser browser.Browser
	bus     *bus.Bus
	table   *correlation.Table
	timeout time.Duration

	mu       sync.Mutex
	state    *state.State
	handlers map[string]Handler
	apps     map[string]App
	enabled  map[string]struct{}
}

func New(link PeerLink, br browser.Browser, timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	b := &Broker{
		link:     link,
		browser:  br,
		bus:      bus.New(),
		table:    correlation.NewTable(),
		timeout:  timeout,
		state:    state.New(),
		handlers: make(map[string]Handler),
		apps:     make(map[string]App),
		enabled:  make(map[string]struct{}),
	}

	_ = b.RegisterReqHandler("ENABLE_APP", b.handleEnableApp)

	b.bus.Subscribe(EventConnected, func(interface{}) {
		// reconciliation awaits the peer's reply, so it cannot run on
		// the connector's goroutine
		go func() {
			if err := b.Reconcile(context.Background()); err != nil {
				logger.ErrorF("Reconciliation failed, details: %v", err)
			}
		}()
	})

	return b
}

// OnStatus translates transport transitions into bus events. Wired as the
// connector's status callback.
func (b *Broker) OnStatus(status transport.Status) {
	switch status {
	case transport.Connected:
		b.bus.Dispatch(EventConnected, nil)
	case transport.Disconnected:
		b.bus.Dispatch(EventDisconnected, nil)
	}
}

func (b *Broker) Subscribe(topic string, handler bus.Handler) {
	b.bus.Subscribe(topic, handler)
}

func (b *Broker) Dispatch(topic string, payload interface{}) {
	b.bus.Dispatch(topic, payload)
}

// State returns the current snapshot. Callers must treat it as read-only;
// mutations go through NewState.
func (b *Broker) State() *state.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// NewState clones the current snapshot, applies mutate to the clone, swaps
// it in atomically and then publishes it. Readers never observe a
// half-built state.
func (b *Broker) NewState(mutate func(*state.State), debugLabel string) {
	b.mu.Lock()
	next := b.state.Clone()
	mutate(next)
	b.state = next
	b.mu.Unlock()

	logger.DebugF("State replaced (%s): %d open, %d saved, %d saving",
		debugLabel, len(next.OpenTabs), len(next.SavedTabs), len(next.SavingTabs))
	b.bus.Dispatch(EventNewState, next)
}

// Run consumes inbound peer messages until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-b.link.Messages():
			if !ok {
				return
			}
			b.handleMessage(ctx, data)
		}
	}
}

func (b *Broker) handleMessage(ctx context.Context, data []byte) {
	kind, req, resp, err := wire.Decode(data)
	if err != nil {
		logger.ErrorF("Protocol violation from peer, dropping connection, details: %v", err)
		b.link.Drop()
		return
	}

	switch kind {
	case wire.RESPONSE:
		if err := b.table.Settle(resp.RequestID, resp.Payload); err != nil {
			logger.ErrorF("Protocol violation: %v (requestId=%s), dropping connection", err, resp.RequestID)
			b.link.Drop()
		}
	case wire.REQUEST:
		logger.DebugF("Receive %s request from peer (id=%s)", req.Name, req.ID)
		// handlers may themselves await responses, so they must not
		// block the message pump
		go b.dispatchInbound(ctx, req)
	}
}
