package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spookfox-dev/spookfox-go-broker/internal/correlation"
	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
	"github.com/spookfox-dev/spookfox-go-broker/internal/wire"
)

const DefaultRequestTimeout = 2 * time.Second

// Request sends a named request to the peer and waits for its response or
// the timeout, whichever comes first. Requests are never retried here; the
// caller decides. Concurrent requests are independent and unordered.
func (b *Broker) Request(ctx context.Context, name string, payload interface{}) (json.RawMessage, error) {
	raw, err := wire.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	data, err := json.Marshal(wire.Request{ID: id, Name: name, Payload: raw})
	if err != nil {
		return nil, err
	}

	waiter := b.table.Add(id)
	if err := b.link.Send(data); err != nil {
		b.table.Discard(id)
		return nil, err
	}
	logger.DebugF("Sent %s request to peer (id=%s)", name, id)

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case result := <-waiter:
		return result.Payload, result.Err
	case <-timer.C:
		if b.table.Discard(id) {
			logger.WarnF("%s request timed out (id=%s)", name, id)
			return nil, correlation.ErrRequestTimeout
		}
		// a settlement won the race against the timer
		result := <-waiter
		return result.Payload, result.Err
	case <-ctx.Done():
		if b.table.Discard(id) {
			return nil, ctx.Err()
		}
		result := <-waiter
		return result.Payload, result.Err
	}
}
