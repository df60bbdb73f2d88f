package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
	"github.com/spookfox-dev/spookfox-go-broker/internal/wire"
)

var ErrDuplicateHandler = errors.New("a handler is already registered for this request name")

// StatusReply is the conventional shape for ack-style replies.
type StatusReply struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// RegisterReqHandler binds handler to a request name. At most one handler
// per name for the lifetime of the broker; a duplicate registration errors
// and the first handler stays active.
func (b *Broker) RegisterReqHandler(name string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	b.handlers[name] = handler
	return nil
}

func (b *Broker) dispatchInbound(ctx context.Context, req *wire.Request) {
	b.mu.Lock()
	handler, ok := b.handlers[req.Name]
	b.mu.Unlock()

	if !ok {
		logger.WarnF("No handler registered for %s request (id=%s)", req.Name, req.ID)
		b.reply(req.ID, StatusReply{Status: "error", Message: "no handler for " + req.Name})
		return
	}

	result, err := handler(ctx, req.Payload)
	if err != nil {
		logger.ErrorF("%s handler failed, details: %v", req.Name, err)
		b.reply(req.ID, StatusReply{Status: "error", Message: err.Error()})
		return
	}
	b.reply(req.ID, result)
}

func (b *Broker) reply(requestID string, payload interface{}) {
	raw, err := wire.EncodePayload(payload)
	if err != nil {
		logger.ErrorF("Unable to encode reply for request %s, details: %v", requestID, err)
		return
	}
	data, err := json.Marshal(wire.Response{RequestID: requestID, Payload: raw})
	if err != nil {
		logger.ErrorF("Unable to encode reply for request %s, details: %v", requestID, err)
		return
	}
	if err := b.link.Send(data); err != nil {
		logger.WarnF("Fail to send reply for request %s, details: %v", requestID, err)
	}
}
