package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
)

// App is a pluggable unit that registers request handlers and observes
// events. Apps are registered at startup and enabled on demand, either
// from configuration or through an ENABLE_APP request from the editor.
type App interface {
	Name() string
	Init(ctx context.Context, b *Broker) error
}

func (b *Broker) RegisterApp(app App) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apps[app.Name()] = app
}

// EnableApp initializes a registered app. Enabling an already-enabled app
// is a no-op.
func (b *Broker) EnableApp(ctx context.Context, name string) error {
	b.mu.Lock()
	app, ok := b.apps[name]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("unknown app %q", name)
	}
	if _, done := b.enabled[name]; done {
		b.mu.Unlock()
		return nil
	}
	b.enabled[name] = struct{}{}
	b.mu.Unlock()

	if err := app.Init(ctx, b); err != nil {
		b.mu.Lock()
		delete(b.enabled, name)
		b.mu.Unlock()
		return err
	}
	logger.InfoF("App %s enabled", name)
	return nil
}

func (b *Broker) handleEnableApp(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var name string
	if err := json.Unmarshal(payload, &name); err != nil {
		return StatusReply{Status: "error", Message: "app name must be a string"}, nil
	}
	if err := b.EnableApp(ctx, name); err != nil {
		return StatusReply{Status: "error", Message: err.Error()}, nil
	}
	return StatusReply{Status: "ok"}, nil
}
