package transport

import (
	"context"
	"sync"
	"time"

	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
)

const (
	DefaultReconnectInitial = time.Second
	DefaultReconnectMax     = 30 * time.Second
)

// Connector keeps exactly one connection to the peer alive, redialing with
// capped exponential backoff. Inbound frames from every successive
// connection come out of one stable Messages channel.
type Connector struct {
	dialer   Dialer
	onStatus func(Status)
	initial  time.Duration
	max      time.Duration

	mu     sync.Mutex
	status Status
	conn   Conn
	out    chan []byte
}

func NewConnector(dialer Dialer, initial, max time.Duration, onStatus func(Status)) *Connector {
	if initial <= 0 {
		initial = DefaultReconnectInitial
	}
	if max <= 0 {
		max = DefaultReconnectMax
	}
	return &Connector{
		dialer:   dialer,
		onStatus: onStatus,
		initial:  initial,
		max:      max,
		out:      make(chan []byte, 16),
	}
}

func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connector) Messages() <-chan []byte {
	return c.out
}

// Send transmits over the current connection, erroring when the link is
// down. Callers decide whether to retry.
func (c *Connector) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if status != Connected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(data)
}

// Drop tears down the current connection; Run redials. Used when the peer
// violates the protocol.
func (c *Connector) Drop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Run dials, pipes and redials until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) {
	backoff := c.initial
	for {
		c.setStatus(Connecting)
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			c.setStatus(Disconnected)
			if ctx.Err() != nil {
				return
			}
			logger.WarnF("Unable to reach peer, retrying in %v, details: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > c.max {
				backoff = c.max
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setStatus(Connected)
		backoff = c.initial

		c.pipe(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		c.setStatus(Disconnected)

		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Connector) pipe(ctx context.Context, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-conn.Receive():
			if !ok {
				return
			}
			select {
			case c.out <- data:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Connector) setStatus(status Status) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	callback := c.onStatus
	c.mu.Unlock()

	logger.InfoF("Peer link is now %s", status)
	if callback != nil {
		callback(status)
	}
}

// CloseCallback shuts the connector down through the cleaner.
type CloseCallback struct {
	cancel    context.CancelFunc
	connector *Connector
}

func NewCloseCallback(cancel context.CancelFunc, connector *Connector) *CloseCallback {
	return &CloseCallback{cancel: cancel, connector: connector}
}

func (cc *CloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing peer connection")
	cc.cancel()
	cc.connector.Drop()
	return nil
}
