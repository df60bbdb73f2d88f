// Package transport carries framed messages between the broker and the
// editor peer. The broker never touches sockets directly; it sees a Conn
// supplied by a Dialer and managed by the Connector.
package transport

import (
	"context"
	"errors"
)

// Status is the explicit peer-link state machine.
type Status byte

const (
	Disconnected Status = iota
	Connecting
	Connected
)

var StatusMap = map[Status]string{
	Disconnected: "DISCONNECTED",
	Connecting:   "CONNECTING",
	Connected:    "CONNECTED",
}

func (status Status) String() string {
	return StatusMap[status]
}

var ErrNotConnected = errors.New("peer is not connected")

// Conn is one live connection to the peer. Receive's channel is closed
// when the connection dies, whatever the cause.
type Conn interface {
	Send(data []byte) error
	Receive() <-chan []byte
	Close() error
}

// Dialer opens a fresh connection to the peer.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
