package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
	"github.com/spookfox-dev/spookfox-go-broker/internal/wire"
)

// SocketDialer dials the editor's local socket, "unix" or "tcp".
type SocketDialer struct {
	Network string
	Address string
}

func (d *SocketDialer) Dial(ctx context.Context) (Conn, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, d.Network, d.Address)
	if err != nil {
		return nil, err
	}

	sc := &SocketConn{
		conn:   conn,
		connID: d.Address,
		recv:   make(chan []byte, 16),
	}
	go sc.readLoop()
	logger.DebugF("[%s] Connected to peer", sc.connID)
	return sc, nil
}

// SocketConn reads length-prefixed JSON frames off a stream socket.
type SocketConn struct {
	conn      net.Conn
	connID    string
	recv      chan []byte
	closeOnce sync.Once
}

func (s *SocketConn) readLoop() {
	defer close(s.recv)
	for {
		frame, err := wire.ReadFrame(s.conn)
		if err != nil {
			handleReadError(s.connID, err)
			return
		}
		logger.DebugF("[%s] Receive %d bytes from peer", s.connID, len(frame))
		s.recv <- frame
	}
}

func (s *SocketConn) Send(data []byte) error {
	return send(s.conn, wire.EncodeFrame(data), s.connID)
}

func (s *SocketConn) Receive() <-chan []byte {
	return s.recv
}

func (s *SocketConn) Close() error {
	var err error
	s.closeOnce.Do(func() {
		logger.DebugF("[%s] Connection closed", s.connID)
		err = s.conn.Close()
		if err != nil && isNetClosedError(err) {
			err = nil
		}
	})
	return err
}

func send(conn net.Conn, data []byte, connID string) error {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", connID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes to peer", connID, total)
	return nil
}

func isNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func handleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF), isNetClosedError(err):
		logger.InfoF("[%s] Peer closed connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading frame, details: %v", connID, err)
	}
}
