package browser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
)

const (
	maxMessageSize = 64 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
)

var ErrNoExtension = errors.New("browser extension is not connected")

// extensionMessage is the envelope the extension sends and receives over
// the WebSocket.
type extensionMessage struct {
	Type   string    `json:"type"`
	Tabs   []TabInfo `json:"tabs,omitempty"`
	Tab    *TabInfo  `json:"tab,omitempty"`
	TabID  int       `json:"tabId,omitempty"`
	Action string    `json:"action,omitempty"`
	URL    string    `json:"url,omitempty"`
}

// newUpgrader accepts any origin when allowedOrigins is empty (localhost
// development mode), otherwise only the listed ones.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
}

// Endpoint is the WebSocket server the extension connects to. One
// extension connection at a time; a newcomer replaces the old one.
type Endpoint struct {
	registry *Registry
	events   chan Event
	upgrader websocket.Upgrader
	server   *http.Server

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewEndpoint(listenAddr string, allowedOrigins []string) *Endpoint {
	e := &Endpoint{
		registry: NewRegistry(),
		events:   make(chan Event, 64),
		upgrader: newUpgrader(allowedOrigins),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", e.handleWS)
	e.server = &http.Server{Addr: listenAddr, Handler: mux}
	return e
}

// Start begins accepting extension connections in the background.
func (e *Endpoint) Start() {
	go func() {
		logger.InfoF("Browser endpoint listening on %s", e.server.Addr)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalF("Browser endpoint error: %v", err)
		}
	}()
}

func (e *Endpoint) Tabs() []TabInfo {
	return e.registry.Tabs()
}

func (e *Endpoint) ActiveTab() (TabInfo, bool) {
	return e.registry.ActiveTab()
}

func (e *Endpoint) Events() <-chan Event {
	return e.events
}

// OpenTab asks the extension to open url in a new tab.
func (e *Endpoint) OpenTab(url string) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNoExtension
	}

	data, err := json.Marshal(extensionMessage{Type: "open_tab", URL: url})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (e *Endpoint) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("Extension upgrade failed, details: %v", err)
		return
	}
	connID := conn.RemoteAddr().String()

	e.mu.Lock()
	if e.conn != nil {
		logger.WarnF("[%s] New extension connection replaces the old one", connID)
		_ = e.conn.Close()
	}
	e.conn = conn
	e.mu.Unlock()

	logger.InfoF("[%s] Extension connected", connID)
	go e.pingLoop(conn)
	e.readLoop(conn, connID)
}

func (e *Endpoint) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

func (e *Endpoint) readLoop(conn *websocket.Conn, connID string) {
	defer func() {
		e.mu.Lock()
		if e.conn == conn {
			e.conn = nil
		}
		e.mu.Unlock()
		_ = conn.Close()
		logger.InfoF("[%s] Extension disconnected", connID)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnF("[%s] Extension read error, details: %v", connID, err)
			}
			return
		}

		var msg extensionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WarnF("[%s] Unable to parse extension message, details: %v", connID, err)
			continue
		}
		e.handleMessage(connID, msg)
	}
}

func (e *Endpoint) handleMessage(connID string, msg extensionMessage) {
	switch msg.Type {
	case "snapshot":
		e.registry.ApplySnapshot(msg.Tabs)
		e.emit(Event{Type: SnapshotReceived})
	case "tab_created":
		if msg.Tab == nil {
			return
		}
		e.registry.Upsert(*msg.Tab)
		e.emit(Event{Type: TabCreated, Tab: msg.Tab})
	case "tab_updated":
		if msg.Tab == nil {
			return
		}
		e.registry.Upsert(*msg.Tab)
		e.emit(Event{Type: TabUpdated, Tab: msg.Tab})
	case "tab_removed":
		e.registry.Remove(msg.TabID)
		e.emit(Event{Type: TabRemoved, TabID: msg.TabID})
	case "tab_activated":
		e.registry.Activate(msg.TabID)
		e.emit(Event{Type: TabActivated, TabID: msg.TabID})
	case "user_action":
		e.emit(Event{Type: UserAction, TabID: msg.TabID, Action: msg.Action})
	default:
		logger.WarnF("[%s] Unknown extension message type %q", connID, msg.Type)
	}
}

func (e *Endpoint) emit(event Event) {
	select {
	case e.events <- event:
	default:
		// consumer too slow
		logger.WarnF("Dropping browser event %s", event.Type)
	}
}

// CloseCallback shuts the endpoint down through the cleaner.
type CloseCallback struct {
	endpoint *Endpoint
}

func NewCloseCallback(endpoint *Endpoint) *CloseCallback {
	return &CloseCallback{endpoint: endpoint}
}

func (cc *CloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing browser endpoint")
	return cc.endpoint.server.Shutdown(ctx)
}
