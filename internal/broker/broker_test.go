package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spookfox-dev/spookfox-go-broker/internal/browser"
	"github.com/spookfox-dev/spookfox-go-broker/internal/correlation"
	"github.com/spookfox-dev/spookfox-go-broker/internal/state"
	"github.com/spookfox-dev/spookfox-go-broker/internal/wire"
)

type fakeLink struct {
	mu      sync.Mutex
	sent    [][]byte
	inbox   chan []byte
	dropped int
}

func newFakeLink() *fakeLink {
	return &fakeLink{inbox: make(chan []byte, 16)}
}

func (l *fakeLink) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, data)
	return nil
}

func (l *fakeLink) Messages() <-chan []byte {
	return l.inbox
}

func (l *fakeLink) Drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped++
}

func (l *fakeLink) dropCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// awaitRequest polls the sent frames for an outbound request with the
// given name.
func (l *fakeLink) awaitRequest(t *testing.T, name string) wire.Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, frame := range l.sent {
			var req wire.Request
			if err := json.Unmarshal(frame, &req); err == nil && req.Name == name {
				l.mu.Unlock()
				return req
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s request was sent", name)
	return wire.Request{}
}

// awaitReply polls the sent frames for a response to the given request id.
func (l *fakeLink) awaitReply(t *testing.T, requestID string) wire.Response {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, frame := range l.sent {
			var resp wire.Response
			if err := json.Unmarshal(frame, &resp); err == nil && resp.RequestID == requestID {
				l.mu.Unlock()
				return resp
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no reply was sent for request %s", requestID)
	return wire.Response{}
}

// answer waits for an outbound request with the given name and feeds a
// reply carrying payload into the inbox. Safe to run off the test
// goroutine; a missing request surfaces as a failure in the caller.
func (l *fakeLink) answer(name string, payload json.RawMessage) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, frame := range l.sent {
			var req wire.Request
			if err := json.Unmarshal(frame, &req); err == nil && req.Name == name {
				l.mu.Unlock()
				data, _ := json.Marshal(wire.Response{RequestID: req.ID, Payload: payload})
				l.inbox <- data
				return
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeBrowser struct {
	mu     sync.Mutex
	tabs   []browser.TabInfo
	events chan browser.Event
	opened []string
}

func newFakeBrowser(tabs ...browser.TabInfo) *fakeBrowser {
	return &fakeBrowser{tabs: tabs, events: make(chan browser.Event, 16)}
}

func (f *fakeBrowser) Tabs() []browser.TabInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.TabInfo(nil), f.tabs...)
}

func (f *fakeBrowser) ActiveTab() (browser.TabInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tabs) == 0 {
		return browser.TabInfo{}, false
	}
	return f.tabs[0], true
}

func (f *fakeBrowser) Events() <-chan browser.Event {
	return f.events
}

func (f *fakeBrowser) OpenTab(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return nil
}

func startBroker(t *testing.T, link *fakeLink, fb *fakeBrowser, timeout time.Duration) *Broker {
	t.Helper()
	b := New(link, fb, timeout)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b
}

func TestRequestResolvesWithPeerReply(t *testing.T) {
	link := newFakeLink()
	b := startBroker(t, link, newFakeBrowser(), time.Second)

	go link.answer("GET_SAVED_TABS", json.RawMessage(`[{"id":"s1","url":"http://x","title":"X"}]`))

	raw, err := b.Request(context.Background(), "GET_SAVED_TABS", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var saved []map[string]string
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatalf("unexpected payload %s: %v", raw, err)
	}
	if len(saved) != 1 || saved[0]["id"] != "s1" {
		t.Fatalf("unexpected payload %s", raw)
	}
}

func TestRequestTimeoutThenLateReply(t *testing.T) {
	link := newFakeLink()
	b := startBroker(t, link, newFakeBrowser(), 50*time.Millisecond)

	_, err := b.Request(context.Background(), "GET_SAVED_TABS", nil)
	if !errors.Is(err, correlation.ErrRequestTimeout) {
		t.Fatalf("expect timeout error, got %v", err)
	}

	// a reply arriving after the timeout is a no-op, not a violation
	req := link.awaitRequest(t, "GET_SAVED_TABS")
	data, _ := json.Marshal(wire.Response{RequestID: req.ID, Payload: json.RawMessage(`null`)})
	link.inbox <- data

	time.Sleep(50 * time.Millisecond)
	if n := link.dropCount(); n != 0 {
		t.Fatalf("late reply must not drop the connection, got %d drops", n)
	}
}

func TestUnknownCorrelationDropsConnection(t *testing.T) {
	link := newFakeLink()
	startBroker(t, link, newFakeBrowser(), time.Second)

	data, _ := json.Marshal(wire.Response{RequestID: "never-issued", Payload: json.RawMessage(`null`)})
	link.inbox <- data

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if link.dropCount() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expect connection drop for unknown correlation id")
}

func TestMalformedMessageDropsConnection(t *testing.T) {
	link := newFakeLink()
	startBroker(t, link, newFakeBrowser(), time.Second)

	link.inbox <- []byte(`{"neither":"request","nor":"response"}`)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if link.dropCount() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expect connection drop for malformed message")
}

func TestUnhandledRequestGetsErrorReply(t *testing.T) {
	link := newFakeLink()
	startBroker(t, link, newFakeBrowser(), time.Second)

	data, _ := json.Marshal(wire.Request{ID: "r1", Name: "NO_SUCH_THING"})
	link.inbox <- data

	resp := link.awaitReply(t, "r1")
	var status StatusReply
	if err := json.Unmarshal(resp.Payload, &status); err != nil {
		t.Fatalf("unexpected reply payload %s: %v", resp.Payload, err)
	}
	if status.Status != "error" {
		t.Fatalf("expect error status, got %+v", status)
	}
}

func TestHandlerErrorBecomesErrorReply(t *testing.T) {
	link := newFakeLink()
	b := startBroker(t, link, newFakeBrowser(), time.Second)

	err := b.RegisterReqHandler("BOOM", func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		return nil, errors.New("it broke")
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	data, _ := json.Marshal(wire.Request{ID: "r2", Name: "BOOM"})
	link.inbox <- data

	resp := link.awaitReply(t, "r2")
	var status StatusReply
	if err := json.Unmarshal(resp.Payload, &status); err != nil {
		t.Fatalf("unexpected reply payload %s: %v", resp.Payload, err)
	}
	if status.Status != "error" || status.Message != "it broke" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestDuplicateHandlerKeepsFirst(t *testing.T) {
	link := newFakeLink()
	b := startBroker(t, link, newFakeBrowser(), time.Second)

	first := func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		return "first", nil
	}
	second := func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		return "second", nil
	}

	if err := b.RegisterReqHandler("PING", first); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := b.RegisterReqHandler("PING", second); !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expect ErrDuplicateHandler, got %v", err)
	}

	data, _ := json.Marshal(wire.Request{ID: "r3", Name: "PING"})
	link.inbox <- data

	resp := link.awaitReply(t, "r3")
	var got string
	if err := json.Unmarshal(resp.Payload, &got); err != nil || got != "first" {
		t.Fatalf("expect first handler to answer, got %s", resp.Payload)
	}
}

type recordingApp struct {
	mu     sync.Mutex
	inited bool
}

func (a *recordingApp) Name() string { return "recorder" }

func (a *recordingApp) Init(ctx context.Context, b *Broker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inited = true
	return nil
}

func TestEnableAppViaRequest(t *testing.T) {
	link := newFakeLink()
	b := startBroker(t, link, newFakeBrowser(), time.Second)

	app := &recordingApp{}
	b.RegisterApp(app)

	data, _ := json.Marshal(wire.Request{ID: "r4", Name: "ENABLE_APP", Payload: json.RawMessage(`"recorder"`)})
	link.inbox <- data

	resp := link.awaitReply(t, "r4")
	var status StatusReply
	if err := json.Unmarshal(resp.Payload, &status); err != nil || status.Status != "ok" {
		t.Fatalf("expect ok status, got %s", resp.Payload)
	}

	app.mu.Lock()
	inited := app.inited
	app.mu.Unlock()
	if !inited {
		t.Fatal("app was not initialized")
	}

	data, _ = json.Marshal(wire.Request{ID: "r5", Name: "ENABLE_APP", Payload: json.RawMessage(`"no-such-app"`)})
	link.inbox <- data

	resp = link.awaitReply(t, "r5")
	if err := json.Unmarshal(resp.Payload, &status); err != nil || status.Status != "error" {
		t.Fatalf("expect error status for unknown app, got %s", resp.Payload)
	}
}

func TestReconcileLinksTabs(t *testing.T) {
	link := newFakeLink()
	fb := newFakeBrowser(
		browser.TabInfo{ID: 1, URL: "http://a", Title: "A"},
		browser.TabInfo{ID: 2, URL: "http://a", Title: "A again"},
		browser.TabInfo{ID: 3, URL: "http://b", Title: "B"},
	)
	b := startBroker(t, link, fb, time.Second)

	go link.answer("GET_SAVED_TABS",
		json.RawMessage(`[{"id":"s1","url":"http://a","title":"A"},{"id":"s2","url":"http://b","title":"B"}]`))

	if err := b.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	s := b.State()
	if got := s.OpenTabs[1].SavedTabID; got != "s1" {
		t.Fatalf("tab 1 should link to s1, got %q", got)
	}
	if got := s.OpenTabs[2].SavedTabID; got != "" {
		t.Fatalf("tab 2 should stay unlinked, got %q", got)
	}
	if got := s.OpenTabs[3].SavedTabID; got != "s2" {
		t.Fatalf("tab 3 should link to s2, got %q", got)
	}
	if len(s.SavedTabs) != 2 {
		t.Fatalf("expect 2 saved tabs, got %d", len(s.SavedTabs))
	}
}

func TestNewStatePublishesSnapshot(t *testing.T) {
	link := newFakeLink()
	b := startBroker(t, link, newFakeBrowser(), time.Second)

	published := make(chan interface{}, 1)
	b.Subscribe(EventNewState, func(payload interface{}) {
		published <- payload
	})

	before := b.State()
	b.NewState(func(s *state.State) {
		s.OpenTabs[7] = state.OpenTab{ID: 7, URL: "http://seven"}
	}, "test")

	select {
	case payload := <-published:
		snap, ok := payload.(*state.State)
		if !ok {
			t.Fatalf("unexpected payload type %T", payload)
		}
		if _, ok := snap.OpenTabs[7]; !ok {
			t.Fatal("published snapshot misses the mutation")
		}
	case <-time.After(time.Second):
		t.Fatal("no state event was published")
	}

	if b.State() == before {
		t.Fatal("snapshot pointer was not replaced")
	}
	if _, ok := before.OpenTabs[7]; ok {
		t.Fatal("old snapshot was mutated in place")
	}
}
