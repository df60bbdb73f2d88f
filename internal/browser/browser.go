// Package browser is the broker's window onto the running browser. The
// extension connects to a local WebSocket endpoint and feeds it a tab
// snapshot plus incremental events; the broker reads the resulting live
// registry and never talks to the browser directly.
package browser

// TabInfo describes one open browser tab.
type TabInfo struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId,omitempty"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Active   bool   `json:"active,omitempty"`
}

type EventType byte

const (
	SnapshotReceived EventType = iota // full tab list replaced
	TabCreated
	TabUpdated
	TabRemoved
	TabActivated
	UserAction // user asked for something through the extension UI
)

var EventTypeMap = map[EventType]string{
	SnapshotReceived: "SNAPSHOT",
	TabCreated:       "TAB_CREATED",
	TabUpdated:       "TAB_UPDATED",
	TabRemoved:       "TAB_REMOVED",
	TabActivated:     "TAB_ACTIVATED",
	UserAction:       "USER_ACTION",
}

func (eventType EventType) String() string {
	return EventTypeMap[eventType]
}

// Event is one change reported by the extension. Tab is set for created
// and updated events, TabID for removed/activated/user-action events.
type Event struct {
	Type   EventType
	Tab    *TabInfo
	TabID  int
	Action string
}

// Browser is the capability interface handed to the broker and apps.
type Browser interface {
	Tabs() []TabInfo
	ActiveTab() (TabInfo, bool)
	Events() <-chan Event
	OpenTab(url string) error
}
