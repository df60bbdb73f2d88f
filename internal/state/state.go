// Package state holds the broker's shared view of browser tabs and
// editor-saved tabs. Snapshots are replaced wholesale, never mutated in
// place, so readers can never observe a torn update.
package state

import "encoding/json"

// OpenTab is a tab currently open in the browser. The browser-assigned id
// is unique for the life of the browser process only.
type OpenTab struct {
	ID         int    `json:"id"`
	WindowID   int    `json:"windowId,omitempty"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	SavedTabID string `json:"savedTabId,omitempty"`
}

// SavedTab is a tab persisted by the editor. Its id is editor-assigned and
// survives browser restarts. Meta carries editor-side data the broker
// never interprets.
type SavedTab struct {
	ID    string          `json:"id"`
	URL   string          `json:"url"`
	Title string          `json:"title"`
	Meta  json.RawMessage `json:"meta,omitempty"`
}

// State is one immutable snapshot. SavingTabs marks tabs whose save
// request is in flight; it is transient and survives reconciliation.
type State struct {
	OpenTabs   map[int]OpenTab
	SavedTabs  map[string]SavedTab
	SavingTabs map[int]struct{}
}

func New() *State {
	return &State{
		OpenTabs:   make(map[int]OpenTab),
		SavedTabs:  make(map[string]SavedTab),
		SavingTabs: make(map[int]struct{}),
	}
}

// Clone deep-copies the snapshot so a mutation pass can build the next
// state without disturbing current readers.
func (s *State) Clone() *State {
	next := &State{
		OpenTabs:   make(map[int]OpenTab, len(s.OpenTabs)),
		SavedTabs:  make(map[string]SavedTab, len(s.SavedTabs)),
		SavingTabs: make(map[int]struct{}, len(s.SavingTabs)),
	}
	for id, tab := range s.OpenTabs {
		next.OpenTabs[id] = tab
	}
	for id, tab := range s.SavedTabs {
		next.SavedTabs[id] = tab
	}
	for id := range s.SavingTabs {
		next.SavingTabs[id] = struct{}{}
	}
	return next
}
