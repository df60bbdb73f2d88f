// Package tabs is the stock app that keeps the shared tab state current:
// it mirrors browser tab events into the broker's state, answers the
// editor's tab queries, and drives save/unsave requests for user actions.
package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/spookfox-dev/spookfox-go-broker/internal/broker"
	"github.com/spookfox-dev/spookfox-go-broker/internal/browser"
	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
	"github.com/spookfox-dev/spookfox-go-broker/internal/state"
)

const (
	reqSaveTab        = "SAVE_TAB"
	reqRemoveSavedTab = "REMOVE_SAVED_TAB"
	reqGetActiveTab   = "GET_ACTIVE_TAB"
	reqGetAllTabs     = "GET_ALL_TABS"
	reqOpenTab        = "OPEN_TAB"
)

type App struct {
	broker  *broker.Broker
	browser browser.Browser

	mu     sync.Mutex
	saving map[int]*pendingSave
}

// pendingSave marks a save in flight. closed notes a close event that
// arrived mid-save and must be replayed once the save resolves; without
// it, a tab auto-closed right after creation would slip past cleanup.
type pendingSave struct {
	closed bool
}

func New(br browser.Browser) *App {
	return &App{
		browser: br,
		saving:  make(map[int]*pendingSave),
	}
}

func (a *App) Name() string { return "tabs" }

func (a *App) Init(ctx context.Context, b *broker.Broker) error {
	a.broker = b
	if err := b.RegisterReqHandler(reqGetActiveTab, a.handleGetActiveTab); err != nil {
		return err
	}
	if err := b.RegisterReqHandler(reqGetAllTabs, a.handleGetAllTabs); err != nil {
		return err
	}
	if err := b.RegisterReqHandler(reqOpenTab, a.handleOpenTab); err != nil {
		return err
	}
	go a.watch(ctx)
	return nil
}

func (a *App) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.browser.Events():
			if !ok {
				return
			}
			a.handleEvent(ctx, ev)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, ev browser.Event) {
	switch ev.Type {
	case browser.SnapshotReceived:
		a.rebuildOpenTabs()
	case browser.TabCreated, browser.TabUpdated:
		if ev.Tab != nil {
			a.upsertOpenTab(*ev.Tab)
		}
	case browser.TabRemoved:
		a.removeTab(ev.TabID)
	case browser.TabActivated:
		// the registry tracks focus; nothing to mirror into state
	case browser.UserAction:
		// saves await the editor's reply, keep the event loop free
		go a.handleUserAction(ctx, ev)
	}
}

func (a *App) rebuildOpenTabs() {
	tabs := a.browser.Tabs()
	a.broker.NewState(func(s *state.State) {
		next := make(map[int]state.OpenTab, len(tabs))
		for _, tab := range tabs {
			open := state.OpenTab{
				ID:       tab.ID,
				WindowID: tab.WindowID,
				URL:      tab.URL,
				Title:    tab.Title,
			}
			if prev, ok := s.OpenTabs[tab.ID]; ok {
				open.SavedTabID = prev.SavedTabID
			}
			next[tab.ID] = open
		}
		s.OpenTabs = next
	}, "browser-snapshot")
}

func (a *App) upsertOpenTab(tab browser.TabInfo) {
	a.broker.NewState(func(s *state.State) {
		open := state.OpenTab{
			ID:       tab.ID,
			WindowID: tab.WindowID,
			URL:      tab.URL,
			Title:    tab.Title,
		}
		// the saved-tab link follows the tab, not the URL
		if prev, ok := s.OpenTabs[tab.ID]; ok {
			open.SavedTabID = prev.SavedTabID
		}
		s.OpenTabs[tab.ID] = open
	}, "tab-upsert")
}

func (a *App) removeTab(tabID int) {
	a.mu.Lock()
	if entry, ok := a.saving[tabID]; ok {
		// close raced with an in-flight save; cleanup happens when the
		// save resolves
		entry.closed = true
		a.mu.Unlock()
		logger.DebugF("Tab %d closed mid-save, deferring cleanup", tabID)
		return
	}
	a.mu.Unlock()

	a.broker.NewState(func(s *state.State) {
		delete(s.OpenTabs, tabID)
	}, "tab-removed")
}

func (a *App) handleUserAction(ctx context.Context, ev browser.Event) {
	switch ev.Action {
	case "save_tab":
		a.saveTab(ctx, ev.TabID)
	case "remove_tab":
		a.removeSavedTab(ctx, ev.TabID)
	default:
		logger.WarnF("Unknown user action %q for tab %d", ev.Action, ev.TabID)
	}
}

// saveTab asks the editor to persist one open tab. At most one save per
// tab id is ever in flight.
func (a *App) saveTab(ctx context.Context, tabID int) {
	tab, ok := a.broker.State().OpenTabs[tabID]
	if !ok {
		logger.WarnF("Cannot save unknown tab %d", tabID)
		return
	}

	a.mu.Lock()
	if _, inFlight := a.saving[tabID]; inFlight {
		a.mu.Unlock()
		return
	}
	entry := &pendingSave{}
	a.saving[tabID] = entry
	a.mu.Unlock()

	a.broker.NewState(func(s *state.State) {
		s.SavingTabs[tabID] = struct{}{}
	}, "save-start")

	raw, err := a.broker.Request(ctx, reqSaveTab, tab)

	var saved state.SavedTab
	if err == nil {
		if uerr := json.Unmarshal(raw, &saved); uerr != nil {
			err = uerr
		}
	}

	a.mu.Lock()
	closed := entry.closed
	delete(a.saving, tabID)
	a.mu.Unlock()

	if err != nil {
		logger.ErrorF("Fail to save tab %d, details: %v", tabID, err)
		a.broker.NewState(func(s *state.State) {
			delete(s.SavingTabs, tabID)
			if closed {
				delete(s.OpenTabs, tabID)
			}
		}, "save-failed")
		return
	}

	a.broker.NewState(func(s *state.State) {
		delete(s.SavingTabs, tabID)
		s.SavedTabs[saved.ID] = saved
		if closed {
			delete(s.OpenTabs, tabID)
			return
		}
		if open, ok := s.OpenTabs[tabID]; ok {
			open.SavedTabID = saved.ID
			s.OpenTabs[tabID] = open
		}
	}, "save-done")
}

func (a *App) removeSavedTab(ctx context.Context, tabID int) {
	tab, ok := a.broker.State().OpenTabs[tabID]
	if !ok || tab.SavedTabID == "" {
		logger.WarnF("Tab %d has no saved entry to remove", tabID)
		return
	}

	if _, err := a.broker.Request(ctx, reqRemoveSavedTab, tab.SavedTabID); err != nil {
		logger.ErrorF("Fail to remove saved tab %s, details: %v", tab.SavedTabID, err)
		return
	}

	a.broker.NewState(func(s *state.State) {
		delete(s.SavedTabs, tab.SavedTabID)
		if open, ok := s.OpenTabs[tabID]; ok {
			open.SavedTabID = ""
			s.OpenTabs[tabID] = open
		}
	}, "saved-tab-removed")
}

func (a *App) handleGetActiveTab(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	tab, ok := a.browser.ActiveTab()
	if !ok {
		return nil, errors.New("no active tab")
	}
	return tab, nil
}

func (a *App) handleGetAllTabs(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	return a.browser.Tabs(), nil
}

func (a *App) handleOpenTab(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.URL == "" {
		return nil, errors.New("OPEN_TAB payload must carry a url")
	}
	if err := a.browser.OpenTab(req.URL); err != nil {
		return nil, err
	}
	return broker.StatusReply{Status: "ok"}, nil
}
