package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
	"github.com/spookfox-dev/spookfox-go-broker/internal/state"
)

const reqGetSavedTabs = "GET_SAVED_TABS"

// Reconcile rebuilds the shared tab state from scratch: the editor's saved
// tabs on one side, the browser's live tabs on the other. It runs once per
// connected transition; it is a full pass, never incremental.
func (b *Broker) Reconcile(ctx context.Context) error {
	raw, err := b.Request(ctx, reqGetSavedTabs, nil)
	if err != nil {
		return fmt.Errorf("unable to fetch saved tabs: %w", err)
	}

	var saved []state.SavedTab
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &saved); err != nil {
			return fmt.Errorf("unable to parse saved tabs: %w", err)
		}
	}

	tabs := b.browser.Tabs()
	open := make([]state.OpenTab, 0, len(tabs))
	for _, tab := range tabs {
		open = append(open, state.OpenTab{
			ID:       tab.ID,
			WindowID: tab.WindowID,
			URL:      tab.URL,
			Title:    tab.Title,
		})
	}

	openTabs, savedTabs := state.Reconcile(open, saved)
	b.NewState(func(s *state.State) {
		s.OpenTabs = openTabs
		s.SavedTabs = savedTabs
	}, "reconcile")

	logger.InfoF("Reconciled %d open tabs against %d saved tabs", len(openTabs), len(savedTabs))
	return nil
}
