package state

// Reconcile merges the browser's live tabs with the editor's saved tabs.
// The browser has no native notion of "this tab is that saved entry", so
// identity is inferred by URL: each open tab, in enumeration order, claims
// the first unclaimed saved tab with an equal URL. Ties between tabs with
// the same URL are therefore broken by iteration order — deterministic,
// but arbitrary with respect to which concrete tab wins.
func Reconcile(open []OpenTab, saved []SavedTab) (map[int]OpenTab, map[string]SavedTab) {
	claimed := make(map[string]struct{}, len(saved))

	openTabs := make(map[int]OpenTab, len(open))
	for _, tab := range open {
		tab.SavedTabID = ""
		for _, savedTab := range saved {
			if _, taken := claimed[savedTab.ID]; taken {
				continue
			}
			if savedTab.URL == tab.URL {
				claimed[savedTab.ID] = struct{}{}
				tab.SavedTabID = savedTab.ID
				break
			}
		}
		openTabs[tab.ID] = tab
	}

	savedTabs := make(map[string]SavedTab, len(saved))
	for _, savedTab := range saved {
		savedTabs[savedTab.ID] = savedTab
	}
	return openTabs, savedTabs
}
