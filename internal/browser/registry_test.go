package browser

import "testing"

func TestRegistrySnapshotReplacesEverything(t *testing.T) {
	r := NewRegistry()
	r.Upsert(TabInfo{ID: 9, URL: "old"})

	r.ApplySnapshot([]TabInfo{
		{ID: 1, URL: "a"},
		{ID: 2, URL: "b", Active: true},
	})

	tabs := r.Tabs()
	if len(tabs) != 2 {
		t.Fatalf("Expected 2 tabs after snapshot, got %d", len(tabs))
	}
	if tabs[0].ID != 1 || tabs[1].ID != 2 {
		t.Errorf("Expected tabs ordered by id, got %v", tabs)
	}
	active, ok := r.ActiveTab()
	if !ok || active.ID != 2 {
		t.Errorf("Expected tab 2 active, got %v (ok=%v)", active, ok)
	}
}

func TestRegistryRemoveClearsActive(t *testing.T) {
	r := NewRegistry()
	r.ApplySnapshot([]TabInfo{{ID: 1, URL: "a", Active: true}})

	r.Remove(1)

	if len(r.Tabs()) != 0 {
		t.Error("Expected empty registry after remove")
	}
	if _, ok := r.ActiveTab(); ok {
		t.Error("Expected no active tab after removing it")
	}
}

func TestRegistryActivateUnknownTab(t *testing.T) {
	r := NewRegistry()
	r.ApplySnapshot([]TabInfo{{ID: 1, URL: "a", Active: true}})

	r.Activate(42) // unknown id must not steal focus

	active, ok := r.ActiveTab()
	if !ok || active.ID != 1 {
		t.Errorf("Expected tab 1 to stay active, got %v (ok=%v)", active, ok)
	}
}
