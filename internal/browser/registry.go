package browser

import (
	"sort"
	"sync"
)

// Registry is the live view of open tabs, rebuilt from the extension's
// snapshot on connect and patched by incremental events afterwards.
type Registry struct {
	mu     sync.RWMutex
	tabs   map[int]TabInfo
	active int
}

func NewRegistry() *Registry {
	return &Registry{
		tabs: make(map[int]TabInfo),
	}
}

func (r *Registry) ApplySnapshot(tabs []TabInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs = make(map[int]TabInfo, len(tabs))
	r.active = 0
	for _, tab := range tabs {
		r.tabs[tab.ID] = tab
		if tab.Active {
			r.active = tab.ID
		}
	}
}

func (r *Registry) Upsert(tab TabInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs[tab.ID] = tab
	if tab.Active {
		r.active = tab.ID
	}
}

func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, id)
	if r.active == id {
		r.active = 0
	}
}

func (r *Registry) Activate(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[id]; ok {
		r.active = id
	}
}

// Tabs returns the open tabs ordered by browser tab id, so enumeration
// order is stable between calls.
func (r *Registry) Tabs() []TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tabs := make([]TabInfo, 0, len(r.tabs))
	for _, tab := range r.tabs {
		tabs = append(tabs, tab)
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs
}

func (r *Registry) ActiveTab() (TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tab, ok := r.tabs[r.active]
	return tab, ok
}
