package cli

import "sync"

// nameTable maps connection identities to display names. Speaking events
// arrive on media goroutines while the event loop updates entries, so access
// is synchronized.
type nameTable struct {
	mu sync.RWMutex
	m  map[string]string
}

func newNameTable() *nameTable {
	return &nameTable{m: make(map[string]string)}
}

func (t *nameTable) set(identity, name string) {
	t.mu.Lock()
	t.m[identity] = name
	t.mu.Unlock()
}

func (t *nameTable) forget(identity string) {
	t.mu.Lock()
	delete(t.m, identity)
	t.mu.Unlock()
}

// lookup returns the display name for identity, or the identity itself for a
// peer with no recorded name.
func (t *nameTable) lookup(identity string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.m[identity]; ok {
		return name
	}
	return identity
}
