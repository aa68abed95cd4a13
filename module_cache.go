package asmref

import (
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// ModuleCache maps loaded modules back to the Loader that produced them.
//
// Entries are weak: a Module holds its Loader, and the entry disappears
// once the Module is garbage collected. There is no eviction API.
type ModuleCache struct {
	mu      sync.Mutex
	entries map[weak.Pointer[Module]]weak.Pointer[Loader]
}

// NewModuleCache creates an empty cache.
func NewModuleCache() *ModuleCache {
	return &ModuleCache{entries: make(map[weak.Pointer[Module]]weak.Pointer[Loader])}
}

// Register records that l produced m.
func (c *ModuleCache) Register(m *Module, l *Loader) error {
	key := weak.Make(m)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.ShortName())
	}
	c.entries[key] = weak.Make(l)
	runtime.AddCleanup(m, c.remove, key)
	return nil
}

// Lookup returns the Loader that produced m.
func (c *ModuleCache) Lookup(m *Module) (*Loader, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil module", ErrNotRegistered)
	}
	key := weak.Make(m)

	c.mu.Lock()
	wl, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, m.ShortName())
	}
	l := wl.Value()
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, m.ShortName())
	}
	return l, nil
}

// Len returns the number of live entries.
func (c *ModuleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ModuleCache) remove(key weak.Pointer[Module]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
