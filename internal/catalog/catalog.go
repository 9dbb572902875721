// Package catalog maintains the deduplicated guild id → name mapping
// accumulated across enumeration runs, and resolves user-supplied
// leave entries against it.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/valeria-popova/guildmgr/internal/discord"
)

// Catalog maps guild identifier to display name. Safe for concurrent
// use; the last writer for an identifier wins the name. An empty
// identifier is never stored.
type Catalog struct {
	mu   sync.RWMutex
	byID map[string]string
}

func New() *Catalog {
	return &Catalog{byID: make(map[string]string)}
}

// Merge folds freshly enumerated guilds into the catalog.
func (c *Catalog) Merge(guilds []discord.Guild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range guilds {
		id := strings.TrimSpace(g.ID)
		if id == "" {
			continue
		}
		c.byID[id] = strings.TrimSpace(g.Name)
	}
}

// Put inserts a single entry; empty identifiers are dropped.
func (c *Catalog) Put(id, name string) {
	c.Merge([]discord.Guild{{ID: id, Name: name}})
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Name returns the display name for an identifier.
func (c *Catalog) Name(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byID[id]
	return name, ok
}

// Sorted returns all entries ordered by name, case-insensitively.
func (c *Catalog) Sorted() []discord.Guild {
	c.mu.RLock()
	out := make([]discord.Guild, 0, len(c.byID))
	for id, name := range c.byID {
		out = append(out, discord.Guild{ID: id, Name: name})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Resolve maps one leave-list entry to a concrete guild. Resolution
// order: a purely numeric entry longer than 15 characters is taken as a
// literal identifier with an unknown name; otherwise an exact name
// match wins; otherwise the first case-insensitive name match in
// catalog iteration order; otherwise the entry is unresolved.
func (c *Catalog) Resolve(entry string) (discord.Guild, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return discord.Guild{}, false
	}

	if len(entry) > 15 && isDigits(entry) {
		return discord.Guild{ID: entry, Name: "Unknown"}, true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, name := range c.byID {
		if name == entry {
			return discord.Guild{ID: id, Name: name}, true
		}
	}

	lower := strings.ToLower(entry)
	for id, name := range c.byID {
		if strings.ToLower(name) == lower {
			return discord.Guild{ID: id, Name: name}, true
		}
	}

	return discord.Guild{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
