package model

import (
	"cmp"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Token is a fixed-width opaque name identifier.
type Token uint32

// TokenOf derives the token for name. The mapping is stable across processes,
// so a client holding the same names can resolve tokens without asking.
func TokenOf(name string) Token {
	return Token(xxhash.Sum64String(name))
}

// Dictionary maps tokens back to the names they were derived from.
// It is safe for concurrent use.
type Dictionary struct {
	mu    sync.RWMutex
	names map[Token]string
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{names: make(map[Token]string)}
}

// Register records name and returns its token.
func (d *Dictionary) Register(name string) Token {
	t := TokenOf(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[t] = name
	return t
}

// Lookup returns the name registered for t.
func (d *Dictionary) Lookup(t Token) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[t]
	return name, ok
}

// Entry is one token/name pair of a dictionary.
type Entry struct {
	Token Token  `json:"token"`
	Name  string `json:"name"`
}

// Entries returns the dictionary content ordered by name.
func (d *Dictionary) Entries() []Entry {
	d.mu.RLock()
	entries := make([]Entry, 0, len(d.names))
	for t, name := range d.names {
		entries = append(entries, Entry{Token: t, Name: name})
	}
	d.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return entries
}
