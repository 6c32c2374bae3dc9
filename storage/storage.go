// Package storage holds the raw key/document storage used for scoped
// values and the ScopedStore built on top of it.
package storage

import (
	"context"
	"encoding/json"
)

// Entry is one scoped value and the version stamped on its last write.
type Entry struct {
	Value   json.RawMessage `json:"value"`
	Version string          `json:"version"`
}

// StoreItem is the document persisted under one storage key.
type StoreItem struct {
	Values map[string]Entry `json:"values"`
}

// Clone returns a deep copy of the item.
func (i *StoreItem) Clone() *StoreItem {
	if i == nil {
		return nil
	}
	out := &StoreItem{Values: make(map[string]Entry, len(i.Values))}
	for k, v := range i.Values {
		out.Values[k] = Entry{Value: append(json.RawMessage(nil), v.Value...), Version: v.Version}
	}
	return out
}

// Storage is a raw document store addressed by string keys. Writes replace
// the whole document; the last writer wins.
type Storage interface {
	// Read returns the items that exist. Missing keys are absent from the
	// result, not an error.
	Read(ctx context.Context, keys []string) (map[string]*StoreItem, error)
	Write(ctx context.Context, items map[string]*StoreItem) error
	Delete(ctx context.Context, keys []string) error
}
