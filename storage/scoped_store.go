package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/teams-collab/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Scope partitions scoped values.
type Scope string

const (
	ScopeUser         Scope = "user"
	ScopeConversation Scope = "conversation"
)

// ParseScope validates s.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeUser, ScopeConversation:
		return Scope(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// AnyVersion forces a write regardless of the current version.
const AnyVersion = "*"

// Ref identifies the scope entities of one request.
type Ref struct {
	UserID         string
	ConversationID string
}

// Value is a scoped value as returned to callers.
type Value struct {
	Value   json.RawMessage `json:"value"`
	Version string          `json:"version"`
}

// Values holds both scopes of one Ref.
type Values struct {
	User         map[string]Value `json:"user"`
	Conversation map[string]Value `json:"conversation"`
}

// Change is a requested write of one key. An empty or AnyVersion Version
// overwrites unconditionally.
type Change struct {
	Value   json.RawMessage
	Version string
}

// SetResult reports the outcome of a Set batch per key.
type SetResult struct {
	Applied   map[string]Value
	Conflicts map[string]*ConflictError
}

// Err returns the first conflict in key order, or nil.
func (r *SetResult) Err() error {
	if len(r.Conflicts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Conflicts))
	for k := range r.Conflicts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return r.Conflicts[keys[0]]
}

// Listener observes every successful write.
type Listener func(ref Ref, scope Scope, key string, value Value)

// ScopedStore is the user/conversation scoped key-value store shared by
// the bot and the bridge.
//
// Writes are optimistic. The last version this process observed for a key
// is kept in a local cache and checked before the persisted version. The
// check and the write are separate steps, so two processes writing the same
// document concurrently can both pass the check; the later write wins.
type ScopedStore struct {
	backend   Storage
	channelID string
	botID     string
	versions  *ttlcache.Cache[string, string]

	mu        sync.RWMutex
	listeners []Listener
}

// NewScopedStore creates a ScopedStore over backend. versionTTL bounds how
// long locally observed versions are remembered.
func NewScopedStore(backend Storage, channelID, botID string, versionTTL time.Duration) *ScopedStore {
	if versionTTL <= 0 {
		versionTTL = time.Hour
	}
	versions := ttlcache.New(
		ttlcache.WithTTL[string, string](versionTTL),
	)
	go versions.Start()

	return &ScopedStore{
		backend:   backend,
		channelID: channelID,
		botID:     botID,
		versions:  versions,
	}
}

// Close stops the version cache.
func (s *ScopedStore) Close() {
	s.versions.Stop()
}

// OnChange registers l for every successful write.
func (s *ScopedStore) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// StorageKey returns the storage key of scope for ref. User and
// conversation keys never collide.
func (s *ScopedStore) StorageKey(ref Ref, scope Scope) (string, error) {
	var segment, id string
	switch scope {
	case ScopeUser:
		segment, id = "users", ref.UserID
	case ScopeConversation:
		segment, id = "conversations", ref.ConversationID
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingID, scope)
	}
	return fmt.Sprintf("%s/%s/%s/%s", s.channelID, s.botID, segment, id), nil
}

// Get returns both scopes of ref. Absent documents yield empty maps. A scope
// whose id is empty is returned empty.
func (s *ScopedStore) Get(ctx context.Context, ref Ref) (*Values, error) {
	out := &Values{User: map[string]Value{}, Conversation: map[string]Value{}}

	keys := make(map[Scope]string, 2)
	var lookup []string
	for _, scope := range []Scope{ScopeUser, ScopeConversation} {
		key, err := s.StorageKey(ref, scope)
		if errors.Is(err, ErrMissingID) {
			continue
		}
		if err != nil {
			return nil, err
		}
		keys[scope] = key
		lookup = append(lookup, key)
	}
	if len(lookup) == 0 {
		return out, nil
	}

	items, err := s.backend.Read(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("read scoped values: %w", err)
	}

	for scope, key := range keys {
		target := out.User
		if scope == ScopeConversation {
			target = out.Conversation
		}
		item, ok := items[key]
		if !ok || item == nil {
			continue
		}
		for k, e := range item.Values {
			target[k] = Value{Value: e.Value, Version: e.Version}
			s.versions.Set(versionKey(key, k), e.Version, ttlcache.DefaultTTL)
		}
	}
	return out, nil
}

// Set applies changes to scope. Each key is checked on its own: a stale
// version rejects that key only and the others are still written.
func (s *ScopedStore) Set(ctx context.Context, ref Ref, scope Scope, changes map[string]Change) (*SetResult, error) {
	storageKey, err := s.StorageKey(ref, scope)
	if err != nil {
		return nil, err
	}

	items, err := s.backend.Read(ctx, []string{storageKey})
	if err != nil {
		return nil, fmt.Errorf("read scoped values: %w", err)
	}
	item := items[storageKey]
	if item == nil {
		item = &StoreItem{}
	}
	if item.Values == nil {
		item.Values = map[string]Entry{}
	}

	result := &SetResult{Applied: map[string]Value{}, Conflicts: map[string]*ConflictError{}}
	for key, change := range changes {
		known := s.knownVersion(storageKey, key, item)
		if change.Version != "" && change.Version != AnyVersion && known != "" && change.Version != known {
			result.Conflicts[key] = &ConflictError{Key: key, Expected: change.Version, Actual: known}
			metrics.ScopedValueConflictsTotal.Inc()
			continue
		}
		entry := Entry{Value: change.Value, Version: uuid.NewString()}
		item.Values[key] = entry
		result.Applied[key] = Value{Value: entry.Value, Version: entry.Version}
	}

	if len(result.Applied) == 0 {
		return result, nil
	}
	if err := s.backend.Write(ctx, map[string]*StoreItem{storageKey: item}); err != nil {
		return nil, fmt.Errorf("write scoped values: %w", err)
	}

	for key, v := range result.Applied {
		s.versions.Set(versionKey(storageKey, key), v.Version, ttlcache.DefaultTTL)
	}
	s.notify(ref, scope, result.Applied)
	return result, nil
}

// Delete removes every value of scope for ref, persisted and cached.
func (s *ScopedStore) Delete(ctx context.Context, ref Ref, scope Scope) error {
	storageKey, err := s.StorageKey(ref, scope)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, []string{storageKey}); err != nil {
		return fmt.Errorf("delete scoped values: %w", err)
	}

	prefix := storageKey + "\x00"
	for _, k := range s.versions.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.versions.Delete(k)
		}
	}
	return nil
}

func (s *ScopedStore) knownVersion(storageKey, key string, item *StoreItem) string {
	if cached := s.versions.Get(versionKey(storageKey, key)); cached != nil {
		return cached.Value()
	}
	return item.Values[key].Version
}

func (s *ScopedStore) notify(ref Ref, scope Scope, applied map[string]Value) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for key, v := range applied {
		for _, l := range listeners {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Str("key", key).Msg("scoped value listener panicked")
					}
				}()
				l(ref, scope, key, v)
			}()
		}
	}
}

func versionKey(storageKey, key string) string {
	return storageKey + "\x00" + key
}
