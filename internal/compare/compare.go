// Package compare keeps the client-local product comparison list.
package compare

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	StorageKey = "compareList"
	MaxItems   = 4
)

var (
	ErrListFull          = errors.New("compare list is full")
	ErrNotEnoughProducts = errors.New("at least two products are required to compare")
	ErrEmptyID           = errors.New("product id is required")
)

// KeyValueStore is the local persistent storage the list is saved to.
// Writers do not coordinate; the last Set wins.
type KeyValueStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// List is an ordered set of at most MaxItems product ids. The zero value is empty.
type List struct {
	ids []string
}

func NewList(ids ...string) (*List, error) {
	l := &List{}
	for _, id := range ids {
		if l.Contains(id) {
			continue
		}
		if err := l.add(id); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *List) IDs() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

func (l *List) Len() int { return len(l.ids) }

func (l *List) Contains(id string) bool {
	for _, v := range l.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (l *List) add(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(l.ids) >= MaxItems {
		return ErrListFull
	}
	l.ids = append(l.ids, id)
	return nil
}

// Toggle removes id when present and appends it otherwise. It reports
// whether id is in the list afterwards. A full list is left unchanged.
func (l *List) Toggle(id string) (bool, error) {
	for i, v := range l.ids {
		if v == id {
			l.ids = append(l.ids[:i:i], l.ids[i+1:]...)
			return false, nil
		}
	}
	if err := l.add(id); err != nil {
		return false, err
	}
	return true, nil
}

func (l *List) Clear() { l.ids = nil }

// ComparisonQuery renders the query string of the comparison page.
func (l *List) ComparisonQuery() (string, error) {
	if len(l.ids) < 2 {
		return "", ErrNotEnoughProducts
	}
	return "ids=" + strings.Join(l.ids, ","), nil
}

// Load reads the list saved under StorageKey. Missing, corrupt or oversized
// data yields an empty list.
func Load(store KeyValueStore) *List {
	raw, ok := store.Get(StorageKey)
	if !ok || raw == "" {
		return &List{}
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		log.Warn().Err(err).Msg("compare: discarding corrupt stored list")
		return &List{}
	}

	l, err := NewList(ids...)
	if err != nil {
		log.Warn().Err(err).Int("stored", len(ids)).Msg("compare: discarding invalid stored list")
		return &List{}
	}
	return l
}

func Save(store KeyValueStore, l *List) error {
	data, err := json.Marshal(l.IDs())
	if err != nil {
		return err
	}
	return store.Set(StorageKey, string(data))
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}
