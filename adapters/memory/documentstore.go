// Package memory provides an in-memory document store for development and
// tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dapp-works/urpc/ports"
)

// DocumentStore is an in-memory implementation of ports.DocumentStore.
// Documents are kept in their JSON encoding so callers never share memory
// with the store.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string][]byte),
	}
}

// Get retrieves the document at key.
func (s *DocumentStore) Get(ctx context.Context, key string) (any, error) {
	s.mu.RLock()
	raw, ok := s.docs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ports.ErrNotFound
	}
	return decode(raw)
}

// Put stores doc at key.
func (s *DocumentStore) Put(ctx context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key] = raw
	return nil
}

// Update replaces the document at key with fn's result under the store lock.
func (s *DocumentStore) Update(ctx context.Context, key string, fn func(doc any) (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current any
	if raw, ok := s.docs[key]; ok {
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		current = doc
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	s.docs[key] = raw
	return decode(raw)
}

// Delete removes the document at key.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, key)
	return nil
}

// Keys lists stored keys in ascending order.
func (s *DocumentStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func decode(raw []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocumentStore)(nil)
