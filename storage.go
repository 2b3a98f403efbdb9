/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/datastore/ddb"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/registry"
)

// TypedStores holds the entity stores of one type T under string names, for
// example one per table.
type TypedStores[T any] struct {
	mu     sync.RWMutex
	stores map[string]datastore.EntityStore[T]
}

// NewTypedStores creates an empty TypedStores for type T
func NewTypedStores[T any]() *TypedStores[T] {
	return &TypedStores[T]{
		stores: make(map[string]datastore.EntityStore[T]),
	}
}

// Register adds a store under name
func (ts *TypedStores[T]) Register(name string, store datastore.EntityStore[T]) error {
	if name == "" {
		return errors.NewValidationError("name", "store name is required")
	}
	if store == nil {
		return errors.NewValidationError("store", "store is nil")
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, exists := ts.stores[name]; exists {
		var zero T
		return errors.NewConflictError(fmt.Sprintf("store of %T", zero), name)
	}
	ts.stores[name] = store
	return nil
}

// Get returns the store registered under name
func (ts *TypedStores[T]) Get(name string) (datastore.EntityStore[T], error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	store, exists := ts.stores[name]
	if !exists {
		var zero T
		return nil, errors.NewNotFoundError(fmt.Sprintf("store of %T", zero), name)
	}
	return store, nil
}

// Remove unregisters the store under name
func (ts *TypedStores[T]) Remove(name string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, exists := ts.stores[name]; !exists {
		var zero T
		return errors.NewNotFoundError(fmt.Sprintf("store of %T", zero), name)
	}
	delete(ts.stores, name)
	return nil
}

// Names returns the registered store names in sorted order
func (ts *TypedStores[T]) Names() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	names := make([]string, 0, len(ts.stores))
	for name := range ts.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stores keeps a TypedStores per entity type, so one value can carry the
// stores of every type an application persists.
type Stores struct {
	mu    sync.Mutex
	typed map[reflect.Type]any
}

// NewStores creates an empty Stores
func NewStores() *Stores {
	return &Stores{
		typed: make(map[reflect.Type]any),
	}
}

// TypedStoresOf returns the TypedStores for T, creating it on first use
func TypedStoresOf[T any](s *Stores) *TypedStores[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	typ := reflect.TypeOf((*T)(nil)).Elem()
	if ts, exists := s.typed[typ]; exists {
		return ts.(*TypedStores[T])
	}
	ts := NewTypedStores[T]()
	s.typed[typ] = ts
	return ts
}

// Register adds store for T under name
func Register[T any](s *Stores, name string, store datastore.EntityStore[T]) error {
	return TypedStoresOf[T](s).Register(name, store)
}

// Get returns the store for T registered under name
func Get[T any](s *Stores, name string) (datastore.EntityStore[T], error) {
	return TypedStoresOf[T](s).Get(name)
}

// Remove unregisters the store for T under name
func Remove[T any](s *Stores, name string) error {
	return TypedStoresOf[T](s).Remove(name)
}

// Names lists the store names registered for T
func Names[T any](s *Stores) []string {
	return TypedStoresOf[T](s).Names()
}

// Open builds a DynamoDB store for T from cfg and registers it under the
// schema's name. A nil schema uses the one registered for T.
func Open[T any](ctx context.Context, s *Stores, cfg *config.Config, schema *registry.Schema[T], opts ...ddb.Option) (*ddb.DynamodbDataStore[T], error) {
	store, err := ddb.NewFromConfig(ctx, cfg, schema, opts...)
	if err != nil {
		return nil, err
	}
	if err := Register[T](s, store.Schema().Name(), store); err != nil {
		return nil, err
	}
	return store, nil
}
