/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"reflect"
	"sync"
)

// schemaRegistry maps Go types to their resolved schemas.
var (
	schemaRegistry = make(map[reflect.Type]any)
	mu             sync.RWMutex
)

// Register validates d and associates the resulting schema with type T.
// Registering a type twice is an error.
func Register[T any](d Descriptor[T]) (*Schema[T], error) {
	s, err := NewSchema(d)
	if err != nil {
		return nil, err
	}

	t := reflect.TypeOf((*T)(nil)).Elem()

	mu.Lock()
	defer mu.Unlock()
	if _, exists := schemaRegistry[t]; exists {
		return nil, fmt.Errorf("schema registry: type %s already registered", t)
	}
	schemaRegistry[t] = s
	return s, nil
}

// MustRegister is like Register but panics on error. Intended for init functions.
func MustRegister[T any](d Descriptor[T]) *Schema[T] {
	s, err := Register(d)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup retrieves the schema for type T, if any.
func Lookup[T any]() (*Schema[T], bool) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	mu.RLock()
	defer mu.RUnlock()
	s, ok := schemaRegistry[t]
	if !ok {
		return nil, false
	}
	return s.(*Schema[T]), true
}
