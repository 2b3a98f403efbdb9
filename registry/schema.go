/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
)

// Field binds one component of an entity's partition key to the attribute it
// is read from.
type Field[T any] struct {
	// Attribute is the document attribute holding the value. Patches may not touch it.
	Attribute string
	// Value reads the component from the entity.
	Value func(T) string
}

// Descriptor declares the storage roles of an entity type's fields.
type Descriptor[T any] struct {
	// Name identifies the entity type in errors, logs and upgrader registrations.
	Name string
	// ID returns the entity's unique identifier.
	ID func(T) string
	// SetID assigns a generated id to entities created without one. Optional.
	SetID func(*T, string)
	// PartitionKey lists the partition key components in order.
	PartitionKey []Field[T]
	// Delimiter joins composite partition keys. Defaults to DefaultPartitionKeyDelimiter.
	Delimiter string
	// SchemaVersion is written with every document when greater than zero.
	SchemaVersion int
	// Compressed lists string attributes stored zstd-compressed.
	Compressed []string
}

// Schema is a validated Descriptor.
type Schema[T any] struct {
	desc       Descriptor[T]
	compressed map[string]struct{}
	protected  map[string]struct{}
}

// NewSchema validates d and resolves it into a Schema.
func NewSchema[T any](d Descriptor[T]) (*Schema[T], error) {
	if d.Name == "" {
		return nil, errors.NewValidationError("Name", "schema name is required")
	}
	if d.ID == nil {
		return nil, errors.NewValidationError("ID", "id accessor is required")
	}
	if len(d.PartitionKey) == 0 {
		return nil, errors.NewValidationError("PartitionKey", "at least one partition key field is required")
	}
	if d.Delimiter == "" {
		d.Delimiter = storagemodels.DefaultPartitionKeyDelimiter
	}
	if d.SchemaVersion < 0 {
		return nil, errors.NewValidationError("SchemaVersion", "must not be negative")
	}

	s := &Schema[T]{
		desc:       d,
		compressed: make(map[string]struct{}, len(d.Compressed)),
		protected: map[string]struct{}{
			storagemodels.IDKey:            {},
			storagemodels.PartitionKeyKey:  {},
			storagemodels.SchemaVersionKey: {},
			storagemodels.CompressedKey:    {},
		},
	}
	for i, f := range d.PartitionKey {
		if f.Value == nil {
			return nil, errors.NewValidationError("PartitionKey", fmt.Sprintf("field %d has no value accessor", i))
		}
		if f.Attribute != "" {
			s.protected[f.Attribute] = struct{}{}
		}
	}
	for _, attr := range d.Compressed {
		if attr == "" || storagemodels.IsReservedKey(attr) {
			return nil, errors.NewValidationError("Compressed", fmt.Sprintf("attribute %q cannot be compressed", attr))
		}
		if _, isKey := s.protected[attr]; isKey {
			return nil, errors.NewValidationError("Compressed", fmt.Sprintf("partition key attribute %q cannot be compressed", attr))
		}
		s.compressed[attr] = struct{}{}
	}
	for attr := range s.compressed {
		s.protected[attr] = struct{}{}
	}
	return s, nil
}

// Name returns the entity type name.
func (s *Schema[T]) Name() string { return s.desc.Name }

// Delimiter returns the composite partition key delimiter.
func (s *Schema[T]) Delimiter() string { return s.desc.Delimiter }

// SchemaVersion returns the current schema version.
func (s *Schema[T]) SchemaVersion() int { return s.desc.SchemaVersion }

// Compressed returns the attributes stored compressed.
func (s *Schema[T]) Compressed() []string { return s.desc.Compressed }

// IsCompressed reports whether attr is stored compressed.
func (s *Schema[T]) IsCompressed(attr string) bool {
	_, ok := s.compressed[attr]
	return ok
}

// ProtectedAttributes returns the top-level attributes patches may not modify:
// reserved keys, partition key components and compressed attributes.
func (s *Schema[T]) ProtectedAttributes() []string {
	out := make([]string, 0, len(s.protected))
	for attr := range s.protected {
		out = append(out, attr)
	}
	return out
}

// ID returns the entity's id.
func (s *Schema[T]) ID(entity T) string {
	return s.desc.ID(entity)
}

// AssignID gives entity a random id when it has none and the descriptor can set one.
func (s *Schema[T]) AssignID(entity *T) {
	if s.desc.SetID == nil || s.desc.ID(*entity) != "" {
		return
	}
	s.desc.SetID(entity, uuid.NewString())
}

// PartitionKey resolves the entity's partition key, joining composite keys in
// declared field order.
func (s *Schema[T]) PartitionKey(entity T) (string, error) {
	parts := make([]string, len(s.desc.PartitionKey))
	for i, f := range s.desc.PartitionKey {
		parts[i] = f.Value(entity)
	}
	return s.JoinPartitionKey(parts...)
}

// JoinPartitionKey joins partition key components. Components may not be
// empty, and components of composite keys may not contain the delimiter so
// the encoding stays reversible.
func (s *Schema[T]) JoinPartitionKey(parts ...string) (string, error) {
	if len(parts) != len(s.desc.PartitionKey) {
		return "", errors.NewValidationError("PartitionKey",
			fmt.Sprintf("expected %d components, got %d", len(s.desc.PartitionKey), len(parts)))
	}
	composite := len(parts) > 1
	for i, p := range parts {
		name := s.desc.PartitionKey[i].Attribute
		if p == "" {
			return "", errors.NewValidationError(name, "partition key component is empty")
		}
		if composite && strings.Contains(p, s.desc.Delimiter) {
			return "", errors.NewValidationError(name,
				fmt.Sprintf("partition key component %q contains delimiter %q", p, s.desc.Delimiter))
		}
	}
	return strings.Join(parts, s.desc.Delimiter), nil
}

// SplitPartitionKey decomposes a resolved partition key into its components.
func (s *Schema[T]) SplitPartitionKey(pk string) []string {
	if len(s.desc.PartitionKey) == 1 {
		return []string{pk}
	}
	return strings.Split(pk, s.desc.Delimiter)
}

// Key resolves the id and partition key of entity.
func (s *Schema[T]) Key(entity T) (storagemodels.Key, error) {
	id := s.desc.ID(entity)
	if id == "" {
		return storagemodels.Key{}, errors.NewValidationError(storagemodels.IDKey, "entity id is empty")
	}
	pk, err := s.PartitionKey(entity)
	if err != nil {
		return storagemodels.Key{}, err
	}
	return storagemodels.Key{ID: id, PartitionKey: pk}, nil
}
