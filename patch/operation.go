/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package patch defines ordered partial updates of stored documents.
//
// A patch is a list of operations applied atomically and strictly in order:
//
//	ops := []patch.Operation{
//	    patch.Set("score", 1),
//	    patch.Increment("score", 2), // score == 3 afterwards
//	    patch.Remove("legacy.flag"),
//	}
//
// Paths address nested attributes with dots and list elements with brackets,
// e.g. "address.city" or "tags[0]".
package patch

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"github.com/suparena/docstore/errors"
)

// Kind is the kind of a patch operation.
type Kind int

const (
	// KindSet creates or overwrites the target.
	KindSet Kind = iota
	// KindReplace overwrites the target, which must exist.
	KindReplace
	// KindRemove deletes the target, which must exist.
	KindRemove
	// KindIncrement adds a number to the target, which must be an existing number.
	KindIncrement
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindReplace:
		return "replace"
	case KindRemove:
		return "remove"
	case KindIncrement:
		return "increment"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Operation is a single mutation step.
type Operation struct {
	Kind  Kind
	Path  string
	Value any
}

func (o Operation) String() string {
	if o.Kind == KindRemove {
		return fmt.Sprintf("%s(%s)", o.Kind, o.Path)
	}
	return fmt.Sprintf("%s(%s, %v)", o.Kind, o.Path, o.Value)
}

// Set creates or overwrites the attribute at path.
func Set(path string, value any) Operation {
	return Operation{Kind: KindSet, Path: path, Value: value}
}

// Replace overwrites the existing attribute at path.
func Replace(path string, value any) Operation {
	return Operation{Kind: KindReplace, Path: path, Value: value}
}

// Remove deletes the existing attribute at path.
func Remove(path string) Operation {
	return Operation{Kind: KindRemove, Path: path}
}

// Increment adds delta to the existing number at path. Negative deltas decrement.
func Increment(path string, delta any) Operation {
	return Operation{Kind: KindIncrement, Path: path, Value: delta}
}

// Validate checks ops before they are sent anywhere: the list is non-empty,
// every path parses and avoids the protected top-level attributes, and
// increments carry numbers. Whether the paths exist is only known against a
// document, see Apply.
func Validate(ops []Operation, protected []string) error {
	if len(ops) == 0 {
		return errors.NewInvalidPatchError(-1, "", "no operations")
	}

	blocked := make(map[string]struct{}, len(protected))
	for _, p := range protected {
		blocked[p] = struct{}{}
	}

	for i, op := range ops {
		p, err := ParsePath(op.Path)
		if err != nil {
			return errors.NewInvalidPatchError(i, op.Path, err.Error())
		}
		if _, ok := blocked[p[0].Name]; ok {
			return errors.NewInvalidPatchError(i, op.Path, fmt.Sprintf("attribute %q cannot be patched", p[0].Name))
		}
		switch op.Kind {
		case KindSet, KindReplace:
			if _, err := marshalValue(op.Value); err != nil {
				return errors.NewInvalidPatchError(i, op.Path, err.Error())
			}
		case KindRemove:
		case KindIncrement:
			if _, err := toDecimal(op.Value); err != nil {
				return errors.NewInvalidPatchError(i, op.Path, err.Error())
			}
		default:
			return errors.NewInvalidPatchError(i, op.Path, fmt.Sprintf("unknown operation %s", op.Kind))
		}
	}
	return nil
}

func marshalValue(v any) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal value: %w", err)
	}
	return av, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int8:
		return decimal.NewFromInt(int64(n)), nil
	case int16:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint:
		return decimal.NewFromInt(int64(n)), nil
	case uint8:
		return decimal.NewFromInt(int64(n)), nil
	case uint16:
		return decimal.NewFromInt(int64(n)), nil
	case uint32:
		return decimal.NewFromInt(int64(n)), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case decimal.Decimal:
		return n, nil
	}
	return decimal.Decimal{}, fmt.Errorf("increment value %v (%T) is not a number", v, v)
}

// numberOf reads a number attribute.
func numberOf(av types.AttributeValue) (decimal.Decimal, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(n.Value)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
