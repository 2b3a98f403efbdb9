/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package patch

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/docstore/errors"
)

// Apply evaluates ops against a copy of doc, one after another, and returns
// the resulting document. doc is left unchanged; if any operation fails the
// whole patch fails.
func Apply(doc map[string]types.AttributeValue, ops []Operation) (map[string]types.AttributeValue, error) {
	root := &types.AttributeValueMemberM{Value: copyMap(doc)}

	for i, op := range ops {
		path, err := ParsePath(op.Path)
		if err != nil {
			return nil, errors.NewInvalidPatchError(i, op.Path, err.Error())
		}
		step, err := stepFor(op)
		if err != nil {
			return nil, errors.NewInvalidPatchError(i, op.Path, err.Error())
		}
		if err := update(root, path, step); err != nil {
			return nil, errors.NewInvalidPatchError(i, op.Path, err.Error())
		}
	}
	return root.Value, nil
}

// step computes the new value of a target from its current one. remove
// reports that the target is to be deleted.
type step func(old types.AttributeValue, exists bool) (value types.AttributeValue, remove bool, err error)

func stepFor(op Operation) (step, error) {
	switch op.Kind {
	case KindSet:
		av, err := marshalValue(op.Value)
		if err != nil {
			return nil, err
		}
		return func(types.AttributeValue, bool) (types.AttributeValue, bool, error) {
			return av, false, nil
		}, nil

	case KindReplace:
		av, err := marshalValue(op.Value)
		if err != nil {
			return nil, err
		}
		return func(_ types.AttributeValue, exists bool) (types.AttributeValue, bool, error) {
			if !exists {
				return nil, false, fmt.Errorf("path does not exist")
			}
			return av, false, nil
		}, nil

	case KindRemove:
		return func(_ types.AttributeValue, exists bool) (types.AttributeValue, bool, error) {
			if !exists {
				return nil, false, fmt.Errorf("path does not exist")
			}
			return nil, true, nil
		}, nil

	case KindIncrement:
		delta, err := toDecimal(op.Value)
		if err != nil {
			return nil, err
		}
		return func(old types.AttributeValue, exists bool) (types.AttributeValue, bool, error) {
			if !exists {
				return nil, false, fmt.Errorf("path does not exist")
			}
			n, ok := numberOf(old)
			if !ok {
				return nil, false, fmt.Errorf("target is not a number")
			}
			return &types.AttributeValueMemberN{Value: n.Add(delta).String()}, false, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown operation %s", op.Kind)
}

// update walks path below container and applies fn to the final segment.
// Intermediate segments must exist.
func update(container types.AttributeValue, path Path, fn step) error {
	seg := path[0]
	last := len(path) == 1

	if seg.IsIndex {
		list, ok := container.(*types.AttributeValueMemberL)
		if !ok {
			return fmt.Errorf("index [%d] applied to a non-list value", seg.Index)
		}
		exists := seg.Index < len(list.Value)
		if !last {
			if !exists {
				return fmt.Errorf("index [%d] out of range", seg.Index)
			}
			return update(list.Value[seg.Index], path[1:], fn)
		}

		var old types.AttributeValue
		if exists {
			old = list.Value[seg.Index]
		}
		v, remove, err := fn(old, exists)
		if err != nil {
			return err
		}
		switch {
		case remove:
			list.Value = append(list.Value[:seg.Index], list.Value[seg.Index+1:]...)
		case exists:
			list.Value[seg.Index] = v
		default:
			list.Value = append(list.Value, v)
		}
		return nil
	}

	m, ok := container.(*types.AttributeValueMemberM)
	if !ok {
		return fmt.Errorf("attribute %q applied to a non-map value", seg.Name)
	}
	old, exists := m.Value[seg.Name]
	if !last {
		if !exists {
			return fmt.Errorf("attribute %q does not exist", seg.Name)
		}
		return update(old, path[1:], fn)
	}

	v, remove, err := fn(old, exists)
	if err != nil {
		return err
	}
	if remove {
		delete(m.Value, seg.Name)
	} else {
		m.Value[seg.Name] = v
	}
	return nil
}

// copyMap copies containers deeply; scalar members are immutable and shared.
func copyMap(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(av types.AttributeValue) types.AttributeValue {
	switch tv := av.(type) {
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: copyMap(tv.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			l[i] = copyValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	}
	return av
}
