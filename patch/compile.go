/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package patch

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"github.com/suparena/docstore/errors"
)

// Placeholder prefixes used by compiled expressions. Caller supplied
// conditions must not use them.
const (
	NamePrefix  = "#_"
	ValuePrefix = ":_"
)

// ErrSequential is returned by Compile for patches whose operations depend on
// each other's intermediate results: paths that overlap, or operations on a
// list after one of its elements was removed. A single update expression
// resolves every path against the original document, so such patches have
// to be applied with Apply and written back.
var ErrSequential = stderrors.New("patch: operations depend on intermediate results")

// Expression is a patch compiled into a single DynamoDB update.
type Expression struct {
	// Update is the UpdateExpression, e.g. "SET #_p0 = :_v0 REMOVE #_p1".
	Update string
	// Conditions are the attribute_exists and attribute_type checks the
	// patch requires.
	Conditions []string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

// Condition joins Conditions with AND. It is empty when nothing is required.
func (e *Expression) Condition() string {
	return strings.Join(e.Conditions, " AND ")
}

type effectKind int

const (
	effectSet effectKind = iota
	effectRemove
	effectAdd
)

// effect is the net outcome of all operations on one path.
type effect struct {
	path    Path
	kind    effectKind
	value   types.AttributeValue
	delta   decimal.Decimal
	exists  bool // the path must exist before the update
	removed bool // a remove was folded in; the path is gone
	number  bool // the path must hold a number before the update
}

// Compile folds ops into one update expression. Operations on the same path
// are combined in order, so [Set(f, 1), Increment(f, 2)] stores 3 and a
// Replace or Increment after a Remove of the same path is rejected. Patches
// that cannot be folded return ErrSequential. ops must already have passed
// Validate.
func Compile(ops []Operation) (*Expression, error) {
	paths := make([]Path, len(ops))
	for i, op := range ops {
		path, err := ParsePath(op.Path)
		if err != nil {
			return nil, errors.NewInvalidPatchError(i, op.Path, err.Error())
		}
		paths[i] = path
	}
	if sequential(ops, paths) {
		return nil, ErrSequential
	}

	var order []string
	effects := make(map[string]*effect)

	for i, op := range ops {
		path := paths[i]
		key := path.String()
		prev := effects[key]

		next, err := fold(prev, path, op)
		if err != nil {
			return nil, errors.NewInvalidPatchError(i, op.Path, err.Error())
		}
		if prev == nil {
			order = append(order, key)
		}
		effects[key] = next
	}

	b := &builder{
		expr:   &Expression{Names: make(map[string]string), Values: make(map[string]types.AttributeValue)},
		nameOf: make(map[string]string),
	}
	var sets, removes []string
	for _, key := range order {
		e := effects[key]
		ref := b.path(e.path)
		switch e.kind {
		case effectSet:
			sets = append(sets, fmt.Sprintf("%s = %s", ref, b.value(e.value)))
		case effectAdd:
			delta := &types.AttributeValueMemberN{Value: e.delta.String()}
			sets = append(sets, fmt.Sprintf("%s = %s + %s", ref, ref, b.value(delta)))
		case effectRemove:
			removes = append(removes, ref)
		}
		if e.exists {
			b.expr.Conditions = append(b.expr.Conditions, fmt.Sprintf("attribute_exists(%s)", ref))
		} else if e.kind == effectSet && len(e.path) > 1 {
			parent := b.path(e.path[:len(e.path)-1])
			b.expr.Conditions = append(b.expr.Conditions, fmt.Sprintf("attribute_exists(%s)", parent))
		}
		if e.number && e.kind != effectAdd {
			numberType := &types.AttributeValueMemberS{Value: "N"}
			b.expr.Conditions = append(b.expr.Conditions, fmt.Sprintf("attribute_type(%s, %s)", ref, b.value(numberType)))
		}
	}

	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(removes, ", "))
	}
	b.expr.Update = strings.Join(clauses, " ")
	return b.expr, nil
}

// sequential reports whether ops need intermediate results: two distinct
// paths overlap, or an operation addresses a list after an earlier operation
// removed one of its elements and shifted the indexes.
func sequential(ops []Operation, paths []Path) bool {
	for i := range paths {
		for j := 0; j < i; j++ {
			a, b := paths[j], paths[i]
			if a.String() != b.String() && (a.HasPrefix(b) || b.HasPrefix(a)) {
				return true
			}
			if ops[j].Kind == KindRemove && a[len(a)-1].IsIndex && b.HasPrefix(a[:len(a)-1]) {
				return true
			}
		}
	}
	return false
}

// mustBeNumber reports whether the original value under prev has to be a
// number because an increment was folded into prev.
func mustBeNumber(prev *effect) bool {
	return prev.number || prev.kind == effectAdd
}

func fold(prev *effect, path Path, op Operation) (*effect, error) {
	switch op.Kind {
	case KindSet, KindReplace:
		av, err := marshalValue(op.Value)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return &effect{path: path, kind: effectSet, value: av, exists: op.Kind == KindReplace}, nil
		}
		if op.Kind == KindReplace && prev.removed {
			return nil, fmt.Errorf("replace of a removed path")
		}
		return &effect{path: path, kind: effectSet, value: av, exists: prev.exists, number: mustBeNumber(prev)}, nil

	case KindRemove:
		if prev == nil {
			return &effect{path: path, kind: effectRemove, exists: true, removed: true}, nil
		}
		if prev.removed {
			return nil, fmt.Errorf("path already removed")
		}
		return &effect{path: path, kind: effectRemove, exists: prev.exists, removed: true, number: mustBeNumber(prev)}, nil

	case KindIncrement:
		delta, err := toDecimal(op.Value)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return &effect{path: path, kind: effectAdd, delta: delta, exists: true}, nil
		}
		switch {
		case prev.removed:
			return nil, fmt.Errorf("increment of a removed path")
		case prev.kind == effectAdd:
			return &effect{path: path, kind: effectAdd, delta: prev.delta.Add(delta), exists: prev.exists, number: prev.number}, nil
		}
		n, ok := numberOf(prev.value)
		if !ok {
			return nil, fmt.Errorf("target is not a number")
		}
		sum := &types.AttributeValueMemberN{Value: n.Add(delta).String()}
		return &effect{path: path, kind: effectSet, value: sum, exists: prev.exists, number: prev.number}, nil
	}
	return nil, fmt.Errorf("unknown operation %s", op.Kind)
}

type builder struct {
	expr   *Expression
	nameOf map[string]string // attribute -> placeholder
}

func (b *builder) path(p Path) string {
	var sb strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			fmt.Fprintf(&sb, "[%d]", seg.Index)
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(b.name(seg.Name))
	}
	return sb.String()
}

func (b *builder) name(attr string) string {
	if ph, ok := b.nameOf[attr]; ok {
		return ph
	}
	ph := fmt.Sprintf("%sp%d", NamePrefix, len(b.nameOf))
	b.nameOf[attr] = ph
	b.expr.Names[ph] = attr
	return ph
}

func (b *builder) value(av types.AttributeValue) string {
	ph := fmt.Sprintf("%sv%d", ValuePrefix, len(b.expr.Values))
	b.expr.Values[ph] = av
	return ph
}
