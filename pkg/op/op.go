// Package op implements the atomic field operations queued on an object until it is saved.
//
// An Op is immutable. Queuing a second Op on a field that already has one produces a
// single merged Op (see Merge); applying it to the locally known value gives the value
// the field is expected to have once the save succeeds (see Op.Apply).
package op

import (
	"fmt"
	"reflect"

	"github.com/leanstore/leanstore.go/pkg/constants"
	"golang.org/x/exp/constraints"
)

// Kind names an operation on the wire.
type Kind string

const (
	KindSet            Kind = "Set"
	KindUnset          Kind = "Delete"
	KindIncrement      Kind = "Increment"
	KindAdd            Kind = "Add"
	KindAddUnique      Kind = "AddUnique"
	KindRemove         Kind = "Remove"
	KindAddRelation    Kind = "AddRelation"
	KindRemoveRelation Kind = "RemoveRelation"
	KindBatch          Kind = "Batch"
)

var (
	// ErrIncompatible is returned when two operations on the same field cannot be merged.
	ErrIncompatible = fmt.Errorf("%w: incompatible operations", constants.ErrValidation)
	// ErrNotNumeric is returned when Increment meets a non-numeric value.
	ErrNotNumeric = fmt.Errorf("%w: value is not numeric", constants.ErrValidation)
	// ErrNotArray is returned when an array operation meets a non-array value.
	ErrNotArray = fmt.Errorf("%w: value is not an array", constants.ErrValidation)
	// ErrRelationClass is returned when relation targets of different classes are mixed.
	ErrRelationClass = fmt.Errorf("%w: relation target class mismatch", constants.ErrValidation)
)

// ValueEncoder converts an attribute value into its wire form.
type ValueEncoder func(v any) (any, error)

// Identity is implemented by values that compare by store identity rather than by
// content, such as objects and pointers.
type Identity interface {
	IdentityKey() string
}

// Op is an immutable field mutation.
type Op interface {
	Kind() Kind
	// Apply returns the value of the field after the op is applied to old.
	Apply(old any) (any, error)
	// Encode returns the wire form of the op.
	Encode(enc ValueEncoder) (any, error)
}

// Set replaces the field value.
type Set struct {
	value any
}

// NewSet creates a Set to v. Arrays and objects in v are copied.
func NewSet(v any) Set { return Set{value: cloneValue(v)} }

func (o Set) Kind() Kind             { return KindSet }
func (o Set) Value() any             { return cloneValue(o.value) }
func (o Set) Apply(any) (any, error) { return cloneValue(o.value), nil }
func (o Set) Encode(enc ValueEncoder) (any, error) {
	return encodeValue(enc, o.value)
}

// Unset removes the field.
type Unset struct{}

func NewUnset() Unset { return Unset{} }

func (o Unset) Kind() Kind             { return KindUnset }
func (o Unset) Apply(any) (any, error) { return nil, nil }
func (o Unset) Encode(ValueEncoder) (any, error) {
	return map[string]any{"__op": string(KindUnset), "delete": true}, nil
}

// Increment atomically adds an amount to a numeric field.
type Increment struct {
	amount any
}

// NewIncrement creates an Increment by n.
func NewIncrement[N constraints.Integer | constraints.Float](n N) Increment {
	return Increment{amount: normalizeNumber(n)}
}

// IncrementBy creates an Increment from a dynamically typed amount.
func IncrementBy(amount any) (Increment, error) {
	if !isNumber(amount) {
		return Increment{}, fmt.Errorf("%w: got %T", ErrNotNumeric, amount)
	}
	return Increment{amount: normalizeNumber(amount)}, nil
}

func (o Increment) Kind() Kind  { return KindIncrement }
func (o Increment) Amount() any { return o.amount }

func (o Increment) Apply(old any) (any, error) {
	if old == nil {
		return o.amount, nil
	}
	return addNumbers(old, o.amount)
}

func (o Increment) Encode(ValueEncoder) (any, error) {
	return map[string]any{"__op": string(KindIncrement), "amount": o.amount}, nil
}

// Add appends items to an array field.
type Add struct {
	items []any
}

func NewAdd(items ...any) Add { return Add{items: cloneItems(items)} }

func (o Add) Kind() Kind     { return KindAdd }
func (o Add) Objects() []any { return cloneItems(o.items) }

func (o Add) Apply(old any) (any, error) {
	arr, err := asArray(old)
	if err != nil {
		return nil, err
	}
	return append(arr, o.items...), nil
}

func (o Add) Encode(enc ValueEncoder) (any, error) {
	return encodeItems(enc, KindAdd, o.items)
}

// AddUnique appends the items not already present in an array field.
type AddUnique struct {
	items []any
}

func NewAddUnique(items ...any) AddUnique { return AddUnique{items: union(nil, items)} }

func (o AddUnique) Kind() Kind     { return KindAddUnique }
func (o AddUnique) Objects() []any { return cloneItems(o.items) }

func (o AddUnique) Apply(old any) (any, error) {
	arr, err := asArray(old)
	if err != nil {
		return nil, err
	}
	return union(arr, o.items), nil
}

func (o AddUnique) Encode(enc ValueEncoder) (any, error) {
	return encodeItems(enc, KindAddUnique, o.items)
}

// Remove removes every occurrence of the items from an array field.
type Remove struct {
	items []any
}

func NewRemove(items ...any) Remove { return Remove{items: union(nil, items)} }

func (o Remove) Kind() Kind     { return KindRemove }
func (o Remove) Objects() []any { return cloneItems(o.items) }

func (o Remove) Apply(old any) (any, error) {
	arr, err := asArray(old)
	if err != nil {
		return nil, err
	}
	return subtract(arr, o.items), nil
}

func (o Remove) Encode(enc ValueEncoder) (any, error) {
	return encodeItems(enc, KindRemove, o.items)
}

// Relation adds and removes edges of a relation field.
type Relation struct {
	targetClass string
	added       []any
	removed     []any
}

// NewRelation creates a relation op. Every target must implement Identity.
func NewRelation(targetClass string, added, removed []any) Relation {
	return Relation{
		targetClass: targetClass,
		added:       union(nil, added),
		removed:     union(nil, removed),
	}
}

func (o Relation) Kind() Kind {
	switch {
	case len(o.added) > 0 && len(o.removed) > 0:
		return KindBatch
	case len(o.removed) > 0:
		return KindRemoveRelation
	default:
		return KindAddRelation
	}
}

func (o Relation) TargetClass() string { return o.targetClass }
func (o Relation) Added() []any        { return cloneItems(o.added) }
func (o Relation) Removed() []any      { return cloneItems(o.removed) }

// Apply leaves the local value untouched: the relation itself holds no edges locally.
func (o Relation) Apply(old any) (any, error) { return old, nil }

func (o Relation) Encode(enc ValueEncoder) (any, error) {
	var ops []any
	if len(o.added) > 0 {
		add, err := encodeItems(enc, KindAddRelation, o.added)
		if err != nil {
			return nil, err
		}
		ops = append(ops, add)
	}
	if len(o.removed) > 0 {
		rm, err := encodeItems(enc, KindRemoveRelation, o.removed)
		if err != nil {
			return nil, err
		}
		ops = append(ops, rm)
	}
	switch len(ops) {
	case 0:
		return encodeItems(enc, KindAddRelation, nil)
	case 1:
		return ops[0], nil
	default:
		return map[string]any{"__op": string(KindBatch), "ops": ops}, nil
	}
}

// IsUnset reports whether o removes the field.
func IsUnset(o Op) bool {
	_, ok := o.(Unset)
	return ok
}

func encodeValue(enc ValueEncoder, v any) (any, error) {
	if enc == nil {
		return v, nil
	}
	return enc(v)
}

func encodeItems(enc ValueEncoder, kind Kind, items []any) (any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := encodeValue(enc, item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return map[string]any{"__op": string(kind), "objects": out}, nil
}

func cloneItems(items []any) []any {
	if items == nil {
		return nil
	}
	out := make([]any, len(items))
	copy(out, items)
	return out
}

// cloneValue copies the arrays and objects of v, recursively.
func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}

// asArray converts any slice value to []any. nil yields an empty array.
func asArray(v any) ([]any, error) {
	if v == nil {
		return []any{}, nil
	}
	if arr, ok := v.([]any); ok {
		return cloneItems(arr), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: got %T", ErrNotArray, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// Equal compares two array items: by identity key when either carries one,
// by deep equality otherwise.
func Equal(a, b any) bool {
	ia, aok := a.(Identity)
	ib, bok := b.(Identity)
	if aok || bok {
		if aok && bok {
			ka, kb := ia.IdentityKey(), ib.IdentityKey()
			if ka != "" && ka == kb {
				return true
			}
		}
		return sameRef(a, b)
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func sameRef(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func contains(arr []any, v any) bool {
	for _, item := range arr {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

// union appends to base the items not already present, preserving order.
func union(base []any, items []any) []any {
	out := cloneItems(base)
	for _, item := range items {
		if !contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

func subtract(arr []any, items []any) []any {
	out := make([]any, 0, len(arr))
	for _, v := range arr {
		if !contains(items, v) {
			out = append(out, v)
		}
	}
	return out
}
