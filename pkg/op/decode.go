package op

import (
	"fmt"

	"github.com/leanstore/leanstore.go/pkg/models"
)

// ValueDecoder converts a wire value into its attribute form.
type ValueDecoder func(v any) (any, error)

// Decode turns the wire form of a field update back into an Op. A value that is not
// an {"__op": ...} object decodes to Set.
func Decode(v any, dec ValueDecoder) (Op, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return decodeSet(v, dec)
	}
	kind, ok := m["__op"].(string)
	if !ok {
		return decodeSet(v, dec)
	}

	switch Kind(kind) {
	case KindUnset:
		return Unset{}, nil
	case KindIncrement:
		if !isNumber(m["amount"]) {
			return nil, fmt.Errorf("%w: increment amount %T", ErrNotNumeric, m["amount"])
		}
		return Increment{amount: normalizeNumber(m["amount"])}, nil
	case KindAdd, KindAddUnique, KindRemove:
		items, err := decodeItems(m["objects"], dec)
		if err != nil {
			return nil, err
		}
		switch Kind(kind) {
		case KindAdd:
			return Add{items: items}, nil
		case KindAddUnique:
			return NewAddUnique(items...), nil
		default:
			return NewRemove(items...), nil
		}
	case KindAddRelation, KindRemoveRelation:
		items, err := decodeItems(m["objects"], dec)
		if err != nil {
			return nil, err
		}
		class := relationClass(items)
		if Kind(kind) == KindAddRelation {
			return NewRelation(class, items, nil), nil
		}
		return NewRelation(class, nil, items), nil
	case KindBatch:
		ops, err := asArray(m["ops"])
		if err != nil {
			return nil, err
		}
		var merged Op
		for _, raw := range ops {
			o, err := Decode(raw, dec)
			if err != nil {
				return nil, err
			}
			if merged, err = Merge(merged, o); err != nil {
				return nil, err
			}
		}
		if merged == nil {
			return Relation{}, nil
		}
		return merged, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrIncompatible, kind)
}

func decodeSet(v any, dec ValueDecoder) (Op, error) {
	if dec == nil {
		return Set{value: v}, nil
	}
	d, err := dec(v)
	if err != nil {
		return nil, err
	}
	return Set{value: d}, nil
}

func decodeItems(v any, dec ValueDecoder) ([]any, error) {
	raw, err := asArray(v)
	if err != nil {
		return nil, err
	}
	if dec == nil {
		return raw, nil
	}
	out := make([]any, len(raw))
	for i, item := range raw {
		if out[i], err = dec(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// classNamer is implemented by relation targets that know their class.
type classNamer interface {
	ClassName() string
}

func relationClass(items []any) string {
	for _, item := range items {
		switch c := item.(type) {
		case classNamer:
			return c.ClassName()
		case models.Pointer:
			return c.ClassName
		}
	}
	return ""
}
