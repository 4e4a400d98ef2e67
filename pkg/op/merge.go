package op

import "fmt"

// Merge returns the single Op equivalent to existing followed by next.
// A nil existing yields next unchanged.
func Merge(existing, next Op) (Op, error) {
	if existing == nil {
		return next, nil
	}
	switch n := next.(type) {
	case Set, Unset:
		return next, nil
	case Increment:
		return mergeIncrement(existing, n)
	case Add:
		return mergeAdd(existing, n)
	case AddUnique:
		return mergeAddUnique(existing, n)
	case Remove:
		return mergeRemove(existing, n)
	case Relation:
		return mergeRelation(existing, n)
	}
	return nil, incompatible(existing, next)
}

func mergeIncrement(existing Op, n Increment) (Op, error) {
	switch e := existing.(type) {
	case Set:
		base := e.value
		if base == nil {
			base = int64(0)
		}
		if !isNumber(base) {
			return nil, fmt.Errorf("%w: cannot increment %T", ErrNotNumeric, base)
		}
		sum, err := addNumbers(base, n.amount)
		if err != nil {
			return nil, err
		}
		return Set{value: sum}, nil
	case Unset:
		return Set{value: n.amount}, nil
	case Increment:
		sum, err := addNumbers(e.amount, n.amount)
		if err != nil {
			return nil, err
		}
		return Increment{amount: sum}, nil
	}
	return nil, incompatible(existing, n)
}

func mergeAdd(existing Op, n Add) (Op, error) {
	switch e := existing.(type) {
	case Set:
		arr, err := asArray(e.value)
		if err != nil {
			return nil, err
		}
		return Set{value: append(arr, n.items...)}, nil
	case Unset:
		return Set{value: cloneItems(n.items)}, nil
	case Add:
		return Add{items: append(cloneItems(e.items), n.items...)}, nil
	case AddUnique:
		return AddUnique{items: union(e.items, n.items)}, nil
	}
	return nil, incompatible(existing, n)
}

func mergeAddUnique(existing Op, n AddUnique) (Op, error) {
	switch e := existing.(type) {
	case Set:
		arr, err := asArray(e.value)
		if err != nil {
			return nil, err
		}
		return Set{value: union(arr, n.items)}, nil
	case Unset:
		return Set{value: cloneItems(n.items)}, nil
	case AddUnique:
		return AddUnique{items: union(e.items, n.items)}, nil
	}
	return nil, incompatible(existing, n)
}

func mergeRemove(existing Op, n Remove) (Op, error) {
	switch e := existing.(type) {
	case Set:
		arr, err := asArray(e.value)
		if err != nil {
			return nil, err
		}
		return Set{value: subtract(arr, n.items)}, nil
	case Unset:
		return e, nil
	case Remove:
		return Remove{items: union(e.items, n.items)}, nil
	case AddUnique:
		return AddUnique{items: subtract(e.items, n.items)}, nil
	}
	return nil, incompatible(existing, n)
}

func mergeRelation(existing Op, n Relation) (Op, error) {
	e, ok := existing.(Relation)
	if !ok {
		return nil, incompatible(existing, n)
	}
	class := e.targetClass
	switch {
	case class == "":
		class = n.targetClass
	case n.targetClass != "" && n.targetClass != class:
		return nil, fmt.Errorf("%w: %s and %s", ErrRelationClass, class, n.targetClass)
	}
	return Relation{
		targetClass: class,
		added:       union(subtract(e.added, n.removed), n.added),
		removed:     union(subtract(e.removed, n.added), n.removed),
	}, nil
}

func incompatible(existing, next Op) error {
	return fmt.Errorf("%w: %s after %s", ErrIncompatible, next.Kind(), existing.Kind())
}
