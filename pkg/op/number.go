package op

import (
	"fmt"
	"reflect"
)

// normalizeNumber widens every integer type to int64 and every float type to float64.
func normalizeNumber(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func isNumber(v any) bool {
	switch normalizeNumber(v).(type) {
	case int64, float64:
		return true
	}
	return false
}

// addNumbers sums two numbers, staying integral when both are integral.
func addNumbers(a, b any) (any, error) {
	na, nb := normalizeNumber(a), normalizeNumber(b)
	ia, aInt := na.(int64)
	ib, bInt := nb.(int64)
	if aInt && bInt {
		return ia + ib, nil
	}
	fa, aok := toFloat(na)
	fb, bok := toFloat(nb)
	if !aok {
		return nil, fmt.Errorf("%w: got %T", ErrNotNumeric, a)
	}
	if !bok {
		return nil, fmt.Errorf("%w: got %T", ErrNotNumeric, b)
	}
	return fa + fb, nil
}

func toFloat(v any) (float64, bool) {
	switch n := normalizeNumber(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
