package fakestore

import (
	"math"
	"net/http"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
)

func (s *Store) query(req *connection.Request) (any, int, error) {
	if err := checkClassName(req.ClassName); err != nil {
		return nil, 0, err
	}
	where, err := whereParam(req.Params)
	if err != nil {
		return nil, 0, err
	}
	className := req.ClassName
	redirected := false
	if key, _ := req.Params["redirectClassNameForKey"].(string); key != "" {
		className, redirected = s.relationTargetClass(req.ClassName, where, key)
	}
	rows, err := s.find(className, where)
	if err != nil {
		return nil, 0, err
	}

	order := listParam(req.Params, "order")
	if len(order) > 0 {
		sortRows(rows, order)
	} else if field, point, ok := nearSphere(where); ok {
		sortByDistance(rows, field, point)
	}

	body := map[string]any{}
	if v, ok := req.Params["count"]; ok && truthy(v) {
		body["count"] = len(rows)
	}

	skip := max(intParam(req.Params, "skip", 0), 0)
	limit := min(max(intParam(req.Params, "limit", constants.DefaultLimit), 0), constants.MaxLimit)
	rows = page(rows, skip, limit)

	keys := listParam(req.Params, "keys")
	include := listParam(req.Params, "include")
	results := make([]any, 0, len(rows))
	for _, rec := range rows {
		results = append(results, s.output(className, rec, keys, include))
	}
	body["results"] = results
	if redirected {
		body["className"] = className
	}
	return body, http.StatusOK, nil
}

// relationTargetClass resolves the class of the members of the relation key
// named by the $relatedTo clause of where, from its first edge. It falls back
// to className when the relation has no edge.
func (s *Store) relationTargetClass(className string, where map[string]any, key string) (string, bool) {
	m, _ := where["$relatedTo"].(map[string]any)
	parent, ok := pointerOf(m["object"])
	if !ok {
		return className, false
	}
	edges := s.relations[relationKey(parent.ClassName, parent.ObjectID, key)]
	if len(edges) == 0 {
		return className, false
	}
	return edges[0].ClassName, true
}

func page(rows []map[string]any, skip, limit int) []map[string]any {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// find returns the records of className matching where, in insertion order.
func (s *Store) find(className string, where map[string]any) ([]map[string]any, error) {
	c, ok := s.classes[className]
	if !ok {
		return nil, nil
	}
	var out []map[string]any
	for _, rec := range c.all() {
		ok, err := s.matches(className, rec, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func whereParam(params map[string]any) (map[string]any, error) {
	raw, ok := params["where"]
	if !ok || raw == nil {
		return nil, nil
	}
	normalized, err := models.Normalize(raw)
	if err != nil {
		return nil, connection.Wrap(constants.InvalidJSON, err)
	}
	where, ok := normalized.(map[string]any)
	if !ok {
		return nil, connection.Errorf(constants.InvalidQuery, "where must be an object, got %T", raw)
	}
	return where, nil
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func listParam(params map[string]any, key string) []string {
	var raw []string
	switch v := params[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok {
				raw = append(raw, str)
			}
		}
	}
	out := raw[:0:0]
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "1" || b == "true"
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	}
	return false
}

// matches evaluates a where clause against rec.
//
//nolint:gocyclo
func (s *Store) matches(className string, rec map[string]any, where map[string]any) (bool, error) {
	for key, cond := range where {
		switch key {
		case "$or", "$and":
			clauses, ok := cond.([]any)
			if !ok {
				return false, connection.Errorf(constants.InvalidQuery, "%s expects an array", key)
			}
			hit := false
			for _, c := range clauses {
				sub, ok := c.(map[string]any)
				if !ok {
					return false, connection.Errorf(constants.InvalidQuery, "%s clause must be an object", key)
				}
				ok, err := s.matches(className, rec, sub)
				if err != nil {
					return false, err
				}
				if key == "$and" && !ok {
					return false, nil
				}
				hit = hit || ok
			}
			if key == "$or" && !hit && len(clauses) > 0 {
				return false, nil
			}
			continue
		case "$relatedTo":
			ok, err := s.relatedTo(className, rec, cond)
			if err != nil || !ok {
				return false, err
			}
			continue
		}

		value, present := fieldValue(rec, key)
		if ops, ok := operatorMap(cond); ok {
			for name, operand := range ops {
				ok, err := s.evalOperator(className, rec, key, value, present, name, operand, ops)
				if err != nil || !ok {
					return false, err
				}
			}
			continue
		}
		if !s.equal(className, rec, key, value, cond) {
			return false, nil
		}
	}
	return true, nil
}

func operatorMap(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func fieldValue(rec map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = rec
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

//nolint:gocyclo,funlen
func (s *Store) evalOperator(className string, rec map[string]any, key string, value any, present bool, name string, operand any, ops map[string]any) (bool, error) {
	switch name {
	case "$ne":
		return !s.equal(className, rec, key, value, operand), nil
	case "$lt", "$lte", "$gt", "$gte":
		if !present {
			return false, nil
		}
		c, ok := compare(value, operand)
		if !ok {
			return false, nil
		}
		switch name {
		case "$lt":
			return c < 0, nil
		case "$lte":
			return c <= 0, nil
		case "$gt":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case "$in", "$nin":
		items, ok := operand.([]any)
		if !ok {
			return false, connection.Errorf(constants.InvalidQuery, "%s expects an array", name)
		}
		in := false
		for _, item := range items {
			if s.equal(className, rec, key, value, item) {
				in = true
				break
			}
		}
		return in == (name == "$in"), nil
	case "$all":
		items, ok := operand.([]any)
		if !ok {
			return false, connection.Errorf(constants.InvalidQuery, "$all expects an array")
		}
		arr, ok := value.([]any)
		if !ok {
			return false, nil
		}
		for _, item := range items {
			found := false
			for _, v := range arr {
				if valuesEqual(v, item) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	case "$size":
		arr, ok := value.([]any)
		n, nok := operand.(float64)
		return ok && nok && float64(len(arr)) == n, nil
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false, connection.Errorf(constants.InvalidQuery, "$exists expects a boolean")
		}
		return present == want, nil
	case "$regex":
		pattern, ok := operand.(string)
		if !ok {
			return false, connection.Errorf(constants.InvalidQuery, "$regex expects a string")
		}
		if flags := strings.ReplaceAll(stringOf(ops["$options"]), "x", ""); flags != "" {
			pattern = "(?" + flags + ")" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, connection.Errorf(constants.InvalidQuery, "invalid $regex: %v", err)
		}
		str, ok := value.(string)
		return ok && re.MatchString(str), nil
	case "$options", "$maxDistance", "$maxDistanceInRadians", "$maxDistanceInKilometers", "$maxDistanceInMiles":
		return true, nil
	case "$inQuery", "$notInQuery":
		sub, ok := operand.(map[string]any)
		if !ok {
			return false, connection.Errorf(constants.InvalidQuery, "%s expects a query", name)
		}
		subClass, _ := sub["className"].(string)
		subWhere, _ := sub["where"].(map[string]any)
		rows, err := s.find(subClass, subWhere)
		if err != nil {
			return false, err
		}
		in := false
		if p, ok := pointerOf(value); ok {
			for _, row := range rows {
				if p.ClassName == subClass && p.ObjectID == row[constants.KeyObjectID] {
					in = true
					break
				}
			}
		}
		return in == (name == "$inQuery"), nil
	case "$select", "$dontSelect":
		sel, ok := operand.(map[string]any)
		if !ok {
			return false, connection.Errorf(constants.InvalidQuery, "%s expects {query, key}", name)
		}
		subKey, _ := sel["key"].(string)
		sub, _ := sel["query"].(map[string]any)
		subClass, _ := sub["className"].(string)
		subWhere, _ := sub["where"].(map[string]any)
		rows, err := s.find(subClass, subWhere)
		if err != nil {
			return false, err
		}
		in := false
		for _, row := range rows {
			if v, ok := fieldValue(row, subKey); ok && present && valuesEqual(value, v) {
				in = true
				break
			}
		}
		return in == (name == "$select"), nil
	case "$nearSphere":
		center, ok := geoPointOf(operand)
		if !ok {
			return false, connection.Errorf(constants.InvalidQuery, "$nearSphere expects a GeoPoint")
		}
		point, ok := geoPointOf(value)
		if !ok {
			return false, nil
		}
		limit := math.Inf(1)
		if r, ok := ops["$maxDistance"].(float64); ok {
			limit = r
		}
		if r, ok := ops["$maxDistanceInRadians"].(float64); ok {
			limit = r
		}
		if km, ok := ops["$maxDistanceInKilometers"].(float64); ok {
			limit = models.KilometersToRadians(km)
		}
		if mi, ok := ops["$maxDistanceInMiles"].(float64); ok {
			limit = models.MilesToRadians(mi)
		}
		return point.RadiansTo(center) <= limit, nil
	case "$within":
		within, _ := operand.(map[string]any)
		box, ok := within["$box"].([]any)
		if !ok || len(box) != 2 {
			return false, connection.Errorf(constants.InvalidQuery, "$within expects a $box of two GeoPoints")
		}
		sw, ok1 := geoPointOf(box[0])
		ne, ok2 := geoPointOf(box[1])
		if !ok1 || !ok2 {
			return false, connection.Errorf(constants.InvalidQuery, "$box corners must be GeoPoints")
		}
		point, ok := geoPointOf(value)
		if !ok {
			return false, nil
		}
		return point.Latitude >= sw.Latitude && point.Latitude <= ne.Latitude &&
			point.Longitude >= sw.Longitude && point.Longitude <= ne.Longitude, nil
	}
	return false, connection.Errorf(constants.InvalidQuery, "unknown operator %s", name)
}

// equal implements plain equality constraints: arrays match when they contain the
// value and relation fields match when they hold an edge to the pointer.
func (s *Store) equal(className string, rec map[string]any, key string, value, want any) bool {
	if m, ok := value.(map[string]any); ok && models.TypeOf(m) == models.TypeRelation {
		p, ok := pointerOf(want)
		if !ok {
			return false
		}
		id, _ := rec[constants.KeyObjectID].(string)
		return containsPointer(s.relations[relationKey(className, id, key)], p)
	}
	if valuesEqual(value, want) {
		return true
	}
	if arr, ok := value.([]any); ok {
		if _, wantArr := want.([]any); !wantArr {
			for _, v := range arr {
				if valuesEqual(v, want) {
					return true
				}
			}
		}
	}
	return false
}

func (s *Store) relatedTo(className string, rec map[string]any, cond any) (bool, error) {
	m, ok := cond.(map[string]any)
	if !ok {
		return false, connection.Errorf(constants.InvalidQuery, "$relatedTo expects {object, key}")
	}
	parent, ok := pointerOf(m["object"])
	key, _ := m["key"].(string)
	if !ok || key == "" {
		return false, connection.Errorf(constants.InvalidQuery, "$relatedTo expects {object, key}")
	}
	id, _ := rec[constants.KeyObjectID].(string)
	return containsPointer(s.relations[relationKey(parent.ClassName, parent.ObjectID, key)], models.NewPointer(className, id)), nil
}

func valuesEqual(a, b any) bool {
	if pa, ok := pointerOf(a); ok {
		pb, ok := pointerOf(b)
		return ok && pa == pb
	}
	if ta, ok := timeOf(a); ok {
		if tb, ok := timeOf(b); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers, strings and dates. ok is false for other combinations.
func compare(a, b any) (int, bool) {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	if ta, ok := timeOf(a); ok {
		if tb, ok := timeOf(b); ok {
			return ta.Compare(tb), true
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
	}
	return 0, false
}

// timeOf reads a Date wire value or an ISO timestamp such as createdAt.
func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case map[string]any:
		if models.TypeOf(t) != models.TypeDate {
			return time.Time{}, false
		}
		iso, _ := t["iso"].(string)
		d, err := models.ParseDate(iso)
		return d.Time, err == nil
	case string:
		if len(t) < len("2006-01-02T15:04:05Z") || t[4] != '-' {
			return time.Time{}, false
		}
		d, err := models.ParseDate(t)
		return d.Time, err == nil
	}
	return time.Time{}, false
}

func geoPointOf(v any) (models.GeoPoint, bool) {
	m, ok := v.(map[string]any)
	if !ok || models.TypeOf(m) != models.TypeGeoPoint {
		return models.GeoPoint{}, false
	}
	gp, ok, err := models.DecodeTyped(m)
	if !ok || err != nil {
		return models.GeoPoint{}, false
	}
	return gp.(models.GeoPoint), true
}

func sortRows(rows []map[string]any, order []string) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range order {
			desc := strings.HasPrefix(key, "-")
			field := strings.TrimPrefix(key, "-")
			a, aok := fieldValue(rows[i], field)
			b, bok := fieldValue(rows[j], field)
			var c int
			switch {
			case !aok && !bok:
				c = 0
			case !aok:
				c = -1
			case !bok:
				c = 1
			default:
				c, _ = compare(a, b)
			}
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func nearSphere(where map[string]any) (string, models.GeoPoint, bool) {
	for key, cond := range where {
		ops, ok := operatorMap(cond)
		if !ok {
			continue
		}
		if point, ok := geoPointOf(ops["$nearSphere"]); ok {
			return key, point, true
		}
	}
	return "", models.GeoPoint{}, false
}

func sortByDistance(rows []map[string]any, field string, center models.GeoPoint) {
	distance := func(rec map[string]any) float64 {
		v, _ := fieldValue(rec, field)
		p, ok := geoPointOf(v)
		if !ok {
			return math.Inf(1)
		}
		return p.RadiansTo(center)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return distance(rows[i]) < distance(rows[j])
	})
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
