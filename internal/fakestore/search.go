package fakestore

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/leanstore/leanstore.go/internal/rand"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
)

// searchSort is one entry of the "sort" parameter of a search request.
type searchSort struct {
	field   string
	desc    bool
	missing string
	geo     *models.GeoPoint
}

// search runs a full text search over one class. The query string is a list of
// terms, each either "field:value" or a bare word that may appear in any string
// field. "*" matches everything. A non-empty sid resumes a previous search.
func (s *Store) search(req *connection.Request) (any, int, error) {
	className, _ := req.Params["clazz"].(string)
	if err := checkClassName(className); err != nil {
		return nil, 0, err
	}
	q, _ := req.Params["q"].(string)
	if strings.TrimSpace(q) == "" {
		return nil, 0, connection.NewError(constants.InvalidQuery, "search query is required")
	}

	var rows []map[string]any
	if c, ok := s.classes[className]; ok {
		for _, rec := range c.all() {
			if searchMatches(rec, q) {
				rows = append(rows, rec)
			}
		}
	}

	sorts, err := searchSorts(req.Params)
	if err != nil {
		return nil, 0, err
	}
	sortSearch(rows, sorts)

	offset := 0
	if sid, _ := req.Params["sid"].(string); sid != "" {
		n, ok := s.searches[sid]
		if !ok {
			return nil, 0, connection.Errorf(constants.InvalidQuery, "unknown search id %q", sid)
		}
		delete(s.searches, sid)
		offset = n
	}
	offset += max(intParam(req.Params, "skip", 0), 0)
	limit := min(max(intParam(req.Params, "limit", constants.DefaultLimit), 0), constants.MaxLimit)
	hits := len(rows)
	window := page(rows, offset, limit)

	keys := listParam(req.Params, "fields")
	include := listParam(req.Params, "include")
	highlights := listParam(req.Params, "highlights")
	terms := searchTerms(q)
	results := make([]any, 0, len(window))
	for _, rec := range window {
		out := s.output(className, rec, keys, include)
		if hl := highlight(rec, terms, highlights); len(hl) > 0 {
			out["_highlight"] = hl
		}
		results = append(results, out)
	}

	body := map[string]any{"results": results, "hits": hits}
	if next := offset + len(window); next < hits && len(window) > 0 {
		sid := rand.NewObjectID()
		s.searches[sid] = next
		body["sid"] = sid
	} else {
		body["sid"] = nil
	}
	return body, http.StatusOK, nil
}

type searchTerm struct {
	field string
	text  string
}

func searchTerms(q string) []searchTerm {
	var out []searchTerm
	for _, word := range strings.Fields(q) {
		if word == "*" {
			continue
		}
		field, text, ok := strings.Cut(word, ":")
		if !ok {
			field, text = "", word
		}
		out = append(out, searchTerm{field: field, text: strings.ToLower(strings.Trim(text, `"`))})
	}
	return out
}

func searchMatches(rec map[string]any, q string) bool {
	for _, term := range searchTerms(q) {
		if term.field != "" {
			v, ok := fieldValue(rec, term.field)
			if !ok || !strings.Contains(strings.ToLower(fmt.Sprint(v)), term.text) {
				return false
			}
			continue
		}
		found := false
		for key, v := range rec {
			str, ok := v.(string)
			if ok && key != constants.KeyObjectID && strings.Contains(strings.ToLower(str), term.text) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// highlight wraps the matched terms of the requested string fields in <em> tags.
func highlight(rec map[string]any, terms []searchTerm, fields []string) map[string]any {
	out := map[string]any{}
	for _, field := range fields {
		str, ok := rec[field].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(str)
		for _, term := range terms {
			if term.text == "" || (term.field != "" && term.field != field) {
				continue
			}
			if i := strings.Index(lower, term.text); i >= 0 {
				j := i + len(term.text)
				out[field] = []any{str[:i] + "<em>" + str[i:j] + "</em>" + str[j:]}
				break
			}
		}
	}
	return out
}

// searchSorts reads either the JSON "sort" parameter built by a sort builder or
// the plain "order" parameter.
func searchSorts(params map[string]any) ([]searchSort, error) {
	raw, ok := params["sort"]
	if !ok || raw == nil {
		var out []searchSort
		for _, key := range listParam(params, "order") {
			out = append(out, searchSort{field: strings.TrimPrefix(key, "-"), desc: strings.HasPrefix(key, "-")})
		}
		return out, nil
	}
	if str, ok := raw.(string); ok {
		if err := json.Unmarshal([]byte(str), &raw); err != nil {
			return nil, connection.Wrap(constants.InvalidQuery, err)
		}
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, connection.Errorf(constants.InvalidQuery, "sort must be an array, got %T", raw)
	}
	var out []searchSort
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, connection.Errorf(constants.InvalidQuery, "invalid sort entry %v", entry)
		}
		for field, spec := range m {
			opts, _ := spec.(map[string]any)
			srt := searchSort{field: field, desc: opts["order"] == "desc", missing: stringOf(opts["missing"])}
			if field == "_geo_distance" {
				for key, v := range opts {
					point, ok := v.(map[string]any)
					if !ok {
						continue
					}
					lat, _ := point["lat"].(float64)
					lon, _ := point["lon"].(float64)
					gp, err := models.NewGeoPoint(lat, lon)
					if err != nil {
						return nil, connection.Wrap(constants.InvalidQuery, err)
					}
					srt.field, srt.geo = key, &gp
				}
			}
			out = append(out, srt)
		}
	}
	return out, nil
}

func sortSearch(rows []map[string]any, sorts []searchSort) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, srt := range sorts {
			c := srt.compare(rows[i], rows[j])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func (srt searchSort) compare(a, b map[string]any) int {
	va, aok := fieldValue(a, srt.field)
	vb, bok := fieldValue(b, srt.field)
	if srt.geo != nil {
		va, aok = srt.distance(va)
		vb, bok = srt.distance(vb)
	}
	switch {
	case !aok && !bok:
		return 0
	case !aok || !bok:
		// Missing values go last unless "_first" was asked for, whatever the order.
		first := 1
		if srt.missing == "_first" {
			first = -1
		}
		if !aok {
			return first
		}
		return -first
	}
	c, _ := compare(va, vb)
	if srt.desc {
		return -c
	}
	return c
}

func (srt searchSort) distance(v any) (any, bool) {
	p, ok := geoPointOf(v)
	if !ok {
		return math.Inf(1), false
	}
	return p.KilometersTo(*srt.geo), true
}
