package leanstore

import (
	"context"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// SearchQuery runs a full text search on one class. Successive Find calls page
// through the results using the search id returned by the store.
type SearchQuery struct {
	client      *Client
	className   string
	queryString string
	include     []string
	keys        []string
	highlights  []string
	order       []string
	sort        *SearchSortBuilder
	limit       int
	skip        int

	mu     sync.Mutex
	sid    string
	hits   int
	hitEnd bool
}

// SearchQuery creates a search on className.
func (c *Client) SearchQuery(className string) *SearchQuery {
	return &SearchQuery{client: c, className: className, limit: -1}
}

// QueryString sets the search expression.
func (s *SearchQuery) QueryString(q string) *SearchQuery {
	s.queryString = q
	return s
}

// SID returns the search id that the next Find resumes from.
func (s *SearchQuery) SID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// SetSID resumes a search from a search id obtained earlier.
func (s *SearchQuery) SetSID(sid string) *SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sid = sid
	s.hitEnd = false
	return s
}

// Highlights asks for the matches in fields to be marked up.
func (s *SearchQuery) Highlights(fields ...string) *SearchQuery {
	s.highlights = append(s.highlights, fields...)
	return s
}

// SortBy orders the results with b, replacing any Ascending or Descending order.
func (s *SearchQuery) SortBy(b *SearchSortBuilder) *SearchQuery {
	s.sort = b
	return s
}

func (s *SearchQuery) Ascending(keys ...string) *SearchQuery {
	s.order = append([]string(nil), keys...)
	return s
}

func (s *SearchQuery) Descending(keys ...string) *SearchQuery {
	s.order = nil
	for _, k := range keys {
		s.order = append(s.order, "-"+k)
	}
	return s
}

func (s *SearchQuery) Include(keys ...string) *SearchQuery {
	s.include = append(s.include, keys...)
	return s
}

func (s *SearchQuery) Select(keys ...string) *SearchQuery {
	s.keys = append(s.keys, keys...)
	return s
}

func (s *SearchQuery) Limit(n int) *SearchQuery {
	s.limit = min(max(n, 0), constants.MaxLimit)
	return s
}

func (s *SearchQuery) Skip(n int) *SearchQuery {
	s.skip = max(n, 0)
	return s
}

// Hits returns the total number of matches reported by the last Find.
func (s *SearchQuery) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

// HasMore reports whether another Find may return more results.
func (s *SearchQuery) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hitEnd
}

// Reset restarts the search from the first page.
func (s *SearchQuery) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sid, s.hits, s.hitEnd = "", 0, false
}

func (s *SearchQuery) params() (map[string]any, error) {
	if strings.TrimSpace(s.queryString) == "" {
		return nil, connection.NewError(constants.InvalidQuery, "search query string is required")
	}
	params := map[string]any{"clazz": s.className, "q": s.queryString}
	if s.sid != "" {
		params["sid"] = s.sid
	}
	if s.limit >= 0 {
		params["limit"] = s.limit
	}
	if s.skip > 0 {
		params["skip"] = s.skip
	}
	if len(s.include) > 0 {
		params["include"] = strings.Join(s.include, ",")
	}
	if len(s.keys) > 0 {
		params["fields"] = strings.Join(s.keys, ",")
	}
	if len(s.highlights) > 0 {
		params["highlights"] = strings.Join(s.highlights, ",")
	}
	if s.sort != nil {
		data, err := json.Marshal(s.sort.Build())
		if err != nil {
			return nil, connection.Wrap(constants.InvalidJSON, err)
		}
		params["sort"] = string(data)
	} else if len(s.order) > 0 {
		params["order"] = strings.Join(s.order, ",")
	}
	return params, nil
}

// Find returns the next page of results. Once the store reports no further
// page, Find resolves with no results without a request until Reset.
func (s *SearchQuery) Find(ctx context.Context, opts ...CallOption) *promise.Promise[[]*Object] {
	loop := s.client.loop
	s.mu.Lock()
	if s.hitEnd {
		s.mu.Unlock()
		return resolvedOn(loop, []*Object{})
	}
	params, err := s.params()
	s.mu.Unlock()
	if err != nil {
		return rejectedOn[[]*Object](loop, err)
	}

	req := &connection.Request{Intent: connection.IntentSearch, ClassName: s.className, Params: params}
	res := s.client.send(ctx, req, newCallConfig(opts).request)
	return promise.Then(res, func(r *connection.Response) ([]*Object, error) {
		body, err := r.Object()
		if err != nil {
			return nil, err
		}
		rows, err := r.Results()
		if err != nil {
			return nil, err
		}

		sid, _ := body["sid"].(string)
		hits, _ := body["hits"].(float64)
		s.mu.Lock()
		s.sid = sid
		s.hits = int(hits)
		s.hitEnd = sid == ""
		s.mu.Unlock()

		out := make([]*Object, 0, len(rows))
		for _, row := range rows {
			hl, _ := row["_highlight"].(map[string]any)
			delete(row, "_highlight")
			o, err := s.client.decodeObject(s.className, row)
			if err != nil {
				return nil, err
			}
			o.mu.Lock()
			o.highlight = hl
			o.mu.Unlock()
			out = append(out, o)
		}
		return out, nil
	}, nil)
}

// SearchSortBuilder builds the sort specification of a SearchQuery.
type SearchSortBuilder struct {
	fields []map[string]any
}

func NewSearchSortBuilder() *SearchSortBuilder {
	return &SearchSortBuilder{}
}

// Ascending sorts by key. mode picks the array element sorted on (min, max,
// sum or avg) and missing places records without key ("_first" or "_last");
// empty values use the store defaults.
func (b *SearchSortBuilder) Ascending(key, mode, missing string) *SearchSortBuilder {
	return b.add(key, "asc", mode, missing)
}

// Descending is Ascending in reverse order.
func (b *SearchSortBuilder) Descending(key, mode, missing string) *SearchSortBuilder {
	return b.add(key, "desc", mode, missing)
}

func (b *SearchSortBuilder) add(key, order, mode, missing string) *SearchSortBuilder {
	if missing == "" {
		missing = "_last"
	}
	opts := map[string]any{"order": order, "missing": missing}
	if mode != "" {
		opts["mode"] = mode
	}
	b.fields = append(b.fields, map[string]any{key: opts})
	return b
}

// WhereNear sorts by distance of the GeoPoint key from point, in kilometers.
// order is "asc" or "desc"; mode as in Ascending.
func (b *SearchSortBuilder) WhereNear(key string, point models.GeoPoint, order, mode string) *SearchSortBuilder {
	if order == "" {
		order = "asc"
	}
	opts := map[string]any{
		key:     map[string]any{"lat": point.Latitude, "lon": point.Longitude},
		"order": order,
		"unit":  "km",
	}
	if mode != "" {
		opts["mode"] = mode
	}
	b.fields = append(b.fields, map[string]any{"_geo_distance": opts})
	return b
}

// Build returns the sort specification in wire form.
func (b *SearchSortBuilder) Build() []any {
	out := make([]any, len(b.fields))
	for i, f := range b.fields {
		out[i] = f
	}
	return out
}
