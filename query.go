package leanstore

import (
	"context"
	"maps"
	"regexp"
	"strings"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// Query accumulates constraints on one class and runs them against the store.
//
// Builder methods return the query itself so they can be chained. An invalid
// argument, such as an unsaved object, is kept and reported by the next
// execution.
type Query struct {
	client    *Client
	className string
	where     map[string]any
	include   []string
	keys      []string
	order     []string
	limit     int
	skip      int
	extra     map[string]any
	err       error
}

// Query creates a query on className.
func (c *Client) Query(className string) *Query {
	return &Query{client: c, className: className, where: map[string]any{}, limit: -1}
}

// ClassName returns the queried class.
func (q *Query) ClassName() string { return q.className }

// Err returns the first invalid argument given to the query, if any.
func (q *Query) Err() error { return q.err }

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = connection.AsError(err)
	}
	return q
}

func (q *Query) clone() *Query {
	out := *q
	out.where = cloneWhere(q.where)
	out.include = append([]string(nil), q.include...)
	out.keys = append([]string(nil), q.keys...)
	out.order = append([]string(nil), q.order...)
	out.extra = maps.Clone(q.extra)
	return &out
}

func cloneWhere(w map[string]any) map[string]any {
	out := make(map[string]any, len(w))
	for k, v := range w {
		if m, ok := v.(map[string]any); ok && isConstraintMap(m) {
			v = maps.Clone(m)
		}
		out[k] = v
	}
	return out
}

// isConstraintMap reports whether m holds $-operators rather than a literal value.
func isConstraintMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// addCondition adds the operator cond on key, keeping the other operators
// already set on it.
func (q *Query) addCondition(key, cond string, v any) *Query {
	enc, err := encodeValue(v)
	if err != nil {
		return q.fail(err)
	}
	q.setCondition(key, cond, enc)
	return q
}

func (q *Query) setCondition(key, cond string, enc any) {
	if m, ok := q.where[key].(map[string]any); ok && isConstraintMap(m) {
		m[cond] = enc
		return
	}
	q.where[key] = map[string]any{cond: enc}
}

// EqualTo requires key to equal v. For array fields it requires the array to
// contain v.
func (q *Query) EqualTo(key string, v any) *Query {
	enc, err := encodeValue(v)
	if err != nil {
		return q.fail(err)
	}
	q.where[key] = enc
	return q
}

func (q *Query) NotEqualTo(key string, v any) *Query { return q.addCondition(key, "$ne", v) }
func (q *Query) LessThan(key string, v any) *Query   { return q.addCondition(key, "$lt", v) }

func (q *Query) LessThanOrEqualTo(key string, v any) *Query {
	return q.addCondition(key, "$lte", v)
}

func (q *Query) GreaterThan(key string, v any) *Query { return q.addCondition(key, "$gt", v) }

func (q *Query) GreaterThanOrEqualTo(key string, v any) *Query {
	return q.addCondition(key, "$gte", v)
}

// ContainedIn requires key to be one of values.
func (q *Query) ContainedIn(key string, values ...any) *Query {
	return q.addCondition(key, "$in", values)
}

// NotContainedIn requires key to be none of values.
func (q *Query) NotContainedIn(key string, values ...any) *Query {
	return q.addCondition(key, "$nin", values)
}

// ContainsAll requires the array key to contain every one of values.
func (q *Query) ContainsAll(key string, values ...any) *Query {
	return q.addCondition(key, "$all", values)
}

// SizeEqualTo requires the array key to have n elements.
func (q *Query) SizeEqualTo(key string, n int) *Query { return q.addCondition(key, "$size", n) }

func (q *Query) Exists(key string) *Query       { return q.addCondition(key, "$exists", true) }
func (q *Query) DoesNotExist(key string) *Query { return q.addCondition(key, "$exists", false) }

// Matches requires the string key to match the regular expression pattern.
// modifiers is any combination of i, m, s and x.
// The pattern is evaluated by the store, so only the modifiers are checked here.
func (q *Query) Matches(key, pattern, modifiers string) *Query {
	if strings.Trim(modifiers, "imsx") != "" {
		return q.fail(connection.Errorf(constants.InvalidQuery, "unsupported regex modifiers %q", modifiers))
	}
	q.addCondition(key, "$regex", pattern)
	if modifiers != "" {
		q.addCondition(key, "$options", modifiers)
	}
	return q
}

// Contains requires the string key to contain substr.
func (q *Query) Contains(key, substr string) *Query {
	return q.addCondition(key, "$regex", regexp.QuoteMeta(substr))
}

// StartsWith requires the string key to start with prefix.
func (q *Query) StartsWith(key, prefix string) *Query {
	return q.addCondition(key, "$regex", "^"+regexp.QuoteMeta(prefix))
}

// EndsWith requires the string key to end with suffix.
func (q *Query) EndsWith(key, suffix string) *Query {
	return q.addCondition(key, "$regex", regexp.QuoteMeta(suffix)+"$")
}

// MatchesQuery requires the object pointed to by key to match sub.
func (q *Query) MatchesQuery(key string, sub *Query) *Query {
	return q.subquery(key, "$inQuery", sub)
}

// DoesNotMatchQuery requires the object pointed to by key not to match sub.
func (q *Query) DoesNotMatchQuery(key string, sub *Query) *Query {
	return q.subquery(key, "$notInQuery", sub)
}

func (q *Query) subquery(key, cond string, sub *Query) *Query {
	if sub.err != nil {
		return q.fail(sub.err)
	}
	q.setCondition(key, cond, sub.toSubquery())
	return q
}

// MatchesKeyInQuery requires key to equal the queryKey field of some result of sub.
func (q *Query) MatchesKeyInQuery(key, queryKey string, sub *Query) *Query {
	return q.selectQuery(key, "$select", queryKey, sub)
}

// DoesNotMatchKeyInQuery requires key to equal the queryKey field of no result of sub.
func (q *Query) DoesNotMatchKeyInQuery(key, queryKey string, sub *Query) *Query {
	return q.selectQuery(key, "$dontSelect", queryKey, sub)
}

func (q *Query) selectQuery(key, cond, queryKey string, sub *Query) *Query {
	if sub.err != nil {
		return q.fail(sub.err)
	}
	q.setCondition(key, cond, map[string]any{"query": sub.toSubquery(), "key": queryKey})
	return q
}

func (q *Query) toSubquery() map[string]any {
	return map[string]any{"className": q.className, "where": cloneWhere(q.where)}
}

// Near sorts results by distance from point, nearest first.
func (q *Query) Near(key string, point models.GeoPoint) *Query {
	if err := point.Validate(); err != nil {
		return q.fail(connection.Wrap(constants.ValidationError, err))
	}
	return q.addCondition(key, "$nearSphere", point)
}

// WithinRadians requires key to be at most maxDistance radians from point,
// nearest first.
func (q *Query) WithinRadians(key string, point models.GeoPoint, maxDistance float64) *Query {
	q.Near(key, point)
	return q.addCondition(key, "$maxDistance", maxDistance)
}

// WithinKilometers is WithinRadians with the distance in kilometers.
func (q *Query) WithinKilometers(key string, point models.GeoPoint, maxDistance float64) *Query {
	return q.WithinRadians(key, point, models.KilometersToRadians(maxDistance))
}

// WithinMiles is WithinRadians with the distance in miles.
func (q *Query) WithinMiles(key string, point models.GeoPoint, maxDistance float64) *Query {
	return q.WithinRadians(key, point, models.MilesToRadians(maxDistance))
}

// WithinGeoBox requires key to lie in the box with the given south-west and
// north-east corners.
func (q *Query) WithinGeoBox(key string, southwest, northeast models.GeoPoint) *Query {
	for _, p := range []models.GeoPoint{southwest, northeast} {
		if err := p.Validate(); err != nil {
			return q.fail(connection.Wrap(constants.ValidationError, err))
		}
	}
	if southwest.Latitude > northeast.Latitude {
		return q.fail(connection.NewError(constants.ValidationError, "south-west corner is north of the north-east corner"))
	}
	q.setCondition(key, "$within", map[string]any{"$box": []any{southwest.Encode(), northeast.Encode()}})
	return q
}

// RelatedTo restricts the results to the members of the relation key of parent.
func (q *Query) RelatedTo(parent *Object, key string) *Query {
	if parent.ID() == "" {
		return q.fail(connection.Errorf(constants.MissingObjectID, "relation parent %s is unsaved", parent.ClassName()))
	}
	q.where["$relatedTo"] = map[string]any{"object": parent.ToPointer().Encode(), "key": key}
	return q
}

// Where merges raw constraints, already in wire form, into the query.
func (q *Query) Where(raw map[string]any) *Query {
	for k, v := range raw {
		if m, ok := v.(map[string]any); ok && isConstraintMap(m) {
			for cond, cv := range m {
				q.setCondition(k, cond, cv)
			}
			continue
		}
		q.where[k] = v
	}
	return q
}

// Or returns a query matching the results of any of queries, which must share
// one class.
func Or(queries ...*Query) *Query { return combine("$or", queries) }

// And returns a query matching the results of every one of queries, which must
// share one class.
func And(queries ...*Query) *Query { return combine("$and", queries) }

func combine(cond string, queries []*Query) *Query {
	if len(queries) == 0 {
		q := &Query{where: map[string]any{}, limit: -1}
		return q.fail(connection.Errorf(constants.InvalidQuery, "%s of no queries", cond))
	}
	q := queries[0].client.Query(queries[0].className)
	clauses := make([]any, 0, len(queries))
	for _, sub := range queries {
		if sub.className != q.className {
			return q.fail(connection.Errorf(constants.InvalidQuery,
				"%s of queries on different classes: %s and %s", cond, q.className, sub.className))
		}
		if sub.err != nil {
			return q.fail(sub.err)
		}
		clauses = append(clauses, cloneWhere(sub.where))
	}
	q.where[cond] = clauses
	return q
}

// Ascending sorts by keys, replacing any previous order.
func (q *Query) Ascending(keys ...string) *Query {
	q.order = nil
	return q.AddAscending(keys...)
}

// AddAscending adds keys to the sort order.
func (q *Query) AddAscending(keys ...string) *Query {
	q.order = append(q.order, keys...)
	return q
}

// Descending sorts by keys in descending order, replacing any previous order.
func (q *Query) Descending(keys ...string) *Query {
	q.order = nil
	return q.AddDescending(keys...)
}

// AddDescending adds keys to the sort order, descending.
func (q *Query) AddDescending(keys ...string) *Query {
	for _, k := range keys {
		q.order = append(q.order, "-"+k)
	}
	return q
}

// Include makes results carry the objects pointed to by keys. Nested keys use
// dots, e.g. "post.author".
func (q *Query) Include(keys ...string) *Query {
	q.include = append(q.include, keys...)
	return q
}

// Select limits the returned fields to keys.
func (q *Query) Select(keys ...string) *Query {
	q.keys = append(q.keys, keys...)
	return q
}

// Limit sets the number of results, clamped to [0, constants.MaxLimit].
// Without a limit a query asks for constants.DefaultLimit results.
func (q *Query) Limit(n int) *Query {
	q.limit = min(max(n, 0), constants.MaxLimit)
	return q
}

// Skip skips the first n results. Negative values count as 0.
func (q *Query) Skip(n int) *Query {
	q.skip = max(n, 0)
	return q
}

// Param sets an extra request parameter.
func (q *Query) Param(key string, v any) *Query {
	if q.extra == nil {
		q.extra = map[string]any{}
	}
	q.extra[key] = v
	return q
}

// Params returns the request parameters the query runs with.
func (q *Query) Params() (map[string]any, error) {
	if q.err != nil {
		return nil, q.err
	}
	params := map[string]any{}
	for k, v := range q.extra {
		params[k] = v
	}
	if len(q.where) > 0 {
		params["where"] = cloneWhere(q.where)
	}
	if len(q.include) > 0 {
		params["include"] = strings.Join(q.include, ",")
	}
	if len(q.keys) > 0 {
		params["keys"] = strings.Join(q.keys, ",")
	}
	if len(q.order) > 0 {
		params["order"] = strings.Join(q.order, ",")
	}
	params["limit"] = q.limit
	if q.limit < 0 {
		params["limit"] = constants.DefaultLimit
	}
	if q.skip > 0 {
		params["skip"] = q.skip
	}
	return params, nil
}

// conditionFor returns the where clause of q for a conditional write on className.
func (q *Query) conditionFor(className string) (map[string]any, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.className != className {
		return nil, connection.Errorf(constants.ValidationError,
			"condition on %s cannot apply to %s", q.className, className)
	}
	return cloneWhere(q.where), nil
}

func (q *Query) loop() *promise.Loop {
	if q.client == nil {
		return nil
	}
	return q.client.loop
}

func (q *Query) run(ctx context.Context, params map[string]any, cfg callConfig) *promise.Promise[*connection.Response] {
	req := &connection.Request{Intent: connection.IntentQuery, ClassName: q.className, Params: params}
	return q.client.send(ctx, req, cfg.request)
}

// Find returns the matching objects.
func (q *Query) Find(ctx context.Context, opts ...CallOption) *promise.Promise[[]*Object] {
	params, err := q.Params()
	if err != nil {
		return rejectedOn[[]*Object](q.loop(), err)
	}
	res := q.run(ctx, params, newCallConfig(opts))
	return promise.Then(res, func(r *connection.Response) ([]*Object, error) {
		className := q.className
		if body, err := r.Object(); err == nil {
			if redirected, ok := body["className"].(string); ok && redirected != "" {
				className = redirected
			}
		}
		return q.client.decodeRows(className, r)
	}, nil)
}

func (c *Client) decodeRows(className string, r *connection.Response) ([]*Object, error) {
	rows, err := r.Results()
	if err != nil {
		return nil, err
	}
	out := make([]*Object, 0, len(rows))
	for _, row := range rows {
		o, err := c.decodeObject(className, row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// First returns the first matching object, or nil when nothing matches.
func (q *Query) First(ctx context.Context, opts ...CallOption) *promise.Promise[*Object] {
	return promise.Then(q.clone().Limit(1).Find(ctx, opts...), func(objs []*Object) (*Object, error) {
		if len(objs) == 0 {
			return nil, nil
		}
		return objs[0], nil
	}, nil)
}

// Get returns the object with id, with the includes and keys of q. It is
// rejected with constants.ErrNotFound when there is none.
func (q *Query) Get(ctx context.Context, id string, opts ...CallOption) *promise.Promise[*Object] {
	if q.err != nil {
		return rejectedOn[*Object](q.loop(), q.err)
	}
	if id == "" {
		return rejectedOn[*Object](q.loop(), connection.Errorf(constants.MissingObjectID, "get on %s without id", q.className))
	}
	params := map[string]any{}
	if len(q.include) > 0 {
		params["include"] = strings.Join(q.include, ",")
	}
	if len(q.keys) > 0 {
		params["keys"] = strings.Join(q.keys, ",")
	}
	req := &connection.Request{Intent: connection.IntentGet, ClassName: q.className, ObjectID: id, Params: params}
	res := q.client.send(ctx, req, newCallConfig(opts).request)
	return promise.Then(res, func(r *connection.Response) (*Object, error) {
		body, err := r.Object()
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			return nil, connection.Errorf(constants.ObjectNotFound, "object %s/%s not found", q.className, id)
		}
		return q.client.decodeObject(q.className, body)
	}, nil)
}

// Count returns the number of matching objects, ignoring limit and skip.
func (q *Query) Count(ctx context.Context, opts ...CallOption) *promise.Promise[int] {
	params, err := q.Params()
	if err != nil {
		return rejectedOn[int](q.loop(), err)
	}
	params["count"] = 1
	params["limit"] = 0
	delete(params, "skip")
	res := q.run(ctx, params, newCallConfig(opts))
	return promise.Then(res, func(r *connection.Response) (int, error) {
		return r.Count()
	}, nil)
}

// DestroyAll deletes the matching objects.
func (q *Query) DestroyAll(ctx context.Context, opts ...CallOption) *promise.Promise[[]*Object] {
	return promise.ThenPromise(q.Find(ctx, opts...), func(objs []*Object) *promise.Promise[[]*Object] {
		return q.client.DestroyAll(ctx, objs, opts...)
	}, nil)
}

// BatchSize sets the page size of Each.
func BatchSize(n int) CallOption {
	return func(c *callConfig) { c.batchSize = n }
}

// Each calls fn with every matching object, in objectId order, fetching them
// page by page. When fn returns a promise the next object waits for it to
// settle, and a rejection ends the iteration. fn runs on the client's Loop.
// The query must not have an order, a limit or a skip.
func (q *Query) Each(ctx context.Context, fn func(o *Object) promise.Settler, opts ...CallOption) *promise.Promise[struct{}] {
	loop := q.loop()
	if q.err != nil {
		return rejectedOn[struct{}](loop, q.err)
	}
	if len(q.order) > 0 || q.limit >= 0 || q.skip > 0 {
		return rejectedOn[struct{}](loop, connection.NewError(constants.InvalidQuery,
			"cannot iterate on a query with sort, skip, or limit"))
	}
	cfg := newCallConfig(opts)
	size := constants.DefaultLimit
	if cfg.batchSize > 0 {
		size = min(cfg.batchSize, constants.MaxLimit)
	}

	done := promise.NewOn[struct{}](loop)
	var page func(after string)
	page = func(after string) {
		pq := q.clone().Ascending(constants.KeyObjectID).Limit(size)
		if after != "" {
			pq.GreaterThan(constants.KeyObjectID, after)
		}
		pq.Find(ctx, opts...).Always(func(objs []*Object, err error) {
			if err != nil {
				done.Reject(err)
				return
			}
			visit(objs, fn, func(err error) {
				switch {
				case err != nil:
					done.Reject(err)
				case len(objs) < size:
					done.Resolve(struct{}{})
				default:
					page(objs[len(objs)-1].ID())
				}
			})
		})
	}
	page("")
	return done
}

// visit calls fn on each object in turn, waiting for the promises it returns,
// then calls finish.
func visit(objs []*Object, fn func(*Object) promise.Settler, finish func(error)) {
	for i, o := range objs {
		s := fn(o)
		if s == nil {
			continue
		}
		rest := objs[i+1:]
		promise.When(s).Always(func(_ []any, err error) {
			if err != nil {
				finish(err)
				return
			}
			visit(rest, fn, finish)
		})
		return
	}
	finish(nil)
}
