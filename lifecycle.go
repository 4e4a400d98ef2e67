package leanstore

import (
	"context"
	"reflect"
	"strings"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/op"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// CallOption adjusts one Save, Fetch or Destroy.
type CallOption func(*callConfig)

type callConfig struct {
	request       RequestOptions
	fetchWhenSave bool
	where         *Query
	wait          bool
	attrs         map[string]any
	keys          []string
	include       []string
	batchSize     int
}

func newCallConfig(opts []CallOption) callConfig {
	var cfg callConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// UseMasterKey sends the request with or without the master key, overriding
// the client default.
func UseMasterKey(use bool) CallOption {
	return func(c *callConfig) { c.request.UseMasterKey = &use }
}

// WithSessionToken authenticates the request as the given session.
func WithSessionToken(token string) CallOption {
	return func(c *callConfig) { c.request.SessionToken = token }
}

// WithRequestOptions sets every authentication override at once.
func WithRequestOptions(ro RequestOptions) CallOption {
	return func(c *callConfig) { c.request = ro }
}

// FetchWhenSave makes the save reply carry the full stored record.
func FetchWhenSave() CallOption {
	return func(c *callConfig) { c.fetchWhenSave = true }
}

// Condition makes a save or destroy succeed only when the stored record matches q.
// Otherwise it is rejected with constants.ErrConditionNotMet.
func Condition(q *Query) CallOption {
	return func(c *callConfig) { c.where = q }
}

// Wait defers local changes until the store confirms them: attributes passed with
// WithAttributes are applied on success only, and destroy fires after the reply.
func Wait() CallOption {
	return func(c *callConfig) { c.wait = true }
}

// WithAttributes sets attrs as part of the save.
func WithAttributes(attrs map[string]any) CallOption {
	return func(c *callConfig) { c.attrs = attrs }
}

// Keys limits a fetch to the given fields.
func Keys(keys ...string) CallOption {
	return func(c *callConfig) { c.keys = append(c.keys, keys...) }
}

// Include makes a fetch return the pointed-to objects of the given fields.
func Include(keys ...string) CallOption {
	return func(c *callConfig) { c.include = append(c.include, keys...) }
}

// saveTx is one save of one object, from the snapshot of its operations to the
// store's reply.
type saveTx struct {
	obj        *Object
	req        *connection.Request
	sent       map[string]op.Op
	queued     map[string]op.Op
	aclVersion int
	created    bool
	promise    *promise.Promise[*Object]
}

// Save sends the pending operations of o.
//
// While a save of o is in flight, Save returns the in-flight promise; changes
// made meanwhile wait for the next Save. Unsaved objects referenced by the pending
// operations are saved first. Saving an unchanged stored object resolves
// without a request.
func (o *Object) Save(ctx context.Context, opts ...CallOption) *promise.Promise[*Object] {
	cfg := newCallConfig(opts)
	loop := o.client.loop

	if len(cfg.attrs) > 0 {
		if cfg.wait {
			for key, v := range cfg.attrs {
				if err := o.checkKey(key); err != nil {
					return rejectedOn[*Object](loop, err)
				}
				if err := o.checkCapability(key, v); err != nil {
					return rejectedOn[*Object](loop, err)
				}
			}
		} else {
			if err := o.SetAll(cfg.attrs); err != nil {
				return rejectedOn[*Object](loop, err)
			}
			cfg.attrs = nil
		}
	}

	children := o.unsavedChildren(cfg.attrs)
	if len(children) == 0 {
		return o.save(ctx, cfg)
	}
	deps := o.client.SaveAll(ctx, children, WithRequestOptions(cfg.request))
	return promise.ThenPromise(deps, func([]*Object) *promise.Promise[*Object] {
		return o.save(ctx, cfg)
	}, nil)
}

func (o *Object) save(ctx context.Context, cfg callConfig) *promise.Promise[*Object] {
	loop := o.client.loop
	tx, inflight, err := o.beginSave(cfg)
	switch {
	case err != nil:
		return rejectedOn[*Object](loop, err)
	case tx == nil && inflight != nil:
		return inflight
	case tx == nil:
		return resolvedOn(loop, o)
	}

	o.client.send(ctx, tx.req, cfg.request).Always(func(r *connection.Response, err error) {
		if err != nil {
			tx.rollback(err)
			return
		}
		body, err := r.Object()
		if err != nil {
			tx.rollback(err)
			return
		}
		tx.commit(body)
	})
	return tx.promise
}

// beginSave moves the pending operations of o into a new in-flight save. It
// returns the running save instead when there is one, and neither when there is
// nothing to send.
func (o *Object) beginSave(cfg callConfig) (*saveTx, *promise.Promise[*Object], error) {
	if err := o.checkRole(); err != nil {
		return nil, nil, err
	}
	attrs := o.Attributes()
	for k, v := range cfg.attrs {
		attrs[k] = v
	}
	if err := o.validate(attrs); err != nil {
		return nil, nil, err
	}
	var where map[string]any
	if cfg.where != nil {
		w, err := cfg.where.conditionFor(o.className)
		if err != nil {
			return nil, nil, err
		}
		where = w
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return nil, nil, connection.Errorf(constants.ValidationError, "%s/%s was destroyed", o.className, o.id)
	}
	if o.saving != nil {
		return nil, o.saving, nil
	}
	aclDirty := o.aclVersion != o.aclSaved
	if o.id != "" && len(o.pending) == 0 && len(cfg.attrs) == 0 && !aclDirty {
		return nil, nil, nil
	}

	sent := make(map[string]op.Op, len(o.pending)+len(cfg.attrs))
	for k, x := range o.pending {
		sent[k] = x
	}
	for k, v := range cfg.attrs {
		sent[k] = op.NewSet(v)
	}
	body := make(map[string]any, len(sent)+1)
	for k, x := range sent {
		enc, err := x.Encode(encodeValue)
		if err != nil {
			return nil, nil, connection.AsError(err)
		}
		body[k] = enc
	}
	if aclDirty && o.acl != nil {
		body[constants.KeyACL] = o.acl.Encode()
	}

	req := &connection.Request{
		ClassName: o.className,
		Body:      body,
		Params:    map[string]any{},
	}
	if o.id == "" {
		req.Intent = connection.IntentCreate
	} else {
		req.Intent = connection.IntentUpdate
		req.ObjectID = o.id
	}
	if cfg.fetchWhenSave || o.fetchWhenSave {
		req.Params["fetchWhenSave"] = true
	}
	if where != nil {
		req.Params["where"] = where
	}

	tx := &saveTx{
		obj:        o,
		req:        req,
		sent:       sent,
		queued:     o.pending,
		aclVersion: o.aclVersion,
		created:    o.id == "",
		promise:    promise.NewOn[*Object](o.client.loop),
	}
	o.inflight = o.pending
	o.pending = map[string]op.Op{}
	o.saving = tx.promise
	return tx, nil, nil
}

// commit folds the sent operations into the server data and overlays the reply.
func (tx *saveTx) commit(body map[string]any) error {
	o := tx.obj
	o.mu.Lock()
	for k, x := range tx.sent {
		v, err := x.Apply(o.serverData[k])
		if err != nil {
			continue
		}
		switch r := x.(type) {
		case op.Unset:
			delete(o.serverData, k)
			continue
		case op.Relation:
			if v == nil {
				v = &Relation{parent: o, key: k, targetClass: r.TargetClass()}
			}
		}
		o.serverData[k] = v
	}
	o.inflight = nil
	o.aclSaved = tx.aclVersion
	var changed []string
	for _, k := range sortedKeys(tx.sent) {
		before, had := o.attributes[k]
		o.recompute(k)
		after, has := o.attributes[k]
		if had != has || !op.Equal(before, after) {
			changed = append(changed, k)
		}
	}
	o.existed = !tx.created
	o.saving = nil
	o.mu.Unlock()

	more, err := o.mergeServer(body)
	if err != nil {
		o.Trigger(EventError, err)
		tx.promise.Reject(err)
		return err
	}
	if o.kind == KindUser {
		o.forgetPassword()
	}
	if tx.created {
		o.client.registry.remember(o)
	}
	o.fireChanges(mergeKeys(changed, more), false)
	o.Trigger(EventSave)
	tx.promise.Resolve(o)
	return nil
}

// rollback puts the sent operations back under the ones queued during the flight.
func (tx *saveTx) rollback(err error) error {
	o := tx.obj
	err = connection.AsError(err)

	o.mu.Lock()
	for k, queued := range tx.queued {
		newer, ok := o.pending[k]
		if !ok {
			o.pending[k] = queued
			continue
		}
		merged, merr := op.Merge(queued, newer)
		if merr != nil {
			merged, merr = o.collapse(k, queued, newer)
		}
		if merr != nil {
			o.client.log.Warn("dropping operation of failed save",
				"class", o.className, "id", o.id, "key", k, "error", merr)
			continue
		}
		o.pending[k] = merged
	}
	o.inflight = nil
	for k := range tx.queued {
		o.recompute(k)
	}
	o.saving = nil
	o.mu.Unlock()

	o.Trigger(EventError, err)
	tx.promise.Reject(err)
	return err
}

// collapse folds two operations that cannot merge into a Set of the value the
// caller saw, the server value with first and then second applied.
func (o *Object) collapse(key string, first, second op.Op) (op.Op, error) {
	_, firstRel := first.(op.Relation)
	_, secondRel := second.(op.Relation)
	if firstRel || secondRel {
		return nil, connection.Errorf(constants.ValidationError, "cannot combine relation changes to %q", key)
	}
	if op.IsUnset(second) {
		return second, nil
	}
	value, err := first.Apply(o.serverData[key])
	if err != nil {
		return nil, err
	}
	if value, err = second.Apply(value); err != nil {
		return nil, err
	}
	return op.NewSet(value), nil
}

// Fetch reloads o from the store. Fields whose value changes fire change
// events; pending operations stay queued and keep applying on top.
func (o *Object) Fetch(ctx context.Context, opts ...CallOption) *promise.Promise[*Object] {
	cfg := newCallConfig(opts)
	loop := o.client.loop
	if o.IsDestroyed() {
		return rejectedOn[*Object](loop, connection.Errorf(constants.ValidationError, "%s/%s was destroyed", o.className, o.ID()))
	}
	id := o.ID()
	if id == "" {
		return rejectedOn[*Object](loop, connection.Errorf(constants.MissingObjectID, "cannot fetch an unsaved %s", o.className))
	}

	req := &connection.Request{
		Intent:    connection.IntentGet,
		ClassName: o.className,
		ObjectID:  id,
		Params:    fetchParams(cfg),
	}
	res := o.client.send(ctx, req, cfg.request)
	return promise.Then(res, func(r *connection.Response) (*Object, error) {
		body, err := r.Object()
		if err != nil {
			return nil, err
		}
		if err := o.applyFetched(body, len(cfg.keys) == 0); err != nil {
			return nil, err
		}
		return o, nil
	}, func(err error) (*Object, error) {
		o.Trigger(EventError, err)
		return nil, err
	})
}

func fetchParams(cfg callConfig) map[string]any {
	params := map[string]any{}
	if len(cfg.keys) > 0 {
		params["keys"] = strings.Join(cfg.keys, ",")
	}
	if len(cfg.include) > 0 {
		params["include"] = strings.Join(cfg.include, ",")
	}
	return params
}

// applyFetched overlays a fetched record. A full record also drops the fields
// the store no longer has.
func (o *Object) applyFetched(body map[string]any, full bool) error {
	changed, err := o.mergeServer(body)
	if err != nil {
		return err
	}
	if full {
		changed = mergeKeys(changed, o.dropServerKeys(body))
	}
	o.markFetched()
	o.fireChanges(changed, false)
	o.Trigger(EventFetch)
	return nil
}

// Destroy deletes o from the store. Without Wait the destroy event fires
// before the request is sent.
func (o *Object) Destroy(ctx context.Context, opts ...CallOption) *promise.Promise[*Object] {
	cfg := newCallConfig(opts)
	loop := o.client.loop
	id := o.ID()
	if id == "" {
		return rejectedOn[*Object](loop, connection.Errorf(constants.MissingObjectID, "cannot destroy an unsaved %s", o.className))
	}
	req := &connection.Request{
		Intent:    connection.IntentDelete,
		ClassName: o.className,
		ObjectID:  id,
		Params:    map[string]any{},
	}
	if cfg.where != nil {
		where, err := cfg.where.conditionFor(o.className)
		if err != nil {
			return rejectedOn[*Object](loop, err)
		}
		req.Params["where"] = where
	}

	if !cfg.wait {
		o.Trigger(EventDestroy)
	}
	res := o.client.send(ctx, req, cfg.request)
	return promise.Then(res, func(*connection.Response) (*Object, error) {
		o.markDestroyed()
		if cfg.wait {
			o.Trigger(EventDestroy)
		}
		return o, nil
	}, func(err error) (*Object, error) {
		o.Trigger(EventError, err)
		return nil, err
	})
}

func (o *Object) markDestroyed() {
	o.mu.Lock()
	o.destroyed = true
	o.mu.Unlock()
	o.client.registry.forget(o)
}

func (o *Object) forgetPassword() {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.serverData, "password")
	if _, ok := o.pending["password"]; !ok {
		delete(o.attributes, "password")
	}
}

// unsavedChildren returns the unsaved objects other than o referenced by its
// pending operations or by extra.
func (o *Object) unsavedChildren(extra map[string]any) []*Object {
	o.mu.Lock()
	var values []any
	for _, x := range o.pending {
		values = append(values, opValues(x)...)
	}
	o.mu.Unlock()
	for _, v := range extra {
		values = append(values, v)
	}

	var out []*Object
	seen := map[*Object]bool{o: true}
	for _, v := range values {
		collectUnsaved(v, seen, &out)
	}
	return out
}

func opValues(x op.Op) []any {
	switch t := x.(type) {
	case op.Set:
		return []any{t.Value()}
	case op.Add:
		return t.Objects()
	case op.AddUnique:
		return t.Objects()
	case op.Remove:
		return t.Objects()
	case op.Relation:
		return append(t.Added(), t.Removed()...)
	}
	return nil
}

func collectUnsaved(v any, seen map[*Object]bool, out *[]*Object) {
	switch t := v.(type) {
	case nil, string, []byte:
		return
	case objectHolder:
		obj := t.object()
		if obj == nil || seen[obj] {
			return
		}
		seen[obj] = true
		if obj.ID() == "" {
			*out = append(*out, obj)
		}
		return
	case map[string]any:
		for _, item := range t {
			collectUnsaved(item, seen, out)
		}
		return
	case []any:
		for _, item := range t {
			collectUnsaved(item, seen, out)
		}
		return
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			collectUnsaved(rv.Index(i).Interface(), seen, out)
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			collectUnsaved(iter.Value().Interface(), seen, out)
		}
	}
}

func mergeKeys(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, k := range append(append([]string{}, a...), b...) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
