package leanstore

import (
	"context"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// SaveAll saves objects and the unsaved objects they reference, in rounds:
// an object is sent once every object it references has an id. Each round is
// sent in batches of at most constants.MaxBatchSize requests.
//
// The first round with a failure ends the save with an *AggregateError; the
// objects saved until then stay saved.
func (c *Client) SaveAll(ctx context.Context, objects []*Object, opts ...CallOption) *promise.Promise[[]*Object] {
	cfg := newCallConfig(opts)
	cfg.attrs, cfg.wait = nil, false
	result := promise.NewOn[[]*Object](c.loop)

	remaining := unsavedClosure(objects)
	var succeeded []*Object
	var step func()
	step = func() {
		if len(remaining) == 0 {
			result.Resolve(objects)
			return
		}
		var ready, blocked []*Object
		for _, o := range remaining {
			if len(o.unsavedChildren(nil)) == 0 {
				ready = append(ready, o)
			} else {
				blocked = append(blocked, o)
			}
		}
		if len(ready) == 0 {
			result.Reject(connection.NewError(constants.ValidationError, "unsaved objects reference each other"))
			return
		}
		c.saveRound(ctx, ready, cfg).Done(func(errs []error) {
			agg := &AggregateError{}
			for i, err := range errs {
				if err != nil {
					agg.add(ready[i], err)
				} else {
					succeeded = append(succeeded, ready[i])
				}
			}
			if agg.Err != nil {
				agg.Succeeded = succeeded
				c.log.Error("batch save failed", "failed", len(agg.Errors), "succeeded", len(succeeded), "error", agg.Err)
				result.Reject(agg)
				return
			}
			remaining = blocked
			step()
		})
	}
	step()
	return result
}

// unsavedClosure returns objects followed by every unsaved object reachable from
// them through pending operations, without duplicates.
func unsavedClosure(objects []*Object) []*Object {
	seen := map[*Object]bool{}
	var out []*Object
	var visit func(o *Object)
	visit = func(o *Object) {
		if o == nil || seen[o] {
			return
		}
		seen[o] = true
		out = append(out, o)
		for _, child := range o.unsavedChildren(nil) {
			visit(child)
		}
	}
	for _, o := range objects {
		visit(o)
	}
	return out
}

// saveRound saves objects that reference no unsaved object and reports the
// outcome of each. The returned promise never rejects.
func (c *Client) saveRound(ctx context.Context, objects []*Object, cfg callConfig) *promise.Promise[[]error] {
	errs := make([]error, len(objects))
	var (
		txs     []*saveTx
		txIndex []int
		waits   []promise.Settler
	)
	for i, o := range objects {
		tx, inflight, err := o.beginSave(cfg)
		switch {
		case err != nil:
			errs[i] = err
		case inflight != nil:
			waits = append(waits, inflight.Catch(func(err error) (*Object, error) {
				errs[i] = err
				return nil, nil
			}))
		case tx != nil:
			txs = append(txs, tx)
			txIndex = append(txIndex, i)
		}
	}

	reqs := make([]*connection.Request, len(txs))
	for i, tx := range txs {
		reqs[i] = tx.req
	}
	sent := promise.Then(c.sendBatch(ctx, reqs, cfg.request), func(results []connection.BatchResult) (struct{}, error) {
		for j, res := range results {
			tx := txs[j]
			if res.Error != nil {
				errs[txIndex[j]] = tx.rollback(res.Error)
				continue
			}
			errs[txIndex[j]] = tx.commit(res.Success)
		}
		return struct{}{}, nil
	}, nil)
	waits = append(waits, sent)

	return promise.Then(promise.When(waits...), func([]any) ([]error, error) {
		return errs, nil
	}, nil)
}

// sendBatch sends reqs in batches and returns one result per request, in
// order. A batch that fails as a whole fails each of its requests. The
// returned promise never rejects.
func (c *Client) sendBatch(ctx context.Context, reqs []*connection.Request, ro RequestOptions) *promise.Promise[[]connection.BatchResult] {
	if len(reqs) == 0 {
		return resolvedOn(c.loop, []connection.BatchResult{})
	}
	chunks := make([]*promise.Promise[[]connection.BatchResult], 0, len(reqs)/constants.MaxBatchSize+1)
	for start := 0; start < len(reqs); start += constants.MaxBatchSize {
		end := min(start+constants.MaxBatchSize, len(reqs))
		chunk := reqs[start:end]
		for _, r := range chunk {
			r.Options = c.options(ro)
		}
		res := c.send(ctx, &connection.Request{Intent: connection.IntentBatch, Requests: chunk}, ro)
		chunks = append(chunks, promise.Then(res, func(r *connection.Response) ([]connection.BatchResult, error) {
			results, err := r.BatchResults()
			if err == nil && len(results) != len(chunk) {
				err = connection.Errorf(constants.InvalidJSON, "batch returned %d results for %d requests", len(results), len(chunk))
			}
			if err != nil {
				return failAll(len(chunk), err), nil
			}
			return results, nil
		}, func(err error) ([]connection.BatchResult, error) {
			return failAll(len(chunk), err), nil
		}))
	}
	return promise.Then(promise.All(chunks...), func(parts [][]connection.BatchResult) ([]connection.BatchResult, error) {
		out := make([]connection.BatchResult, 0, len(reqs))
		for _, part := range parts {
			out = append(out, part...)
		}
		return out, nil
	}, nil)
}

func failAll(n int, err error) []connection.BatchResult {
	e := connection.AsError(err)
	out := make([]connection.BatchResult, n)
	for i := range out {
		out[i].Error = e
	}
	return out
}

// sameClass checks that objects share one class and are all saved.
func sameClass(objects []*Object) error {
	for _, o := range objects {
		if o.ClassName() != objects[0].ClassName() {
			return connection.Errorf(constants.ValidationError,
				"objects of different classes: %s and %s", objects[0].ClassName(), o.ClassName())
		}
		if o.ID() == "" {
			return connection.Errorf(constants.MissingObjectID, "unsaved %s in batch", o.ClassName())
		}
	}
	return nil
}

// DestroyAll deletes objects, which must share one class and all be saved.
func (c *Client) DestroyAll(ctx context.Context, objects []*Object, opts ...CallOption) *promise.Promise[[]*Object] {
	cfg := newCallConfig(opts)
	if len(objects) == 0 {
		return resolvedOn(c.loop, objects)
	}
	if err := sameClass(objects); err != nil {
		return rejectedOn[[]*Object](c.loop, err)
	}
	var where map[string]any
	if cfg.where != nil {
		w, err := cfg.where.conditionFor(objects[0].ClassName())
		if err != nil {
			return rejectedOn[[]*Object](c.loop, err)
		}
		where = w
	}

	reqs := make([]*connection.Request, len(objects))
	for i, o := range objects {
		reqs[i] = &connection.Request{
			Intent:    connection.IntentDelete,
			ClassName: o.ClassName(),
			ObjectID:  o.ID(),
		}
		if where != nil {
			reqs[i].Params = map[string]any{"where": where}
		}
		if !cfg.wait {
			o.Trigger(EventDestroy)
		}
	}
	return c.finishBatch(ctx, objects, reqs, cfg, func(o *Object, _ map[string]any) error {
		o.markDestroyed()
		if cfg.wait {
			o.Trigger(EventDestroy)
		}
		return nil
	})
}

// FetchAll reloads objects, which must share one class and all be saved.
func (c *Client) FetchAll(ctx context.Context, objects []*Object, opts ...CallOption) *promise.Promise[[]*Object] {
	cfg := newCallConfig(opts)
	if len(objects) == 0 {
		return resolvedOn(c.loop, objects)
	}
	if err := sameClass(objects); err != nil {
		return rejectedOn[[]*Object](c.loop, err)
	}
	reqs := make([]*connection.Request, len(objects))
	for i, o := range objects {
		reqs[i] = &connection.Request{
			Intent:    connection.IntentGet,
			ClassName: o.ClassName(),
			ObjectID:  o.ID(),
		}
		reqs[i].Params = fetchParams(cfg)
	}
	return c.finishBatch(ctx, objects, reqs, cfg, func(o *Object, body map[string]any) error {
		return o.applyFetched(body, len(cfg.keys) == 0)
	})
}

// FetchAllIfNeeded fetches the objects whose data was never fetched and
// resolves with all of objects.
func (c *Client) FetchAllIfNeeded(ctx context.Context, objects []*Object, opts ...CallOption) *promise.Promise[[]*Object] {
	var needed []*Object
	for _, o := range objects {
		if !o.isFetched() {
			needed = append(needed, o)
		}
	}
	return promise.Then(c.FetchAll(ctx, needed, opts...), func([]*Object) ([]*Object, error) {
		return objects, nil
	}, nil)
}

// finishBatch sends reqs, one per object, and applies each success with done.
func (c *Client) finishBatch(ctx context.Context, objects []*Object, reqs []*connection.Request, cfg callConfig,
	done func(o *Object, body map[string]any) error) *promise.Promise[[]*Object] {
	return promise.Then(c.sendBatch(ctx, reqs, cfg.request), func(results []connection.BatchResult) ([]*Object, error) {
		agg := &AggregateError{}
		for i, res := range results {
			o := objects[i]
			err := error(res.Error)
			if res.Error == nil {
				err = done(o, res.Success)
			}
			if err != nil {
				o.Trigger(EventError, err)
				agg.add(o, err)
				continue
			}
			agg.Succeeded = append(agg.Succeeded, o)
		}
		if agg.Err != nil {
			c.log.Error("batch request failed", "failed", len(agg.Errors), "succeeded", len(agg.Succeeded), "error", agg.Err)
			return nil, agg
		}
		return objects, nil
	}, nil)
}
