package leanstore

import (
	"sync"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/op"
)

// Relation is the many-to-many field key of parent. Its members live in the
// store and are read with Query.
type Relation struct {
	parent *Object
	key    string

	mu          sync.Mutex
	targetClass string
}

// Relation returns the relation field key of o.
func (o *Object) Relation(key string) *Relation {
	if r, ok := o.Get(key).(*Relation); ok {
		r.mu.Lock()
		if r.parent == nil {
			r.parent, r.key = o, key
		}
		r.mu.Unlock()
		return r
	}
	return &Relation{parent: o, key: key}
}

func (r *Relation) Parent() *Object { return r.parent }
func (r *Relation) Key() string     { return r.key }

// TargetClass returns the class of the members, empty until known.
func (r *Relation) TargetClass() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targetClass
}

// Add queues adding objects to the relation. They must all be of the target class.
func (r *Relation) Add(objects ...*Object) error {
	return r.change(objects, nil)
}

// Remove queues removing objects from the relation.
func (r *Relation) Remove(objects ...*Object) error {
	return r.change(nil, objects)
}

func (r *Relation) change(added, removed []*Object) error {
	if r.parent == nil {
		return connection.NewError(constants.ValidationError, "relation without parent")
	}
	target, err := r.checkClass(append(append([]*Object{}, added...), removed...))
	if err != nil {
		return err
	}
	x := op.NewRelation(target, asItems(added), asItems(removed))
	if err := r.parent.checkKey(r.key); err != nil {
		return err
	}
	if err := r.parent.queue(r.key, x); err != nil {
		return err
	}
	r.mu.Lock()
	r.targetClass = target
	r.mu.Unlock()
	r.parent.fireChanges([]string{r.key}, false)
	return nil
}

func (r *Relation) checkClass(objects []*Object) (string, error) {
	target := r.TargetClass()
	for _, o := range objects {
		if target == "" {
			target = o.ClassName()
		}
		if o.ClassName() != target {
			return "", connection.Wrap(constants.ValidationError, op.ErrRelationClass)
		}
	}
	return target, nil
}

func asItems(objects []*Object) []any {
	if len(objects) == 0 {
		return nil
	}
	out := make([]any, len(objects))
	for i, o := range objects {
		out[i] = o
	}
	return out
}

// Query returns a query over the members of the relation.
func (r *Relation) Query() *Query {
	c := r.parent.client
	target := r.TargetClass()
	if target == "" {
		return c.Query(r.parent.ClassName()).
			Param("redirectClassNameForKey", r.key).
			RelatedTo(r.parent, r.key)
	}
	return c.Query(target).RelatedTo(r.parent, r.key)
}

// ReverseQuery returns a query over the objects of parentClass whose relation
// key contains child.
func (c *Client) ReverseQuery(parentClass, key string, child *Object) *Query {
	return c.Query(parentClass).EqualTo(key, child)
}
