package leanstore

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/leanstore/leanstore.go/pkg/constants"
)

// ClassSpec customizes the objects of one class.
type ClassSpec struct {
	// Initialize runs on every new object of the class, including objects
	// decoded from the store, before any attribute is set.
	Initialize func(o *Object)
	// Validate is called with the attributes about to be set and with all the
	// attributes before a save. A non-nil error rejects the change.
	Validate func(o *Object, attrs map[string]any) error
	// IdentityTableSize enables an identity table of that many objects: decoding a
	// row whose id is already in the table updates and returns the same *Object.
	IdentityTableSize int
}

// Class is a registered class.
type Class struct {
	name       string
	spec       ClassSpec
	identities *lru.Cache[string, *Object]
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Registry maps class names to their specs. The most recent Extend of a class wins.
// A Registry is owned by the caller and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Extend registers spec for className and returns the registered class.
func (r *Registry) Extend(className string, spec ClassSpec) *Class {
	c := &Class{name: className, spec: spec}
	if spec.IdentityTableSize > 0 {
		// New only fails on a non-positive size.
		c.identities, _ = lru.New[string, *Object](spec.IdentityTableSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[className] = c
	return c
}

// Lookup returns the registered class of className.
func (r *Registry) Lookup(className string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[className]
	return c, ok
}

func (r *Registry) spec(className string) ClassSpec {
	if c, ok := r.Lookup(className); ok {
		return c.spec
	}
	return ClassSpec{}
}

// identity returns the object registered under className and id, if the class
// keeps an identity table.
func (r *Registry) identity(className, id string) (*Object, bool) {
	c, ok := r.Lookup(className)
	if !ok || c.identities == nil || id == "" {
		return nil, false
	}
	return c.identities.Get(id)
}

func (r *Registry) remember(o *Object) {
	c, ok := r.Lookup(o.className)
	if !ok || c.identities == nil {
		return
	}
	if id := o.ID(); id != "" {
		c.identities.Add(id, o)
	}
}

func (r *Registry) forget(o *Object) {
	c, ok := r.Lookup(o.className)
	if !ok || c.identities == nil {
		return
	}
	if id := o.ID(); id != "" {
		c.identities.Remove(id)
	}
}

// kindOf selects the capability variant of the built-in classes.
func kindOf(className string) Kind {
	switch className {
	case constants.ClassUser:
		return KindUser
	case constants.ClassRole:
		return KindRole
	case constants.ClassInstallation:
		return KindInstallation
	default:
		return KindObject
	}
}
