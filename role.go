package leanstore

import (
	"github.com/leanstore/leanstore.go/pkg/acl"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

// Role is an object of the role class: a named group of users and roles that
// ACLs grant access to.
type Role struct {
	*Object
}

// NewRole creates an unsaved role. A role needs an ACL; its name cannot change
// once saved.
func (c *Client) NewRole(name string, a *acl.ACL) (*Role, error) {
	if a == nil {
		return nil, connection.NewError(constants.InvalidACL, "a role needs an ACL")
	}
	r := &Role{c.Object(constants.ClassRole)}
	if err := r.SetName(name); err != nil {
		return nil, err
	}
	r.SetACL(a)
	return r, nil
}

// AsRole views o as a role.
func AsRole(o *Object) (*Role, error) {
	if o == nil || o.kind != KindRole {
		return nil, connection.NewError(constants.IncorrectType, "object is not a role")
	}
	return &Role{o}, nil
}

func (r *Role) Name() string {
	s, _ := r.Get("name").(string)
	return s
}

func (r *Role) SetName(name string) error { return r.Set("name", name) }

// Users returns the relation of the users in the role.
func (r *Role) Users() *Relation { return r.typedRelation("users", constants.ClassUser) }

// Roles returns the relation of the roles whose members inherit this role.
func (r *Role) Roles() *Relation { return r.typedRelation("roles", constants.ClassRole) }

func (r *Role) typedRelation(key, target string) *Relation {
	rel := r.Relation(key)
	rel.mu.Lock()
	if rel.targetClass == "" {
		rel.targetClass = target
	}
	rel.mu.Unlock()
	return rel
}

// checkRole enforces what a role needs before it is saved.
func (o *Object) checkRole() error {
	if o.kind != KindRole {
		return nil
	}
	if o.GetACL() == nil {
		return connection.NewError(constants.InvalidACL, "a role needs an ACL")
	}
	if name, _ := o.Get("name").(string); name == "" {
		return connection.NewError(constants.InvalidRoleName, "a role needs a name")
	}
	return nil
}
