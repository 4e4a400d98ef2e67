// Package acl holds per-record access control lists.
//
// An ACL maps subjects to explicit read and write grants. Subjects are user ids,
// "role:<name>" for roles and "*" for the public. Only explicit grants are recorded;
// role inheritance is resolved by the store, never here.
package acl

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PublicSubject is the subject standing for everyone.
const PublicSubject = "*"

const rolePrefix = "role:"

// Permission is the explicit grant recorded for one subject.
type Permission struct {
	Read  bool `json:"read,omitempty"`
	Write bool `json:"write,omitempty"`
}

// ACL is safe for concurrent use. A nil *ACL holds no grants; its getters report
// false.
type ACL struct {
	mu          sync.RWMutex
	permissions map[string]Permission
}

// New returns an empty ACL. Every getter on it reports false.
func New() *ACL {
	return &ACL{permissions: map[string]Permission{}}
}

// ForUser returns an ACL granting read and write to userID only.
func ForUser(userID string) *ACL {
	a := New()
	a.SetReadAccess(userID, true)
	a.SetWriteAccess(userID, true)
	return a
}

// RoleSubject returns the subject key for the role name.
func RoleSubject(role string) string {
	return rolePrefix + role
}

func (a *ACL) set(subject string, apply func(*Permission)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.permissions == nil {
		a.permissions = map[string]Permission{}
	}
	p := a.permissions[subject]
	apply(&p)
	if !p.Read && !p.Write {
		delete(a.permissions, subject)
		return
	}
	a.permissions[subject] = p
}

func (a *ACL) get(subject string) Permission {
	if a == nil {
		return Permission{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.permissions[subject]
}

func (a *ACL) SetReadAccess(subject string, allowed bool) {
	a.set(subject, func(p *Permission) { p.Read = allowed })
}

func (a *ACL) SetWriteAccess(subject string, allowed bool) {
	a.set(subject, func(p *Permission) { p.Write = allowed })
}

// GetReadAccess reports only the explicit grant for subject.
func (a *ACL) GetReadAccess(subject string) bool { return a.get(subject).Read }

// GetWriteAccess reports only the explicit grant for subject.
func (a *ACL) GetWriteAccess(subject string) bool { return a.get(subject).Write }

func (a *ACL) SetPublicReadAccess(allowed bool)  { a.SetReadAccess(PublicSubject, allowed) }
func (a *ACL) SetPublicWriteAccess(allowed bool) { a.SetWriteAccess(PublicSubject, allowed) }
func (a *ACL) GetPublicReadAccess() bool         { return a.GetReadAccess(PublicSubject) }
func (a *ACL) GetPublicWriteAccess() bool        { return a.GetWriteAccess(PublicSubject) }

func (a *ACL) SetRoleReadAccess(role string, allowed bool) {
	a.SetReadAccess(RoleSubject(role), allowed)
}

func (a *ACL) SetRoleWriteAccess(role string, allowed bool) {
	a.SetWriteAccess(RoleSubject(role), allowed)
}

func (a *ACL) GetRoleReadAccess(role string) bool  { return a.GetReadAccess(RoleSubject(role)) }
func (a *ACL) GetRoleWriteAccess(role string) bool { return a.GetWriteAccess(RoleSubject(role)) }

// Subjects returns the subjects holding any grant, sorted.
func (a *ACL) Subjects() []string {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.permissions))
	for s := range a.permissions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of a. The copy of a nil ACL is nil.
func (a *ACL) Clone() *ACL {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	c := New()
	for s, p := range a.permissions {
		c.permissions[s] = p
	}
	return c
}

// Equal reports whether a and b hold the same grants.
func (a *ACL) Equal(b *ACL) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Encode().equal(b.Encode())
}

// Wire is the encoded form of an ACL.
type Wire map[string]map[string]bool

// Encode returns the wire form, {"subject": {"read": true, "write": true}}.
// A nil ACL encodes as an empty Wire.
func (a *ACL) Encode() Wire {
	if a == nil {
		return Wire{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(Wire, len(a.permissions))
	for s, p := range a.permissions {
		m := map[string]bool{}
		if p.Read {
			m["read"] = true
		}
		if p.Write {
			m["write"] = true
		}
		out[s] = m
	}
	return out
}

func (w Wire) equal(o Wire) bool {
	if len(w) != len(o) {
		return false
	}
	for s, p := range w {
		q, ok := o[s]
		if !ok || p["read"] != q["read"] || p["write"] != q["write"] {
			return false
		}
	}
	return true
}

// Decode parses the wire form as found in a decoded JSON body.
func Decode(v any) (*ACL, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid ACL %T", v)
	}
	a := New()
	for subject, raw := range m {
		grants, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid ACL entry for %q: %T", subject, raw)
		}
		for name, allowed := range grants {
			b, ok := allowed.(bool)
			if !ok {
				return nil, fmt.Errorf("invalid ACL grant %q for %q: %T", name, subject, allowed)
			}
			switch strings.ToLower(name) {
			case "read":
				a.SetReadAccess(subject, b)
			case "write":
				a.SetWriteAccess(subject, b)
			default:
				return nil, fmt.Errorf("unknown ACL grant %q for %q", name, subject)
			}
		}
	}
	return a, nil
}

// MarshalJSON encodes the wire form.
func (a *ACL) MarshalJSON() ([]byte, error) {
	return marshal(a.Encode())
}
