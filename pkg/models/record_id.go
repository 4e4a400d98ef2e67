package models

import (
	"fmt"
	"strings"
)

// Pointer references an object of another class by id.
type Pointer struct {
	ClassName string
	ObjectID  string
}

func NewPointer(className, objectID string) Pointer {
	return Pointer{ClassName: className, ObjectID: objectID}
}

// ParsePointer parses the "ClassName:objectId" form produced by String.
func ParsePointer(s string) (Pointer, error) {
	bits := strings.Split(s, ":")
	if len(bits) != 2 || bits[0] == "" || bits[1] == "" {
		return Pointer{}, fmt.Errorf("invalid pointer string %q, expected format is 'ClassName:objectId'", s)
	}
	return Pointer{ClassName: bits[0], ObjectID: bits[1]}, nil
}

func (p Pointer) Encode() map[string]any {
	return map[string]any{
		"__type":    TypePointer,
		"className": p.ClassName,
		"objectId":  p.ObjectID,
	}
}

func (p Pointer) String() string {
	return fmt.Sprintf("%s:%s", p.ClassName, p.ObjectID)
}

// IdentityKey identifies the referenced object. An unsaved reference has no identity.
func (p Pointer) IdentityKey() string {
	if p.ObjectID == "" {
		return ""
	}
	return p.ClassName + "/" + p.ObjectID
}
