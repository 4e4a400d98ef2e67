package leanstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/leanstore/leanstore.go/pkg/acl"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
)

// encodeValue converts an attribute value into its wire form. Objects are sent as
// pointers and must have been saved.
func encodeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool:
		return v, nil
	case *Object:
		if t == nil {
			return nil, nil
		}
		if t.ID() == "" {
			return nil, connection.Errorf(constants.MissingObjectID, "cannot reference an unsaved %s", t.className)
		}
		return t.ToPointer().Encode(), nil
	case objectHolder:
		return encodeValue(t.object())
	case *Relation:
		return map[string]any{"__type": models.TypeRelation, "className": t.TargetClass()}, nil
	case *acl.ACL:
		return t.Encode(), nil
	case time.Time:
		return models.NewDate(t).Encode(), nil
	case []byte:
		return models.Bytes(t).Encode(), nil
	case models.Encoder:
		return t.Encode(), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			enc, err := encodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			enc, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return encodeValue(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, connection.Errorf(constants.IncorrectType, "map keys must be strings, got %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return encodeValue(m)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v, nil
	}
	return nil, connection.Errorf(constants.IncorrectType, "unsupported attribute type %T", v)
}

// objectHolder is implemented by the capability wrappers of *Object.
type objectHolder interface {
	object() *Object
}

// decodeValue converts a wire value into an attribute value. parent and key
// locate the attribute, for relations.
func (c *Client) decodeValue(v any, parent *Object, key string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		switch models.TypeOf(t) {
		case "":
			out := make(map[string]any, len(t))
			for k, item := range t {
				dec, err := c.decodeValue(item, nil, "")
				if err != nil {
					return nil, err
				}
				out[k] = dec
			}
			return out, nil
		case models.TypePointer:
			className, _ := t["className"].(string)
			id, _ := t[constants.KeyObjectID].(string)
			if className == "" || id == "" {
				return nil, connection.Errorf(constants.InvalidPointer, "invalid pointer %v", t)
			}
			return c.pointer(className, id), nil
		case models.TypeObject:
			className, _ := t["className"].(string)
			data := make(map[string]any, len(t))
			for k, item := range t {
				if k != "__type" && k != "className" {
					data[k] = item
				}
			}
			return c.decodeObject(className, data)
		case models.TypeRelation:
			className, _ := t["className"].(string)
			return &Relation{parent: parent, key: key, targetClass: className}, nil
		default:
			dec, ok, err := models.DecodeTyped(t)
			if err != nil {
				return nil, connection.Wrap(constants.IncorrectType, err)
			}
			if !ok {
				return t, nil
			}
			if d, ok := dec.(models.Date); ok {
				return d.Time, nil
			}
			return dec, nil
		}
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			dec, err := c.decodeValue(item, nil, "")
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	}
	return v, nil
}

// decode is decodeValue for replies that carry no object attributes.
func (c *Client) decode(v any) any {
	dec, err := c.decodeValue(v, nil, "")
	if err != nil {
		return v
	}
	return dec
}

// pointer returns the object the client knows under className and id, or an
// object with no data.
func (c *Client) pointer(className, id string) *Object {
	if o, ok := c.registry.identity(className, id); ok {
		return o
	}
	return c.CreateWithoutData(className, id)
}

// decodeObject turns a full row into an object, reusing the instance from the
// class identity table when there is one.
func (c *Client) decodeObject(className string, data map[string]any) (*Object, error) {
	if className == "" {
		return nil, connection.NewError(constants.InvalidClassName, "object without class name")
	}
	id, _ := data[constants.KeyObjectID].(string)
	o, known := c.registry.identity(className, id)
	if !known {
		o = c.Object(className)
	}
	changed, err := o.mergeServer(data)
	if err != nil {
		return nil, err
	}
	o.markFetched()
	if known {
		o.fireChanges(changed, false)
	} else {
		c.registry.remember(o)
	}
	return o, nil
}

// parseTime reads createdAt/updatedAt, sent either as an ISO string or a Date value.
func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		d, err := models.ParseDate(t)
		return d.Time, err
	case map[string]any:
		iso, _ := t["iso"].(string)
		d, err := models.ParseDate(iso)
		return d.Time, err
	case time.Time:
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %v", v)
}
