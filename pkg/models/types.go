package models

import (
	"encoding/base64"
	"fmt"
)

// Values of the "__type" discriminator of typed wire values.
const (
	TypePointer  = "Pointer"
	TypeObject   = "Object"
	TypeRelation = "Relation"
	TypeDate     = "Date"
	TypeGeoPoint = "GeoPoint"
	TypeFile     = "File"
	TypeBytes    = "Bytes"
)

// Encoder is implemented by values with a typed wire form.
type Encoder interface {
	Encode() map[string]any
}

func (b Bytes) Encode() map[string]any {
	return map[string]any{
		"__type": TypeBytes,
		"base64": base64.StdEncoding.EncodeToString(b),
	}
}

// TypeOf returns the "__type" discriminator of a wire value, or "" if it has none.
func TypeOf(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	t, _ := m["__type"].(string)
	return t
}

// DecodeTyped decodes the typed wire values that need no class registry:
// Date, GeoPoint, File, Bytes and bare Pointers. ok is false for anything else.
func DecodeTyped(m map[string]any) (v any, ok bool, err error) {
	switch TypeOf(m) {
	case TypeDate:
		iso, _ := m["iso"].(string)
		d, err := ParseDate(iso)
		return d, true, err
	case TypeGeoPoint:
		lat, lok := toFloat(m["latitude"])
		lon, rok := toFloat(m["longitude"])
		if !lok || !rok {
			return nil, true, fmt.Errorf("invalid GeoPoint %v", m)
		}
		gp, err := NewGeoPoint(lat, lon)
		return gp, true, err
	case TypeFile:
		f := File{}
		f.ObjectID, _ = m["id"].(string)
		if f.ObjectID == "" {
			f.ObjectID, _ = m["objectId"].(string)
		}
		f.Name, _ = m["name"].(string)
		f.URL, _ = m["url"].(string)
		f.MimeType, _ = m["mime_type"].(string)
		f.MetaData, _ = m["metaData"].(map[string]any)
		return f, true, nil
	case TypeBytes:
		s, _ := m["base64"].(string)
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, true, fmt.Errorf("invalid Bytes value: %w", err)
		}
		return Bytes(b), true, nil
	case TypePointer:
		className, _ := m["className"].(string)
		objectID, _ := m["objectId"].(string)
		if className == "" || objectID == "" {
			return nil, true, fmt.Errorf("invalid Pointer %v", m)
		}
		return NewPointer(className, objectID), true, nil
	}
	return nil, false, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
