package models

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/leanstore/leanstore.go/internal/codec"
)

// JSONMarshaler encodes request bodies as JSON.
type JSONMarshaler struct{}

func (j JSONMarshaler) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j JSONMarshaler) NewEncoder(w io.Writer) codec.Encoder {
	return json.NewEncoder(w)
}

// JSONUnmarshaler decodes response bodies from JSON.
type JSONUnmarshaler struct{}

func (j JSONUnmarshaler) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (j JSONUnmarshaler) NewDecoder(r io.Reader) codec.Decoder {
	return json.NewDecoder(r)
}

// Normalize round-trips v through JSON so that it has exactly the shape a decoded
// response would have: maps of string to any, []any and float64 numbers.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (gp GeoPoint) MarshalJSON() ([]byte, error) { return json.Marshal(gp.Encode()) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.Encode()) }

func (p Pointer) MarshalJSON() ([]byte, error) { return json.Marshal(p.Encode()) }

func (f File) MarshalJSON() ([]byte, error) { return json.Marshal(f.Encode()) }

func (b Bytes) MarshalJSON() ([]byte, error) { return json.Marshal(b.Encode()) }
