package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTyped(t *testing.T) {
	when := time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)

	testcases := []struct {
		name string
		wire map[string]any
		want any
	}{
		{
			name: "date",
			wire: map[string]any{"__type": "Date", "iso": "2023-10-01T12:00:00.000Z"},
			want: Date{when},
		},
		{
			name: "geopoint",
			wire: map[string]any{"__type": "GeoPoint", "latitude": 39.9, "longitude": 116.4},
			want: GeoPoint{Latitude: 39.9, Longitude: 116.4},
		},
		{
			name: "pointer",
			wire: map[string]any{"__type": "Pointer", "className": "Post", "objectId": "p1"},
			want: NewPointer("Post", "p1"),
		},
		{
			name: "bytes",
			wire: map[string]any{"__type": "Bytes", "base64": "aGVsbG8="},
			want: Bytes("hello"),
		},
		{
			name: "file",
			wire: map[string]any{"__type": "File", "id": "f1", "name": "a.png", "url": "http://x/a.png"},
			want: File{ObjectID: "f1", Name: "a.png", URL: "http://x/a.png"},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok, err := DecodeTyped(tc.wire)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.want, v)

			enc, isEncoder := v.(Encoder)
			require.True(t, isEncoder)
			normalized, err := Normalize(enc.Encode())
			require.NoError(t, err)
			again, ok, err := DecodeTyped(normalized.(map[string]any))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.want, again)
		})
	}
}

func TestDecodeTyped_untyped(t *testing.T) {
	_, ok, err := DecodeTyped(map[string]any{"name": "plain"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = DecodeTyped(map[string]any{"__type": "Pointer", "className": "Post"})
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestPointer_parseAndIdentity(t *testing.T) {
	p, err := ParsePointer("Post:abc")
	require.NoError(t, err)
	assert.Equal(t, NewPointer("Post", "abc"), p)
	assert.Equal(t, "Post:abc", p.String())
	assert.Equal(t, "Post/abc", p.IdentityKey())
	assert.Empty(t, NewPointer("Post", "").IdentityKey())

	_, err = ParsePointer("no-separator")
	assert.Error(t, err)
}

func TestDate_wireForm(t *testing.T) {
	d := NewDate(time.Date(2024, 2, 29, 8, 30, 15, 123_000_000, time.FixedZone("x", 3600)))
	assert.Equal(t, "2024-02-29T07:30:15.123Z", d.String())

	data, err := JSONMarshaler{}.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"__type":"Date","iso":"2024-02-29T07:30:15.123Z"}`, string(data))
}
