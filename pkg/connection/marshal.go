package connection

import "github.com/goccy/go-json"

func marshalBody(v any) ([]byte, error) {
	return json.Marshal(v)
}
