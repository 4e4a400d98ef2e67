package acl

import "github.com/goccy/go-json"

func marshal(w Wire) ([]byte, error) {
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form into a.
func (a *ACL) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := Decode(raw)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.permissions = decoded.permissions
	return nil
}
