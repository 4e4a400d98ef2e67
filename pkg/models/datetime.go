package models

import (
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 layout used on the wire.
const DateLayout = "2006-01-02T15:04:05.000Z"

// Date is a timestamp attribute. It is encoded as a typed Date value
// rather than a bare string so that the store can index and compare it.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	return Date{t.UTC()}
}

// ParseDate parses an ISO-8601 timestamp as produced by the store.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t.UTC()}, nil
}

func (d Date) Encode() map[string]any {
	return map[string]any{
		"__type": TypeDate,
		"iso":    d.String(),
	}
}

func (d Date) String() string {
	return d.UTC().Format(DateLayout)
}
