package rand

import (
	"testing"

	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/stretchr/testify/assert"
)

func TestNewRequestID(t *testing.T) {
	id := NewRequestID(constants.RequestIDLength)
	assert.Len(t, id, constants.RequestIDLength)
	for _, c := range id {
		assert.Contains(t, charset, string(c))
	}
}

func TestNewObjectID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewObjectID()
		assert.Len(t, id, ObjectIDLength)
		assert.Regexp(t, "^[0-9a-f]+$", id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func BenchmarkNewRequestID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewRequestID(constants.RequestIDLength)
	}
}

func BenchmarkNewObjectID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewObjectID()
	}
}
