package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncMapGetPutDelete(t *testing.T) {
	m := NewSyncMap[string, int]()

	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Put("a", 1)
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestSyncMapRangeVisitsAllUntilStopped(t *testing.T) {
	m := NewSyncMap[string, int]()
	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)

	seen := map[string]int{}
	m.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	assert.Len(t, seen, 3)

	count := 0
	m.Range(func(k string, v int) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}
