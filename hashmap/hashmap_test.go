package hashmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreate(t *testing.T) {
	m := New[string, int](4)
	calls := 0
	create := func() int { calls++; return 42 }

	v := m.GetOrCreate("a", create)
	require.Equal(t, 42, v)
	v = m.GetOrCreate("a", create)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls, "create must only run on the first GetOrCreate for a key")
}

func TestNumericKeys(t *testing.T) {
	m := New[int32, string](4)
	m.Put(1, "one")
	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, "one", v)

	m.Remove(1)
	_, ok = m.Get(1)
	require.False(t, ok)
}
