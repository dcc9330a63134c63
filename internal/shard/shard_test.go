package shard

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := NewMap[int](8)

	_, ok := m.Swap("a", 1)
	assert.False(t, ok)
	old, ok := m.Swap("a", 2)
	require.True(t, ok)
	assert.Equal(t, 1, old)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.False(t, m.CompareAndDelete("a", func(v int) bool { return v == 1 }))
	assert.True(t, m.CompareAndDelete("a", func(v int) bool { return v == 2 }))
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestMapConcurrent(t *testing.T) {
	m := NewMap[int](0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Swap(strconv.Itoa(i), i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, m.Len())

	seen := 0
	m.Range(func(string, int) bool { seen++; return true })
	assert.Equal(t, 100, seen)
}

func TestLockerSerializesKey(t *testing.T) {
	l := NewLocker(4)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("vehicle-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, counter)
}
