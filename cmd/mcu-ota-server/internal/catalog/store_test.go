package catalog

import (
	"sync"
	"testing"

	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Empty(t *testing.T) {
	s := NewStore()
	require.NotNil(t, s.Load())
	assert.Equal(t, 0, s.Load().Len())

	_, ok := s.Load().FindLatest(0x1987)
	assert.False(t, ok)
}

func TestStore_Swap(t *testing.T) {
	s := NewStore()
	next := New(artifact(t, 0x1987, "0.2.0", []byte{1, 2, 3, 4, 5}))

	previous := s.Swap(next)
	assert.Equal(t, 0, previous.Len())
	assert.Same(t, next, s.Load())

	previous = s.Swap(nil)
	assert.Same(t, next, previous)
	assert.Equal(t, 0, s.Load().Len())
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	one := New(artifact(t, 1, "1.0.0", []byte{1}))
	two := New(artifact(t, 1, "1.0.0", []byte{1}), artifact(t, 1, "2.0.0", []byte{2}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c := s.Load()
				// a snapshot is either empty or complete
				switch c.Len() {
				case 0:
				case 1:
					a, ok := c.FindLatest(1)
					assert.True(t, ok)
					assert.Equal(t, ota.Version{Major: 1}, a.Version)
				case 2:
					a, ok := c.FindLatest(1)
					assert.True(t, ok)
					assert.Equal(t, ota.Version{Major: 2}, a.Version)
				default:
					t.Errorf("unexpected catalog size %d", c.Len())
				}
			}
		}()
	}
	for j := 0; j < 1000; j++ {
		if j%2 == 0 {
			s.Swap(one)
		} else {
			s.Swap(two)
		}
	}
	wg.Wait()
}
