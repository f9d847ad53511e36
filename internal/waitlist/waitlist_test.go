package waitlist

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddIsUniquePerEvent(t *testing.T) {
	s := NewStore()

	assert.Equal(t, Added, s.Add("ev-1", "u1"))
	assert.Equal(t, AlreadyMember, s.Add("ev-1", "u1"))
	assert.Equal(t, 1, s.Size("ev-1"))

	// Same entrant on another event is independent.
	assert.Equal(t, Added, s.Add("ev-2", "u1"))
	assert.Equal(t, 1, s.Size("ev-2"))
}

func TestRemove(t *testing.T) {
	s := NewStore()
	s.Add("ev-1", "u1")
	s.Add("ev-1", "u2")

	assert.Equal(t, Removed, s.Remove("ev-1", "u1"))
	assert.Equal(t, NotFound, s.Remove("ev-1", "u1"))
	assert.Equal(t, NotFound, s.Remove("ev-9", "u1"))
	assert.Equal(t, []string{"u2"}, s.Members("ev-1"))
}

func TestMembersInsertionOrder(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Add("ev-1", fmt.Sprintf("u%d", i))
	}
	s.Remove("ev-1", "u2")

	assert.Equal(t, []string{"u0", "u1", "u3", "u4"}, s.Members("ev-1"))
}

func TestMembersIsSnapshot(t *testing.T) {
	s := NewStore()
	s.Add("ev-1", "u1")
	s.Add("ev-1", "u2")

	snapshot := s.Members("ev-1")
	s.Remove("ev-1", "u1")
	s.Add("ev-1", "u3")

	assert.Equal(t, []string{"u1", "u2"}, snapshot, "snapshot must not see later mutation")
}

func TestConcurrentAddRemove(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			s.Add("ev-1", id)
			if i%2 == 0 {
				s.Remove("ev-1", id)
			}
		}(i)
	}
	wg.Wait()

	members := s.Members("ev-1")
	assert.Len(t, members, 25)
	seen := make(map[string]bool)
	for _, id := range members {
		assert.Falsef(t, seen[id], "duplicate member %s", id)
		seen[id] = true
	}
}
