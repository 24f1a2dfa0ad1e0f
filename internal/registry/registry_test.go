package registry

import (
	"fmt"
	"sync"
	"testing"

	"tcpchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndInfo(t *testing.T) {
	r := New()
	r.Add(1, "10.0.0.5:50000")

	info, ok := r.Info(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), info.ID)
	assert.Equal(t, "10.0.0.5:50000", info.Addr)
	assert.Equal(t, types.StateConnected, info.State)
	assert.False(t, info.Named())
	assert.Equal(t, "User#1", info.DisplayName())
}

func TestSetName(t *testing.T) {
	r := New()
	r.Add(1, "10.0.0.5:50000")

	// Empty names keep the client anonymous
	assert.False(t, r.SetName(1, ""))
	assert.False(t, r.IsNamed(1))

	assert.True(t, r.SetName(1, "alice"))
	assert.True(t, r.IsNamed(1))
	assert.Equal(t, "alice", r.DisplayName(1))

	info, _ := r.Info(1)
	assert.Equal(t, types.StateAuthenticated, info.State)

	// Unknown clients cannot be named
	assert.False(t, r.SetName(99, "ghost"))
}

func TestPlaceholderNameDoesNotShadowAnonState(t *testing.T) {
	r := New()
	r.Add(5, "10.0.0.5:50000")
	r.Add(6, "10.0.0.6:50001")

	// A user may literally pick the placeholder of another client
	require.True(t, r.SetName(6, "User#5"))
	assert.True(t, r.IsNamed(6))
	assert.False(t, r.IsNamed(5))

	// Resolution prefers the earliest connection
	id, ok := r.FindByName("User#5")
	require.True(t, ok)
	assert.Equal(t, uint64(5), id)
}

func TestFindByName(t *testing.T) {
	r := New()
	r.Add(1, "a:1")
	r.Add(2, "b:2")
	r.SetName(1, "alice")
	r.SetName(2, "bob")

	id, ok := r.FindByName("bob")
	require.True(t, ok)
	assert.Equal(t, uint64(2), id)

	// Case-sensitive exact match
	_, ok = r.FindByName("Bob")
	assert.False(t, ok)

	_, ok = r.FindByName("carol")
	assert.False(t, ok)
}

func TestDuplicateNamesResolveToLowestID(t *testing.T) {
	r := New()
	r.Add(3, "a:1")
	r.Add(7, "b:2")
	require.True(t, r.SetName(7, "twin"))
	require.True(t, r.SetName(3, "twin"))

	id, ok := r.FindByName("twin")
	require.True(t, ok)
	assert.Equal(t, uint64(3), id)
}

func TestRoomMirror(t *testing.T) {
	r := New()
	r.Add(1, "a:1")

	assert.Equal(t, "", r.Room(1))
	r.SetRoom(1, "general")
	assert.Equal(t, "general", r.Room(1))
	r.SetRoom(1, "devs")
	assert.Equal(t, "devs", r.Room(1))

	assert.Equal(t, "", r.Room(42))
}

func TestRecordActivity(t *testing.T) {
	r := New()
	r.Add(1, "a:1")

	before, _ := r.Info(1)
	r.RecordActivity(1)
	r.RecordActivity(1)

	after, _ := r.Info(1)
	assert.Equal(t, 2, after.Messages)
	assert.False(t, after.LastActive.Before(before.LastActive))
}

func TestRemove(t *testing.T) {
	r := New()
	r.Add(1, "a:1")
	r.Remove(1)

	_, ok := r.Info(1)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())

	// Removing twice should not panic
	r.Remove(1)
}

func TestListAndIDsAreSorted(t *testing.T) {
	r := New()
	r.Add(9, "a:1")
	r.Add(2, "b:2")
	r.Add(5, "c:3")

	assert.Equal(t, []uint64{2, 5, 9}, r.IDs())

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, uint64(2), list[0].ID)
	assert.Equal(t, uint64(9), list[2].ID)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	const numGoroutines = 100
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			r.Add(id, fmt.Sprintf("10.0.0.1:%d", id))
			r.SetName(id, fmt.Sprintf("user%d", id))
			r.RecordActivity(id)
			r.SetRoom(id, "general")
			r.FindByName(fmt.Sprintf("user%d", id))
			r.Remove(id)
		}(uint64(i + 1))
	}

	wg.Wait()
	assert.Equal(t, 0, r.Count())
}
