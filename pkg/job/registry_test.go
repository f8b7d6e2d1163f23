package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddJobAssignsMonotonicIDs(t *testing.T) {
	r := NewRegistry(16, 16)
	j1 := r.AddJob([]byte("first\n"))
	j2 := r.AddJob([]byte("second\n"))

	assert.Equal(t, uint64(1), j1.ID())
	assert.Equal(t, uint64(2), j2.ID())

	found, err := r.Find(j1.ID())
	require.NoError(t, err)
	assert.Same(t, j1, found)
}

func TestRegistry_FindMissingReturnsError(t *testing.T) {
	r := NewRegistry(16, 16)
	_, err := r.Find(999)
	assert.ErrorAs(t, err, new(ErrNotFound))
}

func TestRegistry_CompleteJobEvicts(t *testing.T) {
	r := NewRegistry(16, 16)
	j := r.AddJob([]byte("x\n"))
	r.CompleteJob(j.ID())

	_, err := r.Find(j.ID())
	assert.Error(t, err)
	assert.Len(t, r.Jobs(), 0)
}

func TestRegistry_SubscribeEventsReceivesNewJobAnnouncements(t *testing.T) {
	r := NewRegistry(16, 16)
	ch, cancel := r.SubscribeEvents()
	defer cancel()

	r.AddJob([]byte("announced\n"))

	select {
	case d := <-ch:
		assert.Equal(t, "announced", d.Subject)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for NewJob announcement")
	}
}
