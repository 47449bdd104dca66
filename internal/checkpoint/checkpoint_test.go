package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approvalflow/pkg"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	cp := &Checkpoint{
		RunID:     "run-1",
		Cursor:    "analyze",
		State:     pkg.State{"task": "delete_prod_db", "risk": "high"},
		Seq:       1,
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, cp.Cursor, loaded.Cursor)
	assert.Equal(t, cp.Seq, loaded.Seq)
	assert.Equal(t, cp.State, loaded.State)
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Checkpoint{RunID: "run-1", State: pkg.State{"v": "first"}}))
	require.NoError(t, store.Save(ctx, &Checkpoint{RunID: "run-1", State: pkg.State{"v": "second"}}))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.State.GetString("v"))
}

func TestMemoryStoreUnknownRun(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Load(context.Background(), "nope")
	require.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestMemoryStoreHasPendingAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending, err := store.HasPending(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, store.Save(ctx, &Checkpoint{RunID: "run-1", State: pkg.State{}}))

	pending, err = store.HasPending(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, store.Delete(ctx, "run-1"))

	pending, err = store.HasPending(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestMemoryStoreRejectsEmptyRunID(t *testing.T) {
	store := NewMemoryStore()
	assert.Error(t, store.Save(context.Background(), &Checkpoint{}))
	assert.Error(t, store.Save(context.Background(), nil))
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := pkg.State{"task": "read_logs"}
	require.NoError(t, store.Save(ctx, &Checkpoint{RunID: "run-1", State: state}))

	// Mutating the saved state after the fact must not leak into the store.
	state["task"] = "mutated"

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "read_logs", loaded.State.GetString("task"))
}
