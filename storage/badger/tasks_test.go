package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRepository_SaveGetList(t *testing.T) {
	_, tasks, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	queued := &core.Task{Id: "t1", DocumentIds: []core.ID{"a"}, Status: core.TaskStatusQueued, CreatedAt: base}
	done := &core.Task{Id: "t2", Status: core.TaskStatusDone, Succeeded: 1, CreatedAt: base.Add(time.Second)}
	require.NoError(t, tasks.SaveTask(ctx, done))
	require.NoError(t, tasks.SaveTask(ctx, queued))

	got, err := tasks.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, queued, got)

	all, err := tasks.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, core.ID("t1"), all[0].Id)

	pending, err := tasks.ListTasks(ctx, core.TaskStatusQueued, core.TaskStatusRunning)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, core.ID("t1"), pending[0].Id)

	_, err = tasks.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, tasks.SaveTask(ctx, &core.Task{}), storage.ErrInvalidQuery)
}

func TestCheckpointRepository(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	repo := NewCheckpointRepository(backend)
	ctx := context.Background()

	missing, err := repo.LoadCheckpoint(ctx, "reembed:physics")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SaveCheckpoint(ctx, &core.Checkpoint{Name: "reembed:physics", Position: "doc-9"}))
	loaded, err := repo.LoadCheckpoint(ctx, "reembed:physics")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "doc-9", loaded.Position)
	assert.False(t, loaded.UpdatedAt.IsZero())

	require.NoError(t, repo.DeleteCheckpoint(ctx, "reembed:physics"))
	gone, err := repo.LoadCheckpoint(ctx, "reembed:physics")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
