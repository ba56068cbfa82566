package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

// TaskRepository implements storage.TaskRepository for BadgerDB.
type TaskRepository struct {
	backend *Backend
}

var _ storage.TaskRepository = (*TaskRepository)(nil)

// NewTaskRepository creates a task repository on backend.
func NewTaskRepository(backend *Backend) (storage.TaskRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &TaskRepository{backend: backend}, nil
}

// SaveTask inserts or overwrites a task.
func (r *TaskRepository) SaveTask(ctx context.Context, task *core.Task) error {
	if task == nil || task.Id == "" {
		return fmt.Errorf("%w: task needs an id", storage.ErrInvalidQuery)
	}
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeTaskKey(task.Id), storage.MarshalTask(task))
	})
}

// GetTask retrieves a task by ID.
func (r *TaskRepository) GetTask(ctx context.Context, id core.ID) (*core.Task, error) {
	var task *core.Task
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeTaskKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: task %s", storage.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			task, err = storage.UnmarshalTask(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks in any of statuses, oldest first.
func (r *TaskRepository) ListTasks(ctx context.Context, statuses ...core.TaskStatus) ([]*core.Task, error) {
	var tasks []*core.Task
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(taskPrefix+":"), false, func(_, val []byte) error {
			task, err := storage.UnmarshalTask(val)
			if err != nil {
				return err
			}
			if len(statuses) == 0 || slices.Contains(statuses, task.Status) {
				tasks = append(tasks, task)
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(tasks, func(a, b *core.Task) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return tasks, nil
}

// Close is a no-op; the Backend owns the database.
func (r *TaskRepository) Close() error {
	return nil
}
