// Package store defines the interface for task persistence.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/erennakbas/tasksync/types"
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPersistence is returned when the store rejects a write.
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound reports an unknown task ID. Stores themselves signal a
	// missing task with a nil result; callers that want an error use this.
	ErrNotFound = errors.New("task not found")
)

// CheckText rejects text a task cannot be stored with.
func CheckText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: task text is required", ErrPersistence)
	}
	return nil
}

// Store defines the interface for task persistence.
// Implementations own the task records; callers hold no cache.
type Store interface {
	// ListTasks returns every task in insertion order.
	ListTasks(ctx context.Context) ([]*types.Task, error)

	// CreateTask saves a new, not yet completed task and returns it with its assigned ID.
	// Empty text is rejected with ErrPersistence.
	CreateTask(ctx context.Context, text string) (*types.Task, error)

	// UpdateTaskCompleted sets the completed flag of a task.
	// It returns (nil, nil) when no task with the given ID exists.
	UpdateTaskCompleted(ctx context.Context, taskID string, completed bool) (*types.Task, error)

	// DeleteTask removes a task. Deleting an unknown ID is not an error.
	DeleteTask(ctx context.Context, taskID string) error

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
