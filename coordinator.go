package tasksync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/erennakbas/tasksync/broker"
	"github.com/erennakbas/tasksync/store"
	"github.com/erennakbas/tasksync/types"
)

// ErrTaskNotFound is returned by UpdateTask for an unknown ID when strict
// not-found handling is enabled.
var ErrTaskNotFound = store.ErrNotFound

// Coordinator applies task mutations to the store and announces each
// successful one to the broker. An announcement is only made after the
// store call has returned without error.
type Coordinator struct {
	store          store.Store
	broker         broker.Broker
	logger         Logger
	strictNotFound bool
}

// CoordinatorOption configures the coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger for the coordinator.
func WithCoordinatorLogger(logger Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithStrictNotFound makes UpdateTask return ErrTaskNotFound for unknown IDs
// instead of announcing and returning a nil task.
func WithStrictNotFound() CoordinatorOption {
	return func(c *Coordinator) {
		c.strictNotFound = true
	}
}

// NewCoordinator creates a coordinator over the given store and broker.
func NewCoordinator(s store.Store, b broker.Broker, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:  s,
		broker: b,
		logger: defaultLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListTasks returns every task. It never announces.
func (c *Coordinator) ListTasks(ctx context.Context) ([]*types.Task, error) {
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		c.logger.WithError(err).Error("failed to list tasks")
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*types.Task{}
	}
	return tasks, nil
}

// CreateTask persists a new task and announces taskAdded.
func (c *Coordinator) CreateTask(ctx context.Context, text string) (*types.Task, error) {
	task, err := c.store.CreateTask(ctx, text)
	if err != nil {
		c.logger.WithError(err).Error("failed to create task")
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	c.announce(ctx, types.EventTaskAdded, task.ID, task)
	return task, nil
}

// UpdateTask sets the completed flag and announces taskUpdated.
//
// An unknown ID is not an error: the nil result is announced and returned
// as is, unless WithStrictNotFound is set.
func (c *Coordinator) UpdateTask(ctx context.Context, taskID string, completed bool) (*types.Task, error) {
	task, err := c.store.UpdateTaskCompleted(ctx, taskID, completed)
	if err != nil {
		c.logger.WithField("task_id", taskID).WithError(err).Error("failed to update task")
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if task == nil && c.strictNotFound {
		return nil, ErrTaskNotFound
	}

	c.announce(ctx, types.EventTaskUpdated, taskID, task)
	return task, nil
}

// DeleteTask removes a task and announces taskDeleted with its ID.
// Deleting an unknown ID succeeds and is announced too.
func (c *Coordinator) DeleteTask(ctx context.Context, taskID string) error {
	if err := c.store.DeleteTask(ctx, taskID); err != nil {
		c.logger.WithField("task_id", taskID).WithError(err).Error("failed to delete task")
		return fmt.Errorf("failed to delete task: %w", err)
	}

	c.announce(ctx, types.EventTaskDeleted, taskID, taskID)
	return nil
}

// Ping checks the store.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *Coordinator) announce(ctx context.Context, kind types.EventKind, taskID string, payload any) {
	c.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"event":   kind,
	}).Debug("announcing task change")

	c.broker.Announce(ctx, types.Event{Kind: kind, Payload: payload})
}
