// Package memory provides an in-process implementation of the Store interface.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/erennakbas/tasksync/store"
	"github.com/erennakbas/tasksync/types"
)

// Store implements store.Store in memory.
// IDs are decimal counters starting at "1" and are never reused.
type Store struct {
	mu     sync.Mutex
	tasks  []*types.Task
	index  map[string]int
	nextID int64
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// ListTasks returns copies of all tasks in insertion order.
func (s *Store) ListTasks(ctx context.Context) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*types.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		c := *t
		tasks = append(tasks, &c)
	}
	return tasks, nil
}

// CreateTask saves a new task.
func (s *Store) CreateTask(ctx context.Context, text string) (*types.Task, error) {
	if err := store.CheckText(text); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	task := &types.Task{
		ID:   strconv.FormatInt(s.nextID, 10),
		Text: text,
	}
	s.index[task.ID] = len(s.tasks)
	s.tasks = append(s.tasks, task)

	c := *task
	return &c, nil
}

// UpdateTaskCompleted sets the completed flag of an existing task.
func (s *Store) UpdateTaskCompleted(ctx context.Context, taskID string, completed bool) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[taskID]
	if !ok {
		return nil, nil
	}
	s.tasks[i].Completed = completed

	c := *s.tasks[i]
	return &c, nil
}

// DeleteTask removes a task if present.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[taskID]
	if !ok {
		return nil
	}

	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	delete(s.index, taskID)
	for j := i; j < len(s.tasks); j++ {
		s.index[s.tasks[j].ID] = j
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
