// Package redis provides a Redis implementation of the Store interface.
//
// Each task is a hash under <prefix>task:<id>. Insertion order is kept in a
// sorted set scored by a monotonically increasing sequence.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/erennakbas/tasksync/store"
	"github.com/erennakbas/tasksync/types"
)

// DefaultPrefix is prepended to every key written by the store.
const DefaultPrefix = "tasksync:"

// Store implements store.Store using Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Option configures the store
type Option func(*Store)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) taskKey(id string) string {
	return s.prefix + "task:" + id
}

func (s *Store) orderKey() string {
	return s.prefix + "tasks"
}

func (s *Store) seqKey() string {
	return s.prefix + "seq"
}

// ListTasks returns every task in insertion order.
func (s *Store) ListTasks(ctx context.Context) ([]*types.Task, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, classify("failed to list task ids", err)
	}

	tasks := make([]*types.Task, 0, len(ids))
	if len(ids) == 0 {
		return tasks, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.taskKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, classify("failed to load tasks", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		// deleted between ZRANGE and HGETALL
		if len(fields) == 0 {
			continue
		}
		task, err := decodeTask(fields)
		if err != nil {
			return nil, classify("failed to decode task", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// createTaskScript writes the hash and its order entry in one step.
var createTaskScript = redis.NewScript(`
local taskKey = KEYS[1]
local orderKey = KEYS[2]
local seqKey = KEYS[3]
local id = ARGV[1]
local text = ARGV[2]

local seq = redis.call('INCR', seqKey)
redis.call('HSET', taskKey, 'id', id, 'text', text, 'completed', '0')
redis.call('ZADD', orderKey, seq, id)
return seq
`)

// CreateTask saves a new task with a random UUID.
func (s *Store) CreateTask(ctx context.Context, text string) (*types.Task, error) {
	if err := store.CheckText(text); err != nil {
		return nil, err
	}

	task := &types.Task{
		ID:   uuid.NewString(),
		Text: text,
	}

	err := createTaskScript.Run(ctx, s.client,
		[]string{s.taskKey(task.ID), s.orderKey(), s.seqKey()},
		task.ID, task.Text,
	).Err()
	if err != nil {
		return nil, classify("failed to create task", err)
	}

	return task, nil
}

// updateCompletedScript only touches tasks that still exist, so a late
// update never resurrects a deleted task.
var updateCompletedScript = redis.NewScript(`
local taskKey = KEYS[1]
if redis.call('EXISTS', taskKey) == 0 then
    return {}
end
redis.call('HSET', taskKey, 'completed', ARGV[1])
return redis.call('HGETALL', taskKey)
`)

// UpdateTaskCompleted sets the completed flag of an existing task.
func (s *Store) UpdateTaskCompleted(ctx context.Context, taskID string, completed bool) (*types.Task, error) {
	flag := "0"
	if completed {
		flag = "1"
	}

	res, err := updateCompletedScript.Run(ctx, s.client, []string{s.taskKey(taskID)}, flag).StringSlice()
	if err != nil {
		return nil, classify("failed to update task", err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}

	task, err := decodeTask(fields)
	if err != nil {
		return nil, classify("failed to decode task", err)
	}
	return task, nil
}

// DeleteTask removes a task and its order entry.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.taskKey(taskID))
	pipe.ZRem(ctx, s.orderKey(), taskID)

	if _, err := pipe.Exec(ctx); err != nil {
		return classify("failed to delete task", err)
	}
	return nil
}

// Ping checks if the store is healthy.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return classify("failed to ping redis", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeTask(fields map[string]string) (*types.Task, error) {
	id, ok := fields["id"]
	if !ok || id == "" {
		return nil, errors.New("task hash has no id")
	}

	completed, err := strconv.ParseBool(fields["completed"])
	if err != nil {
		return nil, fmt.Errorf("invalid completed flag %q: %w", fields["completed"], err)
	}

	return &types.Task{
		ID:        id,
		Text:      fields["text"],
		Completed: completed,
	}, nil
}

// classify wraps err with the store error category it belongs to.
func classify(msg string, err error) error {
	if isTransientError(err) {
		return fmt.Errorf("%w: %s: %w", store.ErrStoreUnavailable, msg, err)
	}
	return fmt.Errorf("%w: %s: %w", store.ErrPersistence, msg, err)
}

// isTransientError checks if an error comes from the connection rather than the command
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
		return true
	}

	errStr := err.Error()
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"timeout",
		"EOF",
		"network is unreachable",
		"no route to host",
		"LOADING",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
