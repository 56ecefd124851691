// Package postgres provides a PostgreSQL implementation of the Store interface.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/erennakbas/tasksync/migrations"
	"github.com/erennakbas/tasksync/store"
	"github.com/erennakbas/tasksync/types"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Config configures the PostgreSQL store.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New creates a new PostgreSQL store.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB creates a new PostgreSQL store with an existing database connection.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	migrationSQL, err := migrations.GetAllSQL()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, migrationSQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// ListTasks returns every task ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, completed
		FROM tasksync_tasks
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, classify("failed to list tasks", err)
	}
	defer rows.Close()

	tasks := make([]*types.Task, 0)
	for rows.Next() {
		task := &types.Task{}
		if err := rows.Scan(&task.ID, &task.Text, &task.Completed); err != nil {
			return nil, classify("failed to scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("failed to list tasks", err)
	}

	return tasks, nil
}

// CreateTask inserts a new task with a random UUID.
func (s *Store) CreateTask(ctx context.Context, text string) (*types.Task, error) {
	if err := store.CheckText(text); err != nil {
		return nil, err
	}

	task := &types.Task{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasksync_tasks (id, text, completed)
		VALUES ($1, $2, FALSE)
		RETURNING id, text, completed
	`, uuid.NewString(), text).Scan(&task.ID, &task.Text, &task.Completed)
	if err != nil {
		return nil, classify("failed to insert task", err)
	}

	return task, nil
}

// UpdateTaskCompleted sets the completed flag. Unknown or malformed IDs yield (nil, nil).
func (s *Store) UpdateTaskCompleted(ctx context.Context, taskID string, completed bool) (*types.Task, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, nil
	}

	task := &types.Task{}
	err := s.db.QueryRowContext(ctx, `
		UPDATE tasksync_tasks SET completed = $2
		WHERE id = $1
		RETURNING id, text, completed
	`, taskID, completed).Scan(&task.ID, &task.Text, &task.Completed)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("failed to update task", err)
	}

	return task, nil
}

// DeleteTask removes a task from the store.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM tasksync_tasks WHERE id = $1", taskID)
	if err != nil {
		return classify("failed to delete task", err)
	}
	return nil
}

// Ping checks if the store is healthy.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("failed to ping database", err)
	}
	return nil
}

// Close closes the store connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify wraps err with the store error category it belongs to.
func classify(msg string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%w: %s: %w", store.ErrStoreUnavailable, msg, err)
	}
	return fmt.Errorf("%w: %s: %w", store.ErrPersistence, msg, err)
}

// isConnectionError reports whether err means the database could not be reached.
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// SQLSTATE class 08: connection exception
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
