// Package types provides core types for the tasksync system.
package types

import (
	"github.com/sirupsen/logrus"
)

// Logger is the interface for logging in tasksync.
// It uses logrus.FieldLogger which is implemented by both *logrus.Logger and *logrus.Entry.
type Logger = logrus.FieldLogger

// DefaultLogger returns the default logrus logger.
func DefaultLogger() Logger {
	return logrus.StandardLogger()
}

// Task is the single record kept by tasksync.
type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// EventKind names a change notification pushed to observers.
type EventKind string

const (
	EventTaskAdded   EventKind = "taskAdded"
	EventTaskUpdated EventKind = "taskUpdated"
	EventTaskDeleted EventKind = "taskDeleted"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a single announcement.
//
// Payload is a *Task for taskAdded, a *Task (possibly nil) for taskUpdated
// and the task ID string for taskDeleted.
type Event struct {
	Kind    EventKind
	Payload any
}
