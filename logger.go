// Package tasksync keeps a task list in a store and pushes every change to
// connected observers.
package tasksync

import (
	"github.com/erennakbas/tasksync/types"
)

// Logger is re-exported from the types package for convenience.
type Logger = types.Logger

// defaultLogger returns the default logrus logger.
func defaultLogger() Logger {
	return types.DefaultLogger()
}
