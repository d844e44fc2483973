package engine

import (
	"context"
	"time"
)

// Deferred is a value whose resolution may require evaluation context:
// another component's state, an external provider lookup, or a call chained
// on another deferred value's eventual result.
type Deferred interface {
	// Immediately attempts a non-blocking resolution. It never submits
	// scheduler work and never blocks. An absent Maybe with a nil error means
	// "not available yet"; an error means the value can never resolve.
	Immediately() (Maybe, error)

	// NewTask returns a unit of work that resolves the value when run by a
	// Scheduler. The result may itself be Deferred; Resolve continues from it.
	NewTask() *Task

	// String renders the expression for diagnostics.
	String() string
}

// Scheduler runs tasks asynchronously.
type Scheduler interface {
	// Submit schedules a task and returns a handle immediately.
	Submit(ctx context.Context, task *Task) *TaskHandle

	// Await blocks until the handle completes or ctx is done.
	Await(ctx context.Context, handle *TaskHandle) (interface{}, error)
}

// HistoryStore persists the history of non-transient tasks.
type HistoryStore interface {
	// RecordTask stores a finished task.
	RecordTask(ctx context.Context, record TaskRecord) error
}

// TaskObserver receives task completion notifications, typically for metrics.
type TaskObserver interface {
	// ObserveTask is called once per finished task.
	ObserveTask(displayName string, transient bool, status string, duration time.Duration)
}
