package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Maybe is the outcome of a non-blocking resolution attempt: either a present
// value (which may itself be nil) or an absent one carrying a reason.
type Maybe struct {
	value   interface{}
	present bool
	reason  string
}

// Present returns a Maybe holding v.
func Present(v interface{}) Maybe {
	return Maybe{value: v, present: true}
}

// Absent returns an empty Maybe with a diagnostic reason.
func Absent(reason string) Maybe {
	return Maybe{reason: reason}
}

// IsPresent reports whether a value is available.
func (m Maybe) IsPresent() bool {
	return m.present
}

// IsNull reports whether the value is available but nil.
func (m Maybe) IsNull() bool {
	return m.present && isNil(m.value)
}

// Get returns the value, or nil when absent.
func (m Maybe) Get() interface{} {
	return m.value
}

// Reason explains why the value is absent.
func (m Maybe) Reason() string {
	return m.reason
}

// String renders the Maybe for diagnostics.
func (m Maybe) String() string {
	if !m.present {
		return "absent(" + m.reason + ")"
	}
	return fmt.Sprintf("present(%v)", m.value)
}

// TaskTag labels a task for the scheduler and for history filtering.
type TaskTag string

const (
	// TagTransient marks tasks that are excluded from the persisted task history.
	TagTransient TaskTag = "transient"

	// TagDeferred marks tasks created by deferred-value resolution.
	TagDeferred TaskTag = "deferred"
)

// TaskFunc is the body of a task. The context carries the scheduler that runs it.
type TaskFunc func(ctx context.Context) (interface{}, error)

// Task is a named unit of asynchronous work.
type Task struct {
	// ID is the unique identifier assigned on submission.
	ID string `json:"id"`

	// DisplayName is the human-readable task name.
	DisplayName string `json:"display_name"`

	// Tags classify the task.
	Tags []TaskTag `json:"tags,omitempty"`

	// Body is executed by the scheduler.
	Body TaskFunc `json:"-"`
}

// NewTask builds a task with the given display name, body and tags.
func NewTask(displayName string, body TaskFunc, tags ...TaskTag) *Task {
	return &Task{
		DisplayName: displayName,
		Tags:        tags,
		Body:        body,
	}
}

// HasTag reports whether the task carries tag.
func (t *Task) HasTag(tag TaskTag) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// IsTransient reports whether the task is excluded from persisted history.
func (t *Task) IsTransient() bool {
	return t.HasTag(TagTransient)
}

// TaskStatus represents the execution status of a task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting for a worker.
	TaskStatusQueued TaskStatus = "queued"

	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusSucceeded indicates the task completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"

	// TaskStatusFailed indicates the task returned an error.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled indicates the task context was cancelled before completion.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true if the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskHandle tracks a submitted task until it reaches a terminal state.
type TaskHandle struct {
	task *Task
	done chan struct{}

	mu          sync.Mutex
	status      TaskStatus
	result      interface{}
	err         error
	submittedAt time.Time
	startedAt   time.Time
	completedAt time.Time
}

func newTaskHandle(task *Task) *TaskHandle {
	return &TaskHandle{
		task:        task,
		done:        make(chan struct{}),
		status:      TaskStatusQueued,
		submittedAt: time.Now(),
	}
}

// Task returns the submitted task.
func (h *TaskHandle) Task() *Task {
	return h.task
}

// Done is closed once the task reaches a terminal state.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Status returns the current status.
func (h *TaskHandle) Status() TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Result returns the task outcome. It is only meaningful after Done is closed.
func (h *TaskHandle) Result() (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Record returns a snapshot suitable for persistence.
func (h *TaskHandle) Record() TaskRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := TaskRecord{
		ID:          h.task.ID,
		DisplayName: h.task.DisplayName,
		Tags:        append([]TaskTag(nil), h.task.Tags...),
		Status:      h.status,
		SubmittedAt: h.submittedAt,
		StartedAt:   h.startedAt,
		CompletedAt: h.completedAt,
	}
	if h.err != nil {
		rec.Error = h.err.Error()
	}
	return rec
}

func (h *TaskHandle) markRunning() {
	h.mu.Lock()
	h.status = TaskStatusRunning
	h.startedAt = time.Now()
	h.mu.Unlock()
}

func (h *TaskHandle) complete(status TaskStatus, result interface{}, err error) {
	h.mu.Lock()
	h.status = status
	h.result = result
	h.err = err
	h.completedAt = time.Now()
	h.mu.Unlock()
	close(h.done)
}

// TaskRecord is the persisted view of a finished task.
type TaskRecord struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Tags        []TaskTag  `json:"tags,omitempty"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Duration returns how long the task ran.
func (r TaskRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
