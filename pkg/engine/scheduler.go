package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TaskScheduler runs tasks on a bounded pool of workers.
//
// Tasks submitted from inside a running task of the same scheduler execute
// inline on the submitting worker, so a task that awaits the resolution of
// another deferred value never waits for a free slot it is itself holding.
type TaskScheduler struct {
	// maxParallel is the maximum number of concurrent workers
	maxParallel int

	// slots bounds the number of concurrently running top-level tasks
	slots chan struct{}

	// history persists non-transient task records; may be nil
	history HistoryStore

	// observer receives completion notifications; may be nil
	observer TaskObserver

	logger zerolog.Logger

	// mu protects active
	mu     sync.RWMutex
	active map[string]*TaskHandle
}

// SchedulerOption configures a TaskScheduler.
type SchedulerOption func(*TaskScheduler)

// WithHistory persists non-transient tasks to store.
func WithHistory(store HistoryStore) SchedulerOption {
	return func(s *TaskScheduler) {
		s.history = store
	}
}

// WithObserver reports task completions to observer.
func WithObserver(observer TaskObserver) SchedulerOption {
	return func(s *TaskScheduler) {
		s.observer = observer
	}
}

// NewTaskScheduler creates a new task scheduler.
func NewTaskScheduler(maxParallel int, logger zerolog.Logger, opts ...SchedulerOption) *TaskScheduler {
	if maxParallel <= 0 {
		maxParallel = 10 // Default to 10 concurrent workers
	}

	s := &TaskScheduler{
		maxParallel: maxParallel,
		slots:       make(chan struct{}, maxParallel),
		logger:      logger.With().Str("component", "task-scheduler").Logger(),
		active:      make(map[string]*TaskHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// schedulerContextKey marks a context as running inside a scheduler task.
type schedulerContextKey struct{}

// SchedulerFromContext returns the scheduler running the current task, if any.
func SchedulerFromContext(ctx context.Context) (Scheduler, bool) {
	s, ok := ctx.Value(schedulerContextKey{}).(*TaskScheduler)
	return s, ok
}

// WithScheduler returns a context that carries s as the current scheduler
// without marking it as running inside a task.
func WithScheduler(ctx context.Context, s Scheduler) context.Context {
	return context.WithValue(ctx, schedulerContextKey{}, s)
}

type inTaskContextKey struct{}

// Submit schedules a task for execution and returns its handle.
func (s *TaskScheduler) Submit(ctx context.Context, task *Task) *TaskHandle {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	handle := newTaskHandle(task)

	if task.Body == nil {
		handle.complete(TaskStatusFailed, nil,
			NewInvalidArgumentError("task has no body", nil).WithSubject(task.DisplayName))
		return handle
	}

	s.mu.Lock()
	s.active[task.ID] = handle
	s.mu.Unlock()

	if owner, ok := ctx.Value(inTaskContextKey{}).(*TaskScheduler); ok && owner == s {
		s.run(ctx, handle)
		return handle
	}

	go func() {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			s.finish(ctx, handle, TaskStatusCancelled, nil, ctx.Err())
			return
		}
		defer func() { <-s.slots }()
		s.run(ctx, handle)
	}()

	return handle
}

// Await blocks until the handle completes or ctx is done.
func (s *TaskScheduler) Await(ctx context.Context, handle *TaskHandle) (interface{}, error) {
	select {
	case <-handle.Done():
		return handle.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Active returns the number of tasks that have not yet finished.
func (s *TaskScheduler) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// run executes the task body, converting panics into errors.
func (s *TaskScheduler) run(ctx context.Context, handle *TaskHandle) {
	task := handle.task
	if err := ctx.Err(); err != nil {
		s.finish(ctx, handle, TaskStatusCancelled, nil, err)
		return
	}

	handle.markRunning()
	taskCtx := context.WithValue(ctx, schedulerContextKey{}, s)
	taskCtx = context.WithValue(taskCtx, inTaskContextKey{}, s)

	s.logger.Debug().
		Str("task_id", task.ID).
		Str("task", task.DisplayName).
		Bool("transient", task.IsTransient()).
		Msg("Task started")

	result, err := s.invoke(taskCtx, task)

	status := TaskStatusSucceeded
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil:
		status = TaskStatusCancelled
	case err != nil:
		status = TaskStatusFailed
	}
	s.finish(ctx, handle, status, result, err)
}

func (s *TaskScheduler) invoke(ctx context.Context, task *Task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			if fatal, ok := r.(*FatalError); ok {
				err = fatal
				return
			}
			if rerr, ok := r.(runtime.Error); ok {
				err = &FatalError{Err: rerr}
				return
			}
			err = fmt.Errorf("task %q panicked: %v", task.DisplayName, r)
		}
	}()
	return task.Body(ctx)
}

func (s *TaskScheduler) finish(ctx context.Context, handle *TaskHandle, status TaskStatus, result interface{}, err error) {
	handle.complete(status, result, err)

	s.mu.Lock()
	delete(s.active, handle.task.ID)
	s.mu.Unlock()

	rec := handle.Record()
	if s.observer != nil {
		s.observer.ObserveTask(rec.DisplayName, handle.task.IsTransient(), string(rec.Status), rec.Duration())
	}

	event := s.logger.Debug()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.Str("task_id", rec.ID).
		Str("task", rec.DisplayName).
		Str("status", string(rec.Status)).
		Dur("duration", rec.Duration()).
		Msg("Task finished")

	if s.history == nil || handle.task.IsTransient() {
		return
	}
	// History is written with a detached context so cancelled tasks are still recorded.
	if herr := s.history.RecordTask(context.WithoutCancel(ctx), rec); herr != nil {
		s.logger.Error().Err(herr).Str("task_id", rec.ID).Msg("Failed to record task history")
	}
}
