// Package engine provides the core types for resolving deferred values.
//
// # Overview
//
// Values embedded in blueprint plans may not be known when the plan is
// parsed: an external secret, another component's state, or a call chained
// on such a value. These values implement Deferred and are resolved in two
// phases:
//
//  1. Immediate - Deferred.Immediately attempts a non-blocking resolution
//     from already-computed state and never submits work.
//  2. Task - Deferred.NewTask returns a Task that the Scheduler runs
//     asynchronously; its result may itself be Deferred.
//
// Resolve is the general value-resolution primitive: it drives any plain
// value, Deferred value or TaskHandle to a terminal value, following
// deferred results as a trampoline bounded by MaxResolveDepth.
//
// # Scheduler
//
// TaskScheduler is the reference Scheduler implementation:
//
//	sched := engine.NewTaskScheduler(10, logger,
//	    engine.WithHistory(store),
//	    engine.WithObserver(metrics))
//
//	value, err := engine.Resolve(ctx, sched, deferred)
//
// Tasks tagged TagTransient are never written to the HistoryStore.
//
// # Error Classification
//
// Errors are classified by kind so callers can branch without string matching:
//
//   - NotFound: unknown provider, catalog item or spec type
//   - InvalidArgument: bad input, nil call targets, unmatched functions
//   - Configuration: bootstrap problems, raised eagerly
//   - IllegalState: no strategy could complete the operation
//   - Unsupported: operations the component refuses to perform
//   - Invocation: a dispatched function returned an error
//
// FatalError marks unrecoverable failures that are never wrapped.
package engine
