package engine

import (
	"context"
	"fmt"
	"reflect"
)

// MaxResolveDepth bounds the number of deferred hops Resolve follows before
// treating the expression graph as cyclic.
const MaxResolveDepth = 64

// Resolve drives v to a terminal, non-deferred value.
//
// Deferred values are first asked for an immediate result; when none is
// available their task is submitted to sched and awaited. A result that is
// itself deferred (or a task handle) is resolved in turn, up to
// MaxResolveDepth hops. If sched is nil the scheduler carried by ctx is used.
func Resolve(ctx context.Context, sched Scheduler, v interface{}) (interface{}, error) {
	if sched == nil {
		if fromCtx, ok := SchedulerFromContext(ctx); ok {
			sched = fromCtx
		}
	}

	for depth := 0; ; depth++ {
		if depth >= MaxResolveDepth {
			return nil, NewIllegalStateError(
				fmt.Sprintf("resolution exceeded depth %d", MaxResolveDepth), nil).
				WithCode(ErrCodeResolveDepth).
				WithSubject(describe(v)).
				WithOperation("resolve")
		}

		switch current := v.(type) {
		case Deferred:
			m, err := current.Immediately()
			if err != nil {
				return nil, err
			}
			if m.IsPresent() {
				v = m.Get()
				continue
			}
			if sched == nil {
				return nil, NewIllegalStateError("no scheduler available to resolve deferred value", nil).
					WithSubject(current.String()).
					WithOperation("resolve")
			}
			result, err := sched.Await(ctx, sched.Submit(ctx, current.NewTask()))
			if err != nil {
				return nil, err
			}
			v = result

		case *TaskHandle:
			if sched == nil {
				select {
				case <-current.Done():
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				result, err := current.Result()
				if err != nil {
					return nil, err
				}
				v = result
				continue
			}
			result, err := sched.Await(ctx, current)
			if err != nil {
				return nil, err
			}
			v = result

		default:
			return v, nil
		}
	}
}

// ResolveDeep resolves v and every deferred value nested inside maps and
// slices, returning a fresh structure. The input is never mutated.
func ResolveDeep(ctx context.Context, sched Scheduler, v interface{}) (interface{}, error) {
	resolved, err := Resolve(ctx, sched, v)
	if err != nil {
		return nil, err
	}

	switch typed := resolved.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, item := range typed {
			r, err := ResolveDeep(ctx, sched, item)
			if err != nil {
				return nil, fmt.Errorf("resolving %q: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			r, err := ResolveDeep(ctx, sched, item)
			if err != nil {
				return nil, fmt.Errorf("resolving [%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return resolved, nil
	}
}

// IsNil reports whether v is nil or a typed nil pointer, map, slice,
// channel, function or interface.
func IsNil(v interface{}) bool {
	return isNil(v)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func describe(v interface{}) string {
	if d, ok := v.(Deferred); ok {
		return d.String()
	}
	return fmt.Sprintf("%v", v)
}
