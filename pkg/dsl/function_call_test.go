package dsl

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/blueprint/pkg/engine"
)

// Mock provider registry for testing
type mockRegistry struct {
	values map[string]map[string]string
	calls  int32
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		values: map[string]map[string]string{
			"myprovider": {"mykey": "myval", "region": "eu-west-1"},
		},
	}
}

func (m *mockRegistry) Resolve(providerName, key string) (string, bool, error) {
	atomic.AddInt32(&m.calls, 1)
	provider, ok := m.values[providerName]
	if !ok {
		return "", false, engine.NewNotFoundError("no external config provider named "+providerName, nil)
	}
	v, ok := provider[key]
	return v, ok, nil
}

// pending never resolves immediately and records whether its task was built.
type pending struct {
	value   interface{}
	tasked  int32
	blocker chan struct{}
}

func (p *pending) Immediately() (engine.Maybe, error) {
	return engine.Absent("pending"), nil
}

func (p *pending) NewTask() *engine.Task {
	atomic.AddInt32(&p.tasked, 1)
	return engine.NewTask("pending", func(ctx context.Context) (interface{}, error) {
		if p.blocker != nil {
			<-p.blocker
		}
		return p.value, nil
	}, engine.TagTransient)
}

func (p *pending) String() string { return "pending" }

func newTestScheduler() *engine.TaskScheduler {
	return engine.NewTaskScheduler(4, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestFunctionCall_Immediately(t *testing.T) {
	reg := newMockRegistry()

	t.Run("present target invokes function", func(t *testing.T) {
		call := NewFunctionCall(NewExternal(reg, "myprovider", "region"), "toUpperCase")
		m, err := call.Immediately()
		if err != nil {
			t.Fatalf("Immediately() error = %v", err)
		}
		if !m.IsPresent() || m.Get() != "EU-WEST-1" {
			t.Errorf("Immediately() = %v, want present EU-WEST-1", m)
		}
	})

	t.Run("null target fails with invalid argument", func(t *testing.T) {
		call := NewFunctionCall(NewExternal(reg, "myprovider", "missing"), "replace", "a", "b")
		_, err := call.Immediately()
		if !engine.IsInvalidArgument(err) {
			t.Fatalf("expected invalid argument error, got %v", err)
		}
		msg := err.Error()
		if !strings.Contains(msg, "replace") {
			t.Errorf("message %q does not name the function", msg)
		}
		if !strings.Contains(msg, `"a", "b"`) {
			t.Errorf("message %q does not render the arguments", msg)
		}
		if !strings.Contains(msg, "evaluates to null") {
			t.Errorf("message %q does not explain the null target", msg)
		}
	})

	t.Run("literal nil target fails", func(t *testing.T) {
		_, err := NewFunctionCall(nil, "trim").Immediately()
		if !engine.IsInvalidArgument(err) {
			t.Fatalf("expected invalid argument error, got %v", err)
		}
	})

	t.Run("pending target is absent without scheduling", func(t *testing.T) {
		target := &pending{value: "x"}
		done := make(chan struct{})
		var m engine.Maybe
		var err error
		go func() {
			m, err = NewFunctionCall(target, "toUpperCase").Immediately()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Immediately() blocked")
		}
		if err != nil {
			t.Fatalf("Immediately() error = %v", err)
		}
		if m.IsPresent() {
			t.Errorf("Immediately() = %v, want absent", m)
		}
		if atomic.LoadInt32(&target.tasked) != 0 {
			t.Error("Immediately() built a task")
		}
	})

	t.Run("pending argument is absent", func(t *testing.T) {
		m, err := NewFunctionCall("abc", "concat", &pending{value: "d"}).Immediately()
		if err != nil || m.IsPresent() {
			t.Errorf("Immediately() = %v, %v; want absent", m, err)
		}
	})

	t.Run("missing provider propagates not found", func(t *testing.T) {
		_, err := NewFunctionCall(NewExternal(reg, "nope", "k"), "trim").Immediately()
		if !engine.IsNotFound(err) {
			t.Fatalf("expected not found error, got %v", err)
		}
	})
}

func TestFunctionCall_NewTask(t *testing.T) {
	sched := newTestScheduler()
	ctx := context.Background()

	t.Run("task is transient and named", func(t *testing.T) {
		task := NewFunctionCall("abc", "toUpperCase").NewTask()
		if !task.IsTransient() {
			t.Error("task should be tagged transient")
		}
		if !strings.HasPrefix(task.DisplayName, "Deferred function call ") {
			t.Errorf("DisplayName = %q", task.DisplayName)
		}
	})

	t.Run("waits for pending target", func(t *testing.T) {
		target := &pending{value: "hello", blocker: make(chan struct{})}
		call := NewFunctionCall(target, "toUpperCase")

		handle := sched.Submit(ctx, call.NewTask())
		close(target.blocker)

		got, err := sched.Await(ctx, handle)
		if err != nil {
			t.Fatalf("Await() error = %v", err)
		}
		if got != "HELLO" {
			t.Errorf("Await() = %v, want HELLO", got)
		}
	})

	t.Run("null resolved target fails", func(t *testing.T) {
		call := NewFunctionCall(&pending{value: nil}, "toUpperCase")
		_, err := sched.Await(ctx, sched.Submit(ctx, call.NewTask()))
		if !engine.IsInvalidArgument(err) {
			t.Fatalf("expected invalid argument error, got %v", err)
		}
	})

	t.Run("deferred result is returned unresolved", func(t *testing.T) {
		table := NewBuiltinTable()
		inner := &pending{value: "inner"}
		Register(table, "defer", 0, func(s string, _ []interface{}) (interface{}, error) {
			return inner, nil
		})

		call := NewFunctionCall("x", "defer").WithFunctions(table)
		got, err := sched.Await(ctx, sched.Submit(ctx, call.NewTask()))
		if err != nil {
			t.Fatalf("Await() error = %v", err)
		}
		if got != inner {
			t.Fatalf("task result = %v, want the inner deferred value", got)
		}

		resolved, err := engine.Resolve(ctx, sched, call)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if resolved != "inner" {
			t.Errorf("Resolve() = %v, want inner", resolved)
		}
	})

	t.Run("chained calls resolve through scheduler", func(t *testing.T) {
		call := NewFunctionCall(NewFunctionCall(&pending{value: "  Mixed "}, "trim"), "toLowerCase")
		got, err := engine.Resolve(ctx, sched, call)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != "mixed" {
			t.Errorf("Resolve() = %q, want mixed", got)
		}
	})
}

func TestFunctionCall_String(t *testing.T) {
	reg := newMockRegistry()
	tests := []struct {
		name string
		call *FunctionCall
		want string
	}{
		{
			name: "no args",
			call: NewFunctionCall(NewExternal(reg, "p", "k"), "toUpperCase"),
			want: `external("p", "k").toUpperCase()`,
		},
		{
			name: "mixed args",
			call: NewFunctionCall("abc", "substring", 1, 2),
			want: `"abc".substring(1, 2)`,
		},
		{
			name: "nested",
			call: NewFunctionCall(NewFunctionCall("a", "trim"), "concat", "b", nil),
			want: `"a".trim().concat("b", null)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.call.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExternal(t *testing.T) {
	reg := newMockRegistry()

	tests := []struct {
		name       string
		ext        *External
		want       interface{}
		wantNotFnd bool
	}{
		{"known key", NewExternal(reg, "myprovider", "mykey"), "myval", false},
		{"missing key yields nil", NewExternal(reg, "myprovider", "nokey"), nil, false},
		{"missing provider", NewExternal(reg, "missingProvider", "k"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.ext.Immediately()
			if tt.wantNotFnd {
				if !engine.IsNotFound(err) {
					t.Fatalf("expected not found error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Immediately() error = %v", err)
			}
			if !m.IsPresent() || m.Get() != tt.want {
				t.Errorf("Immediately() = %v, want present %v", m, tt.want)
			}
		})
	}

	t.Run("unbound registry", func(t *testing.T) {
		_, err := (&External{Provider: "p", Key: "k"}).Immediately()
		if !engine.IsIllegalState(err) {
			t.Fatalf("expected illegal state error, got %v", err)
		}
	})

	t.Run("task is transient", func(t *testing.T) {
		task := NewExternal(reg, "myprovider", "mykey").NewTask()
		if !task.IsTransient() {
			t.Error("task should be tagged transient")
		}
		got, err := task.Body(context.Background())
		if err != nil || got != "myval" {
			t.Errorf("Body() = %v, %v", got, err)
		}
	})
}

func TestFunctionCall_InvocationErrorWrapped(t *testing.T) {
	_, err := NewFunctionCall("abc", "substring", 5).Immediately()
	if !engine.IsInvocation(err) {
		t.Fatalf("expected invocation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "substring(5)") {
		t.Errorf("message %q lacks call context", err.Error())
	}
	var ee *engine.EngineError
	if !errors.As(err, &ee) || ee.Err == nil {
		t.Error("expected underlying cause to be preserved")
	}
}
