package engine

import (
	"context"
	"errors"
	"testing"
)

// fakeDeferred resolves to value, immediately when ready is set,
// otherwise through a transient task.
type fakeDeferred struct {
	name  string
	value interface{}
	ready bool
	err   error
}

func (f *fakeDeferred) Immediately() (Maybe, error) {
	if f.err != nil {
		return Maybe{}, f.err
	}
	if f.ready {
		return Present(f.value), nil
	}
	return Absent("not ready"), nil
}

func (f *fakeDeferred) NewTask() *Task {
	return NewTask("resolve "+f.name, func(ctx context.Context) (interface{}, error) {
		return f.value, nil
	}, TagTransient, TagDeferred)
}

func (f *fakeDeferred) String() string {
	return f.name
}

// cyclic returns itself from its task forever.
type cyclic struct{}

func (c *cyclic) Immediately() (Maybe, error) { return Absent("never"), nil }
func (c *cyclic) String() string              { return "cycle" }
func (c *cyclic) NewTask() *Task {
	return NewTask("cycle", func(ctx context.Context) (interface{}, error) {
		return c, nil
	}, TagTransient)
}

func TestResolve(t *testing.T) {
	sched := newTestScheduler(2)
	ctx := context.Background()

	tests := []struct {
		name  string
		input interface{}
		want  interface{}
	}{
		{"plain value", "hello", "hello"},
		{"nil", nil, nil},
		{"immediate", &fakeDeferred{name: "a", value: "x", ready: true}, "x"},
		{"via task", &fakeDeferred{name: "b", value: "y"}, "y"},
		{
			name:  "chain of deferred results",
			input: &fakeDeferred{name: "outer", value: &fakeDeferred{name: "inner", value: "z"}},
			want:  "z",
		},
		{
			name:  "immediate yields deferred",
			input: &fakeDeferred{name: "outer", ready: true, value: &fakeDeferred{name: "inner", value: 7}},
			want:  7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(ctx, sched, tt.input)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_TaskHandle(t *testing.T) {
	sched := newTestScheduler(1)
	ctx := context.Background()

	handle := sched.Submit(ctx, NewTask("produce", func(ctx context.Context) (interface{}, error) {
		return &fakeDeferred{name: "later", value: "done"}, nil
	}))

	got, err := Resolve(ctx, sched, handle)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "done" {
		t.Errorf("Resolve() = %v, want done", got)
	}
}

func TestResolve_ImmediateError(t *testing.T) {
	boom := NewInvalidArgumentError("target is null", nil)
	_, err := Resolve(context.Background(), newTestScheduler(1), &fakeDeferred{name: "bad", err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("Resolve() error = %v, want %v", err, boom)
	}
}

func TestResolve_CycleBounded(t *testing.T) {
	_, err := Resolve(context.Background(), newTestScheduler(1), &cyclic{})
	if !IsIllegalState(err) {
		t.Fatalf("expected illegal state error, got %v", err)
	}
	if !errors.Is(err, &EngineError{Kind: KindIllegalState, Code: ErrCodeResolveDepth}) {
		t.Errorf("expected depth code, got %v", err)
	}
}

func TestResolve_NoScheduler(t *testing.T) {
	_, err := Resolve(context.Background(), nil, &fakeDeferred{name: "pending", value: 1})
	if !IsIllegalState(err) {
		t.Fatalf("expected illegal state error, got %v", err)
	}

	got, err := Resolve(context.Background(), nil, &fakeDeferred{name: "ready", value: 1, ready: true})
	if err != nil || got != 1 {
		t.Fatalf("Resolve() = %v, %v; immediate values need no scheduler", got, err)
	}
}

func TestResolve_SchedulerFromContext(t *testing.T) {
	sched := newTestScheduler(1)
	ctx := WithScheduler(context.Background(), sched)

	got, err := Resolve(ctx, nil, &fakeDeferred{name: "pending", value: "ctx"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "ctx" {
		t.Errorf("Resolve() = %v, want ctx", got)
	}
}

func TestResolveDeep(t *testing.T) {
	sched := newTestScheduler(2)
	input := map[string]interface{}{
		"plain": "v",
		"secret": &fakeDeferred{name: "s", value: "hunter2"},
		"list": []interface{}{
			1,
			&fakeDeferred{name: "l", value: "item", ready: true},
		},
	}

	got, err := ResolveDeep(context.Background(), sched, input)
	if err != nil {
		t.Fatalf("ResolveDeep() error = %v", err)
	}

	m := got.(map[string]interface{})
	if m["plain"] != "v" || m["secret"] != "hunter2" {
		t.Errorf("unexpected map values: %v", m)
	}
	list := m["list"].([]interface{})
	if list[0] != 1 || list[1] != "item" {
		t.Errorf("unexpected list values: %v", list)
	}
	if _, ok := input["secret"].(*fakeDeferred); !ok {
		t.Error("input map was mutated")
	}
}

func TestMaybe(t *testing.T) {
	var nilMap map[string]string

	tests := []struct {
		name        string
		m           Maybe
		wantPresent bool
		wantNull    bool
	}{
		{"absent", Absent("pending"), false, false},
		{"present value", Present("x"), true, false},
		{"present nil", Present(nil), true, true},
		{"present typed nil", Present(nilMap), true, true},
		{"present zero int", Present(0), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.IsPresent(); got != tt.wantPresent {
				t.Errorf("IsPresent() = %v, want %v", got, tt.wantPresent)
			}
			if got := tt.m.IsNull(); got != tt.wantNull {
				t.Errorf("IsNull() = %v, want %v", got, tt.wantNull)
			}
		})
	}

	if Absent("pending").Reason() != "pending" {
		t.Error("Reason() lost")
	}
}
