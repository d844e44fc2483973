package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "message only",
			err:  NewNotFoundError("provider not registered", nil),
			want: "[not_found] provider not registered",
		},
		{
			name: "with subject",
			err:  NewNotFoundError("provider not registered", nil).WithSubject("vault"),
			want: "[not_found] provider not registered (subject=vault)",
		},
		{
			name: "with subject and operation",
			err: NewIllegalStateError("no spec", nil).
				WithSubject("app:1.0").
				WithOperation("create_spec"),
			want: "[illegal_state] no spec (subject=app:1.0, operation=create_spec)",
		},
		{
			name: "with cause",
			err:  NewConfigurationError("bad provider", errors.New("boom")),
			want: "[configuration] bad provider: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngineError_Is(t *testing.T) {
	err := NewInvalidArgumentError("target is null", nil).WithCode(ErrCodeNullTarget)
	wrapped := fmt.Errorf("resolving: %w", err)

	if !errors.Is(wrapped, &EngineError{Kind: KindInvalidArgument}) {
		t.Error("expected match on kind without code")
	}
	if !errors.Is(wrapped, &EngineError{Kind: KindInvalidArgument, Code: ErrCodeNullTarget}) {
		t.Error("expected match on kind and code")
	}
	if errors.Is(wrapped, &EngineError{Kind: KindInvalidArgument, Code: ErrCodeNoSuchFunc}) {
		t.Error("unexpected match on different code")
	}
	if errors.Is(wrapped, &EngineError{Kind: KindNotFound}) {
		t.Error("unexpected match on different kind")
	}
}

func TestKindHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFoundError("x", nil), IsNotFound},
		{"invalid argument", NewInvalidArgumentError("x", nil), IsInvalidArgument},
		{"configuration", NewConfigurationError("x", nil), IsConfiguration},
		{"illegal state", NewIllegalStateError("x", nil), IsIllegalState},
		{"unsupported", NewUnsupportedError("x", nil), IsUnsupported},
		{"invocation", NewInvocationError("x", nil), IsInvocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("helper did not match %v", tt.err)
			}
			if !tt.check(fmt.Errorf("wrapped: %w", tt.err)) {
				t.Errorf("helper did not match wrapped %v", tt.err)
			}
			if tt.check(errors.New("plain")) {
				t.Error("helper matched a plain error")
			}
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := NewInvocationError("call failed", nil).
		WithDetail("function", "toUpperCase").
		WithDetail("arity", 0)

	if err.Details["function"] != "toUpperCase" {
		t.Errorf("function detail = %v", err.Details["function"])
	}
	if err.Details["arity"] != 0 {
		t.Errorf("arity detail = %v", err.Details["arity"])
	}
}

func TestFatalError(t *testing.T) {
	cause := errors.New("out of memory")
	fatal := &FatalError{Err: cause}

	if !IsFatal(fatal) {
		t.Error("IsFatal should match FatalError")
	}
	if !IsFatal(fmt.Errorf("outer: %w", fatal)) {
		t.Error("IsFatal should match wrapped FatalError")
	}
	if !errors.Is(fatal, cause) {
		t.Error("FatalError should unwrap to its cause")
	}
	if !strings.Contains(fatal.Error(), "out of memory") {
		t.Errorf("Error() = %q", fatal.Error())
	}
	if IsFatal(cause) {
		t.Error("IsFatal matched a plain error")
	}
}
