package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestQueueError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component string
		code      ErrorCode
		err       error
		want      string
	}{
		{
			name:      "with component and code",
			op:        OpStore,
			component: "store",
			code:      ErrCodeStorageFailure,
			err:       fmt.Errorf("failed to connect"),
			want:      "store operation failed in store component [STORAGE_FAILURE]: failed to connect",
		},
		{
			name:      "with component no code",
			op:        OpProcess,
			component: "processor",
			err:       fmt.Errorf("failed to connect"),
			want:      "process operation failed in processor component: failed to connect",
		},
		{
			name: "without component with code",
			op:   OpRemote,
			code: ErrCodeNetworkFailure,
			err:  fmt.Errorf("network error"),
			want: "remote operation failed [NETWORK_FAILURE]: network error",
		},
		{
			name: "without component or code",
			op:   OpEnqueue,
			err:  fmt.Errorf("bad input"),
			want: "enqueue operation failed: bad input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &QueueError{
				Op:        tt.op,
				Component: tt.component,
				Err:       tt.err,
				Code:      tt.code,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("QueueError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewNetworkError(t *testing.T) {
	cause := fmt.Errorf("network failure")
	qErr := NewNetworkError(OpRemote, cause)

	if qErr.Code != ErrCodeNetworkFailure {
		t.Errorf("NewNetworkError() Code = %v, want %v", qErr.Code, ErrCodeNetworkFailure)
	}
	if qErr.Component != "remote" {
		t.Errorf("NewNetworkError() Component = %v, want %v", qErr.Component, "remote")
	}
	if qErr.Err != cause {
		t.Errorf("NewNetworkError() Err = %v, want %v", qErr.Err, cause)
	}
	if !qErr.Retryable {
		t.Error("NewNetworkError() created non-retryable error")
	}
}

func TestNewStorageError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	qErr := NewStorageError(OpStore, cause)

	if qErr.Code != ErrCodeStorageFailure {
		t.Errorf("NewStorageError() Code = %v, want %v", qErr.Code, ErrCodeStorageFailure)
	}
	if qErr.Component != "store" {
		t.Errorf("NewStorageError() Component = %v, want %v", qErr.Component, "store")
	}
	if qErr.Retryable {
		t.Error("NewStorageError() must not be retryable")
	}
}

func TestNewRejectedError(t *testing.T) {
	qErr := NewRejectedError(OpRemote, fmt.Errorf("schema violation"))

	if !IsPermanent(qErr) {
		t.Error("IsPermanent() = false for a rejected error")
	}
	if IsRetryable(qErr) {
		t.Error("IsRetryable() = true for a rejected error")
	}
	if IsPermanent(NewNetworkError(OpRemote, fmt.Errorf("timeout"))) {
		t.Error("IsPermanent() = true for a network error")
	}
}

func TestNewValidationError(t *testing.T) {
	cause := fmt.Errorf("validation failed")
	qErr := NewValidationError(OpEnqueue, cause)

	if qErr.Code != ErrCodeValidationFailure {
		t.Errorf("NewValidationError() Code = %v, want %v", qErr.Code, ErrCodeValidationFailure)
	}
	if qErr.Kind != KindInvalid {
		t.Errorf("NewValidationError() Kind = %v, want %v", qErr.Kind, KindInvalid)
	}
	if qErr.Retryable {
		t.Error("NewValidationError() created retryable error when it shouldn't")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable queue error",
			err:  NewRetryable(OpProcess, fmt.Errorf("temporary error")),
			want: true,
		},
		{
			name: "non-retryable queue error",
			err:  New(OpProcess, fmt.Errorf("permanent error")),
			want: false,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("regular error"),
			want: false,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("wrapped: %w", NewRetryable(OpProcess, fmt.Errorf("temporary"))),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestE(t *testing.T) {
	sentinel := errors.New("boom")

	err := E(Op("sqlite.SaveItem"), Component("storage/sqlite"), KindInternal, sentinel, "item abc")

	var qErr *QueueError
	if !errors.As(err, &qErr) {
		t.Fatalf("E() did not build a QueueError: %T", err)
	}
	if qErr.Op != "sqlite.SaveItem" {
		t.Errorf("Op = %v, want sqlite.SaveItem", qErr.Op)
	}
	if qErr.Component != "storage/sqlite" {
		t.Errorf("Component = %v, want storage/sqlite", qErr.Component)
	}
	if qErr.Kind != KindInternal {
		t.Errorf("Kind = %v, want %v", qErr.Kind, KindInternal)
	}
	if !errors.Is(err, sentinel) {
		t.Error("E() lost the wrapped sentinel")
	}
}

func TestE_InheritsClassification(t *testing.T) {
	inner := NewNetworkError(OpRemote, fmt.Errorf("connection reset"))
	err := WrapOpComponent(inner, "httptransport.Update", "transport/httptransport")

	if !IsRetryable(err) {
		t.Error("wrapping dropped the retryable flag")
	}
	if !HasCode(err, ErrCodeNetworkFailure) {
		t.Error("wrapping dropped the network code")
	}
}

func TestWrapOpComponent_Nil(t *testing.T) {
	if err := WrapOpComponent(nil, "op", "component"); err != nil {
		t.Errorf("WrapOpComponent(nil) = %v, want nil", err)
	}
	if err := WrapOpComponentKind(nil, "op", "component", KindInternal); err != nil {
		t.Errorf("WrapOpComponentKind(nil) = %v, want nil", err)
	}
}

func TestErrorsAs(t *testing.T) {
	var qErr *QueueError
	err := fmt.Errorf("wrapped: %w", New(OpResolve, fmt.Errorf("inner")))

	if !errors.As(err, &qErr) {
		t.Error("errors.As() failed to detect QueueError")
	}

	if qErr.Op != OpResolve {
		t.Errorf("errors.As() Op = %v, want %v", qErr.Op, OpResolve)
	}
}
