package vmcontroller

import (
	"context"
	"errors"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestIsTransient(t *testing.T) {
	gr := schema.GroupResource{Group: "vmoperator.jdrupes.org", Resource: "virtualmachines"}
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"conflict", apierrors.NewConflict(gr, "vm-a", errors.New("stale")), true},
		{"too many requests", apierrors.NewTooManyRequests("busy", 1), true},
		{"not found", apierrors.NewNotFound(gr, "vm-a"), false},
		{"invalid", apierrors.NewInvalid(gr.WithVersion("v1").GroupKind(), "vm-a", nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.transient {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.transient)
			}
		})
	}
}

func TestRetryAPIStopsOnPermanentError(t *testing.T) {
	calls := 0
	gr := schema.GroupResource{Group: "vmoperator.jdrupes.org", Resource: "virtualmachines"}
	err := retryAPI(context.Background(), func() error {
		calls++
		return apierrors.NewNotFound(gr, "vm-a")
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 1 {
		t.Fatalf("expected a non-transient error to stop after 1 call, got %d", calls)
	}
}

func TestRetryAPISucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := retryAPI(context.Background(), func() error {
		calls++
		if calls < 3 {
			return apierrors.NewTooManyRequests("busy", 0)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
