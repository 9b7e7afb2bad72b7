package vmcontroller

import (
	"context"
	"errors"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/channel"
)

func newFakeReconciler(t *testing.T, vm *vmoperatorv1.VirtualMachine) *VirtualMachineReconciler {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := vmoperatorv1.AddToScheme(scheme); err != nil {
		t.Fatalf("add to scheme: %v", err)
	}
	c := fake.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&vmoperatorv1.VirtualMachine{}).
		WithObjects(vm).
		Build()
	return &VirtualMachineReconciler{Client: c, Scheme: scheme, Channels: channel.NewRegistry()}
}

func TestFailReconcileRecordsReconcileFailedCondition(t *testing.T) {
	vm := &vmoperatorv1.VirtualMachine{
		ObjectMeta: metav1.ObjectMeta{Name: "vm-a", Namespace: "default", Generation: 3},
	}
	r := newFakeReconciler(t, vm)

	reconcileErr := errors.New("create pvc: quota exceeded")
	if got := r.failReconcile(context.Background(), vm, reconcileErr); got != reconcileErr {
		t.Fatalf("expected failReconcile to return the original error unchanged, got %v", got)
	}

	var persisted vmoperatorv1.VirtualMachine
	if err := r.Get(context.Background(), types.NamespacedName{Namespace: "default", Name: "vm-a"}, &persisted); err != nil {
		t.Fatalf("get: %v", err)
	}
	cond := findCondition(persisted.Status.Conditions, vmoperatorv1.ConditionReconcileFailed)
	if cond == nil {
		t.Fatalf("expected a ReconcileFailed condition")
	}
	if cond.Status != metav1.ConditionTrue || cond.Reason != vmoperatorv1.ReasonReconcileError {
		t.Fatalf("unexpected condition: %+v", cond)
	}
	if cond.Message != reconcileErr.Error() {
		t.Fatalf("expected condition message %q, got %q", reconcileErr.Error(), cond.Message)
	}
	if cond.ObservedGeneration != 3 {
		t.Fatalf("expected observedGeneration 3, got %d", cond.ObservedGeneration)
	}
}

func TestUpdateRunningConditionClearsReconcileFailed(t *testing.T) {
	vm := &vmoperatorv1.VirtualMachine{
		ObjectMeta: metav1.ObjectMeta{Name: "vm-a", Namespace: "default"},
		Status: vmoperatorv1.VirtualMachineStatus{
			Conditions: []metav1.Condition{{
				Type:   vmoperatorv1.ConditionReconcileFailed,
				Status: metav1.ConditionTrue,
				Reason: vmoperatorv1.ReasonReconcileError,
			}},
		},
	}
	r := newFakeReconciler(t, vm)
	ch := r.Channels.GetOrCreate(vm.Namespace, vm.Name)

	if err := r.updateRunningCondition(context.Background(), vm, ch); err != nil {
		t.Fatalf("updateRunningCondition: %v", err)
	}

	var persisted vmoperatorv1.VirtualMachine
	if err := r.Get(context.Background(), types.NamespacedName{Namespace: "default", Name: "vm-a"}, &persisted); err != nil {
		t.Fatalf("get: %v", err)
	}
	cond := findCondition(persisted.Status.Conditions, vmoperatorv1.ConditionReconcileFailed)
	if cond == nil {
		t.Fatalf("expected a ReconcileFailed condition to still be present")
	}
	if cond.Status != metav1.ConditionFalse || cond.Reason != vmoperatorv1.ReasonReconcileSucceeded {
		t.Fatalf("expected ReconcileFailed to be cleared on success, got %+v", cond)
	}
}

func TestDispatchDisplayPasswordSkipsFirstObservation(t *testing.T) {
	r := newFakeReconciler(t, &vmoperatorv1.VirtualMachine{
		ObjectMeta: metav1.ObjectMeta{Name: "vm-a", Namespace: "default"},
	})
	ch := r.Channels.GetOrCreate("default", "vm-a")
	logger := testLogger{}

	r.dispatchDisplayPassword(ch, "s3cret", "default", logger)

	if ch.DisplayPassword() != "s3cret" {
		t.Fatalf("expected the channel to record the first observed password")
	}
}

func TestDispatchDisplayPasswordDetectsRotation(t *testing.T) {
	r := newFakeReconciler(t, &vmoperatorv1.VirtualMachine{
		ObjectMeta: metav1.ObjectMeta{Name: "vm-a", Namespace: "default"},
	})
	ch := r.Channels.GetOrCreate("default", "vm-a")
	ch.SetDisplayPassword("old-pass")
	logger := testLogger{}

	r.dispatchDisplayPassword(ch, "new-pass", "default", logger)

	if ch.DisplayPassword() != "new-pass" {
		t.Fatalf("expected the channel to record the rotated password, got %q", ch.DisplayPassword())
	}
}

type testLogger struct{}

func (testLogger) Info(string, ...interface{}) {}
