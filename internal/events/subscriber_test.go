package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/channel"
)

func newTestSubscriber(t *testing.T, objs ...runtime.Object) *Subscriber {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := vmoperatorv1.AddToScheme(scheme); err != nil {
		t.Fatalf("add to scheme: %v", err)
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithRuntimeObjects(objs...).Build()
	return &Subscriber{
		client:   c,
		channels: channel.NewRegistry(),
		log:      logr.Discard(),
		handlers: make(map[string]EventHandler),
	}
}

func TestHandleResetBumpsResetCount(t *testing.T) {
	vm := &vmoperatorv1.VirtualMachine{
		ObjectMeta: metav1.ObjectMeta{Name: "vm-a", Namespace: "default"},
		Spec:       vmoperatorv1.VirtualMachineSpec{Image: "runner:latest", ResetCount: 1},
	}
	s := newTestSubscriber(t, vm)

	data, _ := json.Marshal(VmResetEvent{Namespace: "default", Name: "vm-a"})
	if err := s.handleReset(context.Background(), data); err != nil {
		t.Fatalf("handleReset failed: %v", err)
	}

	var got vmoperatorv1.VirtualMachine
	if err := s.client.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "vm-a"}, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Spec.ResetCount != 2 {
		t.Fatalf("expected resetCount to be bumped to 2, got %d", got.Spec.ResetCount)
	}
}

func TestHandleStopSetsStateStopped(t *testing.T) {
	vm := &vmoperatorv1.VirtualMachine{
		ObjectMeta: metav1.ObjectMeta{Name: "vm-a", Namespace: "default"},
		Spec: vmoperatorv1.VirtualMachineSpec{
			Image: "runner:latest",
			Vm:    vmoperatorv1.VmConfig{MaximumCpus: 1, CurrentCpus: 1, State: vmoperatorv1.VmStateRunning},
		},
	}
	s := newTestSubscriber(t, vm)

	data, _ := json.Marshal(VmStopEvent{Namespace: "default", Name: "vm-a"})
	if err := s.handleStop(context.Background(), data); err != nil {
		t.Fatalf("handleStop failed: %v", err)
	}

	var got vmoperatorv1.VirtualMachine
	if err := s.client.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "vm-a"}, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Spec.Vm.State != vmoperatorv1.VmStateStopped {
		t.Fatalf("expected state Stopped, got %s", got.Spec.Vm.State)
	}
}

func TestHandleLoginWithoutChannelFails(t *testing.T) {
	s := newTestSubscriber(t)
	data, _ := json.Marshal(VmLoginEvent{Namespace: "default", Name: "vm-a", User: "alice"})
	if err := s.handleLogin(context.Background(), data); err == nil {
		t.Fatalf("expected an error when no channel is registered")
	}
}
