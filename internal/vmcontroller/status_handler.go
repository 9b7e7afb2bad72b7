package vmcontroller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/channel"
)

// NewStatusHandler returns a channel.Registry.StatusHandler that patches a
// VirtualMachine's status subresource from a runner's StatusReport frame
// (R8, spec.md §4.8). It runs on the registry's connection-handling
// goroutine, independent of any reconcile — a status_report can arrive at
// any time a runner is connected.
func NewStatusHandler(c client.Client, log logr.Logger) func(namespace, name string, payload channel.StatusReportPayload) {
	return func(namespace, name string, payload channel.StatusReportPayload) {
		ctx := context.Background()
		if err := applyStatusReport(ctx, c, namespace, name, payload); err != nil {
			log.Error(err, "failed to apply status report", "namespace", namespace, "name", name)
		}
	}
}

func applyStatusReport(ctx context.Context, c client.Client, namespace, name string, payload channel.StatusReportPayload) error {
	key := types.NamespacedName{Namespace: namespace, Name: name}
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var vm vmoperatorv1.VirtualMachine
		if err := c.Get(ctx, key, &vm); err != nil {
			return err
		}

		changed := false
		if payload.Cpus != 0 && vm.Status.Cpus != payload.Cpus {
			vm.Status.Cpus = payload.Cpus
			changed = true
		}
		if payload.RamBytes != 0 {
			ram := strconv.FormatInt(payload.RamBytes, 10)
			if vm.Status.Ram != ram {
				vm.Status.Ram = ram
				changed = true
			}
		}
		if vm.Status.ConsoleUser != payload.ConsoleUser {
			vm.Status.ConsoleUser = payload.ConsoleUser
			changed = true
		}
		if vm.Status.ConsoleClient != payload.ConsoleClient {
			vm.Status.ConsoleClient = payload.ConsoleClient
			changed = true
		}
		if payload.ResetCount != 0 && vm.Status.ResetCount != payload.ResetCount {
			vm.Status.ResetCount = payload.ResetCount
			changed = true
		}

		status := metav1.ConditionTrue
		reason := vmoperatorv1.ReasonRunning
		if !payload.Running {
			status = metav1.ConditionFalse
			reason = vmoperatorv1.ReasonStopped
			if payload.Reason == "unresponsive" {
				reason = vmoperatorv1.ReasonUnresponsive
			}
		}
		cond := metav1.Condition{
			Type:    vmoperatorv1.ConditionRunning,
			Status:  status,
			Reason:  reason,
			Message: payload.Reason,
		}
		if existing := findCondition(vm.Status.Conditions, cond.Type); existing == nil ||
			existing.Status != cond.Status || existing.Reason != cond.Reason {
			changed = true
		}
		setCondition(&vm.Status.Conditions, cond)

		if payload.Warning != "" {
			warnCond := metav1.Condition{
				Type:    vmoperatorv1.ConditionWarning,
				Status:  metav1.ConditionTrue,
				Reason:  vmoperatorv1.ReasonMaximumCpusExceeded,
				Message: payload.Warning,
			}
			if existing := findCondition(vm.Status.Conditions, warnCond.Type); existing == nil ||
				existing.Message != warnCond.Message {
				changed = true
			}
			setCondition(&vm.Status.Conditions, warnCond)
		}

		if !changed {
			return nil
		}
		if err := c.Status().Update(ctx, &vm); err != nil {
			return fmt.Errorf("update status for %s/%s: %w", namespace, name, err)
		}
		return nil
	})
}

func findCondition(conditions []metav1.Condition, t string) *metav1.Condition {
	for i := range conditions {
		if conditions[i].Type == t {
			return &conditions[i]
		}
	}
	return nil
}
