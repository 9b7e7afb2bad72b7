// Package vmcontroller implements the VirtualMachine and VmPool
// reconcilers: the Kubernetes-facing half of the operator that renders a
// VM's desired state into a Pod/ConfigMap/Secret/Service/PVC set, and
// forwards hot-applicable field changes to the running Runner over its
// channel (spec.md §4.3, grounded on controller/controllers/session_controller.go).
package vmcontroller

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/channel"
	"vmoperator.jdrupes.org/vm-operator/internal/metrics"
)

// VirtualMachineReconciler reconciles VirtualMachine custom resources.
//
// RBAC PERMISSIONS:
//
// VirtualMachines: get, list, watch, create, update, patch, delete, status
// ConfigMaps, Secrets, Services, PersistentVolumeClaims, Pods: full CRUD
//
//+kubebuilder:rbac:groups=vmoperator.jdrupes.org,resources=virtualmachines,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=vmoperator.jdrupes.org,resources=virtualmachines/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=vmoperator.jdrupes.org,resources=virtualmachines/finalizers,verbs=update
//+kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=persistentvolumeclaims,verbs=get;list;watch;create;update;patch;delete
type VirtualMachineReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Channels *channel.Registry

	// ControllerURL is the WebSocket base URL runners are told to dial back
	// to (spec.md §2 [ADD] transport decision); defaults to the in-cluster
	// service address if unset.
	ControllerURL string
}

// Reconcile drives one VirtualMachine towards its desired state. The
// ordering — PVCs, then ConfigMap, then display Secret, then Pod, then
// Service — mirrors spec.md §4.3: each later resource's name or content can
// depend on an earlier one (the Pod mounts the ConfigMap and PVCs; the
// Service selects the Pod's labels).
func (r *VirtualMachineReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	start := time.Now()
	defer func() {
		metrics.ObserveReconciliationDuration(req.Namespace, time.Since(start).Seconds())
	}()

	var vm vmoperatorv1.VirtualMachine
	if err := r.Get(ctx, req.NamespacedName, &vm); err != nil {
		if apierrors.IsNotFound(err) {
			r.Channels.Remove(req.Namespace, req.Name)
			return ctrl.Result{}, nil
		}
		metrics.RecordReconciliation(req.Namespace, "error")
		return ctrl.Result{}, fmt.Errorf("get virtualmachine: %w", err)
	}

	logger.Info("reconciling VirtualMachine", "name", vm.Name, "state", vm.Spec.Vm.State)

	def := NewDefinition(&vm)
	ch := r.Channels.GetOrCreate(vm.Namespace, vm.Name)

	r.dispatchHotFields(ch, def, logger)

	if err := r.reconcilePVCs(ctx, &vm, def); err != nil {
		metrics.RecordReconciliation(req.Namespace, "error")
		return ctrl.Result{}, r.failReconcile(ctx, &vm, err)
	}

	cm, err := r.reconcileConfigMap(ctx, &vm, def)
	if err != nil {
		metrics.RecordReconciliation(req.Namespace, "error")
		return ctrl.Result{}, r.failReconcile(ctx, &vm, err)
	}

	password, err := r.reconcileDisplaySecret(ctx, &vm, def)
	if err != nil {
		metrics.RecordReconciliation(req.Namespace, "error")
		return ctrl.Result{}, r.failReconcile(ctx, &vm, err)
	}
	r.dispatchDisplayPassword(ch, password, def.Namespace, logger)

	if err := r.reconcilePod(ctx, &vm, def, cm); err != nil {
		metrics.RecordReconciliation(req.Namespace, "error")
		return ctrl.Result{}, r.failReconcile(ctx, &vm, err)
	}

	if err := r.reconcileService(ctx, &vm, def); err != nil {
		metrics.RecordReconciliation(req.Namespace, "error")
		return ctrl.Result{}, r.failReconcile(ctx, &vm, err)
	}

	ch.Associate(def)
	ch.MarkApplied(vm.Generation)

	if err := r.updateRunningCondition(ctx, &vm, ch); err != nil {
		logger.Error(err, "failed to update status")
	}

	metrics.RecordVmState(string(vm.Spec.Vm.State), vm.Namespace, 1)
	metrics.RecordReconciliation(req.Namespace, "success")
	return ctrl.Result{}, nil
}

// failReconcile records a ReconcileFailed condition on vm.status before
// returning err to the caller, so a terminal error (spec.md §7 "Validation
// errors ... recorded as a ReconcileFailed condition") stays visible on the
// VM CR instead of being swallowed into a plain reconcile error. The status
// patch is best-effort: a failure to record the condition never masks the
// original error.
func (r *VirtualMachineReconciler) failReconcile(ctx context.Context, vm *vmoperatorv1.VirtualMachine, err error) error {
	cond := metav1.Condition{
		Type:               vmoperatorv1.ConditionReconcileFailed,
		Status:             metav1.ConditionTrue,
		Reason:             vmoperatorv1.ReasonReconcileError,
		Message:            err.Error(),
		ObservedGeneration: vm.Generation,
		LastTransitionTime: metav1.Now(),
	}
	setCondition(&vm.Status.Conditions, cond)
	if updateErr := r.Status().Update(ctx, vm); updateErr != nil {
		log.FromContext(ctx).Error(updateErr, "failed to record ReconcileFailed condition")
	}
	return err
}

// dispatchHotFields compares def against the channel's last-associated
// definition and forwards any hot-applicable change over the runner
// connection (spec.md §4.3). A dispatch failure (most commonly
// ErrNotConnected, because the runner hasn't dialed in yet) is logged and
// counted, not returned as a reconcile error. The change is not re-sent:
// Reconcile replaces the channel's definition with def afterwards, so a
// later reconcile finds nothing to diff.
func (r *VirtualMachineReconciler) dispatchHotFields(ch *channel.Channel, def Definition, logger interface {
	Info(string, ...interface{})
}) {
	prev := ch.Definition
	if prev.Name == "" {
		// first time this channel has seen the VM; nothing to diff against.
		return
	}

	if prev.Spec.Vm.CurrentCpus != def.Spec.Vm.CurrentCpus {
		r.dispatch(ch, channel.FrameModifyVm, channel.ModifyVmPayload{
			Path: "vm.currentCpus", Value: fmt.Sprint(def.Spec.Vm.CurrentCpus),
		}, def.Namespace, logger)
	}
	if prev.Spec.Vm.CurrentRam.String() != def.Spec.Vm.CurrentRam.String() {
		r.dispatch(ch, channel.FrameModifyVm, channel.ModifyVmPayload{
			Path: "vm.currentRam", Value: def.Spec.Vm.CurrentRam.String(),
		}, def.Namespace, logger)
	}
	if prev.Spec.Vm.PowerdownTimeout != def.Spec.Vm.PowerdownTimeout {
		r.dispatch(ch, channel.FrameModifyVm, channel.ModifyVmPayload{
			Path: "vm.powerdownTimeout", Value: fmt.Sprint(def.Spec.Vm.PowerdownTimeout),
		}, def.Namespace, logger)
	}
	for i := range def.Spec.Vm.Disks {
		disk := def.Spec.Vm.Disks[i]
		if disk.Type != "cdrom" {
			continue
		}
		if i >= len(prev.Spec.Vm.Disks) || prev.Spec.Vm.Disks[i].Image != disk.Image {
			r.dispatch(ch, channel.FrameModifyVm, channel.ModifyVmPayload{
				Path: "disk." + disk.Name + ".image", Value: disk.Image,
			}, def.Namespace, logger)
		}
	}
	if prev.Spec.ResetCount != def.Spec.ResetCount {
		r.dispatch(ch, channel.FrameResetVm, channel.ResetVmPayload{ResetCount: def.Spec.ResetCount}, def.Namespace, logger)
	}
}

// dispatchDisplayPassword forwards the SPICE display password over the VM
// channel whenever it differs from the last value this reconciler observed
// for the VM, i.e. when an operator/user rotated it. The first value
// observed for a VM is only recorded, not sent (spec.md §4.3 "display password" is
// hot-applicable; internal/livemutation's DisplayController applies it via
// QMP set_password). password=="" means display is disabled for this VM.
func (r *VirtualMachineReconciler) dispatchDisplayPassword(ch *channel.Channel, password, namespace string, logger interface {
	Info(string, ...interface{})
}) {
	if password == "" {
		return
	}
	prev := ch.DisplayPassword()
	ch.SetDisplayPassword(password)
	if prev == "" || prev == password {
		// first observation, or unchanged: nothing to push to the runner.
		return
	}
	r.dispatch(ch, channel.FrameModifyVm, channel.ModifyVmPayload{
		Path: "display.password", Value: password,
	}, namespace, logger)
}

func (r *VirtualMachineReconciler) dispatch(ch *channel.Channel, t channel.FrameType, payload any, namespace string, logger interface {
	Info(string, ...interface{})
}) {
	result := "ok"
	if err := ch.Dispatch(t, payload); err != nil {
		result = "failed"
		logger.Info("hot-field dispatch deferred", "frame", t, "error", err.Error())
	}
	metrics.RecordChannelDispatch(namespace, string(t), result)
}

// updateRunningCondition sets the Running condition from whether a runner
// is connected on the channel: True/Running while connected, False/Stopped
// when the VM is stopped and no runner is connected, and Unknown/Starting
// otherwise.
func (r *VirtualMachineReconciler) updateRunningCondition(ctx context.Context, vm *vmoperatorv1.VirtualMachine, ch *channel.Channel) error {
	status := metav1.ConditionUnknown
	reason := vmoperatorv1.ReasonStarting
	switch {
	case vm.Spec.Vm.State == vmoperatorv1.VmStateStopped && !ch.Connected():
		status = metav1.ConditionFalse
		reason = vmoperatorv1.ReasonStopped
	case ch.Connected():
		status = metav1.ConditionTrue
		reason = vmoperatorv1.ReasonRunning
	}

	cond := metav1.Condition{
		Type:               vmoperatorv1.ConditionRunning,
		Status:             status,
		Reason:             reason,
		ObservedGeneration: vm.Generation,
		LastTransitionTime: metav1.Now(),
	}
	setCondition(&vm.Status.Conditions, cond)
	setCondition(&vm.Status.Conditions, metav1.Condition{
		Type:               vmoperatorv1.ConditionReconcileFailed,
		Status:             metav1.ConditionFalse,
		Reason:             vmoperatorv1.ReasonReconcileSucceeded,
		ObservedGeneration: vm.Generation,
		LastTransitionTime: metav1.Now(),
	})
	return r.Status().Update(ctx, vm)
}

func setCondition(conditions *[]metav1.Condition, cond metav1.Condition) {
	for i := range *conditions {
		if (*conditions)[i].Type == cond.Type {
			if (*conditions)[i].Status == cond.Status {
				return
			}
			(*conditions)[i] = cond
			return
		}
	}
	*conditions = append(*conditions, cond)
}

// SetupWithManager registers the reconciler with the controller manager.
func (r *VirtualMachineReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&vmoperatorv1.VirtualMachine{}).
		Owns(&corev1.Pod{}).
		Owns(&corev1.ConfigMap{}).
		Owns(&corev1.Secret{}).
		Owns(&corev1.Service{}).
		Complete(r)
}
