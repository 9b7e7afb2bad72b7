package vmcontroller

import (
	"context"
	"fmt"
	"regexp"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
)

// retentionPattern accepts either an ISO-8601 duration or an ISO-8601
// instant, mirroring the CRD's validation pattern; the reconciler
// additionally rejects the duration forms with zero components ("P",
// "PT"), which the pattern alone cannot reject.
var retentionPattern = regexp.MustCompile(`^P(\d+Y)?(\d+M)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$|^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`)

// VmPoolReconciler validates VmPool specs and republishes the member and
// assigned-member counts observed across VirtualMachines that list the pool
// in spec.pools. Assignment itself is owned by internal/pool's Manager,
// which lists the same VirtualMachines itself; this reconciler only
// maintains VmPool.status for observability, grounded on
// controller/controllers/hibernation_controller.go's lighter-weight
// validate-and-requeue shape.
type VmPoolReconciler struct {
	client.Client
	Scheme *runtime.Scheme
}

//+kubebuilder:rbac:groups=vmoperator.jdrupes.org,resources=vmpools,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=vmoperator.jdrupes.org,resources=vmpools/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=vmoperator.jdrupes.org,resources=virtualmachines,verbs=get;list;watch

func (r *VmPoolReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	var pool vmoperatorv1.VmPool
	if err := r.Get(ctx, req.NamespacedName, &pool); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("get vmpool: %w", err)
	}

	if !retentionPattern.MatchString(pool.Spec.Retention) || pool.Spec.Retention == "P" || pool.Spec.Retention == "PT" {
		setPoolCondition(&pool, metav1.ConditionFalse, vmoperatorv1.VmPoolReasonInvalid,
			fmt.Sprintf("retention %q is neither an ISO-8601 duration nor instant", pool.Spec.Retention))
		if err := r.Status().Update(ctx, &pool); err != nil {
			return ctrl.Result{}, fmt.Errorf("update vmpool status: %w", err)
		}
		return ctrl.Result{}, nil
	}

	var vms vmoperatorv1.VirtualMachineList
	if err := r.List(ctx, &vms, client.InNamespace(req.Namespace)); err != nil {
		return ctrl.Result{}, fmt.Errorf("list virtualmachines: %w", err)
	}

	members, assigned := 0, 0
	for i := range vms.Items {
		vm := &vms.Items[i]
		if !listsPool(vm, req.Name) {
			continue
		}
		members++
		if vm.Status.Assignment != nil && vm.Status.Assignment.Pool == req.Name {
			assigned++
		}
	}

	pool.Status.MemberCount = members
	pool.Status.AssignedCount = assigned
	setPoolCondition(&pool, metav1.ConditionTrue, vmoperatorv1.VmPoolReasonReady, "retention and permissions are valid")

	if err := r.Status().Update(ctx, &pool); err != nil {
		logger.Error(err, "failed to update VmPool status")
		return ctrl.Result{}, err
	}

	return ctrl.Result{RequeueAfter: 30 * time.Second}, nil
}

func listsPool(vm *vmoperatorv1.VirtualMachine, pool string) bool {
	for _, p := range vm.Spec.Pools {
		if p == pool {
			return true
		}
	}
	return false
}

func setPoolCondition(pool *vmoperatorv1.VmPool, status metav1.ConditionStatus, reason, message string) {
	cond := metav1.Condition{
		Type:               vmoperatorv1.VmPoolConditionReady,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: pool.Generation,
		LastTransitionTime: metav1.Now(),
	}
	setCondition(&pool.Status.Conditions, cond)
}

// SetupWithManager registers the reconciler with the controller manager.
// It also watches VirtualMachines so that a VM joining or leaving a pool
// (spec.pools) triggers a re-count of the pools it affects.
func (r *VmPoolReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&vmoperatorv1.VmPool{}).
		Watches(&vmoperatorv1.VirtualMachine{}, handler.EnqueueRequestsFromMapFunc(r.poolsForVM)).
		Complete(r)
}

// poolsForVM maps a VirtualMachine change to reconcile requests for every
// pool it names in spec.pools, so joining or leaving a pool refreshes that
// pool's member/assigned counts without waiting for its own resync.
func (r *VmPoolReconciler) poolsForVM(_ context.Context, obj client.Object) []reconcile.Request {
	vm, ok := obj.(*vmoperatorv1.VirtualMachine)
	if !ok {
		return nil
	}
	requests := make([]reconcile.Request, 0, len(vm.Spec.Pools))
	for _, pool := range vm.Spec.Pools {
		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{Namespace: vm.Namespace, Name: pool},
		})
	}
	return requests
}
