package vmcontroller

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/render"
)

// reconcilePVCs ensures a PVC exists for every disk that declares a
// volumeClaimTemplate. PVCs are create-only: once created they are never
// updated or deleted by the operator (spec.md §3 invariant 3, §4.3).
func (r *VirtualMachineReconciler) reconcilePVCs(ctx context.Context, vm *vmoperatorv1.VirtualMachine, def render.Definition) error {
	for i, disk := range vm.Spec.Vm.Disks {
		if disk.VolumeClaimTemplate == nil {
			continue
		}
		name := def.DiskPVCName(disk.Name, i)

		existing := &corev1.PersistentVolumeClaim{}
		err := r.Get(ctx, types.NamespacedName{Name: name, Namespace: vm.Namespace}, existing)
		if err == nil {
			continue // create-only
		}
		if !apierrors.IsNotFound(err) {
			return fmt.Errorf("get pvc %s: %w", name, err)
		}

		pvc := &corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: vm.Namespace,
				Labels:    labelsFor(vm.Name),
				OwnerReferences: []metav1.OwnerReference{
					*nonControllingOwnerRef(vm),
				},
			},
			Spec: *disk.VolumeClaimTemplate.DeepCopy(),
		}
		err = retryAPI(ctx, func() error { return r.Create(ctx, pvc) })
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("create pvc %s: %w", name, err)
		}
	}
	return nil
}

// nonControllingOwnerRef builds an owner reference with controller=false so
// that deleting the VM CR does not cascade-delete the referencing object
// (used for PVCs and, per spec.md §4.3, every derived object).
func nonControllingOwnerRef(vm *vmoperatorv1.VirtualMachine) *metav1.OwnerReference {
	isController := false
	blockOwnerDeletion := false
	return &metav1.OwnerReference{
		APIVersion:         vmoperatorv1.GroupVersion.String(),
		Kind:               "VirtualMachine",
		Name:               vm.Name,
		UID:                vm.UID,
		Controller:         &isController,
		BlockOwnerDeletion: &blockOwnerDeletion,
	}
}
