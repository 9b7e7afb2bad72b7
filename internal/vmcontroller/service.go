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

// reconcileService ensures the optional LoadBalancer Service exposing the
// SPICE port exists once spec.loadBalancerService is set and a port is
// defined. It is reconciled last because its selector targets the Pod's
// labels (spec.md §4.3 Ordering).
func (r *VirtualMachineReconciler) reconcileService(ctx context.Context, vm *vmoperatorv1.VirtualMachine, def render.Definition) error {
	if vm.Spec.LoadBalancerService == nil || vm.Spec.Vm.Display.Spice.Port == 0 {
		return r.deleteServiceIfExists(ctx, vm, def)
	}

	name := def.ServiceName()
	port := int32(vm.Spec.Vm.Display.Spice.Port)

	existing := &corev1.Service{}
	err := r.Get(ctx, types.NamespacedName{Name: name, Namespace: vm.Namespace}, existing)
	switch {
	case apierrors.IsNotFound(err):
		svc := &corev1.Service{
			ObjectMeta: metav1.ObjectMeta{
				Name:            name,
				Namespace:       vm.Namespace,
				Labels:          labelsFor(vm.Name),
				Annotations:     vm.Spec.LoadBalancerService.Annotations,
				OwnerReferences: []metav1.OwnerReference{*nonControllingOwnerRef(vm)},
			},
			Spec: corev1.ServiceSpec{
				Type:     corev1.ServiceTypeLoadBalancer,
				Selector: labelsFor(vm.Name),
				Ports: []corev1.ServicePort{
					{Name: "spice", Port: port, Protocol: corev1.ProtocolTCP},
				},
			},
		}
		if err := retryAPI(ctx, func() error { return r.Create(ctx, svc) }); err != nil {
			return fmt.Errorf("create service %s: %w", name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("get service %s: %w", name, err)
	}

	changed := false
	if len(existing.Spec.Ports) != 1 || existing.Spec.Ports[0].Port != port {
		existing.Spec.Ports = []corev1.ServicePort{{Name: "spice", Port: port, Protocol: corev1.ProtocolTCP}}
		changed = true
	}
	if !mapsEqual(existing.Annotations, vm.Spec.LoadBalancerService.Annotations) {
		existing.Annotations = vm.Spec.LoadBalancerService.Annotations
		changed = true
	}
	if changed {
		if err := retryAPI(ctx, func() error { return r.Update(ctx, existing) }); err != nil {
			return fmt.Errorf("update service %s: %w", name, err)
		}
	}
	return nil
}

func (r *VirtualMachineReconciler) deleteServiceIfExists(ctx context.Context, vm *vmoperatorv1.VirtualMachine, def render.Definition) error {
	svc := &corev1.Service{}
	err := r.Get(ctx, types.NamespacedName{Name: def.ServiceName(), Namespace: vm.Namespace}, svc)
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get service %s: %w", def.ServiceName(), err)
	}
	if err := r.Delete(ctx, svc); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete service %s: %w", def.ServiceName(), err)
	}
	return nil
}
