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

// reconcileConfigMap renders and applies the per-VM ConfigMap. It is
// regenerated whenever spec.vm, spec.cloudInit, spec.runnerTemplate or
// resetCount change (spec.md §4.3); we rely on a plain get-then-update
// (the "3-way merge" the spec calls for is approximated here by always
// re-rendering the full data set and letting the API server's optimistic
// concurrency reject stale updates, which the caller retries).
func (r *VirtualMachineReconciler) reconcileConfigMap(ctx context.Context, vm *vmoperatorv1.VirtualMachine, def render.Definition) (*corev1.ConfigMap, error) {
	diskPaths := map[string]string{}
	for i, d := range vm.Spec.Vm.Disks {
		diskPaths[d.Name] = fmt.Sprintf("/dev/disk-%d", i)
	}

	data, err := render.RenderConfigMapData(def, diskPaths)
	if err != nil {
		return nil, fmt.Errorf("render configmap data: %w", err)
	}

	name := def.ConfigMapName()
	existing := &corev1.ConfigMap{}
	err = r.Get(ctx, types.NamespacedName{Name: name, Namespace: vm.Namespace}, existing)
	switch {
	case apierrors.IsNotFound(err):
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:            name,
				Namespace:       vm.Namespace,
				Labels:          labelsFor(vm.Name),
				OwnerReferences: []metav1.OwnerReference{*nonControllingOwnerRef(vm)},
			},
			Data: data,
		}
		if err := retryAPI(ctx, func() error { return r.Create(ctx, cm) }); err != nil {
			return nil, fmt.Errorf("create configmap %s: %w", name, err)
		}
		return cm, nil
	case err != nil:
		return nil, fmt.Errorf("get configmap %s: %w", name, err)
	}

	if !mapsEqual(existing.Data, data) {
		existing.Data = data
		if err := retryAPI(ctx, func() error { return r.Update(ctx, existing) }); err != nil {
			return nil, fmt.Errorf("update configmap %s: %w", name, err)
		}
	}
	return existing, nil
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
