package vmcontroller

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/metrics"
	"vmoperator.jdrupes.org/vm-operator/internal/render"
)

const runnerContainerName = "runner"

// reconcilePod drives the Pod towards spec.vm.state. On Stopped it deletes
// the Pod (if present); on Running it creates the Pod if absent, or
// recreates it (delete-then-create, never in-place edit) when the ConfigMap
// resourceVersion annotation has drifted or a "cold" field changed
// (spec.md §4.3, §9 Open Question — Pod update strategy).
func (r *VirtualMachineReconciler) reconcilePod(ctx context.Context, vm *vmoperatorv1.VirtualMachine, def render.Definition, cm *corev1.ConfigMap) error {
	name := def.PodName()
	existing := &corev1.Pod{}
	err := r.Get(ctx, types.NamespacedName{Name: name, Namespace: vm.Namespace}, existing)
	exists := err == nil
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("get pod %s: %w", name, err)
	}

	if vm.Spec.Vm.State == vmoperatorv1.VmStateStopped {
		if !exists {
			return nil
		}
		return r.deletePodGracefully(ctx, existing, vm.Spec.Vm.PowerdownTimeout)
	}

	if !exists {
		pod := buildPod(vm, def, cm.ResourceVersion, r.controllerURL())
		if err := retryAPI(ctx, func() error { return r.Create(ctx, pod) }); err != nil && !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("create pod %s: %w", name, err)
		}
		return nil
	}

	if needsRecreate(existing, vm, cm.ResourceVersion) {
		metrics.RecordPodRecreation(vm.Namespace)
		return r.deletePodGracefully(ctx, existing, vm.Spec.Vm.PowerdownTimeout)
		// the next reconcile (triggered by the Pod DELETE watch event)
		// creates the replacement.
	}
	return nil
}

// needsRecreate implements the hot/cold classification of spec.md §4.3: a
// drifted ConfigMap annotation or a change to firmware, CPU topology,
// image, or network shape forces a recreate. currentCpus/currentRam,
// CDROM image, display password, powerdownTimeout and reset are hot and
// never reach here — the reconciler dispatches those over the runner
// channel instead of touching the Pod.
func needsRecreate(pod *corev1.Pod, vm *vmoperatorv1.VirtualMachine, cmResourceVersion string) bool {
	if pod.Annotations[AnnotationConfigResourceVersion] != cmResourceVersion {
		return true
	}
	container := findContainer(pod, runnerContainerName)
	if container == nil {
		return true
	}
	if container.Image != vm.Spec.Image {
		return true
	}
	if pod.Annotations["vmoperator.jdrupes.org/firmware"] != vm.Spec.Vm.Firmware {
		return true
	}
	if pod.Annotations["vmoperator.jdrupes.org/cpu-topology"] != vm.Spec.Vm.CPUTopology {
		return true
	}
	if pod.Annotations["vmoperator.jdrupes.org/max-cpus"] != fmt.Sprint(vm.Spec.Vm.MaximumCpus) {
		return true
	}
	if pod.Annotations["vmoperator.jdrupes.org/network-count"] != fmt.Sprint(len(vm.Spec.Vm.Networks)) {
		return true
	}
	return false
}

func findContainer(pod *corev1.Pod, name string) *corev1.Container {
	for i := range pod.Spec.Containers {
		if pod.Spec.Containers[i].Name == name {
			return &pod.Spec.Containers[i]
		}
	}
	return nil
}

// defaultControllerURL is the in-cluster Service address runners dial back
// to when the reconciler isn't given an explicit one; it assumes the
// controller is deployed with a Service named "vmoperator-controller" in
// its own namespace, reachable from any VM Pod's namespace.
const defaultControllerURL = "ws://vmoperator-controller.vmoperator-system.svc:8082"

// controllerURL returns the configured callback URL, or the in-cluster
// default if the reconciler wasn't given one explicitly.
func (r *VirtualMachineReconciler) controllerURL() string {
	if r.ControllerURL != "" {
		return r.ControllerURL
	}
	return defaultControllerURL
}

func buildPod(vm *vmoperatorv1.VirtualMachine, def render.Definition, cmResourceVersion string, controllerURL string) *corev1.Pod {
	gracePeriod := int64(vm.Spec.Vm.PowerdownTimeout + 5)

	volumes := []corev1.Volume{
		{
			Name: "runner-config",
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: def.ConfigMapName()},
				},
			},
		},
	}
	mounts := []corev1.VolumeMount{
		{Name: "runner-config", MountPath: "/etc/opt/vmrunner", ReadOnly: true},
	}

	for i, disk := range vm.Spec.Vm.Disks {
		if disk.VolumeClaimTemplate == nil {
			continue
		}
		volName := fmt.Sprintf("disk-%d", i)
		volumes = append(volumes, corev1.Volume{
			Name: volName,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
					ClaimName: def.DiskPVCName(disk.Name, i),
				},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{
			Name:      volName,
			MountPath: fmt.Sprintf("/dev/disk-%d", i),
		})
	}

	container := corev1.Container{
		Name:         runnerContainerName,
		Image:        vm.Spec.Image,
		Args:         []string{"-c", "/etc/opt/vmrunner/config.yaml"},
		VolumeMounts: mounts,
		Resources:    vm.Spec.Resources,
		Env: []corev1.EnvVar{
			{Name: "POD_NAMESPACE", ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.namespace"},
			}},
			{Name: "RUNNER_NAME", Value: vm.Name},
			{Name: "VMOPERATOR_CONTROLLER_URL", Value: controllerURL},
		},
	}
	if vm.Spec.Vm.Display.Spice.Port != 0 {
		container.Ports = append(container.Ports, corev1.ContainerPort{
			Name:          "spice",
			ContainerPort: int32(vm.Spec.Vm.Display.Spice.Port),
			Protocol:      corev1.ProtocolTCP,
		})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      def.PodName(),
			Namespace: vm.Namespace,
			Labels:    labelsFor(vm.Name),
			Annotations: map[string]string{
				AnnotationConfigResourceVersion:       cmResourceVersion,
				"vmoperator.jdrupes.org/firmware":      vm.Spec.Vm.Firmware,
				"vmoperator.jdrupes.org/cpu-topology":  vm.Spec.Vm.CPUTopology,
				"vmoperator.jdrupes.org/max-cpus":      fmt.Sprint(vm.Spec.Vm.MaximumCpus),
				"vmoperator.jdrupes.org/network-count": fmt.Sprint(len(vm.Spec.Vm.Networks)),
			},
			OwnerReferences: []metav1.OwnerReference{*nonControllingOwnerRef(vm)},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                 corev1.RestartPolicyNever,
			TerminationGracePeriodSeconds:  &gracePeriod,
			NodeName:                       vm.Spec.NodeName,
			NodeSelector:                   vm.Spec.NodeSelector,
			Affinity:                       vm.Spec.Affinity,
			Containers:                     []corev1.Container{container},
			Volumes:                        volumes,
		},
	}
	return pod
}

// deletePodGracefully deletes the Pod with a grace period of
// powerdownTimeout+5s (spec.md §4.3), giving the runner time to issue QMP
// system_powerdown before the kubelet sends SIGKILL.
func (r *VirtualMachineReconciler) deletePodGracefully(ctx context.Context, pod *corev1.Pod, powerdownTimeout int) error {
	grace := time.Duration(powerdownTimeout+5) * time.Second
	if err := r.Delete(ctx, pod, client.GracePeriodSeconds(grace/time.Second)); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete pod %s: %w", pod.Name, err)
	}
	return nil
}
