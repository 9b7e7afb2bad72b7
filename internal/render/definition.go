// Package render turns a VirtualMachine custom resource into the artifacts
// the runner process consumes: the runner config file, the cloud-init
// "cidata" documents, and the virt-viewer connection file handed to clients.
//
// Kept as pure functions over a Definition value so they can be unit tested
// without a Kubernetes client, mirroring the teacher's preference for plain
// builder functions (createDeployment, createService, ...) that take value
// types and return the object to apply.
package render

import (
	"fmt"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
)

// Definition is the reconciler's internal projection of a VirtualMachine CR
// — the spec's "VmDefinition" entity. It carries everything the renderers
// need without requiring a live API client.
type Definition struct {
	Namespace       string
	Name            string
	UID             string
	Generation      int64
	ResourceVersion string

	Spec vmoperatorv1.VirtualMachineSpec
}

// NewDefinition projects a VirtualMachine CR into a Definition.
func NewDefinition(vm *vmoperatorv1.VirtualMachine) Definition {
	return Definition{
		Namespace:       vm.Namespace,
		Name:            vm.Name,
		UID:             string(vm.UID),
		Generation:      vm.Generation,
		ResourceVersion: vm.ResourceVersion,
		Spec:            vm.Spec,
	}
}

// InstanceID derives the cloud-init meta-data instance-id when the CR does
// not specify one: based on the CR's resourceVersion, per spec.md §6.
func (d Definition) InstanceID() string {
	return fmt.Sprintf("%s-%s", d.Name, d.ResourceVersion)
}

// ConfigMapName is the name of the ConfigMap the reconciler renders and the
// Pod mounts as a projected volume.
func (d Definition) ConfigMapName() string { return d.Name }

// DisplaySecretName is the name of the Secret holding the SPICE password.
func (d Definition) DisplaySecretName() string { return d.Name + "-display-secret" }

// PodName is the name of the Pod hosting the runner + QEMU.
func (d Definition) PodName() string { return d.Name }

// ServiceName is the name of the optional LoadBalancer Service exposing SPICE.
func (d Definition) ServiceName() string { return d.Name + "-spice" }

// DiskPVCName returns the PVC name for a disk at index i; named disks use
// "<vm>-<disk>-disk", unnamed ones fall back to "<vm>-disk-<i>" (spec.md §3
// invariant 3).
func (d Definition) DiskPVCName(diskName string, i int) string {
	if diskName != "" {
		return fmt.Sprintf("%s-%s-disk", d.Name, diskName)
	}
	return fmt.Sprintf("%s-disk-%d", d.Name, i)
}
