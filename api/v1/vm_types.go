package v1

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// VmState is the desired power state of a virtual machine.
// +kubebuilder:validation:Enum=Running;Stopped
type VmState string

const (
	VmStateRunning VmState = "Running"
	VmStateStopped VmState = "Stopped"
)

// VirtualMachineSpec defines the desired state of a VirtualMachine.
type VirtualMachineSpec struct {
	// Image is the container image the Pod's runner container uses.
	// +kubebuilder:validation:Required
	Image string `json:"image"`

	// Vm holds the QEMU/KVM configuration for the guest.
	// +kubebuilder:validation:Required
	Vm VmConfig `json:"vm"`

	// CloudInit provides the cloud-init metadata/user-data/network-config
	// attached to the guest as a vfat "cidata" volume.
	// +optional
	CloudInit CloudInitConfig `json:"cloudInit,omitempty"`

	// GuestShutdownStops controls whether a guest-initiated ACPI shutdown
	// transitions spec.vm.state to Stopped (true) or lets the runner restart
	// QEMU (false).
	// +optional
	GuestShutdownStops bool `json:"guestShutdownStops,omitempty"`

	// Pools lists the VmPools this VM is a candidate member of.
	// +optional
	Pools []string `json:"pools,omitempty"`

	// Permissions grants start/stop/reset/console access to users or roles.
	// +optional
	Permissions []Permission `json:"permissions,omitempty"`

	// ResetCount is incremented by the operator every time a reset is
	// requested; read-only for clients that merely wish to observe it, but
	// part of spec because a reset is requested by bumping it.
	// +optional
	ResetCount int64 `json:"resetCount,omitempty"`

	// RunnerTemplate controls the runner container image.
	// +optional
	RunnerTemplate RunnerTemplate `json:"runnerTemplate,omitempty"`

	// Resources are applied to the runner container in the generated Pod.
	// +optional
	Resources corev1.ResourceRequirements `json:"resources,omitempty"`

	// NodeName pins the Pod to a specific node.
	// +optional
	NodeName string `json:"nodeName,omitempty"`

	// NodeSelector constrains Pod placement.
	// +optional
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`

	// Affinity constrains Pod placement.
	// +optional
	Affinity *corev1.Affinity `json:"affinity,omitempty"`

	// LoadBalancerService, if set, requests a LoadBalancer Service exposing
	// the SPICE display port.
	// +optional
	LoadBalancerService *LoadBalancerServiceConfig `json:"loadBalancerService,omitempty"`
}

// VmConfig mirrors spec.vm from the specification's data model.
type VmConfig struct {
	// +optional
	CPUModel string `json:"cpuModel,omitempty"`

	// +kubebuilder:validation:Minimum=1
	MaximumCpus int `json:"maximumCpus"`

	// +kubebuilder:validation:Minimum=1
	CurrentCpus int `json:"currentCpus"`

	// CPUTopology, e.g. "sockets=1,cores=4,threads=1".
	// +optional
	CPUTopology string `json:"cpuTopology,omitempty"`

	// MaximumRam and CurrentRam use Kubernetes quantity strings (e.g. "4Gi").
	MaximumRam resource.Quantity `json:"maximumRam"`
	CurrentRam resource.Quantity `json:"currentRam"`

	// +kubebuilder:validation:Enum=uefi;bios
	// +kubebuilder:default=uefi
	Firmware string `json:"firmware,omitempty"`

	// +optional
	BootMenu bool `json:"bootMenu,omitempty"`

	// +optional
	UseTpm bool `json:"useTpm,omitempty"`

	// +optional
	RtcBase string `json:"rtcBase,omitempty"`
	// +optional
	RtcClock string `json:"rtcClock,omitempty"`

	// PowerdownTimeout in seconds, the budget given to a graceful guest
	// shutdown before the runner escalates to SIGTERM/SIGKILL.
	// +kubebuilder:default=60
	PowerdownTimeout int `json:"powerdownTimeout,omitempty"`

	// +kubebuilder:validation:Enum=Running;Stopped
	// +kubebuilder:default=Running
	State VmState `json:"state"`

	// +optional
	Networks []NetworkConfig `json:"networks,omitempty"`

	// +optional
	Disks []DiskConfig `json:"disks,omitempty"`

	// +optional
	Display DisplayConfig `json:"display,omitempty"`
}

// NetworkConfig describes one guest NIC.
type NetworkConfig struct {
	// +kubebuilder:validation:Enum=bridge;user
	Type string `json:"type"`
	// Bridge is the host bridge device name when Type is "bridge".
	// +optional
	Bridge string `json:"bridge,omitempty"`
	// MacAddress pins the guest NIC's MAC; generated if empty.
	// +optional
	MacAddress string `json:"macAddress,omitempty"`
}

// DiskConfig describes one guest disk.
type DiskConfig struct {
	// Name identifies the disk within the VM; used to derive the PVC name.
	Name string `json:"name"`

	// +kubebuilder:validation:Enum=disk;cdrom
	// +kubebuilder:default=disk
	Type string `json:"type,omitempty"`

	// VolumeClaimTemplate, if set, causes the operator to create a PVC for
	// this disk (never deleted by the operator).
	// +optional
	VolumeClaimTemplate *corev1.PersistentVolumeClaimSpec `json:"volumeClaimTemplate,omitempty"`

	// Image is the CDROM media path/URL; hot-swappable for cdrom disks.
	// +optional
	Image string `json:"image,omitempty"`

	// Bus, e.g. "virtio", "sata", "ide".
	// +optional
	Bus string `json:"bus,omitempty"`
}

// DisplayConfig groups the remote-display options.
type DisplayConfig struct {
	// +optional
	Spice SpiceConfig `json:"spice,omitempty"`
}

// SpiceConfig configures the SPICE server.
type SpiceConfig struct {
	// +optional
	Port int `json:"port,omitempty"`
	// +optional
	StreamingVideo string `json:"streamingVideo,omitempty"`
	// +optional
	UsbRedirects int `json:"usbRedirects,omitempty"`
	// +optional
	ProxyUrl string `json:"proxyUrl,omitempty"`
	// +optional
	Server string `json:"server,omitempty"`
	// GenerateSecret controls whether the operator creates a display secret
	// with a random password when SPICE is enabled. Defaults to true.
	// +kubebuilder:default=true
	// +optional
	GenerateSecret *bool `json:"generateSecret,omitempty"`
}

// CloudInitConfig holds the raw cloud-init documents.
type CloudInitConfig struct {
	// +optional
	MetaData string `json:"metaData,omitempty"`
	// +optional
	UserData string `json:"userData,omitempty"`
	// +optional
	NetworkConfig string `json:"networkConfig,omitempty"`
}

// RunnerTemplate selects the runner container image and its update policy.
type RunnerTemplate struct {
	// +optional
	Source string `json:"source,omitempty"`
	// +kubebuilder:validation:Enum=Always;IfNotPresent;Never
	// +optional
	Update string `json:"update,omitempty"`
}

// LoadBalancerServiceConfig controls the optional LoadBalancer Service.
type LoadBalancerServiceConfig struct {
	// +optional
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Permission grants a subject a set of actions on the VM.
type Permission struct {
	// User names a specific subject; mutually exclusive with Role.
	// +optional
	User string `json:"user,omitempty"`
	// Role names a role-based subject; mutually exclusive with User.
	// +optional
	Role string `json:"role,omitempty"`
	// May lists the granted actions.
	// +kubebuilder:validation:MinItems=1
	May []string `json:"may"`
}

const (
	PermissionStart          = "start"
	PermissionStop           = "stop"
	PermissionReset          = "reset"
	PermissionAccessConsole  = "accessConsole"
	PermissionAll            = "*"
)

// VirtualMachineStatus defines the observed state of a VirtualMachine.
type VirtualMachineStatus struct {
	// +optional
	Cpus int `json:"cpus,omitempty"`
	// Ram holds the observed RAM size in bytes, as a decimal string (to
	// avoid float round-tripping through JSON).
	// +optional
	Ram string `json:"ram,omitempty"`
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
	// +optional
	Assignment *Assignment `json:"assignment,omitempty"`
	// +optional
	ConsoleUser string `json:"consoleUser,omitempty"`
	// +optional
	ConsoleClient string `json:"consoleClient,omitempty"`
	// +optional
	ResetCount int64 `json:"resetCount,omitempty"`
}

// Assignment records a live pool assignment.
type Assignment struct {
	Pool     string      `json:"pool"`
	User     string      `json:"user"`
	LastUsed metav1.Time `json:"lastUsed"`
}

// ConditionRunning is the condition type reported on VirtualMachine.status.
const ConditionRunning = "Running"

// ConditionReconcileFailed reports the terminal-error outcome of the most
// recent reconcile attempt (spec.md §7 "Validation errors ... recorded as a
// ReconcileFailed condition").
const ConditionReconcileFailed = "ReconcileFailed"

// ConditionWarning reports a non-fatal runner-observed condition, such as a
// currentCpus request clamped to maximumCpus (spec.md §8 edge case
// "currentCpus > maximumCpus (clamped to maximum with a warning
// condition)").
const ConditionWarning = "Warning"

// Condition reasons.
const (
	ReasonRunning             = "Running"
	ReasonStopped             = "Stopped"
	ReasonStarting            = "Starting"
	ReasonStopping            = "Stopping"
	ReasonReconcileError      = "ReconcileError"
	ReasonReconcileSucceeded  = "ReconcileSucceeded"
	ReasonUnresponsive        = "Unresponsive"
	ReasonMaximumCpusExceeded = "MaximumCpusExceeded"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=vm;vms
// +kubebuilder:printcolumn:name="State",type=string,JSONPath=`.spec.vm.state`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Running")].status`
// +kubebuilder:printcolumn:name="Cpus",type=integer,JSONPath=`.status.cpus`
// +kubebuilder:printcolumn:name="Ram",type=string,JSONPath=`.status.ram`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// VirtualMachine is the Schema for the vms API.
type VirtualMachine struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   VirtualMachineSpec   `json:"spec,omitempty"`
	Status VirtualMachineStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// VirtualMachineList contains a list of VirtualMachine.
type VirtualMachineList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []VirtualMachine `json:"items"`
}

func init() {
	SchemeBuilder.Register(&VirtualMachine{}, &VirtualMachineList{})
}
