package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// VmPoolSpec defines the desired state of a VmPool.
type VmPoolSpec struct {
	// Retention is either an ISO-8601 duration ("PT1H") or an ISO-8601
	// instant ("2026-01-01T00:00:00Z") after which an unused assignment may
	// be reclaimed. Defaults to "PT1H".
	// +kubebuilder:validation:Pattern=`^(P(?:\d+Y)?(?:\d+M)?(?:\d+D)?(?:T(?:\d+H)?(?:\d+M)?(?:\d+(?:\.\d+)?S)?)?|\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2}))$`
	// +kubebuilder:default="PT1H"
	Retention string `json:"retention,omitempty"`

	// LoginOnAssignment requests that the runner issue a console login
	// request to the assigned user's VM channel as soon as an assignment is
	// made.
	// +optional
	LoginOnAssignment bool `json:"loginOnAssignment,omitempty"`

	// Permissions default-grants subjects actions on every member VM that
	// does not itself override them.
	// +kubebuilder:validation:MinItems=1
	Permissions []Permission `json:"permissions"`
}

// VmPoolStatus defines the observed state of a VmPool.
type VmPoolStatus struct {
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
	// MemberCount is the number of VMs currently listing this pool in
	// spec.pools.
	// +optional
	MemberCount int `json:"memberCount,omitempty"`
	// AssignedCount is the number of members with a live assignment.
	// +optional
	AssignedCount int `json:"assignedCount,omitempty"`
}

// Condition reasons for VmPool.
const (
	VmPoolConditionReady   = "Ready"
	VmPoolReasonValidating = "Validating"
	VmPoolReasonReady      = "Ready"
	VmPoolReasonInvalid    = "Invalid"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=vmpool;vmpools
// +kubebuilder:printcolumn:name="Retention",type=string,JSONPath=`.spec.retention`
// +kubebuilder:printcolumn:name="Members",type=integer,JSONPath=`.status.memberCount`
// +kubebuilder:printcolumn:name="Assigned",type=integer,JSONPath=`.status.assignedCount`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// VmPool is the Schema for the vmpools API.
type VmPool struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   VmPoolSpec   `json:"spec,omitempty"`
	Status VmPoolStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// VmPoolList contains a list of VmPool.
type VmPoolList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []VmPool `json:"items"`
}

func init() {
	SchemeBuilder.Register(&VmPool{}, &VmPoolList{})
}
