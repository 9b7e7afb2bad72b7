// Package events implements an optional NATS subscriber that lets an
// external inventory or ticketing system request VM lifecycle actions
// (assign/login/reset/stop) without going through kubectl. Assign, reset and
// stop become ordinary API writes (a pool assignment or a VirtualMachine
// update) so the normal watch pipeline still drives the actual
// reconciliation; login is forwarded to the runner over its channel (spec.md §2 [ADD]
// external-event ingestion, grounded on k8s-controller/pkg/events).
package events

import "time"

const (
	SubjectVmAssign = "vmoperator.vm.assign"
	SubjectVmLogin  = "vmoperator.vm.login"
	SubjectVmReset  = "vmoperator.vm.reset"
	SubjectVmStop   = "vmoperator.vm.stop"
)

// VmAssignEvent requests a pool assignment on behalf of an external caller
// that does not itself hold Kubernetes credentials.
type VmAssignEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Pool      string    `json:"pool"`
	Namespace string    `json:"namespace"`
	User      string    `json:"user"`
}

// VmLoginEvent requests that the assigned VM's console present a login
// prompt for User, forwarded to the runner over its channel.
type VmLoginEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	User      string    `json:"user"`
}

// VmResetEvent requests a guest reset by bumping spec.resetCount.
type VmResetEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
}

// VmStopEvent requests a graceful guest shutdown by setting
// spec.vm.state = Stopped.
type VmStopEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
}
