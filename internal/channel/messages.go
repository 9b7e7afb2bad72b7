// Package channel implements the per-VM channel registry (R2): the
// in-memory coordination object that pairs each VirtualMachine CR with its
// live Runner connection, and the WebSocket server side that connection
// dials into (spec.md §2 [ADD] Controller↔Runner transport decision,
// grounded on agents/k8s-agent/connection.go).
package channel

import "encoding/json"

// FrameType identifies the payload carried by an Envelope.
type FrameType string

const (
	// FrameRegister names the VM a runner supervises. The runner names its
	// VM through the connect URL's namespace and name query parameters
	// instead; no code path sends this frame.
	FrameRegister FrameType = "register"
	// FrameModifyVm carries a hot-applicable spec field change.
	FrameModifyVm FrameType = "modify_vm"
	// FrameResetVm requests a guest reset.
	FrameResetVm FrameType = "reset_vm"
	// FrameStatusReport carries the runner's observed VM status (R8).
	FrameStatusReport FrameType = "status_report"
	// FramePing/FramePong keep the connection alive across idle periods.
	FramePing FrameType = "ping"
	FramePong FrameType = "pong"
)

// Envelope is the wire format for every frame exchanged over a runner
// channel: {"type": "...", "payload": ...} (spec.md §6 [ADD]).
type Envelope struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload identifies the VM a freshly-dialed runner supervises.
type RegisterPayload struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// ModifyVmPayload carries one hot-applicable field change (spec.md §4.3):
// currentCpus, currentRam, CDROM image path, display password,
// powerdownTimeout.
type ModifyVmPayload struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// ResetVmPayload requests a guest reset; ResetCount pins the request to a
// specific spec.resetCount value so the runner can detect duplicates.
type ResetVmPayload struct {
	ResetCount int64 `json:"resetCount"`
}

// StatusReportPayload is what the runner ships back, aggregating the
// observations listed in spec.md §4.8.
type StatusReportPayload struct {
	Running       bool   `json:"running"`
	Reason        string `json:"reason,omitempty"`
	Cpus          int    `json:"cpus,omitempty"`
	RamBytes      int64  `json:"ramBytes,omitempty"`
	ConsoleUser   string `json:"consoleUser,omitempty"`
	ConsoleClient string `json:"consoleClient,omitempty"`
	ResetCount    int64  `json:"resetCount,omitempty"`
	// Warning carries a sticky, runner-observed condition that doesn't fit
	// Running/Reason — e.g. a currentCpus request clamped to maximumCpus.
	Warning string `json:"warning,omitempty"`
}

func encode(t FrameType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: raw}, nil
}
