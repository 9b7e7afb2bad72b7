// Package livemutation implements the runner-side sub-controllers that turn
// a ModifyVm/ResetVm frame into QMP commands (R7): CPU hot-plug, balloon-
// driven RAM resize, CDROM media change, and display-password refresh
// (spec.md §4.7).
//
// Dispatch is a static map from the ModifyVm frame's Path to a Controller,
// grounded on the teacher's CommandHandler-per-action table
// (agents/k8s-agent/agent_handlers.go) but without its reflection-free
// equivalent here: direct function dispatch, no annotations (spec.md §9
// "Dynamic dispatch / event bus").
package livemutation

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

// Paths accepted in a ModifyVmPayload.Path, mirroring the hot-applicable
// fields of spec.md §4.3.
const (
	PathCurrentCpus      = "vm.currentCpus"
	PathCurrentRam       = "vm.currentRam"
	PathDisplayPassword  = "display.password"
	PathPowerdownTimeout = "vm.powerdownTimeout"
)

// CDROMPath builds the ModifyVm path for a named CDROM disk's image.
func CDROMPath(diskName string) string { return "disk." + diskName + ".image" }

// Controller applies one hot-applicable field change to a running guest.
type Controller interface {
	Apply(ctx context.Context, mon *qmp.Monitor, value string) error
}

// Dispatcher routes ModifyVm frames to the registered Controller for their
// Path. ResetVm frames do not pass through it; they go to the package-level
// Reset function.
type Dispatcher struct {
	log         logr.Logger
	controllers map[string]Controller
	cdrom       *CDROMController
}

// NewDispatcher wires the standard set of R7 sub-controllers. warn, if
// non-nil, receives sticky non-fatal conditions observed while applying a
// change — currently only the CPUController's maximumCpus clamp.
func NewDispatcher(log logr.Logger, warn func(string)) *Dispatcher {
	cdrom := NewCDROMController(log)
	return &Dispatcher{
		log:   log,
		cdrom: cdrom,
		controllers: map[string]Controller{
			PathCurrentCpus:     &CPUController{warn: warn},
			PathCurrentRam:      &BalloonController{},
			PathDisplayPassword: &DisplayController{},
		},
	}
}

// Dispatch applies a ModifyVm frame. CDROM paths are routed by prefix since
// they are parameterised by disk name.
func (d *Dispatcher) Dispatch(ctx context.Context, mon *qmp.Monitor, path, value string) error {
	if diskName, ok := cdromDiskName(path); ok {
		return d.cdrom.Apply(ctx, mon, diskName, value)
	}
	ctrl, ok := d.controllers[path]
	if !ok {
		return fmt.Errorf("livemutation: no controller for path %q", path)
	}
	return ctrl.Apply(ctx, mon, value)
}

// OnEvent forwards QMP events to sub-controllers that need them (currently
// only the CDROM controller, which waits for DEVICE_TRAY_MOVED).
func (d *Dispatcher) OnEvent(ev qmp.Event) {
	d.cdrom.HandleEvent(ev)
}

// SetMonitor gives sub-controllers that issue commands outside of Dispatch
// (the CDROM controller's deferred blockdev-change-medium) a handle to the
// connected monitor.
func (d *Dispatcher) SetMonitor(mon *qmp.Monitor) {
	d.cdrom.SetMonitor(mon)
}

func cdromDiskName(path string) (string, bool) {
	const prefix, suffix = "disk.", ".image"
	if len(path) > len(prefix)+len(suffix) && path[:len(prefix)] == prefix && path[len(path)-len(suffix):] == suffix {
		return path[len(prefix) : len(path)-len(suffix)], true
	}
	return "", false
}

// Reset issues a guest reset via QMP system_reset (spec.md §4.7 reset
// trigger dispatched alongside the other hot-applicable fields).
func Reset(ctx context.Context, mon *qmp.Monitor) error {
	_, err := mon.Execute(ctx, "system_reset", nil)
	return err
}
