package livemutation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

// CPUController hot-plugs or hot-unplugs vCPUs towards spec.vm.currentCpus
// (spec.md §4.7 "CPU hot-plug"). Plugging emits no guest notification — the
// guest is expected to carry a udev rule that onlines new CPUs itself.
type CPUController struct {
	// warn, if set, is called when a requested currentCpus is clamped to
	// the guest's actual maximum (spec.md §8 edge case).
	warn func(string)
}

type hotpluggableCPU struct {
	Type       string `json:"type"`
	VcpusCount int    `json:"vcpus-count"`
	Props      struct {
		CoreID   *int `json:"core-id,omitempty"`
		SocketID *int `json:"socket-id,omitempty"`
		ThreadID *int `json:"thread-id,omitempty"`
	} `json:"props"`
	QomPath string `json:"qom-path,omitempty"`
}

// Apply brings the guest's plugged-CPU count to target by plugging or
// unplugging the delta against query-hotpluggable-cpus.
func (c *CPUController) Apply(ctx context.Context, mon *qmp.Monitor, value string) error {
	target, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid currentCpus value %q: %w", value, err)
	}

	raw, err := mon.Execute(ctx, "query-hotpluggable-cpus", nil)
	if err != nil {
		return fmt.Errorf("query-hotpluggable-cpus: %w", err)
	}
	var entries []hotpluggableCPU
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode query-hotpluggable-cpus: %w", err)
	}

	maximumCpus := len(entries)
	if target > maximumCpus {
		if c.warn != nil {
			c.warn(fmt.Sprintf("currentCpus %d exceeds maximumCpus %d; clamped", target, maximumCpus))
		}
		target = maximumCpus
	}

	plugged, unplugged := splitByPresence(entries)
	delta := target - len(plugged)
	switch {
	case delta > 0:
		return c.plug(ctx, mon, unplugged, delta)
	case delta < 0:
		return c.unplug(ctx, mon, plugged, -delta)
	default:
		return nil
	}
}

func splitByPresence(entries []hotpluggableCPU) (plugged, unplugged []hotpluggableCPU) {
	for _, e := range entries {
		if e.QomPath != "" {
			plugged = append(plugged, e)
		} else {
			unplugged = append(unplugged, e)
		}
	}
	return plugged, unplugged
}

func (c *CPUController) plug(ctx context.Context, mon *qmp.Monitor, candidates []hotpluggableCPU, n int) error {
	for i := 0; i < n && i < len(candidates); i++ {
		cpu := candidates[i]
		args := map[string]any{"id": fmt.Sprintf("cpu-%d", i), "driver": cpu.Type}
		if cpu.Props.CoreID != nil {
			args["core-id"] = *cpu.Props.CoreID
		}
		if cpu.Props.SocketID != nil {
			args["socket-id"] = *cpu.Props.SocketID
		}
		if cpu.Props.ThreadID != nil {
			args["thread-id"] = *cpu.Props.ThreadID
		}
		if _, err := mon.Execute(ctx, "device_add", args); err != nil {
			return fmt.Errorf("device_add cpu: %w", err)
		}
	}
	return nil
}

func (c *CPUController) unplug(ctx context.Context, mon *qmp.Monitor, plugged []hotpluggableCPU, n int) error {
	for i := 0; i < n && i < len(plugged); i++ {
		cpu := plugged[len(plugged)-1-i]
		if _, err := mon.Execute(ctx, "device_del", map[string]any{"id": cpu.QomPath}); err != nil {
			return fmt.Errorf("device_del cpu: %w", err)
		}
	}
	return nil
}
