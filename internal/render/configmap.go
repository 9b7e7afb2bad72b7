package render

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// runnerConfigDoc mirrors the on-disk runner config file schema from
// spec.md §6: a single top-level "/Runner" key.
type runnerConfigDoc struct {
	Runner runnerConfigBody `yaml:"/Runner"`
}

type runnerConfigBody struct {
	DataDir            string          `yaml:"dataDir"`
	RuntimeDir         string          `yaml:"runtimeDir"`
	Template           string          `yaml:"template"`
	UpdateTemplate     string          `yaml:"updateTemplate,omitempty"`
	GuestShutdownStops bool            `yaml:"guestShutdownStops"`
	ResetCounter       int64           `yaml:"resetCounter"`
	CloudInit          cloudInitFields `yaml:"cloudInit,omitempty"`
	Vm                 vmFields        `yaml:"vm"`
}

type cloudInitFields struct {
	MetaData      string `yaml:"metaData,omitempty"`
	UserData      string `yaml:"userData,omitempty"`
	NetworkConfig string `yaml:"networkConfig,omitempty"`
}

type vmFields struct {
	CPUModel         string       `yaml:"cpuModel,omitempty"`
	MaximumCpus      int          `yaml:"maximumCpus"`
	CurrentCpus      int          `yaml:"currentCpus"`
	CPUTopology      string       `yaml:"cpuTopology,omitempty"`
	MaximumRam       string       `yaml:"maximumRam"`
	CurrentRam       string       `yaml:"currentRam"`
	Firmware         string       `yaml:"firmware,omitempty"`
	BootMenu         bool         `yaml:"bootMenu"`
	UseTpm           bool         `yaml:"useTpm"`
	RtcBase          string       `yaml:"rtcBase,omitempty"`
	RtcClock         string       `yaml:"rtcClock,omitempty"`
	PowerdownTimeout int          `yaml:"powerdownTimeout"`
	State            string       `yaml:"state"`
	Networks         []netFields  `yaml:"networks,omitempty"`
	Disks            []diskFields `yaml:"disks,omitempty"`
	DisplayPort      int          `yaml:"displayPort,omitempty"`
}

type netFields struct {
	Type       string `yaml:"type"`
	Bridge     string `yaml:"bridge,omitempty"`
	MacAddress string `yaml:"macAddress,omitempty"`
}

type diskFields struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Path   string `yaml:"path,omitempty"`
	Image  string `yaml:"image,omitempty"`
	Bus    string `yaml:"bus,omitempty"`
}

// RenderRunnerConfig produces the runner config YAML document mounted at
// /etc/opt/vmrunner/config.yaml inside the Pod (via the rendered ConfigMap).
// diskPaths supplies the resolved host path for each disk, keyed by disk
// name, since the reconciler — not the runner — knows the PVC mount layout.
func RenderRunnerConfig(def Definition, diskPaths map[string]string) (string, error) {
	vm := def.Spec.Vm

	nets := make([]netFields, 0, len(vm.Networks))
	for _, n := range vm.Networks {
		nets = append(nets, netFields{Type: n.Type, Bridge: n.Bridge, MacAddress: n.MacAddress})
	}

	disks := make([]diskFields, 0, len(vm.Disks))
	for _, d := range vm.Disks {
		disks = append(disks, diskFields{
			Name:  d.Name,
			Type:  d.Type,
			Path:  diskPaths[d.Name],
			Image: d.Image,
			Bus:   d.Bus,
		})
	}

	doc := runnerConfigDoc{
		Runner: runnerConfigBody{
			DataDir:            "/var/lib/vmrunner",
			RuntimeDir:         "/run/vmrunner",
			Template:           def.Spec.RunnerTemplate.Source,
			UpdateTemplate:     def.Spec.RunnerTemplate.Update,
			GuestShutdownStops: def.Spec.GuestShutdownStops,
			ResetCounter:       def.Spec.ResetCount,
			CloudInit: cloudInitFields{
				MetaData:      def.Spec.CloudInit.MetaData,
				UserData:      def.Spec.CloudInit.UserData,
				NetworkConfig: def.Spec.CloudInit.NetworkConfig,
			},
			Vm: vmFields{
				CPUModel:         vm.CPUModel,
				MaximumCpus:      vm.MaximumCpus,
				CurrentCpus:      vm.CurrentCpus,
				CPUTopology:      vm.CPUTopology,
				MaximumRam:       vm.MaximumRam.String(),
				CurrentRam:       vm.CurrentRam.String(),
				Firmware:         vm.Firmware,
				BootMenu:         vm.BootMenu,
				UseTpm:           vm.UseTpm,
				RtcBase:          vm.RtcBase,
				RtcClock:         vm.RtcClock,
				PowerdownTimeout: vm.PowerdownTimeout,
				State:            string(vm.State),
				Networks:         nets,
				Disks:            disks,
				DisplayPort:      vm.Display.Spice.Port,
			},
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("render runner config: %w", err)
	}
	return string(out), nil
}

// RenderConfigMapData produces the full set of keys the reconciler writes
// into the per-VM ConfigMap: the runner config plus the cloud-init cidata
// documents.
func RenderConfigMapData(def Definition, diskPaths map[string]string) (map[string]string, error) {
	cfg, err := RenderRunnerConfig(def, diskPaths)
	if err != nil {
		return nil, err
	}

	data := map[string]string{
		"config.yaml": cfg,
		"meta-data":   RenderMetaData(def),
		"user-data":   def.Spec.CloudInit.UserData,
	}
	if def.Spec.CloudInit.NetworkConfig != "" {
		data["network-config"] = def.Spec.CloudInit.NetworkConfig
	}
	return data, nil
}
