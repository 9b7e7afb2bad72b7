// Package runner implements the per-VM supervisor process (R5): it loads the
// rendered runner config, starts swTPM and QEMU in order, watches for the
// QMP socket, dials back to the Controller, and applies live mutations and
// status reporting through the channel connection.
//
// Grounded on agents/k8s-agent (config loading, dial-out/reconnect,
// read/write pumps), adapted from one shared control-plane connection per
// process to exactly one Controller connection per runner, and from a
// session-command protocol to the ModifyVm/ResetVm/StatusReport frames
// defined in internal/channel.
package runner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// configDoc mirrors the on-disk schema the reconciler renders into
// config.yaml (internal/render's runnerConfigDoc) — single top-level
// "/Runner" key (spec.md §6).
type configDoc struct {
	Runner configBody `yaml:"/Runner"`
}

type configBody struct {
	DataDir            string      `yaml:"dataDir"`
	RuntimeDir         string      `yaml:"runtimeDir"`
	Template           string      `yaml:"template"`
	UpdateTemplate     string      `yaml:"updateTemplate,omitempty"`
	GuestShutdownStops bool        `yaml:"guestShutdownStops"`
	ResetCounter       int64       `yaml:"resetCounter"`
	CloudInit          cloudInit   `yaml:"cloudInit,omitempty"`
	Vm                 vmSettings  `yaml:"vm"`
}

type cloudInit struct {
	MetaData      string `yaml:"metaData,omitempty"`
	UserData      string `yaml:"userData,omitempty"`
	NetworkConfig string `yaml:"networkConfig,omitempty"`
}

type vmSettings struct {
	CPUModel         string     `yaml:"cpuModel,omitempty"`
	MaximumCpus      int        `yaml:"maximumCpus"`
	CurrentCpus      int        `yaml:"currentCpus"`
	CPUTopology      string     `yaml:"cpuTopology,omitempty"`
	MaximumRam       string     `yaml:"maximumRam"`
	CurrentRam       string     `yaml:"currentRam"`
	Firmware         string     `yaml:"firmware,omitempty"`
	BootMenu         bool       `yaml:"bootMenu"`
	UseTpm           bool       `yaml:"useTpm"`
	RtcBase          string     `yaml:"rtcBase,omitempty"`
	RtcClock         string     `yaml:"rtcClock,omitempty"`
	PowerdownTimeout int        `yaml:"powerdownTimeout"`
	State            string     `yaml:"state"`
	Networks         []netSpec  `yaml:"networks,omitempty"`
	Disks            []diskSpec `yaml:"disks,omitempty"`
	DisplayPort      int        `yaml:"displayPort,omitempty"`
}

type netSpec struct {
	Type       string `yaml:"type"`
	Bridge     string `yaml:"bridge,omitempty"`
	MacAddress string `yaml:"macAddress,omitempty"`
}

type diskSpec struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Path  string `yaml:"path,omitempty"`
	Image string `yaml:"image,omitempty"`
	Bus   string `yaml:"bus,omitempty"`
}

// Config is the runner's fully-resolved configuration: the rendered VM
// settings plus the identity and connection details supplied through the
// environment rather than the ConfigMap (the ConfigMap is a pure function of
// the VM spec and carries no Pod or cluster identity, spec.md §6).
type Config struct {
	Namespace      string
	Name           string
	ControllerURL  string
	DataDir        string
	RuntimeDir     string
	Template       string
	UpdateTemplate string
	GuestShutdownStops bool
	ResetCounter   int64
	CloudInit      cloudInit
	Vm             vmSettings
}

const (
	envNamespace     = "POD_NAMESPACE"
	envRunnerName    = "RUNNER_NAME"
	envControllerURL = "VMOPERATOR_CONTROLLER_URL"

	defaultDataDir    = "/var/lib/vmrunner"
	defaultRuntimeDir = "/run/vmrunner"
)

// LoadConfig reads and parses the YAML file at path, then fills in identity
// and connection fields from the environment.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var doc configDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := Config{
		Namespace:          os.Getenv(envNamespace),
		Name:               os.Getenv(envRunnerName),
		ControllerURL:      os.Getenv(envControllerURL),
		DataDir:            doc.Runner.DataDir,
		RuntimeDir:         doc.Runner.RuntimeDir,
		Template:           doc.Runner.Template,
		UpdateTemplate:     doc.Runner.UpdateTemplate,
		GuestShutdownStops: doc.Runner.GuestShutdownStops,
		ResetCounter:       doc.Runner.ResetCounter,
		CloudInit:          doc.Runner.CloudInit,
		Vm:                 doc.Runner.Vm,
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.RuntimeDir == "" {
		c.RuntimeDir = defaultRuntimeDir
	}
}

// Validate rejects a configuration the runner cannot act on; exit code 64
// (misconfiguration, spec.md §6) is the caller's responsibility.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%s is required", envRunnerName)
	}
	if c.ControllerURL == "" {
		return fmt.Errorf("%s is required", envControllerURL)
	}
	if c.Vm.MaximumCpus < 1 {
		return fmt.Errorf("vm.maximumCpus must be >= 1")
	}
	return nil
}

// QMPSocketPath is the well-known location the runner tells QEMU to create
// its monitor socket at, inside RuntimeDir.
func (c Config) QMPSocketPath() string {
	return c.RuntimeDir + "/qmp.sock"
}

// TPMSocketPath is the well-known location swTPM creates its control socket
// at when c.Vm.UseTpm is set.
func (c Config) TPMSocketPath() string {
	return c.RuntimeDir + "/swtpm.sock"
}
