package runner

import (
	"os"
	"path/filepath"
	"testing"
)

const validConfigYAML = `
/Runner:
  dataDir: /var/lib/vmrunner
  runtimeDir: /run/vmrunner
  guestShutdownStops: true
  resetCounter: 3
  vm:
    maximumCpus: 4
    currentCpus: 2
    maximumRam: 4Gi
    currentRam: 2Gi
    state: running
    disks:
      - name: root
        type: disk
        path: /dev/disk-0
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadConfigAppliesDefaultsAndEnv(t *testing.T) {
	withEnv(t, envNamespace, "default")
	withEnv(t, envRunnerName, "vm-a")
	withEnv(t, envControllerURL, "ws://controller:8082")

	path := writeConfig(t, `
/Runner:
  guestShutdownStops: false
  vm:
    maximumCpus: 2
    currentCpus: 2
    maximumRam: 1Gi
    currentRam: 1Gi
    state: running
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Namespace != "default" || cfg.Name != "vm-a" || cfg.ControllerURL != "ws://controller:8082" {
		t.Fatalf("identity/connection fields not populated from env: %+v", cfg)
	}
	if cfg.DataDir != defaultDataDir || cfg.RuntimeDir != defaultRuntimeDir {
		t.Fatalf("expected default data/runtime dirs, got %q %q", cfg.DataDir, cfg.RuntimeDir)
	}
	if cfg.QMPSocketPath() != defaultRuntimeDir+"/qmp.sock" {
		t.Fatalf("unexpected qmp socket path: %s", cfg.QMPSocketPath())
	}
}

func TestLoadConfigMissingRunnerNameFails(t *testing.T) {
	withEnv(t, envNamespace, "default")
	withEnv(t, envRunnerName, "")
	withEnv(t, envControllerURL, "ws://controller:8082")

	path := writeConfig(t, validConfigYAML)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing runner name")
	}
}

func TestLoadConfigMissingControllerURLFails(t *testing.T) {
	withEnv(t, envNamespace, "default")
	withEnv(t, envRunnerName, "vm-a")
	withEnv(t, envControllerURL, "")

	path := writeConfig(t, validConfigYAML)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing controller url")
	}
}

func TestLoadConfigRejectsZeroMaximumCpus(t *testing.T) {
	withEnv(t, envNamespace, "default")
	withEnv(t, envRunnerName, "vm-a")
	withEnv(t, envControllerURL, "ws://controller:8082")

	path := writeConfig(t, `
/Runner:
  vm:
    maximumCpus: 0
    currentCpus: 0
    maximumRam: 1Gi
    currentRam: 1Gi
    state: running
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for maximumCpus < 1")
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
