package runner

import (
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestDriveIDPrefersDiskName(t *testing.T) {
	if got := DriveID("root", 0); got != "root" {
		t.Fatalf("expected root, got %s", got)
	}
	if got := DriveID("", 2); got != "drive2" {
		t.Fatalf("expected drive2, got %s", got)
	}
}

func TestBuildQemuArgsRendersCoreFlags(t *testing.T) {
	cfg := Config{
		Name:       "vm-a",
		RuntimeDir: "/run/vmrunner",
		Vm: vmSettings{
			MaximumCpus: 4,
			CurrentCpus: 2,
			MaximumRam:  "4Gi",
			CurrentRam:  "2Gi",
			UseTpm:      true,
			Networks: []netSpec{
				{Type: "bridge", Bridge: "br0", MacAddress: "52:54:00:00:00:01"},
			},
			Disks: []diskSpec{
				{Name: "root", Type: "disk", Path: "/dev/disk-0"},
				{Type: "cdrom", Image: "/images/install.iso"},
			},
		},
	}

	args := BuildQemuArgs(cfg)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-smp 2,maxcpus=4",
		"-m size=2Gi,maxmem=4Gi,slots=4",
		"-qmp unix:/run/vmrunner/qmp.sock,server,wait=off",
		"tpm-tis,tpmdev=tpm0",
		"bridge,id=net0,br=br0",
		"mac=52:54:00:00:00:01",
		"id=root,if=none,file=/dev/disk-0,format=raw",
		"virtio-blk,drive=root",
		"id=drive1,if=none,media=cdrom,file=/images/install.iso",
		"ide-cd,drive=drive1",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected args to contain %q, got: %s", want, joined)
		}
	}
}

func TestBuildQemuArgsOmitsTpmWhenUnused(t *testing.T) {
	cfg := Config{Name: "vm-a", RuntimeDir: "/run/vmrunner", Vm: vmSettings{MaximumCpus: 1, CurrentCpus: 1, MaximumRam: "1Gi", CurrentRam: "1Gi"}}
	args := BuildQemuArgs(cfg)
	if strings.Contains(strings.Join(args, " "), "tpm") {
		t.Fatalf("expected no tpm flags when UseTpm is false")
	}
}

func TestChildProcessStopEscalatesToKill(t *testing.T) {
	cp, err := StartChild("sleep", "30")
	if err != nil {
		t.Skipf("sleep unavailable in this environment: %v", err)
	}
	if err := cp.Stop(50 * time.Millisecond); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestExitCodeExtractsProcessStatus(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 7")
	runErr := cmd.Run()
	code, ok := exitCode(runErr)
	if !ok {
		t.Skipf("sh unavailable in this environment")
	}
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}
}

func TestExitCodeNilIsClean(t *testing.T) {
	code, ok := exitCode(nil)
	if !ok || code != 0 {
		t.Fatalf("expected (0, true) for a nil error, got (%d, %v)", code, ok)
	}
}
