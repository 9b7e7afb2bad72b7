package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DriveID is the QMP drive id assigned to a disk: its name when set (so
// live-mutation paths like "disk.<name>.image" map directly to a QMP id),
// falling back to a positional id for unnamed disks.
func DriveID(name string, index int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("drive%d", index)
}

// BuildQemuArgs renders the QEMU command-line vector for cfg, grounded on
// spec.md §4.5 step (c) (template + VM config produces a command vector) and
// the runner config file schema (§6). A real deployment may substitute a
// template-driven renderer (cfg.Template); this covers the fields the core
// subsystems need to exercise QMP, live mutation, and cloud-init.
func BuildQemuArgs(cfg Config) []string {
	vm := cfg.Vm
	args := []string{
		"-name", cfg.Name,
		"-machine", "q35,accel=kvm",
		"-smp", fmt.Sprintf("%d,maxcpus=%d", vm.CurrentCpus, vm.MaximumCpus),
		"-m", fmt.Sprintf("size=%s,maxmem=%s,slots=4", vm.CurrentRam, vm.MaximumRam),
		"-qmp", fmt.Sprintf("unix:%s,server,wait=off", cfg.QMPSocketPath()),
		"-device", "virtio-balloon-pci,id=balloon0",
		"-display", "none",
		"-daemonize", "off",
	}

	if vm.CPUModel != "" {
		args = append(args, "-cpu", vm.CPUModel)
	}
	if vm.CPUTopology != "" {
		args = append(args, "-smp", vm.CPUTopology)
	}
	if vm.Firmware == "uefi" {
		args = append(args, "-bios", "/usr/share/OVMF/OVMF_CODE.fd")
	}
	if vm.BootMenu {
		args = append(args, "-boot", "menu=on")
	}
	if vm.RtcBase != "" || vm.RtcClock != "" {
		rtc := []string{}
		if vm.RtcBase != "" {
			rtc = append(rtc, "base="+vm.RtcBase)
		}
		if vm.RtcClock != "" {
			rtc = append(rtc, "clock="+vm.RtcClock)
		}
		args = append(args, "-rtc", strings.Join(rtc, ","))
	}
	if vm.UseTpm {
		args = append(args,
			"-chardev", fmt.Sprintf("socket,id=chrtpm,path=%s", cfg.TPMSocketPath()),
			"-tpmdev", "emulator,id=tpm0,chardev=chrtpm",
			"-device", "tpm-tis,tpmdev=tpm0",
		)
	}

	for i, n := range vm.Networks {
		netdevID := fmt.Sprintf("net%d", i)
		switch n.Type {
		case "bridge":
			args = append(args, "-netdev", fmt.Sprintf("bridge,id=%s,br=%s", netdevID, n.Bridge))
		default:
			args = append(args, "-netdev", fmt.Sprintf("user,id=%s", netdevID))
		}
		dev := fmt.Sprintf("virtio-net-pci,netdev=%s", netdevID)
		if n.MacAddress != "" {
			dev += ",mac=" + n.MacAddress
		}
		args = append(args, "-device", dev)
	}

	for i, d := range vm.Disks {
		driveID := DriveID(d.Name, i)
		if d.Type == "cdrom" {
			args = append(args, "-drive", fmt.Sprintf("id=%s,if=none,media=cdrom,file=%s", driveID, d.Image))
			args = append(args, "-device", fmt.Sprintf("ide-cd,drive=%s", driveID))
			continue
		}
		bus := d.Bus
		if bus == "" {
			bus = "virtio"
		}
		args = append(args, "-drive", fmt.Sprintf("id=%s,if=none,file=%s,format=raw", driveID, d.Path))
		args = append(args, "-device", fmt.Sprintf("%s-blk,drive=%s", bus, driveID))
	}

	if cfg.CloudInit.UserData != "" || cfg.CloudInit.MetaData != "" {
		args = append(args, "-drive", fmt.Sprintf("file=%s/cidata.iso,if=virtio,media=cdrom,read-only=on", cfg.RuntimeDir))
	}

	if vm.DisplayPort != 0 {
		args = append(args, "-spice", fmt.Sprintf("port=%d,disable-ticketing=on", vm.DisplayPort))
	}

	return args
}

// ChildProcess supervises one long-lived child (QEMU or swTPM): it starts
// the command, reports unexpected exits on Exited, and escalates signals on
// Stop (TERM, then KILL after a grace period) — spec.md §4.5 signal
// handling and §7 "Timer expiry during powerdown".
//
// There is no process-supervision library anywhere in the retrieval pack,
// so this is built directly on os/exec.
type ChildProcess struct {
	cmd    *exec.Cmd
	Exited chan error
}

// StartChild launches name with args, wiring its stdout/stderr to the
// runner's own so container logs capture the guest console output.
func StartChild(name string, args ...string) (*ChildProcess, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	cp := &ChildProcess{cmd: cmd, Exited: make(chan error, 1)}
	go func() {
		cp.Exited <- cp.cmd.Wait()
	}()
	return cp, nil
}

// Pid returns the child's process ID.
func (c *ChildProcess) Pid() int { return c.cmd.Process.Pid }

// exitCode extracts the child's own process exit status from an error
// received on Exited, for callers that must propagate it rather than
// substitute an operator-defined code (spec.md §6: "QEMU exits with
// non-zero before QMP is ready → runner exits with the same code"). ok is
// false if err doesn't carry a process exit status (e.g. the process
// couldn't be waited on at all).
func exitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// Stop sends SIGTERM, waits up to grace for exit, then SIGKILL.
func (c *ChildProcess) Stop(grace time.Duration) error {
	if c.cmd.Process == nil {
		return nil
	}
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal TERM: %w", err)
	}
	select {
	case <-c.Exited:
		return nil
	case <-time.After(grace):
	}
	if err := c.cmd.Process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("signal KILL: %w", err)
	}
	<-c.Exited
	return nil
}
