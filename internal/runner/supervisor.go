package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"vmoperator.jdrupes.org/vm-operator/internal/livemutation"
	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

// State is the runner's lifecycle state (spec.md §4.5 "State machine").
type State string

const (
	StateStarted      State = "STARTED"
	StateTPMStarting  State = "TPM_STARTING"
	StateQemuStarting State = "QEMU_STARTING"
	StateRunning      State = "RUNNING"
	StateShuttingDown State = "SHUTTING_DOWN"
	StateTerminated   State = "TERMINATED"
)

// Exit codes (spec.md §6 "Exit codes").
const (
	ExitClean           = 0
	ExitMisconfigured   = 64
	ExitInternal        = 70
	ExitQemuStartFailed = 75
)

// Supervisor drives one VM's lifecycle: it starts swTPM (if configured) and
// QEMU in order, connects the QMP monitor, wires the live-mutation
// dispatcher, and reports status to the Controller over a Connection
// (spec.md §4.5).
type Supervisor struct {
	cfg  Config
	log  logr.Logger
	conn *Connection

	state State

	tpm  *ChildProcess
	qemu *ChildProcess
	mon  *qmp.Monitor

	dispatcher *livemutation.Dispatcher
	reporter   *StatusReporter

	shutdownCh chan struct{}
	rescheduleCh chan time.Duration
}

// NewSupervisor constructs a Supervisor for cfg. conn must not yet be
// running; NewSupervisor wires its ModifyVm/ResetVm handlers.
func NewSupervisor(cfg Config, conn *Connection, log logr.Logger) *Supervisor {
	s := &Supervisor{
		cfg:          cfg,
		log:          log,
		conn:         conn,
		state:        StateStarted,
		shutdownCh:   make(chan struct{}, 1),
		rescheduleCh: make(chan time.Duration, 1),
	}
	s.dispatcher = livemutation.NewDispatcher(log, func(msg string) {
		if s.reporter != nil {
			s.reporter.SetWarning(msg)
		}
	})
	conn.OnModify = s.handleModify
	conn.OnReset = s.handleReset
	return s
}

// Run executes the full startup sequence and then blocks, serving live
// mutation and status reporting, until ctx is cancelled or QEMU exits. It
// returns the process exit code the caller should use (spec.md §6).
func (s *Supervisor) Run(ctx context.Context) int {
	if err := os.MkdirAll(s.cfg.RuntimeDir, 0o755); err != nil {
		s.log.Error(err, "failed to create runtime dir")
		return ExitMisconfigured
	}

	if s.cfg.Vm.UseTpm {
		s.setState(StateTPMStarting)
		if err := s.startTPM(ctx); err != nil {
			s.log.Error(err, "swtpm failed to start")
			return ExitInternal
		}
	}

	s.setState(StateQemuStarting)
	qemuArgs := BuildQemuArgs(s.cfg)
	qemu, err := StartChild("qemu-system-x86_64", qemuArgs...)
	if err != nil {
		s.log.Error(err, "qemu failed to start")
		return ExitQemuStartFailed
	}
	s.qemu = qemu

	mon, err := s.waitForMonitor(ctx)
	if err != nil {
		s.log.Error(err, "qmp monitor never became available")
		var exited *qemuExitedBeforeReadyError
		if errors.As(err, &exited) {
			if code, ok := exitCode(exited.err); ok {
				return code
			}
		}
		s.qemu.Stop(5 * time.Second)
		return ExitQemuStartFailed
	}
	s.mon = mon
	mon.OnEvent(s.handleEvent)
	s.dispatcher.SetMonitor(mon)
	s.reporter = NewStatusReporter(s.conn, s.mon, s.cfg, s.log)

	s.setState(StateRunning)
	s.log.Info("runner running", "vm", s.cfg.Name)

	go s.reporter.Loop(ctx)

	return s.serve(ctx)
}

func (s *Supervisor) setState(st State) {
	s.state = st
	s.log.Info("state transition", "state", st)
}

func (s *Supervisor) startTPM(ctx context.Context) error {
	tpm, err := StartChild("swtpm", "socket",
		"--tpmstate", "dir="+s.cfg.DataDir+"/tpm",
		"--ctrl", "type=unixio,path="+s.cfg.TPMSocketPath(),
		"--tpm2")
	if err != nil {
		return err
	}
	s.tpm = tpm
	return waitForSocket(ctx, s.cfg.TPMSocketPath())
}

// qemuExitedBeforeReadyError means QEMU's own process exited before the QMP
// socket became usable; its cause carries the process's real exit status
// (spec.md §6: "QEMU exits with non-zero before QMP is ready → runner exits
// with the same code").
type qemuExitedBeforeReadyError struct{ err error }

func (e *qemuExitedBeforeReadyError) Error() string {
	return fmt.Sprintf("qemu exited before qmp was ready: %v", e.err)
}

func (e *qemuExitedBeforeReadyError) Unwrap() error { return e.err }

// waitForMonitor watches for the QMP socket to appear (spec.md §4.5 step
// (f)), then dials it, racing against an unexpected QEMU exit.
func (s *Supervisor) waitForMonitor(ctx context.Context) (*qmp.Monitor, error) {
	watchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	socketReady := make(chan error, 1)
	go func() { socketReady <- waitForSocket(watchCtx, s.cfg.QMPSocketPath()) }()

	select {
	case err := <-s.qemu.Exited:
		return nil, &qemuExitedBeforeReadyError{err: err}
	case err := <-socketReady:
		if err != nil {
			return nil, err
		}
	}

	return qmp.Dial(ctx, s.cfg.QMPSocketPath(), s.log)
}

// waitForSocket blocks until path exists, using fsnotify on its parent
// directory (spec.md §4.5: "file-watch").
func waitForSocket(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-watcher.Events:
			continue
		case err := <-watcher.Errors:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// serve blocks handling signals and QEMU exit until shutdown.
func (s *Supervisor) serve(ctx context.Context) int {
	select {
	case <-ctx.Done():
		return s.gracefulShutdown()
	case err := <-s.qemu.Exited:
		s.setState(StateTerminated)
		if err != nil {
			s.log.Error(err, "qemu exited unexpectedly")
			return ExitInternal
		}
		return ExitClean
	}
}

// gracefulShutdown implements the SIGTERM path of spec.md §4.5: issue
// system_powerdown if the monitor is ready, wait up to powerdownTimeout,
// then escalate to TERM and KILL.
func (s *Supervisor) gracefulShutdown() int {
	s.setState(StateShuttingDown)
	timeout := time.Duration(s.cfg.Vm.PowerdownTimeout) * time.Second

	if s.mon == nil {
		s.qemu.Stop(5 * time.Second)
		return ExitClean
	}

	outcome, err := s.mon.Powerdown(context.Background(), timeout, s.shutdownCh, s.rescheduleCh)
	if err != nil {
		s.log.Error(err, "powerdown wait failed")
	}
	switch outcome {
	case qmp.PowerdownShutdown:
		<-s.qemu.Exited
		return ExitClean
	default:
		s.log.Info("powerdown did not complete in time, escalating", "outcome", outcome)
		s.qemu.Stop(5 * time.Second)
		return ExitClean
	}
}

// ReschedulePowerdown lets a PowerdownTimeout modify frame extend an
// in-flight wait (spec.md §4.6 step 3).
func (s *Supervisor) ReschedulePowerdown(timeout time.Duration) {
	select {
	case s.rescheduleCh <- timeout:
	default:
	}
}

func (s *Supervisor) handleEvent(ev qmp.Event) {
	s.dispatcher.OnEvent(ev)
	switch ev.Name {
	case "SHUTDOWN":
		select {
		case s.shutdownCh <- struct{}{}:
		default:
		}
	}
	if s.reporter != nil {
		s.reporter.HandleEvent(ev)
	}
}

const pathConsoleLogin = "console.login"

func (s *Supervisor) handleModify(ctx context.Context, path, value string) error {
	switch path {
	case livemutation.PathPowerdownTimeout:
		seconds, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid powerdownTimeout %q: %w", value, err)
		}
		s.ReschedulePowerdown(time.Duration(seconds) * time.Second)
		return nil
	case pathConsoleLogin:
		// requested by internal/events' pool-assignment login flow; the
		// guest console itself presents the prompt, the runner only tracks
		// who it was offered to for status reporting.
		if s.reporter != nil {
			s.reporter.SetConsoleUser(value)
		}
		return nil
	}
	if s.mon == nil {
		return fmt.Errorf("qmp monitor not ready")
	}
	return s.dispatcher.Dispatch(ctx, s.mon, path, value)
}

func (s *Supervisor) handleReset(ctx context.Context, resetCount int64) error {
	if s.mon == nil {
		return fmt.Errorf("qmp monitor not ready")
	}
	if err := livemutation.Reset(ctx, s.mon); err != nil {
		return err
	}
	if s.reporter != nil {
		s.reporter.SetResetCount(resetCount)
	}
	return nil
}
