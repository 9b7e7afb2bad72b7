package runner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"vmoperator.jdrupes.org/vm-operator/internal/channel"
	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

const statusReportInterval = 10 * time.Second

type queryCpusFastEntry struct {
	CPUIndex int `json:"cpu-index"`
}

type queryStatusResult struct {
	Running bool   `json:"running"`
	Status  string `json:"status"`
}

type queryMemorySizeSummaryResult struct {
	BaseMemory    int64 `json:"base-memory"`
	PluggedMemory int64 `json:"plugged-memory"`
}

// StatusReporter aggregates runner-side observations and ships them to the
// Controller as StatusReport frames (R8, spec.md §4.8): QMP
// query-cpus-fast/query-status/query-memory-size-summary for cpu count,
// guest power state, and live RAM, plus locally-tracked console/reset
// state. Patches are idempotent because the
// Controller computes the status diff itself (spec.md §4.8); the runner
// simply reports its current view on a fixed interval.
type StatusReporter struct {
	conn *Connection
	mon  *qmp.Monitor
	cfg  Config
	log  logr.Logger

	mu            sync.Mutex
	consoleUser   string
	consoleClient string
	resetCount    int64
	lastReason    string
	warning       string
}

func NewStatusReporter(conn *Connection, mon *qmp.Monitor, cfg Config, log logr.Logger) *StatusReporter {
	return &StatusReporter{conn: conn, mon: mon, cfg: cfg, log: log, resetCount: cfg.ResetCounter}
}

// Loop reports status immediately, then on a fixed interval until ctx is
// cancelled.
func (r *StatusReporter) Loop(ctx context.Context) {
	r.report(ctx)
	ticker := time.NewTicker(statusReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.report(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *StatusReporter) report(ctx context.Context) {
	payload := channel.StatusReportPayload{Running: true}

	if raw, err := r.mon.Execute(ctx, "query-cpus-fast", nil); err == nil {
		var cpus []queryCpusFastEntry
		if json.Unmarshal(raw, &cpus) == nil {
			payload.Cpus = len(cpus)
		}
	}

	if raw, err := r.mon.Execute(ctx, "query-status", nil); err == nil {
		var st queryStatusResult
		if json.Unmarshal(raw, &st) == nil {
			payload.Running = st.Running
			payload.Reason = st.Status
		}
	}

	if raw, err := r.mon.Execute(ctx, "query-memory-size-summary", nil); err == nil {
		var mem queryMemorySizeSummaryResult
		if json.Unmarshal(raw, &mem) == nil {
			payload.RamBytes = mem.BaseMemory + mem.PluggedMemory
		}
	}

	r.mu.Lock()
	payload.ConsoleUser = r.consoleUser
	payload.ConsoleClient = r.consoleClient
	payload.ResetCount = r.resetCount
	payload.Warning = r.warning
	if !payload.Running && r.lastReason != "" {
		payload.Reason = r.lastReason
	}
	r.mu.Unlock()

	if err := r.conn.Send(channel.FrameStatusReport, payload); err != nil {
		r.log.Error(err, "failed to send status report")
	}
}

// SetResetCount records the resetCount value a reset request was pinned to,
// reported on the next status report (spec.md §3 invariant 6: resetCount is
// monotonic per VM).
func (r *StatusReporter) SetResetCount(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.resetCount {
		r.resetCount = n
	}
}

// SetWarning records a sticky, non-fatal condition (e.g. a clamped
// currentCpus request) reported on every status report until replaced.
func (r *StatusReporter) SetWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warning = msg
}

// SetConsoleUser records the currently logged-in guest console user.
func (r *StatusReporter) SetConsoleUser(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consoleUser = user
}

// HandleEvent records the reason of a QMP SHUTDOWN event; the next
// interval report carries it as the reason while the guest is not running.
// It does not send a report itself.
func (r *StatusReporter) HandleEvent(ev qmp.Event) {
	if ev.Name != "SHUTDOWN" {
		return
	}
	var data struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(ev.Data, &data)
	r.mu.Lock()
	r.lastReason = data.Reason
	r.mu.Unlock()
}
