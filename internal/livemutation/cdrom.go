package livemutation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"vmoperator.jdrupes.org/vm-operator/internal/qmp"
)

// CDROMController changes the media in a CDROM drive. Every request issues
// blockdev-open-tray and queues the change; the change is performed when a
// DEVICE_TRAY_MOVED event reports that drive's tray open, so a locked drive
// keeps its queued change until the guest releases the tray — the queued
// change survives across events until performed or overridden by a newer
// request (spec.md §4.7 "CDROM media change").
type CDROMController struct {
	log logr.Logger

	mu      sync.Mutex
	pending map[string]string // drive id -> desired image path
	mon     *qmp.Monitor
}

func NewCDROMController(log logr.Logger) *CDROMController {
	return &CDROMController{log: log, pending: make(map[string]string)}
}

type deviceTrayMovedData struct {
	Device string `json:"device"`
	ID     string `json:"id"`
	TrayOpen bool  `json:"tray-open"`
}

// Apply requests that driveID's drive hold image. driveID is the id
// BuildQemuArgs assigns through runner.DriveID: the disk's name for a named
// disk, "drive<index>" for an unnamed one. The Dispatcher passes the disk
// name taken from the ModifyVm path directly as the drive id.
func (c *CDROMController) Apply(ctx context.Context, mon *qmp.Monitor, driveID, image string) error {
	c.mu.Lock()
	c.pending[driveID] = image
	c.mu.Unlock()

	if _, err := mon.Execute(ctx, "blockdev-open-tray", map[string]any{"id": driveID}); err != nil {
		return fmt.Errorf("blockdev-open-tray %s: %w", driveID, err)
	}
	return nil
}

// HandleEvent performs any queued change once its drive's tray reports open
// (a real tray-open happens asynchronously, so the change is finished here
// rather than immediately in Apply).
func (c *CDROMController) HandleEvent(ev qmp.Event) {
	if ev.Name != "DEVICE_TRAY_MOVED" {
		return
	}
	var data deviceTrayMovedData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		c.log.Error(err, "malformed DEVICE_TRAY_MOVED data")
		return
	}
	if !data.TrayOpen {
		return
	}

	c.mu.Lock()
	image, ok := c.pending[data.ID]
	if ok {
		delete(c.pending, data.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if _, err := c.monitor().Execute(context.Background(), "blockdev-change-medium", map[string]any{
		"id":       data.ID,
		"filename": image,
	}); err != nil {
		c.log.Error(err, "blockdev-change-medium failed", "drive", data.ID)
	}
}

// monitor is set by the supervisor after connecting so HandleEvent can
// issue the follow-up command from the event-dispatch goroutine.
func (c *CDROMController) SetMonitor(mon *qmp.Monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mon = mon
}

func (c *CDROMController) monitor() *qmp.Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mon
}
