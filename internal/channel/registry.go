package channel

import (
	"sync"

	"vmoperator.jdrupes.org/vm-operator/internal/render"
)

// Channel is the per-VM coordination record (spec.md §3 "VmChannel"): the
// last-known definition, the applied generation watermark, and — when a
// runner is connected — the live connection and its single-writer pipeline.
//
// At most one Channel exists per VM name within a namespace; it is created
// on first observation of the VM CR and removed on observed DELETE (no
// weak references — spec.md §9 "Weak references in the channel registry").
type Channel struct {
	mu sync.Mutex

	Namespace string
	Name      string

	Definition            render.Definition
	LastAppliedGeneration int64
	displayPassword       string

	conn *runnerConn
}

func newChannel(namespace, name string) *Channel {
	return &Channel{Namespace: namespace, Name: name}
}

// Associate updates the channel's last-observed definition. Callers use
// LastAppliedGeneration to short-circuit reconciliations triggered by
// status-only refreshes (spec.md §4.2).
func (c *Channel) Associate(def render.Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Definition = def
}

// MarkApplied records that def.Generation has been fully reconciled.
func (c *Channel) MarkApplied(generation int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation > c.LastAppliedGeneration {
		c.LastAppliedGeneration = generation
	}
}

// DisplayPassword returns the last display password this channel observed
// the reconciler apply to the VM's display Secret, or "" if none yet.
func (c *Channel) DisplayPassword() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayPassword
}

// SetDisplayPassword records the display password last observed, so the
// next reconcile can detect a rotation.
func (c *Channel) SetDisplayPassword(password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayPassword = password
}

// Connected reports whether a runner is currently attached to this channel.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Dispatch sends a ModifyVm or ResetVm frame to the attached runner. It
// returns ErrNotConnected if no runner is attached; the caller (the
// reconciler) treats that as "nothing to do yet" rather than an error, since
// the Pod may simply not have started.
func (c *Channel) Dispatch(t FrameType, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	env, err := encode(t, payload)
	if err != nil {
		return err
	}
	return conn.enqueue(env)
}

func (c *Channel) attach(conn *runnerConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Channel) detach(conn *runnerConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

// Registry is the per-VM channel registry (R2): mapping from VM name to
// VmChannel. Guarded by a single reader-biased mutex, grounded on the
// teacher's connMutex sync.RWMutex pattern (agents/k8s-agent/main.go).
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel

	// StatusHandler, if set, is invoked with every StatusReport frame a
	// runner sends; it is how the controller applies R8's status patch.
	StatusHandler func(namespace, name string, payload StatusReportPayload)
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

func key(namespace, name string) string { return namespace + "/" + name }

// Get returns the channel for (namespace, name), or ok=false if none exists.
func (r *Registry) Get(namespace, name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[key(namespace, name)]
	return ch, ok
}

// GetOrCreate returns the existing channel for (namespace, name), creating
// one if absent.
func (r *Registry) GetOrCreate(namespace, name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(namespace, name)
	if ch, ok := r.channels[k]; ok {
		return ch
	}
	ch := newChannel(namespace, name)
	r.channels[k] = ch
	return ch
}

// Remove deletes the channel for (namespace, name); called on observed
// VM CR DELETE (spec.md §3 VmChannel lifecycle).
func (r *Registry) Remove(namespace, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, key(namespace, name))
}

// Values returns a snapshot of all channels currently registered.
func (r *Registry) Values() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}
