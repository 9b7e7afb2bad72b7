package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/channel"
)

// ErrNoCandidate is returned by Assign when every member of the pool is
// live-assigned to a different user.
var ErrNoCandidate = fmt.Errorf("pool: no unassigned member available")

// Manager assigns VmPool members to requesting users and reclaims
// assignments whose retention window has elapsed (spec.md §4.4), grounded
// on the periodic sweep-and-requeue shape of
// controller/controllers/hibernation_controller.go, adapted here into a
// free-running loop plus an on-demand Assign call rather than a per-object
// reconcile, since assignment is triggered by an external request rather
// than a CR change.
type Manager struct {
	client.Client
	Channels *channel.Registry

	// locks guards one mutex per pool name, so assignment within a pool is
	// serialized (no two requests can claim the same member) while
	// different pools proceed concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager constructs a Manager bound to the given client and channel
// registry.
func NewManager(c client.Client, channels *channel.Registry) *Manager {
	return &Manager{Client: c, Channels: channels, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) lockFor(poolKey string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[poolKey]
	if !ok {
		l = &sync.Mutex{}
		m.locks[poolKey] = l
	}
	return l
}

// Start performs the startup reconciliation required to avoid a
// Controller-restart assignment race: nothing needs to be mutated (the
// live assignments already live in VM status), but reading them here forces
// any caller that wants a consistent in-memory view to do so before serving
// requests. Present mainly so the assignment-race Open Question resolution
// has a concrete hook; Assign and sweepOnce always read status fresh.
func (m *Manager) Start(ctx context.Context) error {
	var vms vmoperatorv1.VirtualMachineList
	if err := m.List(ctx, &vms); err != nil {
		return fmt.Errorf("list virtualmachines at startup: %w", err)
	}
	logger := log.FromContext(ctx)
	live := 0
	for i := range vms.Items {
		if vms.Items[i].Status.Assignment != nil {
			live++
		}
	}
	logger.Info("pool manager startup scan complete", "liveAssignments", live)
	return nil
}

// Assign implements spec.md §4.4's assignment algorithm for one pool and
// user: prefer returning the VM already assigned to user (idempotent),
// otherwise claim the least-recently-used unassigned (or expired) member,
// tie-broken lexically by name.
func (m *Manager) Assign(ctx context.Context, poolName, namespace, user string) (*vmoperatorv1.VirtualMachine, error) {
	var pool vmoperatorv1.VmPool
	if err := m.Get(ctx, client.ObjectKey{Namespace: namespace, Name: poolName}, &pool); err != nil {
		return nil, fmt.Errorf("get vmpool %s: %w", poolName, err)
	}
	retention, err := ParseRetention(pool.Spec.Retention)
	if err != nil {
		return nil, err
	}

	lock := m.lockFor(namespace + "/" + poolName)
	lock.Lock()
	defer lock.Unlock()

	var vms vmoperatorv1.VirtualMachineList
	if err := m.List(ctx, &vms, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("list virtualmachines: %w", err)
	}

	members := make([]*vmoperatorv1.VirtualMachine, 0, len(vms.Items))
	for i := range vms.Items {
		if listsPool(&vms.Items[i], poolName) {
			members = append(members, &vms.Items[i])
		}
	}

	now := time.Now()
	for _, vm := range members {
		if vm.Status.Assignment != nil && vm.Status.Assignment.User == user &&
			!retention.Expired(vm.Status.Assignment.LastUsed.Time, now) {
			return vm, nil
		}
	}

	candidates := make([]*vmoperatorv1.VirtualMachine, 0, len(members))
	for _, vm := range members {
		if vm.Status.Assignment == nil || retention.Expired(vm.Status.Assignment.LastUsed.Time, now) {
			candidates = append(candidates, vm)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}
	sort.Slice(candidates, func(i, j int) bool {
		li, lj := lastUsedOf(candidates[i]), lastUsedOf(candidates[j])
		if !li.Equal(lj) {
			return li.Before(lj)
		}
		return candidates[i].Name < candidates[j].Name
	})
	chosen := candidates[0]

	if err := m.claim(ctx, chosen, poolName, user, now); err != nil {
		return nil, err
	}

	if pool.Spec.LoginOnAssignment {
		if ch, ok := m.Channels.Get(chosen.Namespace, chosen.Name); ok {
			_ = ch.Dispatch(channel.FrameModifyVm, channel.ModifyVmPayload{Path: "console.login", Value: user})
		}
	}
	return chosen, nil
}

func lastUsedOf(vm *vmoperatorv1.VirtualMachine) time.Time {
	if vm.Status.Assignment == nil {
		return time.Time{}
	}
	return vm.Status.Assignment.LastUsed.Time
}

// claim patches chosen's status with the new assignment and, if the VM was
// Stopped, flips it to Running so the pool member starts up for its new
// user. Uses retry.RetryOnConflict since another reconcile may be updating
// the same VM's status concurrently (e.g. a runner status report).
func (m *Manager) claim(ctx context.Context, chosen *vmoperatorv1.VirtualMachine, poolName, user string, now time.Time) error {
	key := client.ObjectKeyFromObject(chosen)
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		fresh := &vmoperatorv1.VirtualMachine{}
		if err := m.Get(ctx, key, fresh); err != nil {
			return err
		}
		fresh.Status.Assignment = &vmoperatorv1.Assignment{
			Pool:     poolName,
			User:     user,
			LastUsed: metav1.NewTime(now),
		}
		if err := m.Status().Update(ctx, fresh); err != nil {
			return err
		}
		if fresh.Spec.Vm.State == vmoperatorv1.VmStateStopped {
			fresh.Spec.Vm.State = vmoperatorv1.VmStateRunning
			if err := m.Update(ctx, fresh); err != nil {
				return err
			}
		}
		*chosen = *fresh
		return nil
	})
}

func listsPool(vm *vmoperatorv1.VirtualMachine, pool string) bool {
	for _, p := range vm.Spec.Pools {
		if p == pool {
			return true
		}
	}
	return false
}

// SweepLoop runs sweepOnce every interval until ctx is cancelled, grounded
// on hibernation_controller.go's periodic idle-sweep cadence (there: a
// per-object RequeueAfter; here: a single free-running ticker since sweeps
// span every VmPool/VM pair rather than one watched object).
func (m *Manager) SweepLoop(ctx context.Context, interval time.Duration) {
	logger := log.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sweepOnce(ctx); err != nil {
				logger.Error(err, "pool retention sweep failed")
			}
		}
	}
}

// sweepOnce clears every VM assignment whose retention window has elapsed.
func (m *Manager) sweepOnce(ctx context.Context) error {
	var pools vmoperatorv1.VmPoolList
	if err := m.List(ctx, &pools); err != nil {
		return fmt.Errorf("list vmpools: %w", err)
	}
	retentions := make(map[string]Retention, len(pools.Items))
	for _, p := range pools.Items {
		r, err := ParseRetention(p.Spec.Retention)
		if err != nil {
			continue
		}
		retentions[p.Namespace+"/"+p.Name] = r
	}

	var vms vmoperatorv1.VirtualMachineList
	if err := m.List(ctx, &vms); err != nil {
		return fmt.Errorf("list virtualmachines: %w", err)
	}

	now := time.Now()
	for i := range vms.Items {
		vm := &vms.Items[i]
		if vm.Status.Assignment == nil {
			continue
		}
		r, ok := retentions[vm.Namespace+"/"+vm.Status.Assignment.Pool]
		if !ok {
			continue
		}
		if !r.Expired(vm.Status.Assignment.LastUsed.Time, now) {
			continue
		}
		if err := m.clearAssignment(ctx, vm); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) clearAssignment(ctx context.Context, vm *vmoperatorv1.VirtualMachine) error {
	key := client.ObjectKeyFromObject(vm)
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		fresh := &vmoperatorv1.VirtualMachine{}
		if err := m.Get(ctx, key, fresh); err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			return err
		}
		if fresh.Status.Assignment == nil {
			return nil
		}
		fresh.Status.Assignment = nil
		return m.Status().Update(ctx, fresh)
	})
}
