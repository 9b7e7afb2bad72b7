package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/channel"
	"vmoperator.jdrupes.org/vm-operator/internal/pool"
)

// Config holds the NATS connection parameters.
type Config struct {
	URL      string
	User     string
	Password string
}

// EventHandler processes one decoded message body for a given subject.
type EventHandler func(ctx context.Context, data []byte) error

// Subscriber subscribes to the vmoperator.vm.* subjects and applies the
// requested action through the Kubernetes client or the channel registry,
// grounded on k8s-controller/pkg/events/subscriber.go's handler-map/
// Subscribe loop.
type Subscriber struct {
	conn     *nats.Conn
	client   client.Client
	pool     *pool.Manager
	channels *channel.Registry
	log      logr.Logger
	handlers map[string]EventHandler
}

// NewSubscriber connects to NATS and registers the default handlers.
func NewSubscriber(cfg Config, k8sClient client.Client, poolMgr *pool.Manager, channels *channel.Registry, log logr.Logger) (*Subscriber, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	opts := []nats.Option{
		nats.Name("vmoperator-controller"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	s := &Subscriber{
		conn:     conn,
		client:   k8sClient,
		pool:     poolMgr,
		channels: channels,
		log:      log,
		handlers: make(map[string]EventHandler),
	}
	s.registerHandlers()
	return s, nil
}

func (s *Subscriber) registerHandlers() {
	s.handlers[SubjectVmAssign] = s.handleAssign
	s.handlers[SubjectVmLogin] = s.handleLogin
	s.handlers[SubjectVmReset] = s.handleReset
	s.handlers[SubjectVmStop] = s.handleStop
}

// Start subscribes to every registered subject and blocks until ctx is
// cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	for subject, handler := range s.handlers {
		handler := handler
		subject := subject
		_, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
			if err := handler(ctx, msg.Data); err != nil {
				s.log.Error(err, "failed to handle event", "subject", subject)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", subject, err)
		}
		s.log.Info("subscribed to NATS subject", "subject", subject)
	}
	<-ctx.Done()
	return nil
}

// Close closes the NATS connection.
func (s *Subscriber) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Subscriber) handleAssign(ctx context.Context, data []byte) error {
	var evt VmAssignEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode VmAssignEvent: %w", err)
	}
	vm, err := s.pool.Assign(ctx, evt.Pool, evt.Namespace, evt.User)
	if err != nil {
		return fmt.Errorf("assign pool %s for %s: %w", evt.Pool, evt.User, err)
	}
	s.log.Info("assigned pool member via event", "pool", evt.Pool, "user", evt.User, "vm", vm.Name)
	return nil
}

func (s *Subscriber) handleLogin(_ context.Context, data []byte) error {
	var evt VmLoginEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode VmLoginEvent: %w", err)
	}
	ch, ok := s.channels.Get(evt.Namespace, evt.Name)
	if !ok {
		return fmt.Errorf("no channel registered for %s/%s", evt.Namespace, evt.Name)
	}
	return ch.Dispatch(channel.FrameModifyVm, channel.ModifyVmPayload{Path: "console.login", Value: evt.User})
}

func (s *Subscriber) handleReset(ctx context.Context, data []byte) error {
	var evt VmResetEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode VmResetEvent: %w", err)
	}
	return s.patchVm(ctx, evt.Namespace, evt.Name, func(vm *vmoperatorv1.VirtualMachine) {
		vm.Spec.ResetCount++
	})
}

func (s *Subscriber) handleStop(ctx context.Context, data []byte) error {
	var evt VmStopEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("decode VmStopEvent: %w", err)
	}
	return s.patchVm(ctx, evt.Namespace, evt.Name, func(vm *vmoperatorv1.VirtualMachine) {
		vm.Spec.Vm.State = vmoperatorv1.VmStateStopped
	})
}

func (s *Subscriber) patchVm(ctx context.Context, namespace, name string, mutate func(*vmoperatorv1.VirtualMachine)) error {
	key := client.ObjectKey{Namespace: namespace, Name: name}
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var vm vmoperatorv1.VirtualMachine
		if err := s.client.Get(ctx, key, &vm); err != nil {
			return err
		}
		mutate(&vm)
		return s.client.Update(ctx, &vm)
	})
}
