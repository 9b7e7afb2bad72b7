// Package main is the entry point for the vm-operator controller binary.
//
// It watches VirtualMachine and VmPool custom resources, reconciles derived
// Pods/ConfigMaps/PVCs/Secrets/Services, serves the WebSocket endpoint
// runners dial into, runs the pool-assignment manager's retention sweep,
// and optionally subscribes to NATS for external assign/login/reset/stop
// requests.
//
// Grounded on controller/cmd/main.go (manager setup, health checks, NATS
// subscriber wiring, signal handling).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	vmoperatorv1 "vmoperator.jdrupes.org/vm-operator/api/v1"
	"vmoperator.jdrupes.org/vm-operator/internal/channel"
	"vmoperator.jdrupes.org/vm-operator/internal/events"
	"vmoperator.jdrupes.org/vm-operator/internal/pool"
	"vmoperator.jdrupes.org/vm-operator/internal/vmcontroller"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(vmoperatorv1.AddToScheme(scheme))
}

func main() {
	var metricsAddr string
	var probeAddr string
	var runnerConnectAddr string
	var enableLeaderElection bool
	var natsURL string
	var natsUser string
	var natsPassword string

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metrics endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.StringVar(&runnerConnectAddr, "runner-connect-bind-address", ":8082", "The address runners dial for their channel connection.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager.")
	flag.StringVar(&natsURL, "nats-url", getEnv("NATS_URL", ""), "Optional NATS server URL for external event ingestion.")
	flag.StringVar(&natsUser, "nats-user", getEnv("NATS_USER", ""), "NATS username.")
	flag.StringVar(&natsPassword, "nats-password", getEnv("NATS_PASSWORD", ""), "NATS password.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "vmoperator.jdrupes.org",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	channels := channel.NewRegistry()
	poolMgr := pool.NewManager(mgr.GetClient(), channels)

	if err = (&vmcontroller.VirtualMachineReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Channels: channels,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "VirtualMachine")
		os.Exit(1)
	}

	if err = (&vmcontroller.VmPoolReconciler{
		Client: mgr.GetClient(),
		Scheme: mgr.GetScheme(),
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "VmPool")
		os.Exit(1)
	}

	channels.StatusHandler = vmcontroller.NewStatusHandler(mgr.GetClient(), setupLog.WithName("status"))

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	// The runner-facing WebSocket endpoint runs on its own listener rather
	// than the manager's metrics/health server, since it must stay
	// reachable even while a probe/metrics scrape is in flight.
	runnerMux := http.NewServeMux()
	runnerMux.Handle(channel.RunnerConnectPath, channels.ConnectHandler(setupLog.WithName("channel")))
	runnerServer := &http.Server{Addr: runnerConnectAddr, Handler: runnerMux}
	go func() {
		setupLog.Info("starting runner connect endpoint", "address", runnerConnectAddr)
		if err := runnerServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			setupLog.Error(err, "runner connect endpoint failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := poolMgr.Start(ctx); err != nil {
		setupLog.Error(err, "unable to initialize pool manager")
		os.Exit(1)
	}
	go poolMgr.SweepLoop(ctx, 30*time.Second)

	if natsURL != "" {
		setupLog.Info("initializing NATS event subscriber", "url", natsURL)
		subscriber, err := events.NewSubscriber(events.Config{
			URL: natsURL, User: natsUser, Password: natsPassword,
		}, mgr.GetClient(), poolMgr, channels, setupLog.WithName("events"))
		if err != nil {
			setupLog.Error(err, "unable to create NATS subscriber, continuing without it")
		} else {
			defer subscriber.Close()
			go func() {
				if err := subscriber.Start(ctx); err != nil {
					setupLog.Error(err, "NATS subscriber error")
				}
			}()
		}
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
