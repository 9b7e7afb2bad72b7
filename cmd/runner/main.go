// Package main is the entry point for the per-VM runner binary: it loads
// its rendered config, supervises swTPM/QEMU, and maintains a connection
// back to the controller for live mutation and status reporting (R5,
// spec.md §4.5).
//
// Grounded on agents/k8s-agent/main.go (flag/env parsing, signal handling,
// structured startup logging), adapted from managing Kubernetes session
// Deployments to supervising one QEMU child process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"vmoperator.jdrupes.org/vm-operator/internal/runner"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", getEnv("VMRUNNER_CONFIG", "/etc/opt/vmrunner/config.yaml"), "path to the runner config file")
	flag.Parse()

	zapLog, err := zap.NewProduction()
	if err != nil {
		os.Exit(runner.ExitInternal)
	}
	defer zapLog.Sync()
	log := zapr.NewLogger(zapLog)

	cfg, err := runner.LoadConfig(configPath)
	if err != nil {
		log.Error(err, "invalid runner configuration")
		os.Exit(runner.ExitMisconfigured)
	}

	machineUUID, err := runner.EnsureMachineUUID(cfg.DataDir)
	if err != nil {
		log.Error(err, "failed to establish machine uuid")
		os.Exit(runner.ExitMisconfigured)
	}
	log.Info("runner starting", "vm", cfg.Name, "namespace", cfg.Namespace, "machineUuid", machineUUID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	conn := runner.NewConnection(cfg, log.WithName("connection"))
	go conn.Run(ctx)

	supervisor := runner.NewSupervisor(cfg, conn, log.WithName("supervisor"))
	code := supervisor.Run(ctx)
	os.Exit(code)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
