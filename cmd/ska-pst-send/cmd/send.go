package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ska-telescope/ska-pst-send/internal/dpd"
	"github.com/ska-telescope/ska-pst-send/internal/logging"
	"github.com/ska-telescope/ska-pst-send/internal/scan"
	"github.com/ska-telescope/ska-pst-send/internal/send"
)

// runSend wires the orchestrator and drives it until interrupted.
func runSend(localPath, remotePath, subsystemID string) error {
	cfg := GetConfig()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	if !scan.ValidSubsystemID(subsystemID) {
		return fmt.Errorf("invalid ska_subsystem %q, expected one of %v", subsystemID, scan.SubsystemIDs)
	}

	// SIGINT and SIGTERM trigger graceful shutdown of both workers and the
	// orchestrator, preventing partially transferred files being declared
	// complete.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []send.Option{
		send.WithLogger(logging.Default()),
		send.WithLoopWait(time.Duration(cfg.LoopWait * float64(time.Second))),
		send.WithCondTimeout(time.Duration(cfg.CondTimeout * float64(time.Second))),
		send.WithMinimumAge(cfg.MinimumAge),
		send.WithScanTimeout(cfg.ScanTimeout),
	}

	if cfg.DashboardEnabled() {
		logging.Info("data product dashboard endpoint: %s", cfg.DataProductDashboard)
		opts = append(opts, send.WithCatalog(dpd.NewClient(cfg.DataProductDashboard,
			dpd.WithLogger(logging.Default()))))
	} else {
		logging.Info("data product dashboard disabled")
	}

	orchestrator, err := send.New(localPath, remotePath, subsystemID, opts...)
	if err != nil {
		return err
	}

	logging.Info("watching %s for %s scans", localPath, subsystemID)
	return orchestrator.Run(ctx)
}
