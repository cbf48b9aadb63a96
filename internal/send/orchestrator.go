package send

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ska-telescope/ska-pst-send/internal/dpd"
	"github.com/ska-telescope/ska-pst-send/internal/logging"
	"github.com/ska-telescope/ska-pst-send/internal/scan"
)

// Orchestrator defaults.
const (
	// DefaultCondTimeout is the wait when no scan is available.
	DefaultCondTimeout = 10 * time.Second
	// DefaultScanTimeout is the inactivity window, in seconds, after which a
	// scan is considered inactive.
	DefaultScanTimeout = 300.0
	// DefaultCatalogTimeout bounds the catalog confirmation polling.
	DefaultCatalogTimeout = 120 * time.Second
	// catalogPollInterval is the initial catalog polling interval.
	catalogPollInterval = time.Second
	// catalogPollMultiplier grows the polling interval after each attempt.
	catalogPollMultiplier = 2
)

// Orchestrator drives the processing, transfer, catalog handoff and local
// reclamation of every scan under the local data product root.
type Orchestrator struct {
	localPath      string
	remotePath     string
	manager        *scan.Manager
	catalog        *dpd.Client
	logger         *logging.Logger
	statTool       []string
	loopWait       time.Duration
	condTimeout    time.Duration
	catalogTimeout time.Duration
	pollInterval   time.Duration
	minimumAge     float64
	scanTimeout    float64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithCatalog enables the data product catalog handoff through client.
func WithCatalog(client *dpd.Client) Option {
	return func(o *Orchestrator) {
		o.catalog = client
	}
}

// WithLoopWait sets the worker loop wait.
func WithLoopWait(wait time.Duration) Option {
	return func(o *Orchestrator) {
		o.loopWait = wait
	}
}

// WithCondTimeout sets the wait when no scan is available.
func WithCondTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.condTimeout = timeout
	}
}

// WithCatalogTimeout bounds the catalog confirmation polling.
func WithCatalogTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.catalogTimeout = timeout
	}
}

// WithStatTool overrides the argv prefix of the external statistics
// processor invoked for each scan.
func WithStatTool(argv ...string) Option {
	return func(o *Orchestrator) {
		o.statTool = argv
	}
}

// WithMinimumAge sets the minimum file age, in seconds, for processing and
// transfer.
func WithMinimumAge(age float64) Option {
	return func(o *Orchestrator) {
		o.minimumAge = age
	}
}

// WithScanTimeout sets the scan inactivity window in seconds.
func WithScanTimeout(timeout float64) Option {
	return func(o *Orchestrator) {
		o.scanTimeout = timeout
	}
}

// New creates an Orchestrator moving the subsystem's scans from the local to
// the remote data product root.
func New(localPath, remotePath, subsystemID string, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		localPath:      localPath,
		remotePath:     remotePath,
		logger:         logging.Default(),
		loopWait:       DefaultLoopWait,
		condTimeout:    DefaultCondTimeout,
		catalogTimeout: DefaultCatalogTimeout,
		pollInterval:   catalogPollInterval,
		minimumAge:     DefaultMinimumAge,
		scanTimeout:    DefaultScanTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	manager, err := scan.NewManager(localPath, subsystemID, o.logger)
	if err != nil {
		return nil, err
	}
	o.manager = manager

	if info, err := os.Stat(remotePath); err != nil {
		return nil, fmt.Errorf("remote path %s: %w", remotePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("remote path %s is not a directory", remotePath)
	}

	return o, nil
}

// Run processes scans until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Debug("local_path=%s remote_path=%s", o.localPath, o.remotePath)

	for ctx.Err() == nil {
		localScan := o.manager.NextUnprocessedScan(o.scanTimeout)
		if localScan == nil {
			select {
			case <-ctx.Done():
			case <-time.After(o.condTimeout):
			}
			continue
		}

		if err := o.processScan(ctx, localScan); err != nil {
			o.logger.Error("scan %s: %v", localScan.RelativeScanPath, err)
		}
		localScan.UpdateModifiedTime()

		// a scan that survived its iteration is retried, but not in a tight
		// loop
		if localScan.PathExists() {
			select {
			case <-ctx.Done():
			case <-time.After(o.loopWait):
			}
		}
	}

	o.logger.Info("orchestrator exiting on command")
	return nil
}

// processScan runs the twin processing and transfer workers for one scan and,
// when both complete, performs the catalog handoff and deletes the local copy.
func (o *Orchestrator) processScan(ctx context.Context, localScan *scan.VoltageRecorderScan) error {
	remoteFull := filepath.Join(o.remotePath, localScan.RelativeScanPath)
	if err := os.MkdirAll(remoteFull, DefaultDirPerms); err != nil {
		return fmt.Errorf("create remote scan directory: %w", err)
	}

	remoteScan, err := scan.NewVoltageRecorderScan(o.remotePath, localScan.RelativeScanPath, o.logger)
	if err != nil {
		return err
	}

	localScan.ResetFailures()
	if len(o.statTool) > 0 {
		localScan.StatTool = o.statTool
	}

	processor := NewProcessor(localScan,
		WithProcessorLogger(o.logger),
		WithProcessorLoopWait(o.loopWait),
		WithProcessorMinimumAge(o.minimumAge),
	)
	transporter := NewTransporter(localScan, remoteScan,
		WithTransporterLogger(o.logger),
		WithTransporterLoopWait(o.loopWait),
		WithTransporterMinimumAge(o.minimumAge),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		transporter.Run(ctx)
	}()
	wg.Wait()

	o.logger.Debug("scan=%s processed=%v transferred=%v",
		localScan.RelativeScanPath, processor.Completed(), transporter.Completed())

	if ctx.Err() != nil || !processor.Completed() || !transporter.Completed() {
		return nil
	}

	if o.catalog == nil {
		o.logger.Info("transfer of %s complete, deleting local scan", localScan.RelativeScanPath)
		return localScan.Delete()
	}

	if err := o.notifyCatalog(ctx, localScan, remoteScan); err != nil {
		return NewSendError(ErrCodeCatalog, localScan.RelativeScanPath,
			"handoff", "scan left in place for operator intervention", err)
	}
	return localScan.Delete()
}

// notifyCatalog reindexes the catalog once and polls for the scan's metadata
// document with exponential backoff until it is indexed or the polling budget
// is exhausted.
func (o *Orchestrator) notifyCatalog(ctx context.Context, localScan, remoteScan *scan.VoltageRecorderScan) error {
	if !localScan.DataProductFileExists() || !remoteScan.DataProductFileExists() {
		return NewSendError(ErrCodeInvariant, localScan.RelativeScanPath,
			"handoff", "metadata document missing from local or remote scan", nil)
	}

	searchValue := filepath.ToSlash(filepath.Join(remoteScan.RelativeScanPath, scan.DataProductFileName))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.pollInterval
	policy.Multiplier = catalogPollMultiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = o.catalogTimeout

	reindexed := false
	operation := func() error {
		if !reindexed {
			if err := o.catalog.ReindexDataProducts(ctx); err != nil {
				return err
			}
			reindexed = true
		}
		exists, err := o.catalog.MetadataExists(ctx, searchValue)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("metadata %s not yet indexed", searchValue)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return err
	}

	o.logger.Info("catalog confirmed %s", searchValue)
	return nil
}
