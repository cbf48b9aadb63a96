package send

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ska-telescope/ska-pst-send/internal/logging"
	"github.com/ska-telescope/ska-pst-send/internal/scan"
)

// DefaultLoopWait is the default wait between worker loop iterations.
const DefaultLoopWait = 2 * time.Second

// DefaultMinimumAge is the default minimum file age, in seconds, before a
// file is eligible for processing or transfer.
const DefaultMinimumAge = 10.0

// Processor generates the statistics and metadata data products for one scan.
type Processor struct {
	scan       *scan.VoltageRecorderScan
	logger     *logging.Logger
	loopWait   time.Duration
	minimumAge float64
	completed  atomic.Bool
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *logging.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithProcessorLoopWait sets the wait between loop iterations.
func WithProcessorLoopWait(wait time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.loopWait = wait
	}
}

// WithProcessorMinimumAge sets the minimum input file age in seconds.
func WithProcessorMinimumAge(age float64) ProcessorOption {
	return func(p *Processor) {
		p.minimumAge = age
	}
}

// NewProcessor creates a Processor for the local scan.
func NewProcessor(s *scan.VoltageRecorderScan, opts ...ProcessorOption) *Processor {
	p := &Processor{
		scan:       s,
		logger:     logging.Default(),
		loopWait:   DefaultLoopWait,
		minimumAge: DefaultMinimumAge,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Completed reports whether every pair was processed and the metadata
// document synthesized.
func (p *Processor) Completed() bool {
	return p.completed.Load()
}

// Run processes unprocessed file pairs until the scan is fully processed, the
// context is cancelled, the scan disappears, or the transfer sibling fails.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Debug("%s starting processing loop", p.scan)

	for {
		if ctx.Err() != nil {
			p.logger.Debug("%s processing loop exiting on command", p.scan)
			return
		}
		if !p.scan.PathExists() {
			p.logger.Info("%s processing loop exiting, scan directory no longer exists", p.scan)
			return
		}
		if p.scan.TransferFailed() {
			p.logger.Info("%s processing loop exiting, transfer sibling failed", p.scan)
			return
		}

		if triple := p.scan.NextUnprocessedFile(p.minimumAge); triple != nil {
			if _, err := p.scan.ProcessFile(ctx, *triple); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("%v", NewSendError(ErrCodeProcessing, p.scan.RelativeScanPath,
					"process", "processing file pair", err))
				p.scan.SetProcessingFailed(true)
				return
			}
		} else if p.scan.IsComplete() && p.scan.NextUnprocessedFile(0) == nil {
			if p.scan.HasUnprocessableFiles() {
				p.logger.Warning("%s has unprocessable files, metadata synthesis blocked", p.scan)
				p.scan.SetProcessingFailed(true)
				return
			}
			if !p.scan.DataProductFileExists() {
				p.logger.Debug("%s generating data product YAML file", p.scan)
				if err := p.scan.GenerateDataProductFile(); err != nil {
					p.logger.Error("%v", NewSendError(ErrCodeProcessing, p.scan.RelativeScanPath,
						"metadata", "generating data product file", err))
					p.scan.SetProcessingFailed(true)
					return
				}
			}
			p.completed.Store(true)
			p.logger.Info("%s processing complete", p.scan)
			return
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("%s processing loop exiting on command", p.scan)
			return
		case <-time.After(p.loopWait):
		}
	}
}
