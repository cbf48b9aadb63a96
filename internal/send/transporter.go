package send

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ska-telescope/ska-pst-send/internal/logging"
	"github.com/ska-telescope/ska-pst-send/internal/scan"
)

// DefaultDirPerms are the permissions applied to directories created on the
// remote filesystem.
const DefaultDirPerms = 0o777

// Transporter copies the files of one scan from the local to the remote
// filesystem, preserving their relative layout.
type Transporter struct {
	localScan  *scan.VoltageRecorderScan
	remoteScan *scan.VoltageRecorderScan
	logger     *logging.Logger
	loopWait   time.Duration
	minimumAge float64
	dirPerms   os.FileMode
	completed  atomic.Bool
}

// TransporterOption configures a Transporter.
type TransporterOption func(*Transporter)

// WithTransporterLogger sets the logger.
func WithTransporterLogger(logger *logging.Logger) TransporterOption {
	return func(t *Transporter) {
		t.logger = logger
	}
}

// WithTransporterLoopWait sets the wait between loop iterations.
func WithTransporterLoopWait(wait time.Duration) TransporterOption {
	return func(t *Transporter) {
		t.loopWait = wait
	}
}

// WithTransporterMinimumAge sets the minimum file age in seconds before a
// file is transferred.
func WithTransporterMinimumAge(age float64) TransporterOption {
	return func(t *Transporter) {
		t.minimumAge = age
	}
}

// NewTransporter creates a Transporter copying localScan to remoteScan.
func NewTransporter(localScan, remoteScan *scan.VoltageRecorderScan, opts ...TransporterOption) *Transporter {
	t := &Transporter{
		localScan:  localScan,
		remoteScan: remoteScan,
		logger:     logging.Default(),
		loopWait:   DefaultLoopWait,
		minimumAge: DefaultMinimumAge,
		dirPerms:   DefaultDirPerms,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Completed reports whether the scan is complete, its metadata document
// exists and every file has been transferred.
func (t *Transporter) Completed() bool {
	return t.completed.Load()
}

// UntransferredFiles returns the local files at least minimumAge seconds old
// that are not present on the remote, in ascending sequence order.
func (t *Transporter) UntransferredFiles(minimumAge float64) []scan.File {
	localFiles := t.localScan.GetAllFiles()
	remoteFiles := t.remoteScan.GetAllFiles()
	t.logger.Debug("local_files count=%d remote_files count=%d", len(localFiles), len(remoteFiles))

	var files []scan.File
	for _, local := range localFiles {
		if local.Age() < minimumAge {
			continue
		}
		transferred := false
		for _, remote := range remoteFiles {
			if local.Equal(remote) {
				transferred = true
				break
			}
		}
		if !transferred {
			files = append(files, local)
		}
	}

	scan.SortFiles(files)
	return files
}

// transferFiles copies every untransferred file, waiting up to 100 ms for
// cancellation before each copy.
func (t *Transporter) transferFiles(ctx context.Context) error {
	for _, f := range t.UntransferredFiles(t.minimumAge) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}

		rel := f.RelativePath()
		remotePath := filepath.Join(t.remoteScan.DataProductPath, rel)

		t.logger.Info("transferring %s", rel)
		if err := os.MkdirAll(filepath.Dir(remotePath), t.dirPerms); err != nil {
			return fmt.Errorf("create remote directory for %s: %w", rel, err)
		}
		if err := copyFile(f.Path, remotePath); err != nil {
			return err
		}
		t.logger.Debug("%s has been transferred", rel)
		t.localScan.UpdateModifiedTime()
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// Run transfers files until the scan is fully transferred, the context is
// cancelled, the scan disappears, or the processing sibling fails.
func (t *Transporter) Run(ctx context.Context) {
	t.logger.Debug("%s starting transfer loop, local=%s remote=%s",
		t.localScan, t.localScan.DataProductPath, t.remoteScan.DataProductPath)

	for {
		if ctx.Err() != nil {
			t.logger.Debug("%s transfer loop exiting on command", t.localScan)
			return
		}
		if !t.localScan.PathExists() {
			t.logger.Info("%s transfer loop exiting, scan directory no longer exists", t.localScan)
			return
		}
		if t.localScan.ProcessingFailed() {
			t.logger.Info("%s transfer loop exiting, processing sibling failed", t.localScan)
			return
		}

		if err := t.transferFiles(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Error("%v", NewSendError(ErrCodeTransfer, t.localScan.RelativeScanPath,
				"transfer", "copying files to remote", err))
			t.localScan.SetTransferFailed(true)
			return
		}
		if ctx.Err() != nil {
			return
		}

		if t.localScan.IsComplete() && t.localScan.DataProductFileExists() &&
			len(t.UntransferredFiles(0)) == 0 {
			t.completed.Store(true)
			t.logger.Info("%s transfer complete", t.localScan)
			return
		}

		select {
		case <-ctx.Done():
			t.logger.Debug("%s transfer loop exiting on command", t.localScan)
			return
		case <-time.After(t.loopWait):
		}
	}
}
