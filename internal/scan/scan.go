package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ska-telescope/ska-pst-send/internal/logging"
	"github.com/ska-telescope/ska-pst-send/internal/metadata"
)

// Control file names written at the scan root.
const (
	// ScanConfigFileName is written by the upstream recorder.
	ScanConfigFileName = "scan_configuration.json"
	// DataProductFileName is the metadata document written by this system.
	DataProductFileName = metadata.DataProductFileName
	// ScanCompletedFileName marks that no further files will be recorded.
	ScanCompletedFileName = "scan_completed"
)

// Scan represents one PST scan data product stored under a data product root.
type Scan struct {
	// DataProductPath is the data product root containing the scan.
	DataProductPath string

	// RelativeScanPath is <eb_id>/<subsystem_id>/<scan_id>.
	RelativeScanPath string

	// FullScanPath is the absolute path of the scan directory.
	FullScanPath string

	// EbID, SubsystemID and ScanID identify the scan.
	EbID        string
	SubsystemID string
	ScanID      string

	logger *logging.Logger

	createdTime      time.Time
	modifiedTime     atomic.Int64
	processingFailed atomic.Bool
	transferFailed   atomic.Bool
}

// NewScan creates a Scan rooted at dataProductPath with the given relative
// scan path. The data product root must exist.
func NewScan(dataProductPath, relativeScanPath string, logger *logging.Logger) (*Scan, error) {
	info, err := os.Stat(dataProductPath)
	if err != nil {
		return nil, fmt.Errorf("data product path %s: %w", dataProductPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data product path %s is not a directory", dataProductPath)
	}

	if logger == nil {
		logger = logging.Default()
	}

	s := &Scan{
		DataProductPath:  dataProductPath,
		RelativeScanPath: relativeScanPath,
		FullScanPath:     filepath.Join(dataProductPath, relativeScanPath),
		logger:           logger,
		createdTime:      time.Now(),
	}

	parts := strings.Split(filepath.ToSlash(relativeScanPath), "/")
	if len(parts) == 3 {
		s.EbID, s.SubsystemID, s.ScanID = parts[0], parts[1], parts[2]
	}

	if dirInfo, err := os.Stat(s.FullScanPath); err == nil {
		s.modifiedTime.Store(dirInfo.ModTime().UnixNano())
	} else {
		s.modifiedTime.Store(time.Now().UnixNano())
	}

	return s, nil
}

// ScanConfigPath returns the path of the scan configuration file.
func (s *Scan) ScanConfigPath() string {
	return filepath.Join(s.FullScanPath, ScanConfigFileName)
}

// DataProductFilePath returns the path of the metadata document.
func (s *Scan) DataProductFilePath() string {
	return filepath.Join(s.FullScanPath, DataProductFileName)
}

// ScanCompletedPath returns the path of the scan completed marker.
func (s *Scan) ScanCompletedPath() string {
	return filepath.Join(s.FullScanPath, ScanCompletedFileName)
}

// PathExists reports whether the scan directory exists.
func (s *Scan) PathExists() bool {
	info, err := os.Stat(s.FullScanPath)
	return err == nil && info.IsDir()
}

// IsRecording reports whether the scan has not yet been marked completed.
func (s *Scan) IsRecording() bool {
	return !s.IsComplete()
}

// IsComplete reports whether the scan completed marker exists.
func (s *Scan) IsComplete() bool {
	_, err := os.Stat(s.ScanCompletedPath())
	return err == nil
}

// DataProductFileExists reports whether the metadata document exists.
func (s *Scan) DataProductFileExists() bool {
	_, err := os.Stat(s.DataProductFilePath())
	return err == nil
}

// ScanConfigFileExists reports whether the scan configuration file exists.
func (s *Scan) ScanConfigFileExists() bool {
	_, err := os.Stat(s.ScanConfigPath())
	return err == nil
}

// CreatedTime returns the time the scan was first observed.
func (s *Scan) CreatedTime() time.Time {
	return s.createdTime
}

// ModifiedTime returns the last known modification time of the scan.
func (s *Scan) ModifiedTime() time.Time {
	return time.Unix(0, s.modifiedTime.Load())
}

// UpdateModifiedTime records filesystem activity on the scan now.
func (s *Scan) UpdateModifiedTime() {
	s.modifiedTime.Store(time.Now().UnixNano())
}

// observeModifiedTime advances the modification time to t if later than the
// currently recorded one.
func (s *Scan) observeModifiedTime(t time.Time) {
	ns := t.UnixNano()
	for {
		current := s.modifiedTime.Load()
		if ns <= current || s.modifiedTime.CompareAndSwap(current, ns) {
			return
		}
	}
}

// ProcessingFailed reports whether the processing worker failed on this scan.
func (s *Scan) ProcessingFailed() bool {
	return s.processingFailed.Load()
}

// SetProcessingFailed records a processing worker failure.
func (s *Scan) SetProcessingFailed(failed bool) {
	s.processingFailed.Store(failed)
}

// TransferFailed reports whether the transfer worker failed on this scan.
func (s *Scan) TransferFailed() bool {
	return s.transferFailed.Load()
}

// SetTransferFailed records a transfer worker failure.
func (s *Scan) SetTransferFailed(failed bool) {
	s.transferFailed.Store(failed)
}

// ResetFailures clears both worker failure flags.
func (s *Scan) ResetFailures() {
	s.processingFailed.Store(false)
	s.transferFailed.Store(false)
}

// Delete removes the scan directory recursively, then prunes empty parent
// directories up to, but not including, the data product root.
func (s *Scan) Delete() error {
	s.logger.Debug("deleting all %s", s.RelativeScanPath)
	if err := os.RemoveAll(s.FullScanPath); err != nil {
		return fmt.Errorf("delete scan %s: %w", s.RelativeScanPath, err)
	}

	for dir := filepath.Dir(s.FullScanPath); ; dir = filepath.Dir(dir) {
		rel, err := filepath.Rel(s.DataProductPath, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			break
		}
		if err := os.Remove(dir); err != nil {
			s.logger.Debug("found non-empty parent directory, stopping prune: %v", err)
			break
		}
	}

	return nil
}

func (s *Scan) String() string {
	return fmt.Sprintf("Scan(eb_id=%s, subsystem_id=%s, scan_id=%s)", s.EbID, s.SubsystemID, s.ScanID)
}
