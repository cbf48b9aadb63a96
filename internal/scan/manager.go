package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ska-telescope/ska-pst-send/internal/logging"
)

// SubsystemIDs are the valid PST instance identifiers.
var SubsystemIDs = []string{"pst-low", "pst-mid"}

// ValidSubsystemID reports whether id names a PST instance.
func ValidSubsystemID(id string) bool {
	for _, valid := range SubsystemIDs {
		if id == valid {
			return true
		}
	}
	return false
}

// Manager tracks the scans of one subsystem under a data product root.
type Manager struct {
	// DataProductPath is the root the scans are enumerated under.
	DataProductPath string

	// SubsystemID is the PST instance whose scans are managed.
	SubsystemID string

	logger *logging.Logger
	scans  []*VoltageRecorderScan
}

// NewManager creates a Manager for the subsystem's scans under the data
// product root. The root must exist and the subsystem id must be valid.
func NewManager(dataProductPath, subsystemID string, logger *logging.Logger) (*Manager, error) {
	info, err := os.Stat(dataProductPath)
	if err != nil {
		return nil, fmt.Errorf("data product path %s: %w", dataProductPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data product path %s is not a directory", dataProductPath)
	}
	if !ValidSubsystemID(subsystemID) {
		return nil, fmt.Errorf("invalid subsystem id %q, expected one of %v", subsystemID, SubsystemIDs)
	}

	if logger == nil {
		logger = logging.Default()
	}

	m := &Manager{
		DataProductPath: dataProductPath,
		SubsystemID:     subsystemID,
		logger:          logger,
	}
	m.RefreshScans()
	return m, nil
}

// relativeScanPaths enumerates the scan directories currently on disk.
func (m *Manager) relativeScanPaths() []string {
	pattern := filepath.Join(m.DataProductPath, "eb-*", m.SubsystemID, "*")
	matches, _ := filepath.Glob(pattern)

	var paths []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.IsDir() {
			continue
		}
		if rel, err := filepath.Rel(m.DataProductPath, match); err == nil {
			paths = append(paths, rel)
		}
	}
	return paths
}

// RefreshScans synchronizes the tracked scan list with the filesystem and
// re-sorts it oldest first.
func (m *Manager) RefreshScans() {
	onDisk := make(map[string]struct{})
	for _, rel := range m.relativeScanPaths() {
		onDisk[rel] = struct{}{}
	}

	tracked := make(map[string]struct{}, len(m.scans))
	for _, s := range m.scans {
		tracked[s.RelativeScanPath] = struct{}{}
	}

	for rel := range onDisk {
		if _, ok := tracked[rel]; ok {
			continue
		}
		m.logger.Debug("adding new scan %s", rel)
		s, err := NewVoltageRecorderScan(m.DataProductPath, rel, m.logger)
		if err != nil {
			m.logger.Warning("cannot track scan %s: %v", rel, err)
			continue
		}
		m.scans = append(m.scans, s)
	}

	kept := m.scans[:0]
	for _, s := range m.scans {
		if _, ok := onDisk[s.RelativeScanPath]; ok && s.PathExists() {
			kept = append(kept, s)
			continue
		}
		m.logger.Debug("removing scan at %s", s.RelativeScanPath)
	}
	m.scans = kept

	sort.SliceStable(m.scans, func(i, j int) bool {
		return scanLess(m.scans[i], m.scans[j])
	})
}

// scanLess orders scans by modified time, then created time, then scan id,
// then execution block id.
func scanLess(a, b *VoltageRecorderScan) bool {
	am, bm := a.ModifiedTime(), b.ModifiedTime()
	if !am.Equal(bm) {
		return am.Before(bm)
	}
	if !a.CreatedTime().Equal(b.CreatedTime()) {
		return a.CreatedTime().Before(b.CreatedTime())
	}
	if a.ScanID != b.ScanID {
		return a.ScanID < b.ScanID
	}
	return a.EbID < b.EbID
}

// Scans returns the tracked scans, oldest first.
func (m *Manager) Scans() []*VoltageRecorderScan {
	scans := make([]*VoltageRecorderScan, len(m.scans))
	copy(scans, m.scans)
	return scans
}

// NextUnprocessedScan returns the oldest active scan, or failing that the
// oldest inactive one so that stalled scans are eventually processed. A scan
// is active while its modified time is within scanTimeout seconds of now.
func (m *Manager) NextUnprocessedScan(scanTimeout float64) *VoltageRecorderScan {
	m.RefreshScans()

	cutoff := time.Now().Add(-time.Duration(scanTimeout * float64(time.Second)))
	for _, s := range m.scans {
		if !s.ModifiedTime().Before(cutoff) {
			return s
		}
	}

	if len(m.scans) > 0 {
		return m.scans[0]
	}
	return nil
}
