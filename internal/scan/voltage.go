package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ska-telescope/ska-pst-send/internal/logging"
	"github.com/ska-telescope/ska-pst-send/internal/metadata"
)

// StatFileProcCommand is the external tool that post-processes a data and
// weights file pair into a statistics file.
const StatFileProcCommand = "ska_pst_stat_file_proc"

// FileTriple associates a data and weights file pair with the statistics file
// the pair should produce.
type FileTriple struct {
	Data    File
	Weights File
	Stats   File
}

func (t FileTriple) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.Data, t.Weights, t.Stats)
}

// VoltageRecorderScan is a Scan together with the data, weights, stats and
// control files recorded for it.
type VoltageRecorderScan struct {
	*Scan

	// StatTool is the argv prefix of the external statistics processor.
	StatTool []string

	mu            sync.Mutex
	dataFiles     []File
	weightsFiles  []File
	statsFiles    []File
	configFiles   []File
	unprocessable map[string]struct{}
}

// NewVoltageRecorderScan creates a VoltageRecorderScan for the relative scan
// path under the data product root.
func NewVoltageRecorderScan(dataProductPath, relativeScanPath string, logger *logging.Logger) (*VoltageRecorderScan, error) {
	base, err := NewScan(dataProductPath, relativeScanPath, logger)
	if err != nil {
		return nil, err
	}
	return &VoltageRecorderScan{
		Scan:          base,
		StatTool:      []string{StatFileProcCommand},
		unprocessable: make(map[string]struct{}),
	}, nil
}

// UpdateFiles refreshes the file snapshot from the filesystem and advances
// the scan's modification time to the newest mtime observed.
func (s *VoltageRecorderScan) UpdateFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateFilesLocked()
}

func (s *VoltageRecorderScan) updateFilesLocked() {
	s.dataFiles = s.globFiles("data", "*.dada")
	s.weightsFiles = s.globFiles("weights", "*.dada")
	s.statsFiles = s.globFiles("stat", "*.h5")

	s.configFiles = nil
	if s.DataProductFileExists() {
		s.configFiles = append(s.configFiles, NewFile(s.DataProductFilePath(), s.DataProductPath))
	}
	if s.ScanConfigFileExists() {
		s.configFiles = append(s.configFiles, NewFile(s.ScanConfigPath(), s.DataProductPath))
	}

	if info, err := os.Stat(s.FullScanPath); err == nil {
		s.observeModifiedTime(info.ModTime())
	}
	for _, files := range [][]File{s.dataFiles, s.weightsFiles, s.statsFiles, s.configFiles} {
		for _, f := range files {
			if t := f.ModTime(); !t.IsZero() {
				s.observeModifiedTime(t)
			}
		}
	}
}

func (s *VoltageRecorderScan) globFiles(subdir, pattern string) []File {
	paths, _ := filepath.Glob(filepath.Join(s.FullScanPath, subdir, pattern))
	sort.Strings(paths)

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		files = append(files, NewFile(p, s.DataProductPath))
	}
	return files
}

// GetAllFiles refreshes the snapshot and returns the union of the four file
// classes, sorted by sequence number.
func (s *VoltageRecorderScan) GetAllFiles() []File {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateFilesLocked()

	all := make([]File, 0, len(s.dataFiles)+len(s.weightsFiles)+len(s.statsFiles)+len(s.configFiles))
	all = append(all, s.dataFiles...)
	all = append(all, s.weightsFiles...)
	all = append(all, s.statsFiles...)
	all = append(all, s.configFiles...)
	SortFiles(all)
	return all
}

// NextUnprocessedFile returns the lowest-sequence (data, weights, stats)
// triple for which the stats file has not yet been produced, is not marked
// unprocessable, and whose inputs are at least minimumAge seconds old.
// Returns nil when no candidate exists.
func (s *VoltageRecorderScan) NextUnprocessedFile(minimumAge float64) *FileTriple {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateFilesLocked()

	for _, dataFile := range s.dataFiles {
		for _, weightsFile := range s.weightsFiles {
			if dataFile.FileNumber != weightsFile.FileNumber {
				continue
			}

			statsFile := s.expectedStatsFile(dataFile)

			if _, unprocessable := s.unprocessable[statsFile.Path]; unprocessable {
				s.logger.Debug("%s skipping %s as is unprocessable", s, statsFile.RelativePath())
				continue
			}
			if statsFile.Exists() {
				continue
			}

			if age := minAge(dataFile.Age(), weightsFile.Age()); age >= minimumAge {
				return &FileTriple{Data: dataFile, Weights: weightsFile, Stats: statsFile}
			}
		}
	}

	return nil
}

func (s *VoltageRecorderScan) expectedStatsFile(dataFile File) File {
	stem := filepath.Base(dataFile.Path)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	return NewFile(filepath.Join(s.FullScanPath, "stat", stem+".h5"), s.DataProductPath)
}

func minAge(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// HasUnprocessableFiles reports whether any sequence failed processing in
// this session.
func (s *VoltageRecorderScan) HasUnprocessableFiles() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unprocessable) > 0
}

// ProcessFile invokes the external statistics processor on the triple's data
// and weights files, with the scan root as working directory. A non-zero exit
// marks the triple's stats file unprocessable and returns false with no
// error; failures to run the tool at all are returned as errors.
func (s *VoltageRecorderScan) ProcessFile(ctx context.Context, triple FileTriple) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(triple.Stats.Path), 0o777); err != nil {
		return false, fmt.Errorf("create stat directory: %w", err)
	}

	args := append(append([]string{}, s.StatTool[1:]...), "-d", triple.Data.Path, "-w", triple.Weights.Path)
	cmd := exec.CommandContext(ctx, s.StatTool[0], args...)
	cmd.Dir = s.FullScanPath
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Info("processing files %s, %s", filepath.Base(triple.Data.Path), filepath.Base(triple.Weights.Path))
	s.logger.Debug("running command: %s %s", s.StatTool[0], strings.Join(args, " "))

	err := cmd.Run()
	s.UpdateModifiedTime()

	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		s.logger.Warning("command %s failed: %d: %s", s.StatTool[0], exitErr.ExitCode(), stderr.String())
		s.markUnprocessable(triple.Stats)
		return false, nil
	}

	return false, fmt.Errorf("run %s: %w", s.StatTool[0], err)
}

func (s *VoltageRecorderScan) markUnprocessable(statsFile File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unprocessable[statsFile.Path] = struct{}{}
}

// GenerateDataProductFile synthesizes the metadata document at the scan root.
// The scan must be complete, with every pair processed and no sequence marked
// unprocessable.
func (s *VoltageRecorderScan) GenerateDataProductFile() error {
	if !s.IsComplete() {
		return fmt.Errorf("generate data product file: scan %s is not complete", s.RelativeScanPath)
	}
	if unprocessed := s.NextUnprocessedFile(0); unprocessed != nil {
		return fmt.Errorf("generate data product file: unprocessed files remain: %s", unprocessed)
	}
	if s.HasUnprocessableFiles() {
		return fmt.Errorf("generate data product file: scan %s has unprocessable files", s.RelativeScanPath)
	}

	builder := metadata.NewBuilder(s.FullScanPath,
		metadata.WithLogger(s.logger),
		metadata.WithExecutionBlock(s.EbID),
	)
	return builder.GenerateMetadata()
}
