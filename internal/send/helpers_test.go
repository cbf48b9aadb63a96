package send

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ska-telescope/ska-pst-send/internal/scan"
)

const (
	testEbID = "eb-m001-20191031-12345"
	testSSID = "pst-low"
)

// stubToolOK creates the expected stats file and succeeds, recording the
// processed data file in proc_order.log.
const stubToolOK = `#!/bin/sh
stem=$(basename "$2" .dada)
mkdir -p stat
: > "stat/$stem.h5"
echo "$stem" >> proc_order.log
exit 0
`

// stubToolFailSeq1 fails sequence 000001 and succeeds for the rest.
const stubToolFailSeq1 = `#!/bin/sh
case "$2" in
*_000001.dada) exit 1 ;;
esac
stem=$(basename "$2" .dada)
mkdir -p stat
: > "stat/$stem.h5"
exit 0
`

// writeStubTool writes an executable stand-in for ska_pst_stat_file_proc.
func writeStubTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stat_file_proc.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub tool: %v", err)
	}
	return path
}

func touchFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		t.Fatalf("failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func dataFileStem(seq int) string {
	return fmt.Sprintf("2023-03-15-03:41:29_0000000000000000_%06d", seq)
}

// writeDadaFile writes a voltage recorder file with a full test header,
// NUL-padded to 4096 bytes, followed by payload bytes.
func writeDadaFile(t *testing.T, path string, seq, payload int) {
	t.Helper()

	lines := []string{
		"HDR_SIZE 4096",
		"OBS_OFFSET 0",
		fmt.Sprintf("FILE_NUMBER %d", seq),
		"SCAN_ID 42",
		"OBSERVER jdoe",
		"SOURCE J1921+2153",
		"UTC_START 2023-03-15-03:41:29",
		"TSAMP 207.36",
		"TELESCOPE SKALow",
		"NCHAN 432",
		"FREQ 199.609375",
		"BW 69.91875",
		"NPOL 2",
		"STT_CRD1 19:21:44.80",
		"STT_CRD2 21:53:02.25",
	}

	content := make([]byte, 4096+payload)
	copy(content, strings.Join(lines, "\n")+"\n")
	for i := 4096; i < len(content); i++ {
		content[i] = 0x5a
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		t.Fatalf("failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write dada file: %v", err)
	}
}

// createLocalScan creates a local scan with the given number of data and
// weights pairs and returns the scan; its root is the scan's DataProductPath.
func createLocalScan(t *testing.T, pairs int) *scan.VoltageRecorderScan {
	t.Helper()

	root := t.TempDir()
	rel := filepath.Join(testEbID, testSSID, "scan-1")
	if err := os.MkdirAll(filepath.Join(root, rel), 0o777); err != nil {
		t.Fatalf("failed to create scan directory: %v", err)
	}

	s, err := scan.NewVoltageRecorderScan(root, rel, nil)
	if err != nil {
		t.Fatalf("failed to create scan: %v", err)
	}

	for seq := 0; seq < pairs; seq++ {
		writeDadaFile(t, filepath.Join(s.FullScanPath, "data", dataFileStem(seq)+".dada"), seq, 1024)
		writeDadaFile(t, filepath.Join(s.FullScanPath, "weights", dataFileStem(seq)+".dada"), seq, 512)
	}

	return s
}

// createRemoteScan creates an empty remote counterpart for the local scan.
func createRemoteScan(t *testing.T, local *scan.VoltageRecorderScan) *scan.VoltageRecorderScan {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, local.RelativeScanPath), 0o777); err != nil {
		t.Fatalf("failed to create remote scan directory: %v", err)
	}

	s, err := scan.NewVoltageRecorderScan(root, local.RelativeScanPath, nil)
	if err != nil {
		t.Fatalf("failed to create remote scan: %v", err)
	}
	return s
}
