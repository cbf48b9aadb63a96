package metadata

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

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

// createScanFiles writes count data and weights file pairs into scanPath.
func createScanFiles(t *testing.T, scanPath string, count int) {
	t.Helper()
	for seq := 0; seq < count; seq++ {
		stem := fmt.Sprintf("2023-03-15-03:41:29_0000000000000000_%06d", seq)
		writeDadaFile(t, filepath.Join(scanPath, "data", stem+".dada"), seq, 1024)
		writeDadaFile(t, filepath.Join(scanPath, "weights", stem+".dada"), seq, 512)
	}
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: expected %v, got %v", name, want, got)
	}
}

func TestBuildMetadata(t *testing.T) {
	scanPath := t.TempDir()
	createScanFiles(t, scanPath, 4)

	md, err := NewBuilder(scanPath).Build()
	if err != nil {
		t.Fatalf("failed to build metadata: %v", err)
	}

	if md.Interface != Interface {
		t.Errorf("expected interface %s, got %s", Interface, md.Interface)
	}
	if md.ExecutionBlock != "eb-20230315-42" {
		t.Errorf("expected derived execution block eb-20230315-42, got %s", md.ExecutionBlock)
	}

	if md.Context.Observer != "jdoe" {
		t.Errorf("expected observer jdoe, got %s", md.Context.Observer)
	}
	if md.Context.Intent != "Tied-array beam observation of J1921+2153" {
		t.Errorf("unexpected intent %s", md.Context.Intent)
	}

	if md.Config.Image != ConfigImage || md.Config.Version != ConfigVersion {
		t.Errorf("unexpected config %+v", md.Config)
	}

	if len(md.Files) != 2 {
		t.Fatalf("expected 2 file records, got %d", len(md.Files))
	}
	if md.Files[0].Path != "data" || md.Files[0].Size != 4*(4096+1024) || md.Files[0].Status != "done" {
		t.Errorf("unexpected data file record %+v", md.Files[0])
	}
	if md.Files[1].Path != "weights" || md.Files[1].Size != 4*(4096+512) {
		t.Errorf("unexpected weights file record %+v", md.Files[1])
	}

	oc := md.ObsCore
	if oc.ObsID != 42 {
		t.Errorf("expected obs_id 42, got %d", oc.ObsID)
	}
	if oc.TargetName != "J1921+2153" {
		t.Errorf("expected target J1921+2153, got %s", oc.TargetName)
	}
	if oc.AccessEstSize != 4*1024 {
		t.Errorf("expected access_estsize %d, got %d", 4*1024, oc.AccessEstSize)
	}
	if oc.InstrumentName != "SKA-LOW" {
		t.Errorf("expected instrument SKA-LOW, got %s", oc.InstrumentName)
	}
	if oc.PolXel != 2 || oc.EmXel != 432 {
		t.Errorf("unexpected pol_xel=%d em_xel=%d", oc.PolXel, oc.EmXel)
	}

	approx(t, "s_ra", oc.SRa, 19.0+21.0/60+44.80/3600, 1e-9)
	approx(t, "s_dec", oc.SDec, 21.0+53.0/60+2.25/3600, 1e-9)
	approx(t, "t_min", oc.TMin, 60018.1538078704, 1e-8)
	approx(t, "t_max-t_min", oc.TMax-oc.TMin, 207.36e-6/86400, 5e-10)
	approx(t, "t_resolution", oc.TResolution, 207.36e-6, 1e-12)
	approx(t, "t_exptime", oc.TExpTime, 207.36, 1e-9)
	approx(t, "em_min", oc.EmMin, 164650000.0, 1e-3)
	approx(t, "em_max", oc.EmMax, 234568750.0, 1e-3)
	approx(t, "em_resolution", oc.EmResolution, 69.91875/432*1e6, 1e-6)

	if oc.PolStates != "null" || oc.EmResPower != "null" || oc.OUcd != "null" {
		t.Error("expected unpopulated descriptors to remain null strings")
	}
	if oc.FacilityName != "SKA-Observatory" {
		t.Errorf("expected facility SKA-Observatory, got %s", oc.FacilityName)
	}
}

func TestBuildMetadataExecutionBlockOverride(t *testing.T) {
	scanPath := t.TempDir()
	createScanFiles(t, scanPath, 1)

	md, err := NewBuilder(scanPath, WithExecutionBlock("eb-m001-20191031-12345")).Build()
	if err != nil {
		t.Fatalf("failed to build metadata: %v", err)
	}
	if md.ExecutionBlock != "eb-m001-20191031-12345" {
		t.Errorf("expected overridden execution block, got %s", md.ExecutionBlock)
	}
}

func TestBuildMetadataCountMismatch(t *testing.T) {
	scanPath := t.TempDir()
	createScanFiles(t, scanPath, 2)

	extra := filepath.Join(scanPath, "data", "2023-03-15-03:41:29_0000000000000000_000002.dada")
	writeDadaFile(t, extra, 2, 0)

	if _, err := NewBuilder(scanPath).Build(); err == nil {
		t.Fatal("expected error for mismatched data and weights counts")
	}
}

func TestBuildMetadataNoFiles(t *testing.T) {
	if _, err := NewBuilder(t.TempDir()).Build(); err == nil {
		t.Fatal("expected error for scan without data files")
	}
}

func TestGenerateMetadataWritesDocument(t *testing.T) {
	scanPath := t.TempDir()
	createScanFiles(t, scanPath, 2)

	if err := NewBuilder(scanPath).GenerateMetadata(); err != nil {
		t.Fatalf("failed to generate metadata: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(scanPath, DataProductFileName))
	if err != nil {
		t.Fatalf("failed to read metadata document: %v", err)
	}

	// keys are serialized in declaration order
	if !strings.HasPrefix(string(out), "interface:") {
		t.Errorf("expected document to start with the interface key, got %q", string(out[:40]))
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("failed to parse metadata document: %v", err)
	}
	for _, key := range []string{"interface", "execution_block", "context", "config", "files", "obscore"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("expected top-level key %s in document", key)
		}
	}
}
