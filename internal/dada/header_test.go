package dada

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeHeaderFile writes a voltage recorder file whose header holds the given
// lines, NUL-padded to headerSize, followed by payload bytes.
func writeHeaderFile(t *testing.T, path string, headerSize int, lines []string, payload int) {
	t.Helper()

	text := strings.Join(lines, "\n") + "\n"
	if len(text) > headerSize {
		t.Fatalf("header text of %d bytes exceeds header size %d", len(text), headerSize)
	}

	content := make([]byte, headerSize+payload)
	copy(content, text)
	for i := headerSize; i < len(content); i++ {
		content[i] = 0x5a
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write header file: %v", err)
	}
}

func TestReadHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2023-03-15-03:41:29_0000000000000000_000000.dada")

	writeHeaderFile(t, path, 4096, []string{
		"HDR_SIZE 4096",
		"# a comment to be skipped",
		"",
		"OBS_OFFSET 0",
		"SOURCE J1921+2153",
		"TELESCOPE   SKALow",
		"TSAMP 207.36",
	}, 256)

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}

	if h.HeaderSize() != 4096 {
		t.Errorf("expected header size 4096, got %d", h.HeaderSize())
	}
	if h.FileSize() != 4096+256 {
		t.Errorf("expected file size %d, got %d", 4096+256, h.FileSize())
	}
	if h.DataSize() != 256 {
		t.Errorf("expected data size 256, got %d", h.DataSize())
	}

	source, err := h.Source()
	if err != nil {
		t.Fatalf("failed to get SOURCE: %v", err)
	}
	if source != "J1921+2153" {
		t.Errorf("expected SOURCE J1921+2153, got %q", source)
	}

	telescope, err := h.Telescope()
	if err != nil {
		t.Fatalf("failed to get TELESCOPE: %v", err)
	}
	if telescope != "SKALow" {
		t.Errorf("expected TELESCOPE SKALow, got %q", telescope)
	}

	tsamp, err := h.TSamp()
	if err != nil {
		t.Fatalf("failed to get TSAMP: %v", err)
	}
	if tsamp != 207.36 {
		t.Errorf("expected TSAMP 207.36, got %v", tsamp)
	}

	wantKeys := []string{"HDR_SIZE", "OBS_OFFSET", "SOURCE", "TELESCOPE", "TSAMP"}
	gotKeys := h.Keys()
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("expected %d keys, got %d: %v", len(wantKeys), len(gotKeys), gotKeys)
	}
	for i, key := range wantKeys {
		if gotKeys[i] != key {
			t.Errorf("expected key %d to be %s, got %s", i, key, gotKeys[i])
		}
	}
}

func TestReadHeaderDeclaredSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large_header.dada")

	// a key placed beyond the default prefix is only visible once the header
	// is re-read at the declared size
	lines := []string{"HDR_SIZE 8192"}
	text := strings.Join(lines, "\n") + "\n"
	content := make([]byte, 8192)
	copy(content, text)
	copy(content[5000:], "SOURCE J0437-4715\n")

	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write header file: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if h.HeaderSize() != 8192 {
		t.Errorf("expected header size 8192, got %d", h.HeaderSize())
	}

	source, err := h.Source()
	if err != nil {
		t.Fatalf("failed to get SOURCE past default prefix: %v", err)
	}
	if source != "J0437-4715" {
		t.Errorf("expected SOURCE J0437-4715, got %q", source)
	}
}

func TestReadHeaderMissingHeaderSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no_hdr_size.dada")

	writeHeaderFile(t, path, 4096, []string{
		"SOURCE J1921+2153",
	}, 0)

	if _, err := ReadHeader(path); err == nil {
		t.Fatal("expected error for missing HDR_SIZE")
	}
}

func TestReadHeaderCorruptHeaderSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad_hdr_size.dada")

	writeHeaderFile(t, path, 4096, []string{
		"HDR_SIZE not-a-number",
	}, 0)

	if _, err := ReadHeader(path); err == nil {
		t.Fatal("expected error for corrupt HDR_SIZE")
	}
}

func TestReadHeaderMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "malformed.dada")

	writeHeaderFile(t, path, 4096, []string{
		"HDR_SIZE 4096",
		"KEYWITHOUTVALUE",
	}, 0)

	if _, err := ReadHeader(path); err == nil {
		t.Fatal("expected error for malformed header line")
	}
}

func TestReadHeaderMissingFile(t *testing.T) {
	if _, err := ReadHeader(filepath.Join(t.TempDir(), "absent.dada")); err == nil {
		t.Fatal("expected error for absent file")
	}
}

func TestHeaderIntent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intent.dada")

	writeHeaderFile(t, path, 4096, []string{
		"HDR_SIZE 4096",
		"SOURCE J1921+2153",
	}, 0)

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}

	intent, err := h.Intent()
	if err != nil {
		t.Fatalf("failed to build intent: %v", err)
	}
	if intent != "Tied-array beam observation of J1921+2153" {
		t.Errorf("unexpected intent %q", intent)
	}
}
