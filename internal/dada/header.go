// Package dada reads the ASCII key/value headers of PST voltage recorder files.
package dada

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// DefaultHeaderSize is the number of bytes read before the header declares
// its own size.
const DefaultHeaderSize = 4096

// HeaderSizeKey is the header key declaring the full header size in bytes.
const HeaderSizeKey = "HDR_SIZE"

// Header is the parsed ASCII header of a voltage recorder file. Keys keep
// their order of first appearance.
type Header struct {
	path       string
	fileSize   int64
	headerSize int
	keys       []string
	values     map[string]string
}

// ReadHeader memory-maps the header prefix of the file at path and parses it.
// If the header declares a HDR_SIZE different from the default, the prefix is
// re-mapped at the declared size and parsed again. A missing or non-numeric
// HDR_SIZE is a parse error.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	h := &Header{
		path:       path,
		fileSize:   info.Size(),
		headerSize: DefaultHeaderSize,
	}

	if err := h.parsePrefix(f, DefaultHeaderSize); err != nil {
		return nil, err
	}

	declared, err := h.Int(HeaderSizeKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if int(declared) != DefaultHeaderSize {
		h.headerSize = int(declared)
		if err := h.parsePrefix(f, h.headerSize); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// parsePrefix maps up to size bytes of the file read-only and parses them,
// replacing any previously parsed state.
func (h *Header) parsePrefix(f *os.File, size int) error {
	length := size
	if h.fileSize < int64(size) {
		length = int(h.fileSize)
	}
	if length <= 0 {
		return fmt.Errorf("%s: empty header", h.path)
	}

	m, err := mmap.MapRegion(f, length, mmap.RDONLY, 0, 0)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", h.path, err)
	}
	defer func() { _ = m.Unmap() }()

	return h.parseLines(string(m))
}

func (h *Header) parseLines(text string) error {
	h.keys = nil
	h.values = make(map[string]string)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(raw, "\x00", " "))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexAny(line, " \t")
		if idx < 1 {
			return fmt.Errorf("%s: malformed header line %q", h.path, line)
		}

		key := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		if _, seen := h.values[key]; !seen {
			h.keys = append(h.keys, key)
		}
		h.values[key] = value
	}

	return nil
}

// Path returns the path of the file the header was read from.
func (h *Header) Path() string { return h.path }

// FileSize returns the size of the file in bytes.
func (h *Header) FileSize() int64 { return h.fileSize }

// HeaderSize returns the effective header size in bytes.
func (h *Header) HeaderSize() int { return h.headerSize }

// DataSize returns the size of the payload following the header.
func (h *Header) DataSize() int64 {
	size := h.fileSize - int64(h.headerSize)
	if size < 0 {
		return 0
	}
	return size
}

// Keys returns the header keys in order of first appearance.
func (h *Header) Keys() []string {
	keys := make([]string, len(h.keys))
	copy(keys, h.keys)
	return keys
}

// Get returns the raw value for key.
func (h *Header) Get(key string) (string, bool) {
	value, ok := h.values[key]
	return value, ok
}

// Str returns the value for key or an error if absent.
func (h *Header) Str(key string) (string, error) {
	value, ok := h.values[key]
	if !ok {
		return "", fmt.Errorf("header key %s not found", key)
	}
	return value, nil
}

// Int returns the value for key parsed as an integer.
func (h *Header) Int(key string) (int64, error) {
	value, err := h.Str(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("header key %s: %w", key, err)
	}
	return n, nil
}

// Float returns the value for key parsed as a float.
func (h *Header) Float(key string) (float64, error) {
	value, err := h.Str(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("header key %s: %w", key, err)
	}
	return f, nil
}

// ObsOffset returns the OBS_OFFSET value.
func (h *Header) ObsOffset() (int64, error) { return h.Int("OBS_OFFSET") }

// FileNumber returns the FILE_NUMBER value.
func (h *Header) FileNumber() (int64, error) { return h.Int("FILE_NUMBER") }

// ScanID returns the SCAN_ID value.
func (h *Header) ScanID() (int64, error) { return h.Int("SCAN_ID") }

// Observer returns the OBSERVER value.
func (h *Header) Observer() (string, error) { return h.Str("OBSERVER") }

// Source returns the SOURCE value.
func (h *Header) Source() (string, error) { return h.Str("SOURCE") }

// UTCStart returns the UTC_START value.
func (h *Header) UTCStart() (string, error) { return h.Str("UTC_START") }

// Telescope returns the TELESCOPE value.
func (h *Header) Telescope() (string, error) { return h.Str("TELESCOPE") }

// TSamp returns the TSAMP value in microseconds.
func (h *Header) TSamp() (float64, error) { return h.Float("TSAMP") }

// Freq returns the FREQ value in MHz.
func (h *Header) Freq() (float64, error) { return h.Float("FREQ") }

// BW returns the BW value in MHz.
func (h *Header) BW() (float64, error) { return h.Float("BW") }

// NChan returns the NCHAN value.
func (h *Header) NChan() (int64, error) { return h.Int("NCHAN") }

// NPol returns the NPOL value.
func (h *Header) NPol() (int64, error) { return h.Int("NPOL") }

// SttCrd1 returns the STT_CRD1 start coordinate (hour angle).
func (h *Header) SttCrd1() (string, error) { return h.Str("STT_CRD1") }

// SttCrd2 returns the STT_CRD2 start coordinate (degrees).
func (h *Header) SttCrd2() (string, error) { return h.Str("STT_CRD2") }

// Intent builds the observation intent from the SOURCE value.
func (h *Header) Intent() (string, error) {
	source, err := h.Source()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Tied-array beam observation of %s", source), nil
}

// Notes returns the notes value for the metadata context.
func (h *Header) Notes() string {
	return "notes TBD"
}
