package metadata

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ska-telescope/ska-pst-send/internal/dada"
	"github.com/ska-telescope/ska-pst-send/internal/logging"
)

// DataProductFileName is the name of the metadata document at the scan root.
const DataProductFileName = "ska-data-product.yaml"

// utcStartFormat is the layout of the UTC_START header value.
const utcStartFormat = "2006-01-02-15:04:05"

// Builder aggregates the headers of a scan's voltage recorder files into the
// data product document.
type Builder struct {
	scanPath       string
	executionBlock string
	logger         *logging.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithExecutionBlock sets the execution block id recorded in the document.
// When unset, the id is derived from the first data file's UTC_START and
// SCAN_ID.
func WithExecutionBlock(ebID string) BuilderOption {
	return func(b *Builder) {
		b.executionBlock = ebID
	}
}

// NewBuilder creates a Builder for the scan directory at scanPath.
func NewBuilder(scanPath string, opts ...BuilderOption) *Builder {
	b := &Builder{
		scanPath: scanPath,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GenerateMetadata builds the document and writes it to the scan root.
func (b *Builder) GenerateMetadata() error {
	md, err := b.Build()
	if err != nil {
		return err
	}
	return b.WriteMetadata(md)
}

// WriteMetadata serializes the document to <scan>/ska-data-product.yaml.
func (b *Builder) WriteMetadata(md *Metadata) error {
	out, err := md.ToYAML()
	if err != nil {
		return err
	}
	path := filepath.Join(b.scanPath, DataProductFileName)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	b.logger.Debug("wrote metadata document %s", path)
	return nil
}

// Build reads the headers of every data and weights file and populates the
// document. Weights files contribute only their sizes.
func (b *Builder) Build() (*Metadata, error) {
	dataPaths, err := sortedGlob(filepath.Join(b.scanPath, "data", "*.dada"))
	if err != nil {
		return nil, err
	}
	weightsPaths, err := sortedGlob(filepath.Join(b.scanPath, "weights", "*.dada"))
	if err != nil {
		return nil, err
	}

	if len(dataPaths) == 0 {
		return nil, fmt.Errorf("build metadata: expected at least 1 data file in %s", b.scanPath)
	}
	if len(dataPaths) != len(weightsPaths) {
		return nil, fmt.Errorf("build metadata: %d data files but %d weights files",
			len(dataPaths), len(weightsPaths))
	}

	headers := make([]*dada.Header, 0, len(dataPaths))
	for _, path := range dataPaths {
		h, err := dada.ReadHeader(path)
		if err != nil {
			return nil, fmt.Errorf("build metadata: %w", err)
		}
		headers = append(headers, h)
	}
	for _, path := range weightsPaths {
		if _, err := dada.ReadHeader(path); err != nil {
			return nil, fmt.Errorf("build metadata: %w", err)
		}
	}

	md := New()

	if err := b.buildIdentity(md, headers[0]); err != nil {
		return nil, err
	}
	if err := buildContext(md, headers[0]); err != nil {
		return nil, err
	}
	if err := buildFiles(md, headers, weightsPaths); err != nil {
		return nil, err
	}
	if err := buildObsCore(md, headers); err != nil {
		return nil, err
	}

	return md, nil
}

func sortedGlob(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *Builder) buildIdentity(md *Metadata, first *dada.Header) error {
	if b.executionBlock != "" {
		md.ExecutionBlock = b.executionBlock
		return nil
	}

	utcStart, err := first.UTCStart()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	start, err := time.Parse(utcStartFormat, utcStart)
	if err != nil {
		return fmt.Errorf("build metadata: parse UTC_START %q: %w", utcStart, err)
	}
	scanID, err := first.ScanID()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}

	md.ExecutionBlock = fmt.Sprintf("eb-%s-%d", start.Format("20060102"), scanID)
	return nil
}

func buildContext(md *Metadata, first *dada.Header) error {
	observer, err := first.Observer()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	intent, err := first.Intent()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}

	md.Context.Observer = observer
	md.Context.Intent = intent
	md.Context.Notes = first.Notes()
	return nil
}

func buildFiles(md *Metadata, headers []*dada.Header, weightsPaths []string) error {
	var totalDataSize, totalWeightsSize int64
	for _, h := range headers {
		totalDataSize += h.FileSize()
	}
	for _, path := range weightsPaths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("build metadata: stat %s: %w", path, err)
		}
		totalWeightsSize += info.Size()
	}

	md.Files = []Files{
		{
			Description: "Channelised voltage data raw files",
			Path:        "data",
			Size:        totalDataSize,
			Status:      "done",
		},
		{
			Description: "Channelised weights raw files",
			Path:        "weights",
			Size:        totalWeightsSize,
			Status:      "done",
		},
	}
	return nil
}

func buildObsCore(md *Metadata, headers []*dada.Header) error {
	first := headers[0]

	utcStart, err := first.UTCStart()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	start, err := time.Parse(utcStartFormat, utcStart)
	if err != nil {
		return fmt.Errorf("build metadata: parse UTC_START %q: %w", utcStart, err)
	}

	scanID, err := first.ScanID()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	source, err := first.Source()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	tsamp, err := first.TSamp()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	npol, err := first.NPol()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	nchan, err := first.NChan()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	freq, err := first.Freq()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	bw, err := first.BW()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	telescope, err := first.Telescope()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	sttCrd1, err := first.SttCrd1()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	sttCrd2, err := first.SttCrd2()
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}

	sRa, err := parseHourAngle(sttCrd1)
	if err != nil {
		return fmt.Errorf("build metadata: STT_CRD1: %w", err)
	}
	sDec, err := parseDegrees(sttCrd2)
	if err != nil {
		return fmt.Errorf("build metadata: STT_CRD2: %w", err)
	}

	var totalHeaderSize int64
	for _, h := range headers {
		totalHeaderSize += int64(h.HeaderSize())
	}

	// t_max adds a single sample period, matching the reference output.
	samplePeriod := time.Duration(tsamp * float64(time.Microsecond))

	oc := &md.ObsCore
	oc.ObsID = scanID
	oc.AccessEstSize = md.Files[0].Size - totalHeaderSize
	oc.TargetName = source
	oc.SRa = sRa
	oc.SDec = sDec
	oc.TMin = convertUTCToMJD(start)
	oc.TMax = convertUTCToMJD(start.Add(samplePeriod))
	oc.TResolution = tsamp / 1e6
	oc.TExpTime = tsamp
	oc.InstrumentName = strings.Replace(strings.ToUpper(telescope), "SKA", "SKA-", 1)
	oc.PolXel = npol
	oc.EmXel = nchan
	oc.EmMin = (freq - bw/2) * 1e6
	oc.EmMax = (freq + bw/2) * 1e6
	oc.EmResolution = bw / float64(nchan) * 1e6

	return nil
}

// convertUTCToMJD converts a UTC time to a Modified Julian Date, where
// JD = 2451544.5 + (UTC - J2000)/86400 and MJD = JD - 2400000.5, rounded to
// ten decimals.
func convertUTCToMJD(t time.Time) float64 {
	j2000 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	days := t.Sub(j2000).Seconds() / 86400.0
	mjd := days + 2451544.5 - 2400000.5
	return math.Round(mjd*1e10) / 1e10
}

// parseHourAngle parses a sexagesimal HH:MM:SS.S coordinate into decimal
// hours.
func parseHourAngle(value string) (float64, error) {
	hours, minutes, seconds, sign, err := parseSexagesimal(value)
	if err != nil {
		return 0, err
	}
	return sign * (hours + minutes/60 + seconds/3600), nil
}

// parseDegrees parses a sexagesimal ±DD:MM:SS.S coordinate into decimal
// degrees.
func parseDegrees(value string) (float64, error) {
	degrees, minutes, seconds, sign, err := parseSexagesimal(value)
	if err != nil {
		return 0, err
	}
	return sign * (degrees + minutes/60 + seconds/3600), nil
}

func parseSexagesimal(value string) (whole, minutes, seconds, sign float64, err error) {
	trimmed := strings.TrimSpace(value)
	sign = 1
	switch {
	case strings.HasPrefix(trimmed, "-"):
		sign = -1
		trimmed = trimmed[1:]
	case strings.HasPrefix(trimmed, "+"):
		trimmed = trimmed[1:]
	}

	parts := strings.Split(trimmed, ":")
	if len(parts) != 3 {
		return 0, 0, 0, 0, fmt.Errorf("expected XX:MM:SS coordinate, got %q", value)
	}

	fields := make([]float64, 3)
	for i, part := range parts {
		f, parseErr := strconv.ParseFloat(part, 64)
		if parseErr != nil {
			return 0, 0, 0, 0, fmt.Errorf("coordinate %q: %w", value, parseErr)
		}
		fields[i] = f
	}

	return fields[0], fields[1], fields[2], sign, nil
}
