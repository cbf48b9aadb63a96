// Package metadata builds the YAML data product document for a PST scan.
package metadata

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Fixed identifiers of the generated document.
const (
	// Interface is the schema URL of the data product metadata format.
	Interface = "http://schema.skao.int/ska-data-product-meta/0.1"
	// ConfigImage identifies the generating software image.
	ConfigImage = "artefact.skao.int/ska-pst/ska-pst"
	// ConfigVersion identifies the generating software version.
	ConfigVersion = "0.1.3"
)

// Context carries observation context passed through from OET/TMC.
type Context struct {
	Observer string `yaml:"observer"`
	Intent   string `yaml:"intent"`
	Notes    string `yaml:"notes"`
}

// Config describes the generating software.
type Config struct {
	Image   string `yaml:"image"`
	Version string `yaml:"version"`
}

// Files summarizes one file class of the scan.
type Files struct {
	Description string `yaml:"description"`
	Path        string `yaml:"path"`
	Size        int64  `yaml:"size"`
	Status      string `yaml:"status"`
}

// ObsCore is the standard IVOA ObsCore record describing the observation.
type ObsCore struct {
	DataProductType    string  `yaml:"dataproduct_type"`
	DataProductSubtype string  `yaml:"dataproduct_subtype"`
	CalibLevel         int     `yaml:"calib_level"`
	ObsID              int64   `yaml:"obs_id"`
	AccessEstSize      int64   `yaml:"access_estsize"`
	TargetName         string  `yaml:"target_name"`
	SRa                float64 `yaml:"s_ra"`
	SDec               float64 `yaml:"s_dec"`
	TMin               float64 `yaml:"t_min"`
	TMax               float64 `yaml:"t_max"`
	TResolution        float64 `yaml:"t_resolution"`
	TExpTime           float64 `yaml:"t_exptime"`
	FacilityName       string  `yaml:"facility_name"`
	InstrumentName     string  `yaml:"instrument_name"`
	PolXel             int64   `yaml:"pol_xel"`
	PolStates          string  `yaml:"pol_states"`
	EmXel              int64   `yaml:"em_xel"`
	EmUnit             string  `yaml:"em_unit"`
	EmMin              float64 `yaml:"em_min"`
	EmMax              float64 `yaml:"em_max"`
	EmResPower         string  `yaml:"em_res_power"`
	EmResolution       float64 `yaml:"em_resolution"`
	OUcd               string  `yaml:"o_ucd"`
}

// Metadata is the complete data product document for one scan.
type Metadata struct {
	Interface      string  `yaml:"interface"`
	ExecutionBlock string  `yaml:"execution_block"`
	Context        Context `yaml:"context"`
	Config         Config  `yaml:"config"`
	Files          []Files `yaml:"files"`
	ObsCore        ObsCore `yaml:"obscore"`
}

// New returns a Metadata document with the fixed defaults populated.
func New() *Metadata {
	return &Metadata{
		Interface: Interface,
		Context: Context{
			Intent: "Tied-array beam observation",
		},
		Config: Config{
			Image:   ConfigImage,
			Version: ConfigVersion,
		},
		ObsCore: ObsCore{
			DataProductType:    "timeseries",
			DataProductSubtype: "voltages",
			CalibLevel:         0,
			FacilityName:       "SKA-Observatory",
			PolStates:          "null",
			EmUnit:             "Hz",
			EmResPower:         "null",
			OUcd:               "null",
		},
	}
}

// ToYAML serializes the document with keys in declaration order.
func (m *Metadata) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return out, nil
}
