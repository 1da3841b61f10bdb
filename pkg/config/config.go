// Package config provides the analysis session configuration for fluorbleed.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fluorbleed/internal/models"
	"fluorbleed/pkg/bleedthrough"
	"fluorbleed/pkg/stack"
)

// Config represents one analysis session loaded from YAML
type Config struct {
	// Input planes
	Input struct {
		// Files lists single-plane TIFFs, time-major then channel
		Files []string `yaml:"files"`

		// Times is the number of time points the files cover
		Times int `yaml:"times"`

		// Layout optionally pins the axis layout (CYX or TCYX); empty means inferred
		Layout string `yaml:"layout"`
	} `yaml:"input"`

	// Background ROIs, pooled into one level per plane
	Background struct {
		ROIs []models.ROIShape `yaml:"rois"`
	} `yaml:"background"`

	// Cell ROIs, measured one row per ROI
	Cells struct {
		ROIs []models.ROIShape `yaml:"rois"`
	} `yaml:"cells"`

	// Calibration parameters
	Calibration struct {
		// Estimator is slope (least squares through the origin) or ratio
		Estimator string `yaml:"estimator"`
	} `yaml:"calibration"`

	// Correction parameters
	Correction struct {
		// Matrix is a preset coefficient matrix, rows = from, columns = to
		Matrix [][]float64 `yaml:"matrix,omitempty"`

		// MatrixFile is a CSV coefficient matrix, used when Matrix is empty
		MatrixFile string `yaml:"matrixFile,omitempty"`
	} `yaml:"correction"`

	// Ratiometric (FRET) outputs
	FRET struct {
		Ratio         bool    `yaml:"ratio"`
		Eapp          bool    `yaml:"eapp"`
		DonorIndex    int     `yaml:"donorIndex"`
		AcceptorIndex int     `yaml:"acceptorIndex"`
		G             float64 `yaml:"g"`
	} `yaml:"fret"`

	// Measurement tables written after correction
	Measure struct {
		// ROIs measures cell ROIs on the corrected (and ratio) planes
		ROIs bool `yaml:"rois"`

		// Raw also measures cell ROIs on the uncorrected input
		Raw bool `yaml:"raw"`
	} `yaml:"measure"`

	// Output parameters
	Output struct {
		// Dir is where the per-input session directory is created
		Dir string `yaml:"dir"`

		// Preview writes JPEG previews of every plane with ROI outlines
		Preview bool `yaml:"preview"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Times = 1
	cfg.Calibration.Estimator = bleedthrough.Slope.String()

	cfg.FRET.DonorIndex = 0
	cfg.FRET.AcceptorIndex = 1

	cfg.Output.Dir = "."
	cfg.Output.Preview = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Relative paths in the file are relative to the file itself
	cfg.resolvePaths(filepath.Dir(configPath))

	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i, f := range c.Input.Files {
		c.Input.Files[i] = resolve(f)
	}
	c.Correction.MatrixFile = resolve(c.Correction.MatrixFile)
	c.Output.Dir = resolve(c.Output.Dir)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Layout returns the pinned input layout, or ok=false when it should be inferred
func (c *Config) Layout() (layout stack.Layout, ok bool, err error) {
	if strings.TrimSpace(c.Input.Layout) == "" {
		return 0, false, nil
	}
	layout, err = stack.ParseLayout(c.Input.Layout)
	return layout, err == nil, err
}

// Estimator returns the configured calibration estimator
func (c *Config) Estimator() (bleedthrough.Estimator, error) {
	return bleedthrough.ParseEstimator(c.Calibration.Estimator)
}

// Validate checks the values that can be checked without reading any image
func (c *Config) Validate() error {
	if len(c.Input.Files) == 0 {
		return fmt.Errorf("input.files is empty")
	}
	if c.Input.Times < 1 {
		return fmt.Errorf("input.times must be at least 1, got %d", c.Input.Times)
	}
	if len(c.Input.Files)%c.Input.Times != 0 {
		return fmt.Errorf("%d input files cannot be split into %d time points", len(c.Input.Files), c.Input.Times)
	}
	layout, pinned, err := c.Layout()
	if err != nil {
		return err
	}
	if pinned && layout == stack.SpatialOnly && c.Input.Times > 1 {
		return fmt.Errorf("layout CYX cannot hold %d time points", c.Input.Times)
	}
	if _, err := c.Estimator(); err != nil {
		return err
	}
	for _, group := range [][]models.ROIShape{c.Background.ROIs, c.Cells.ROIs} {
		for _, r := range group {
			if _, err := models.ParseShapeKind(r.Kind); err != nil {
				return fmt.Errorf("roi %q: %w", r.Name, err)
			}
		}
	}
	if c.FRET.Ratio && c.FRET.DonorIndex == c.FRET.AcceptorIndex {
		return fmt.Errorf("fret donor and acceptor are both channel %d", c.FRET.DonorIndex)
	}
	if c.FRET.Eapp && !c.FRET.Ratio {
		return fmt.Errorf("fret.eapp needs fret.ratio")
	}
	return nil
}

// Prefix is the input file name without directory and extension, used to name
// the session output directory
func (c *Config) Prefix() string {
	if len(c.Input.Files) == 0 {
		return "session"
	}
	base := filepath.Base(c.Input.Files[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}
