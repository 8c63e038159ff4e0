// Package config holds depthtool settings loaded from a JSON file.
package config

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vearutop/depthmap"
)

// Config holds the depthtool configuration.
type Config struct {
	Depth        DepthConfig        `json:"depth"`
	Segmentation SegmentationConfig `json:"segmentation"`
	// Workers limits concurrent files, 0 means GOMAXPROCS.
	Workers int `json:"workers"`
}

// DepthConfig holds depth rendering defaults.
type DepthConfig struct {
	Bits     int      `json:"bits"`
	Encoding string   `json:"encoding"`
	SavePFM  bool     `json:"save_pfm"`
	FixedMin *float64 `json:"fixed_min,omitempty"`
	FixedMax *float64 `json:"fixed_max,omitempty"`
	// Fixed uses one global range for all frames of a batch.
	Fixed bool `json:"fixed"`
}

// SegmentationConfig holds segmentation output defaults.
type SegmentationConfig struct {
	Alpha          float64  `json:"alpha"`
	Mask           *int     `json:"mask,omitempty"`
	MaskBackground [3]uint8 `json:"mask_background"`
	Threshold      bool     `json:"threshold"`
	Blur           int      `json:"blur"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Depth: DepthConfig{
			Bits:     1,
			Encoding: "linear",
		},
		Segmentation: SegmentationConfig{
			Alpha: depthmap.DefaultSegmentAlpha,
		},
	}
}

// LoadFromFile reads a JSON file on top of the defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(filename))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return errors.Wrap(os.WriteFile(filename, data, 0o644), "failed to write config file")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Depth.Bits != 1 && c.Depth.Bits != 2 {
		return errors.Errorf("depth.bits must be 1 or 2, got %d", c.Depth.Bits)
	}
	if _, err := depthmap.ParseEncoding(c.Depth.Encoding); err != nil {
		return errors.Wrap(err, "depth.encoding")
	}
	if c.Depth.FixedMin != nil && c.Depth.FixedMax != nil && *c.Depth.FixedMin >= *c.Depth.FixedMax {
		return errors.New("depth.fixed_min must be below depth.fixed_max")
	}
	if c.Segmentation.Alpha < 0 || c.Segmentation.Alpha > 1 {
		return errors.New("segmentation.alpha must be between 0 and 1")
	}
	if c.Segmentation.Blur < 0 {
		return errors.New("segmentation.blur must not be negative")
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	return nil
}

// DepthOptions converts the depth section into encoder options.
func (c *Config) DepthOptions() (depthmap.DepthOptions, error) {
	enc, err := depthmap.ParseEncoding(c.Depth.Encoding)
	if err != nil {
		return depthmap.DepthOptions{}, err
	}
	opt := depthmap.DefaultDepthOptions()
	opt.Bits = c.Depth.Bits
	opt.Encoding = enc
	opt.SavePFM = c.Depth.SavePFM
	opt.FixedMin = valueOrInf(c.Depth.FixedMin)
	opt.FixedMax = valueOrInf(c.Depth.FixedMax)
	return opt, nil
}

func valueOrInf(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}
