package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile is a per-study settings bundle: the column bindings, coordinate
// system, and grid density one telemetry deployment uses. Profiles let a
// shared config.yaml stay generic while each study ships its own file.
type Profile struct {
	Name     string         `yaml:"name"`
	Input    InputConfig    `yaml:"input"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// LoadProfile reads a study profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read profile %s", path)
	}

	// The YAML has a top-level "study" key
	var wrapper struct {
		Study Profile `yaml:"study"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "config: parse profile")
	}

	return &wrapper.Study, nil
}

// Apply merges the profile's set fields over cfg. Zero values in the
// profile leave the underlying config untouched.
func (p *Profile) Apply(cfg *Config) {
	if p.Input.Format != "" {
		cfg.Input.Format = p.Input.Format
	}
	if p.Input.IDColumn != "" {
		cfg.Input.IDColumn = p.Input.IDColumn
	}
	if p.Input.TimeColumn != "" {
		cfg.Input.TimeColumn = p.Input.TimeColumn
	}
	if p.Input.XColumn != "" {
		cfg.Input.XColumn = p.Input.XColumn
	}
	if p.Input.YColumn != "" {
		cfg.Input.YColumn = p.Input.YColumn
	}
	if p.Input.TimeFormat != "" {
		cfg.Input.TimeFormat = p.Input.TimeFormat
	}
	if p.Input.Encoding != "" {
		cfg.Input.Encoding = p.Input.Encoding
	}
	if p.Input.CRS != "" {
		cfg.Input.CRS = p.Input.CRS
	}
	if p.Analysis.GridPoints > 0 {
		cfg.Analysis.GridPoints = p.Analysis.GridPoints
	}
	if p.Analysis.Workers > 0 {
		cfg.Analysis.Workers = p.Analysis.Workers
	}
}
