package api

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ConfigFileName is looked up in the working directory when no config path
// is given.
const ConfigFileName = "cdmctl.hcl"

// Config holds project settings. Every attribute is optional:
//
//	log_level       = "debug"
//	log_format      = "json"
//	target_version  = "1.14.0"
//	target_prefix   = "http://www.esa.int/egscc/cdm/"
//	template        = "root_route_sap"
//	mapping_ci_name = "mappings"
type Config struct {
	LogLevel      string `hcl:"log_level,optional"`
	LogFormat     string `hcl:"log_format,optional"`
	TargetVersion string `hcl:"target_version,optional"`
	// TargetPrefix empty means the target version's canonical prefix.
	TargetPrefix  string `hcl:"target_prefix,optional"`
	Template      string `hcl:"template,optional"`
	MappingCIName string `hcl:"mapping_ci_name,optional"`
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.TargetVersion == "" {
		c.TargetVersion = "1.14.0"
	}
	if c.Template == "" {
		c.Template = "root"
	}
	if c.MappingCIName == "" {
		c.MappingCIName = "mappings"
	}
}

// LoadConfig decodes the HCL file at path. A missing file yields the
// defaults unless required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, diags)
	}
	var c Config
	if diags := gohcl.DecodeBody(f.Body, nil, &c); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, diags)
	}
	c.applyDefaults()
	return &c, nil
}
