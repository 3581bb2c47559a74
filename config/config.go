// Package config loads scanfuse configuration files.
//
// Files are JSON5 (comments, trailing commas and unquoted keys are allowed) and may reference
// environment variables as ${VAR}. Keys that are absent keep their defaults.
package config

import (
	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.viam.com/utils"

	"go.viam.com/scanfusion/fusion"
	"go.viam.com/scanfusion/logging"
)

// Output formats a finished scan can be saved in.
const (
	FormatPLY = "ply"
	FormatLAS = "las"
	FormatPCD = "pcd"
)

// SupportedFormats lists every valid output format.
var SupportedFormats = []string{FormatPLY, FormatLAS, FormatPCD}

// Config is the top level scanfuse configuration.
type Config struct {
	Fusion   fusion.Config `json:"fusion"`
	Output   Output        `json:"output"`
	LogLevel string        `json:"log_level"`
}

// Output controls where and how finished scans are saved.
type Output struct {
	Dir     string   `json:"dir"`
	Formats []string `json:"formats"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Fusion: fusion.DefaultConfig(),
		Output: Output{
			Dir:     "scans",
			Formats: []string{FormatPLY},
		},
		LogLevel: "info",
	}
}

// Read reads a config from the given file.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromBytes(buf)
}

// FromBytes parses a config from JSON5 text, filling absent keys with defaults.
func FromBytes(buf []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := json5.Unmarshal(buf, &raw); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}

	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		ZeroFields:  true,
		Result:      cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "cannot decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if err := cfg.Fusion.Validate("fusion"); err != nil {
		return err
	}
	if err := cfg.Output.Validate("output"); err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
			return utils.NewConfigValidationError("log_level", err)
		}
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (out *Output) Validate(path string) error {
	if out.Dir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "dir")
	}
	if len(out.Formats) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "formats")
	}
	for _, format := range out.Formats {
		if !lo.Contains(SupportedFormats, format) {
			return utils.NewConfigValidationError(path,
				errors.Errorf("unsupported format %q, expected one of %v", format, SupportedFormats))
		}
	}
	if dups := lo.FindDuplicates(out.Formats); len(dups) > 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("duplicate formats %v", dups))
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (cfg *Config) Level() logging.Level {
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}
