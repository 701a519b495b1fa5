package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the knobs that shape the generated hardware and the tool's
// own output.
type Config struct {
	// Target names the FIRRTL circuit and the top-level module.
	Target string `mapstructure:"target"`
	// PipelineDepth is the latency, in cycles, of a loop block's pipeline.
	PipelineDepth int `mapstructure:"pipeline_depth"`
	// FIFODepth is the default capacity of the queues inserted between
	// components. Router consumers override it with their requested depth.
	FIFODepth int `mapstructure:"fifo_depth"`
	// RegisterBase is the first byte offset handed to user registers on the
	// control/status bus.
	RegisterBase int `mapstructure:"register_base"`
	// DiagFormat selects how diagnostics are printed (text|json).
	DiagFormat string `mapstructure:"diag_format"`
	// Firtool optionally points at the firtool binary used for Verilog.
	Firtool string `mapstructure:"firtool"`
}

const (
	envPrefix  = "STENCILRTL"
	configName = "stencilrtl"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Target:        "hls_target",
		PipelineDepth: 1,
		FIFODepth:     1,
		RegisterBase:  0x40,
		DiagFormat:    "text",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("target", d.Target)
	v.SetDefault("pipeline_depth", d.PipelineDepth)
	v.SetDefault("fifo_depth", d.FIFODepth)
	v.SetDefault("register_base", d.RegisterBase)
	v.SetDefault("diag_format", d.DiagFormat)
	v.SetDefault("firtool", d.Firtool)
}

// Load resolves the configuration from defaults, an optional config file,
// STENCILRTL_* environment variables and finally overrides (usually the
// command-line flags that were set explicitly). When path is empty the
// loader looks for stencilrtl.{yaml,toml,json} in the working directory and
// in $HOME/.config/stencilrtl; a missing file is not an error.
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: %w", err)
			}
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the generator cannot honour.
func (c Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("config: target must not be empty")
	}
	if c.PipelineDepth < 1 {
		return fmt.Errorf("config: pipeline_depth must be >= 1 (got %d)", c.PipelineDepth)
	}
	if c.FIFODepth < 1 {
		return fmt.Errorf("config: fifo_depth must be >= 1 (got %d)", c.FIFODepth)
	}
	if c.RegisterBase < 0x08 || c.RegisterBase%4 != 0 {
		return fmt.Errorf("config: register_base must be word aligned and past the fixed registers (got %#x)", c.RegisterBase)
	}
	switch c.DiagFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown diag_format %q", c.DiagFormat)
	}
	return nil
}
