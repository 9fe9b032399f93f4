package maincmd

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config holds the VM limits every subcommand applies before executing a
// module (SPEC_FULL.md §4.6 "Configuration"); it has no verifier settings.
// Precedence is flag > env > file > default: loadConfig establishes the
// file/env layers, and Cmd.config (maincmd.go) lets a flag explicitly set
// on the command line win last.
type Config struct {
	GasLimit                 uint64 `yaml:"gas_limit" env:"SMALLS_GAS_LIMIT"`
	StepLimit                uint64 `yaml:"step_limit" env:"SMALLS_STEP_LIMIT"`
	MaxGenericInstantiations int    `yaml:"max_generic_instantiations" env:"SMALLS_MAX_GENERIC_INSTANTIATIONS"`
}

// loadConfig builds a Config from, in increasing precedence: the zero value,
// an optional YAML file at path (skipped if path is empty), and environment
// variables. Flag overrides are applied afterward by the caller.
func loadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("reading environment config: %w", err)
	}

	return cfg, nil
}
