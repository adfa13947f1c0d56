package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vmtest/pkg/logging"
)

// Load reads and validates a run definition.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read run config %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse run config %s: %w", path, err)
	}

	applyDefaults(&config)
	if err := validate(config); err != nil {
		return Config{}, fmt.Errorf("invalid run config %s: %w", path, err)
	}

	logging.Info("Config", "loaded run config from %s: %d targets, %d catalog paths", path, len(config.Targets), len(config.Catalog.Paths))
	return config, nil
}

func applyDefaults(config *Config) {
	for i := range config.Targets {
		if config.Targets[i].Port == 0 {
			config.Targets[i].Port = 22
		}
	}
	if config.Run.CaseTimeout == 0 {
		config.Run.CaseTimeout = DefaultCaseTimeout
	}
}

func validate(config Config) error {
	if len(config.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	for i, target := range config.Targets {
		if target.Host == "" {
			return fmt.Errorf("target %d: host is required", i+1)
		}
		if target.Username == "" {
			return fmt.Errorf("target %s: username is required", target.Host)
		}
		if target.Password == "" && target.PrivateKeyPath == "" {
			return fmt.Errorf("target %s: a password or private key is required", target.Host)
		}
	}
	if len(config.Catalog.Paths) == 0 {
		return fmt.Errorf("at least one catalog path is required")
	}
	for _, exp := range config.Expansions {
		if exp.Axis == "" {
			return fmt.Errorf("expansion axis is required")
		}
	}
	return nil
}
