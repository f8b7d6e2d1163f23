package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors sentryd.yaml's on-disk shape. Every section is a
// pointer so mergo can tell "absent" from "present but zero".
type yamlConfig struct {
	Bus         *BusConfig         `yaml:"bus"`
	Pipeline    *PipelineConfig    `yaml:"pipeline"`
	JobRegistry *JobRegistryConfig `yaml:"job_registry"`
	Transport   *TransportConfig   `yaml:"transport"`
}

// Initialize loads sentryd.yaml from configDir (if present), merges it
// over the built-in defaults, validates the result, and returns a ready
// Config. A missing file is not an error: Initialize returns the
// defaults unmodified.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"bus_buffer_size", cfg.Bus.BufferSize,
		"pipeline_max_stage_concurrency", cfg.Pipeline.MaxStageConcurrency,
		"job_buffer_size", cfg.JobRegistry.JobBufferSize,
		"transport_addr", cfg.Transport.Addr)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	cfg := Default()
	cfg.configDir = configDir

	path := filepath.Join(configDir, "sentryd.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var user yamlConfig
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if user.Bus != nil {
		if err := mergo.Merge(&cfg.Bus, user.Bus, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
	}
	if user.Pipeline != nil {
		if err := mergo.Merge(&cfg.Pipeline, user.Pipeline, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
	}
	if user.JobRegistry != nil {
		if err := mergo.Merge(&cfg.JobRegistry, user.JobRegistry, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
	}
	if user.Transport != nil {
		if err := mergo.Merge(&cfg.Transport, user.Transport, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
	}

	return cfg, nil
}
