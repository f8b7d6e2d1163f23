// Package config loads sentryd.yaml, the process-wide tunables for the
// orchestration core: per-job bus buffer sizes, pipeline concurrency
// limits, and the demo transport's listen address. It follows the
// teacher's load/merge-defaults/validate pipeline (see loader.go),
// trimmed to the knobs this core actually exposes — no agent, chain,
// MCP, or LLM provider configuration, since none of that exists here.
package config

// Config is the fully resolved, validated configuration returned by
// Initialize.
type Config struct {
	configDir string

	Bus         BusConfig
	Pipeline    PipelineConfig
	JobRegistry JobRegistryConfig
	Transport   TransportConfig
}

// BusConfig tunes pkg/bus.Bus, the per-job event bus.
type BusConfig struct {
	// BufferSize is the per-subscriber channel capacity passed to bus.New
	// for every job's own event bus, forwarded through Registry.AddJob.
	BufferSize int `yaml:"buffer_size,omitempty" validate:"omitempty,min=1"`
}

// PipelineConfig tunes pkg/pipeline.Pipeline.
type PipelineConfig struct {
	// MaxStageConcurrency is a cap on concurrent task execution within a
	// single ListStage, in the form Pipeline.SetConcurrencyLimit takes. Zero
	// means unlimited. It is loaded and validated here only; no code in this
	// repository passes it to a Pipeline.
	MaxStageConcurrency int `yaml:"max_stage_concurrency,omitempty" validate:"omitempty,min=1"`
}

// JobRegistryConfig tunes pkg/job.Registry.
type JobRegistryConfig struct {
	// JobBufferSize is the per-subscriber buffer size of the registry's own
	// NewJob(Description) announcement feed — independent of any
	// individual job's own bus, which BusConfig.BufferSize tunes instead.
	JobBufferSize int `yaml:"job_buffer_size,omitempty" validate:"omitempty,min=1"`
}

// TransportConfig tunes the demo HTTP/SSE layer in pkg/transport.
type TransportConfig struct {
	// Addr is the address gin's HTTP server listens on, e.g. ":8080".
	Addr string `yaml:"addr,omitempty"`
}

// ConfigDir returns the directory Config was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Default returns the built-in configuration used when no sentryd.yaml
// is present or a field is left unset. It is never merged with an empty
// struct implicitly — load() applies it field by field so a partially
// specified user file doesn't silently erase a default.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			BufferSize: 100,
		},
		Pipeline: PipelineConfig{
			MaxStageConcurrency: 0,
		},
		JobRegistry: JobRegistryConfig{
			JobBufferSize: 100,
		},
		Transport: TransportConfig{
			Addr: ":8080",
		},
	}
}
