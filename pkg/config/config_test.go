package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_HasSaneBuiltins(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 100, cfg.Bus.BufferSize)
	assert.Equal(t, 0, cfg.Pipeline.MaxStageConcurrency)
	assert.Equal(t, 100, cfg.JobRegistry.JobBufferSize)
	assert.Equal(t, ":8080", cfg.Transport.Addr)
}

func TestConfigDir_ReturnsLoadedDirectory(t *testing.T) {
	cfg := Default()
	cfg.configDir = "/etc/sentryd"
	assert.Equal(t, "/etc/sentryd", cfg.ConfigDir())
}
