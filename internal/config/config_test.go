package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, EngineTrOCR, cfg.Engine)
	assert.Equal(t, "0.0.0.0:5001", cfg.Addr())
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, DeviceAuto, cfg.Model.Device)
	require.NotNil(t, cfg.Model.SerializeGenerate)
	assert.True(t, *cfg.Model.SerializeGenerate)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
engine: tesseract
server:
  host: 127.0.0.1
  port: 9000
model:
  dir: /srv/trocr
  device: CPU
  max_length: 64
  serialize_generate: false
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EngineTesseract, cfg.Engine)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, "/srv/trocr", cfg.Model.Dir)
	assert.Equal(t, DeviceCPU, cfg.Model.Device)
	assert.Equal(t, 64, cfg.Model.MaxLength)
	assert.False(t, *cfg.Model.SerializeGenerate)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"eng"}, cfg.Tesseract.Languages)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":       "8080",
		"MODEL_DIR":  "/models/x",
		"OCR_DEVICE": "cuda",
		"OCR_ENGINE": "tesseract",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/models/x", cfg.Model.Dir)
	assert.Equal(t, DeviceCUDA, cfg.Model.Device)
	assert.Equal(t, EngineTesseract, cfg.Engine)
}

func TestApplyEnvBadPort(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "PORT" {
			return "eighty", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"engine", func(c *Config) { c.Engine = "gpt" }},
		{"device", func(c *Config) { c.Model.Device = "tpu" }},
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"upload", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
		{"max length", func(c *Config) { c.Model.MaxLength = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
