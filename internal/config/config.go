package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EngineTrOCR     = "trocr"
	EngineTesseract = "tesseract"

	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

type Config struct {
	Engine    string          `yaml:"engine"`
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Tesseract TesseractConfig `yaml:"tesseract"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type ModelConfig struct {
	Dir                string `yaml:"dir"`
	Device             string `yaml:"device"`
	OnnxRuntimeLibrary string `yaml:"onnxruntime_library"`
	// MaxLength caps the generated sequence; 0 means use the model's own setting.
	MaxLength         int   `yaml:"max_length"`
	SerializeGenerate *bool `yaml:"serialize_generate"`
}

type TesseractConfig struct {
	Languages []string `yaml:"languages"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	serialize := true
	return &Config{
		Engine: EngineTrOCR,
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           5001,
			MaxUploadBytes: 10 << 20,
		},
		Model: ModelConfig{
			Dir:               "models/trocr-base-printed",
			Device:            DeviceAuto,
			SerializeGenerate: &serialize,
		},
		Tesseract: TesseractConfig{
			Languages: []string{"eng"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("HOST"); ok && v != "" {
		c.Server.Host = v
	}
	if v, ok := lookup("MODEL_DIR"); ok && v != "" {
		c.Model.Dir = v
	}
	if v, ok := lookup("OCR_DEVICE"); ok && v != "" {
		c.Model.Device = v
	}
	if v, ok := lookup("ONNXRUNTIME_LIB"); ok && v != "" {
		c.Model.OnnxRuntimeLibrary = v
	}
	if v, ok := lookup("OCR_ENGINE"); ok && v != "" {
		c.Engine = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	c.Engine = strings.ToLower(c.Engine)
	c.Model.Device = strings.ToLower(c.Model.Device)

	switch c.Engine {
	case EngineTrOCR, EngineTesseract:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	switch c.Model.Device {
	case DeviceAuto, DeviceCPU, DeviceCUDA:
	default:
		return fmt.Errorf("unknown device %q", c.Model.Device)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.Model.MaxLength < 0 {
		return fmt.Errorf("max_length must not be negative")
	}
	if c.Model.SerializeGenerate == nil {
		serialize := true
		c.Model.SerializeGenerate = &serialize
	}
	return nil
}

// Addr is the listening address; it is resolved once at startup.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
