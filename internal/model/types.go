package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const defaultMaxLength = 20

// GenerationConfig drives greedy decoding.
type GenerationConfig struct {
	DecoderStartTokenID int64
	EOSTokenID          int64
	PadTokenID          int64
	MaxLength           int
	VocabSize           int
}

// ImageConfig describes how images are turned into pixel_values.
type ImageConfig struct {
	Width         int
	Height        int
	Mean          [3]float32
	Std           [3]float32
	RescaleFactor float32
	DoNormalize   bool
}

type rawModelConfig struct {
	DecoderStartTokenID *int64 `json:"decoder_start_token_id"`
	EOSTokenID          any    `json:"eos_token_id"`
	PadTokenID          *int64 `json:"pad_token_id"`
	MaxLength           int    `json:"max_length"`
	Decoder             *struct {
		VocabSize           int    `json:"vocab_size"`
		DecoderStartTokenID *int64 `json:"decoder_start_token_id"`
		EOSTokenID          any    `json:"eos_token_id"`
		PadTokenID          *int64 `json:"pad_token_id"`
	} `json:"decoder"`
}

type rawGenerationConfig struct {
	DecoderStartTokenID *int64 `json:"decoder_start_token_id"`
	EOSTokenID          any    `json:"eos_token_id"`
	PadTokenID          *int64 `json:"pad_token_id"`
	MaxLength           int    `json:"max_length"`
}

type rawPreprocessorConfig struct {
	ImageMean     []float32 `json:"image_mean"`
	ImageStd      []float32 `json:"image_std"`
	DoNormalize   *bool     `json:"do_normalize"`
	RescaleFactor float32   `json:"rescale_factor"`
	Size          any       `json:"size"`
}

// loadGenerationConfig reads config.json and, if present, generation_config.json,
// which takes precedence.
func loadGenerationConfig(dir string) (*GenerationConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}
	var raw rawModelConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	// VisionEncoderDecoder defaults used by TrOCR checkpoints
	cfg := &GenerationConfig{
		DecoderStartTokenID: 2,
		EOSTokenID:          2,
		PadTokenID:          1,
		MaxLength:           defaultMaxLength,
	}
	if d := raw.Decoder; d != nil {
		cfg.VocabSize = d.VocabSize
		setInt64(&cfg.DecoderStartTokenID, d.DecoderStartTokenID)
		setInt64(&cfg.PadTokenID, d.PadTokenID)
		setTokenID(&cfg.EOSTokenID, d.EOSTokenID)
	}
	setInt64(&cfg.DecoderStartTokenID, raw.DecoderStartTokenID)
	setInt64(&cfg.PadTokenID, raw.PadTokenID)
	setTokenID(&cfg.EOSTokenID, raw.EOSTokenID)
	if raw.MaxLength > 0 {
		cfg.MaxLength = raw.MaxLength
	}

	data, err = os.ReadFile(filepath.Join(dir, "generation_config.json"))
	if err == nil {
		var gen rawGenerationConfig
		if err := json.Unmarshal(data, &gen); err != nil {
			return nil, fmt.Errorf("failed to parse generation config: %w", err)
		}
		setInt64(&cfg.DecoderStartTokenID, gen.DecoderStartTokenID)
		setInt64(&cfg.PadTokenID, gen.PadTokenID)
		setTokenID(&cfg.EOSTokenID, gen.EOSTokenID)
		if gen.MaxLength > 0 {
			cfg.MaxLength = gen.MaxLength
		}
	}

	return cfg, nil
}

func loadImageConfig(dir string) (*ImageConfig, error) {
	cfg := &ImageConfig{
		Width:         384,
		Height:        384,
		Mean:          [3]float32{0.5, 0.5, 0.5},
		Std:           [3]float32{0.5, 0.5, 0.5},
		RescaleFactor: 1.0 / 255.0,
		DoNormalize:   true,
	}

	data, err := os.ReadFile(filepath.Join(dir, "preprocessor_config.json"))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preprocessor config: %w", err)
	}
	var raw rawPreprocessorConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse preprocessor config: %w", err)
	}

	if len(raw.ImageMean) == 3 {
		copy(cfg.Mean[:], raw.ImageMean)
	}
	if len(raw.ImageStd) == 3 {
		copy(cfg.Std[:], raw.ImageStd)
	}
	if raw.RescaleFactor > 0 {
		cfg.RescaleFactor = raw.RescaleFactor
	}
	if raw.DoNormalize != nil {
		cfg.DoNormalize = *raw.DoNormalize
	}
	if w, h := extractImageSize(raw.Size); w > 0 && h > 0 {
		cfg.Width, cfg.Height = w, h
	}
	for _, s := range cfg.Std {
		if s == 0 {
			return nil, fmt.Errorf("preprocessor config has zero image_std")
		}
	}
	return cfg, nil
}

// extractImageSize accepts 384, {"height": 384, "width": 384} or {"shortest_edge": 384}.
func extractImageSize(v any) (width, height int) {
	switch val := v.(type) {
	case float64:
		return int(val), int(val)
	case map[string]any:
		h, hok := val["height"].(float64)
		w, wok := val["width"].(float64)
		if hok && wok {
			return int(w), int(h)
		}
		if se, ok := val["shortest_edge"].(float64); ok {
			return int(se), int(se)
		}
	}
	return 0, 0
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

// setTokenID handles eos_token_id given as a number or a list of numbers.
func setTokenID(dst *int64, v any) {
	switch val := v.(type) {
	case float64:
		*dst = int64(val)
	case []any:
		if len(val) > 0 {
			if f, ok := val[0].(float64); ok {
				*dst = int64(f)
			}
		}
	}
}
