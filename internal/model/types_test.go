package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGenerationConfig(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "config.json"), map[string]any{
		"decoder_start_token_id": 2,
		"pad_token_id":           1,
		"eos_token_id":           []int{2},
		"decoder":                map[string]any{"vocab_size": 50265, "eos_token_id": 7},
	})

	cfg, err := loadGenerationConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cfg.DecoderStartTokenID)
	assert.Equal(t, int64(2), cfg.EOSTokenID)
	assert.Equal(t, int64(1), cfg.PadTokenID)
	assert.Equal(t, 50265, cfg.VocabSize)
	assert.Equal(t, defaultMaxLength, cfg.MaxLength)
}

func TestLoadGenerationConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "config.json"), map[string]any{"max_length": 32})
	writeJSON(t, filepath.Join(dir, "generation_config.json"), map[string]any{
		"max_length":             64,
		"decoder_start_token_id": 0,
	})

	cfg, err := loadGenerationConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MaxLength)
	assert.Equal(t, int64(0), cfg.DecoderStartTokenID)
	assert.Equal(t, int64(2), cfg.EOSTokenID)
}

func TestLoadGenerationConfigMissing(t *testing.T) {
	_, err := loadGenerationConfig(t.TempDir())
	assert.Error(t, err)
}

func TestLoadImageConfigDefaults(t *testing.T) {
	cfg, err := loadImageConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Width)
	assert.Equal(t, 384, cfg.Height)
	assert.Equal(t, [3]float32{0.5, 0.5, 0.5}, cfg.Mean)
	assert.True(t, cfg.DoNormalize)
}

func TestLoadImageConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "preprocessor_config.json"), map[string]any{
		"image_mean":   []float32{0.485, 0.456, 0.406},
		"image_std":    []float32{0.229, 0.224, 0.225},
		"do_normalize": false,
		"size":         map[string]int{"height": 224, "width": 448},
	})

	cfg, err := loadImageConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 448, cfg.Width)
	assert.Equal(t, 224, cfg.Height)
	assert.InDelta(t, 0.485, cfg.Mean[0], 1e-6)
	assert.False(t, cfg.DoNormalize)
}

func TestLoadImageConfigRejectsZeroStd(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "preprocessor_config.json"), map[string]any{
		"image_std": []float32{0, 1, 1},
	})
	_, err := loadImageConfig(dir)
	assert.Error(t, err)
}

func TestExtractImageSize(t *testing.T) {
	w, h := extractImageSize(float64(384))
	assert.Equal(t, [2]int{384, 384}, [2]int{w, h})

	w, h = extractImageSize(map[string]any{"shortest_edge": float64(256)})
	assert.Equal(t, [2]int{256, 256}, [2]int{w, h})

	w, h = extractImageSize("big")
	assert.Equal(t, [2]int{0, 0}, [2]int{w, h})
}

func TestFindONNXFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "onnx"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "onnx", "decoder_model.onnx"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "encoder_model.onnx"), nil, 0644))

	assert.Equal(t, filepath.Join(dir, "encoder_model.onnx"), findONNXFile(dir, encoderFiles))
	assert.Equal(t, filepath.Join(dir, "onnx", "decoder_model.onnx"), findONNXFile(dir, decoderFiles))
	assert.Equal(t, "", findONNXFile(dir, []string{"nothing.onnx"}))
}
