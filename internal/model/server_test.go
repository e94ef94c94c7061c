package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func inputInfos(names ...string) []ort.InputOutputInfo {
	infos := make([]ort.InputOutputInfo, len(names))
	for i, name := range names {
		infos[i] = ort.InputOutputInfo{Name: name}
	}
	return infos
}

func TestBindDecoderInputs(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []string
		want    []string
		wantErr string
	}{
		{
			name:   "ids and hidden states",
			inputs: []string{"input_ids", "encoder_hidden_states"},
			want:   []string{"input_ids", "encoder_hidden_states"},
		},
		{
			name:   "attention mask is fed last",
			inputs: []string{"encoder_attention_mask", "input_ids", "encoder_hidden_states"},
			want:   []string{"input_ids", "encoder_hidden_states", "encoder_attention_mask"},
		},
		{
			name:   "seq2seq export names",
			inputs: []string{"encoder_outputs", "decoder_input_ids"},
			want:   []string{"decoder_input_ids", "encoder_outputs"},
		},
		{
			name:    "past key values",
			inputs:  []string{"input_ids", "encoder_hidden_states", "past_key_values.0.decoder.key"},
			wantErr: "past key values",
		},
		{
			name:    "merged decoder cache branch",
			inputs:  []string{"input_ids", "encoder_hidden_states", "use_cache_branch"},
			wantErr: "past key values",
		},
		{
			name:    "unknown input",
			inputs:  []string{"input_ids", "encoder_hidden_states", "position_ids"},
			wantErr: `unsupported decoder input "position_ids"`,
		},
		{
			name:    "missing hidden states",
			inputs:  []string{"input_ids"},
			wantErr: "encoder_hidden_states",
		},
		{
			name:    "missing ids",
			inputs:  []string{"encoder_hidden_states", "encoder_attention_mask"},
			wantErr: "input_ids",
		},
		{
			name:    "no inputs",
			wantErr: "input_ids",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{}
			err := s.bindDecoderInputs(inputInfos(tt.inputs...))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.decoderInputNames())
		})
	}
}

func TestDecoderInputNamesWithoutMask(t *testing.T) {
	s := &Server{decoderIDsName: "input_ids", decoderHiddenName: "encoder_hidden_states"}
	assert.Len(t, s.decoderInputNames(), 2)

	s.decoderMaskName = "encoder_attention_mask"
	assert.Equal(t, "encoder_attention_mask", s.decoderInputNames()[2])
}
