package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/Brownie44l1/ocr-api/internal/ocr"
)

var (
	encoderFiles = []string{"encoder_model.onnx", "encoder.onnx", "vision_encoder.onnx"}
	decoderFiles = []string{"decoder_model.onnx", "decoder.onnx"}
)

type Options struct {
	Dir               string
	Device            string
	SharedLibraryPath string
	// MaxLength overrides the model's max_length when positive.
	MaxLength int
	Logger    *zap.SugaredLogger
}

// Server is the loaded TrOCR model: vision encoder, text decoder, preprocessor
// settings and tokenizer. It is read-only once NewServer returns.
type Server struct {
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession

	Generation GenerationConfig
	Image      ImageConfig
	tokenizer  *Tokenizer
	device     string

	decoderIDsName    string
	decoderHiddenName string
	decoderMaskName   string
}

var _ ocr.Model = (*Server)(nil)

func NewServer(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	gen, err := loadGenerationConfig(opts.Dir)
	if err != nil {
		return nil, err
	}
	if opts.MaxLength > 0 {
		gen.MaxLength = opts.MaxLength
	}
	img, err := loadImageConfig(opts.Dir)
	if err != nil {
		return nil, err
	}
	tok, err := LoadTokenizer(opts.Dir)
	if err != nil {
		return nil, err
	}

	encoderPath := findONNXFile(opts.Dir, encoderFiles)
	if encoderPath == "" {
		return nil, fmt.Errorf("encoder ONNX file not found in %s", opts.Dir)
	}
	decoderPath := findONNXFile(opts.Dir, decoderFiles)
	if decoderPath == "" {
		return nil, fmt.Errorf("decoder ONNX file not found in %s", opts.Dir)
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	s := &Server{
		Generation: *gen,
		Image:      *img,
		tokenizer:  tok,
	}
	if err := s.openSessions(encoderPath, decoderPath, opts.Device, log); err != nil {
		s.Close()
		return nil, err
	}

	log.Infow("model loaded",
		"dir", opts.Dir,
		"encoder", encoderPath,
		"decoder", decoderPath,
		"device", s.device,
		"image_size", fmt.Sprintf("%dx%d", img.Width, img.Height),
		"max_length", gen.MaxLength)

	return s, nil
}

func (s *Server) openSessions(encoderPath, decoderPath, device string, log *zap.SugaredLogger) error {
	encIn, encOut, err := ort.GetInputOutputInfo(encoderPath)
	if err != nil {
		return fmt.Errorf("failed to inspect encoder: %w", err)
	}
	if len(encIn) == 0 || len(encOut) == 0 {
		return fmt.Errorf("encoder %s has no inputs or outputs", encoderPath)
	}
	decIn, decOut, err := ort.GetInputOutputInfo(decoderPath)
	if err != nil {
		return fmt.Errorf("failed to inspect decoder: %w", err)
	}
	if len(decOut) == 0 {
		return fmt.Errorf("decoder %s has no outputs", decoderPath)
	}
	if err := s.bindDecoderInputs(decIn); err != nil {
		return err
	}

	open := func(resolved string, options *ort.SessionOptions) error {
		enc, err := ort.NewDynamicAdvancedSession(encoderPath,
			[]string{encIn[0].Name}, []string{encOut[0].Name}, options)
		if err != nil {
			return fmt.Errorf("failed to create encoder session: %w", err)
		}
		dec, err := ort.NewDynamicAdvancedSession(decoderPath,
			s.decoderInputNames(), []string{decOut[0].Name}, options)
		if err != nil {
			enc.Destroy()
			return fmt.Errorf("failed to create decoder session: %w", err)
		}
		s.encoder, s.decoder, s.device = enc, dec, resolved
		return nil
	}

	if device == "cuda" || device == "auto" {
		options, err := cudaSessionOptions()
		if err == nil {
			err = open("cuda", options)
			options.Destroy()
		}
		if err == nil {
			return nil
		}
		if device == "cuda" {
			return fmt.Errorf("cuda requested: %w", err)
		}
		log.Infow("cuda unavailable, falling back to cpu", "reason", err.Error())
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	return open("cpu", options)
}

func cudaSessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, err
	}
	defer cuda.Destroy()
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

// bindDecoderInputs maps the exported decoder's input names. Decoders exported with
// past key values are rejected since every step re-runs the full prefix.
func (s *Server) bindDecoderInputs(inputs []ort.InputOutputInfo) error {
	for _, in := range inputs {
		switch {
		case in.Name == "input_ids" || in.Name == "decoder_input_ids":
			s.decoderIDsName = in.Name
		case in.Name == "encoder_hidden_states" || in.Name == "encoder_outputs":
			s.decoderHiddenName = in.Name
		case in.Name == "encoder_attention_mask":
			s.decoderMaskName = in.Name
		case strings.HasPrefix(in.Name, "past_key_values") || in.Name == "use_cache_branch":
			return fmt.Errorf("decoder input %q: export the decoder without past key values", in.Name)
		default:
			return fmt.Errorf("unsupported decoder input %q", in.Name)
		}
	}
	if s.decoderIDsName == "" || s.decoderHiddenName == "" {
		return errors.New("decoder must take input_ids and encoder_hidden_states")
	}
	return nil
}

func (s *Server) decoderInputNames() []string {
	names := []string{s.decoderIDsName, s.decoderHiddenName}
	if s.decoderMaskName != "" {
		names = append(names, s.decoderMaskName)
	}
	return names
}

func (s *Server) Device() string { return s.device }

func (s *Server) Preprocess(img *ocr.NormalizedImage) (*ocr.FeatureTensor, error) {
	return preprocessImage(&s.Image, img, s.device)
}

// Generate encodes the image once and greedily decodes a single candidate.
// All tensors are allocated per call.
func (s *Server) Generate(features *ocr.FeatureTensor) ([]ocr.TokenSequence, error) {
	pixels, err := ort.NewTensor(ort.NewShape(features.Shape...), features.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel tensor: %w", err)
	}
	defer pixels.Destroy()

	encOut := []ort.ArbitraryTensor{nil}
	if err := s.encoder.Run([]ort.ArbitraryTensor{pixels}, encOut); err != nil {
		return nil, fmt.Errorf("encoder failed: %w", err)
	}
	if encOut[0] == nil {
		return nil, errors.New("encoder produced no output")
	}
	defer encOut[0].Destroy()

	hidden, ok := encOut[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("encoder output is not float32")
	}
	if len(hidden.GetShape()) != 3 {
		return nil, fmt.Errorf("unexpected encoder output shape %v", hidden.GetShape())
	}

	var mask *ort.Tensor[int64]
	if s.decoderMaskName != "" {
		hs := hidden.GetShape()
		ones := make([]int64, hs[0]*hs[1])
		for i := range ones {
			ones[i] = 1
		}
		mask, err = ort.NewTensor(ort.NewShape(hs[0], hs[1]), ones)
		if err != nil {
			return nil, fmt.Errorf("failed to create attention mask: %w", err)
		}
		defer mask.Destroy()
	}

	ids, err := greedyDecode(&s.Generation, func(ids []int64) ([]float32, error) {
		return s.decoderStep(ids, hidden, mask)
	})
	if err != nil {
		return nil, err
	}
	return []ocr.TokenSequence{ids}, nil
}

func (s *Server) decoderStep(ids []int64, hidden *ort.Tensor[float32], mask *ort.Tensor[int64]) ([]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer input.Destroy()

	inputs := []ort.ArbitraryTensor{input, hidden}
	if mask != nil {
		inputs = append(inputs, mask)
	}
	outputs := []ort.ArbitraryTensor{nil}
	if err := s.decoder.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("decoder failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, errors.New("decoder produced no output")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("logits are not float32")
	}
	last, err := lastPosition(logits.GetData(), logits.GetShape())
	if err != nil {
		return nil, err
	}
	// the tensor is destroyed on return
	out := make([]float32, len(last))
	copy(out, last)
	return out, nil
}

func (s *Server) Decode(sequences []ocr.TokenSequence) ([]string, error) {
	seqs := make([][]int64, len(sequences))
	for i, seq := range sequences {
		seqs[i] = seq
	}
	return s.tokenizer.BatchDecode(seqs)
}

func (s *Server) Close() {
	if s.encoder != nil {
		s.encoder.Destroy()
	}
	if s.decoder != nil {
		s.decoder.Destroy()
	}
	ort.DestroyEnvironment()
}

// findONNXFile returns the first candidate present in dir or dir/onnx.
func findONNXFile(dir string, candidates []string) string {
	for _, sub := range []string{"", "onnx"} {
		for _, name := range candidates {
			p := filepath.Join(dir, sub, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
