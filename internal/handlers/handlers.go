package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/ocr-api/internal/ocr"
)

const (
	FileField       = "file"
	RequestIDHeader = "X-Request-ID"

	msgNoFilePart     = "No file part"
	msgNoSelectedFile = "No selected file"
	msgFileTooLarge   = "File too large"
	msgMethodNotAllow = "Method not allowed"

	maxRequestIDLen = 128
)

type OCRResponse struct {
	Text string `json:"text"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Engine string `json:"engine"`
	Device string `json:"device,omitempty"`
}

type Handler struct {
	engine         ocr.Engine
	maxUploadBytes int64
	log            *zap.SugaredLogger
}

func NewHandler(engine ocr.Engine, maxUploadBytes int64, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		engine:         engine,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Engine: h.engine.Name()}
	if d, ok := h.engine.(interface{ Device() string }); ok {
		resp.Device = d.Device()
	}
	writeJSON(w, http.StatusOK, resp)
}

// OCR accepts a multipart upload under "file" and responds with the recognized text.
func (h *Handler) OCR(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set(RequestIDHeader, reqID)
	log := h.log.With("request_id", reqID)

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: msgMethodNotAllow})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	data, header, err := h.uploadedFile(r)
	if err != nil {
		status := http.StatusBadRequest
		if isTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
		}
		log.Infow("rejected upload", "status", status, "error", err.Error())
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}
	log.Infow("received file", "filename", header.Filename, "size", header.Size)

	text, err := h.recognize(r.Context(), bytes.NewReader(data))
	if err != nil {
		log.Errorw("ocr failed", "kind", ocr.KindOf(err).String(), "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	log.Infow("extracted text", "text", text)
	writeJSON(w, http.StatusOK, OCRResponse{Text: text})
}

type uploadHeader struct {
	Filename string
	Size     int64
}

// uploadedFile reads the first "file" part that carries a filename. Plain form
// fields under the same name are not uploads.
func (h *Handler) uploadedFile(r *http.Request) ([]byte, *uploadHeader, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, ocr.MissingInput(msgNoFilePart)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil, ocr.MissingInput(msgNoFilePart)
		}
		if err != nil {
			if isTooLarge(err) {
				return nil, nil, &tooLargeError{err: err}
			}
			return nil, nil, ocr.MissingInput(msgNoFilePart)
		}
		if part.FormName() != FileField {
			part.Close()
			continue
		}
		filename, ok := partFilename(part)
		if !ok {
			part.Close()
			continue
		}
		if filename == "" {
			part.Close()
			return nil, nil, ocr.MissingInput(msgNoSelectedFile)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			if isTooLarge(err) {
				return nil, nil, &tooLargeError{err: err}
			}
			return nil, nil, ocr.MissingInput(fmt.Sprintf("read upload: %v", err))
		}
		return data, &uploadHeader{Filename: filename, Size: int64(len(data))}, nil
	}
}

// partFilename reports the filename parameter and whether it was present at all.
// Part.FileName cannot tell filename="" apart from a missing parameter.
func partFilename(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	name, ok := params["filename"]
	if !ok {
		return "", false
	}
	return name, true
}

// recognize decodes and runs the engine. Panics from the engine become errors.
func (h *Handler) recognize(ctx context.Context, file io.Reader) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ocr.Error{Kind: ocr.KindInference, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	img, _, err := ocr.DecodeImage(file)
	if err != nil {
		return "", err
	}
	return h.engine.Recognize(ctx, img)
}

type tooLargeError struct{ err error }

func (e *tooLargeError) Error() string { return msgFileTooLarge }
func (e *tooLargeError) Unwrap() error { return e.err }

func isTooLarge(err error) bool {
	var tl *tooLargeError
	if errors.As(err, &tl) {
		return true
	}
	var mb *http.MaxBytesError
	if errors.As(err, &mb) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" && len(id) <= maxRequestIDLen {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
