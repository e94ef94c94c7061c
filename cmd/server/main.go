package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/ocr-api/internal/config"
	"github.com/Brownie44l1/ocr-api/internal/handlers"
	"github.com/Brownie44l1/ocr-api/internal/logger"
	"github.com/Brownie44l1/ocr-api/internal/model"
	"github.com/Brownie44l1/ocr-api/internal/ocr"
)

const shutdownTimeout = 30 * time.Second

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	configPath := os.Getenv("OCR_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()
	sugar := zl.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("server stopped", "error", err)
		zl.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	engine, closeEngine, err := newEngine(cfg, log)
	if err != nil {
		return err
	}

	handler := handlers.NewHandler(engine, cfg.Server.MaxUploadBytes, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(handler.Health))
	mux.HandleFunc("/ocr", enableCORS(handler.OCR))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", srv.Addr, "engine", engine.Name())
		log.Info("endpoints: GET /health, POST /ocr (multipart field \"file\")")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		closeEngine()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// generation has no timeout, so a request still running at the deadline is abandoned
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return stopServer(shutdownCtx, srv, closeEngine, log)
}

// stopServer drains srv and then releases the engine. When draining times out a
// request may still be running the model, so the engine is left for process exit.
func stopServer(ctx context.Context, srv *http.Server, closeEngine func(), log *zap.SugaredLogger) error {
	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warnw("shutdown timed out, leaving model loaded", "error", err)
		return err
	}
	closeEngine()
	return err
}

// newEngine builds the configured recognizer. The returned func releases the model.
func newEngine(cfg *config.Config, log *zap.SugaredLogger) (ocr.Engine, func(), error) {
	switch cfg.Engine {
	case config.EngineTesseract:
		engine, err := ocr.NewTesseractEngine(cfg.Tesseract.Languages)
		if err != nil {
			return nil, nil, err
		}
		return engine, func() {}, nil
	case config.EngineTrOCR:
		log.Infow("loading model", "dir", cfg.Model.Dir, "device", cfg.Model.Device)
		modelServer, err := model.NewServer(model.Options{
			Dir:               cfg.Model.Dir,
			Device:            cfg.Model.Device,
			SharedLibraryPath: cfg.Model.OnnxRuntimeLibrary,
			MaxLength:         cfg.Model.MaxLength,
			Logger:            log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize model server: %w", err)
		}
		return ocr.NewInvoker(modelServer, *cfg.Model.SerializeGenerate), modelServer.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
