package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GoArmGo/FaceShare/internal/config"
	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/handler"
	"github.com/GoArmGo/FaceShare/internal/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter регистрирует маршруты и middleware.
func NewRouter(cfg *config.Config, photoHandler *handler.PhotoHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(handler.CORS(cfg.CORSAllowedOrigin))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", photoHandler.Health)
	r.Post("/photos", photoHandler.IndexPhoto)
	r.Post("/faces/recognize", photoHandler.RecognizeFaces)

	return r
}

// runServer запускает HTTP сервер и блокируется до отмены ctx
func runServer(
	ctx context.Context,
	cfg *config.Config,
	photoUseCase usecase.PhotoUseCase,
	repairPublisher ports.PhotoRepairPublisher,
	uploadLimiter chan struct{},
	logger *slog.Logger,
) error {
	photoHandler := handler.NewPhotoHandler(photoUseCase, repairPublisher, uploadLimiter, cfg.MaxUploadBytes, usecase.MatchOptions{
		MaxResults:          cfg.MatchMaxResults,
		SimilarityThreshold: cfg.MatchSimilarityThreshold,
	}, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           NewRouter(cfg, photoHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping http server")

	ctxServer, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxServer); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("http server stopped")
	return nil
}
