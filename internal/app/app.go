package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/GoArmGo/FaceShare/internal/config"
	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/usecase"
)

// Режимы запуска.
const (
	ModeServer = "server"
	ModeWorker = "worker"
)

type App struct {
	Config          *config.Config
	logger          *slog.Logger
	photoUseCase    usecase.PhotoUseCase
	repairPublisher ports.PhotoRepairPublisher
	repairConsumer  ports.PhotoRepairConsumer
	uploadLimiter   chan struct{}
	closers         []func() error
}

// NewApp собирает приложение. closers вызываются при завершении в обратном порядке.
func NewApp(cfg *config.Config,
	logger *slog.Logger,
	photoUseCase usecase.PhotoUseCase,
	repairPublisher ports.PhotoRepairPublisher,
	repairConsumer ports.PhotoRepairConsumer,
	uploadLimiter chan struct{},
	closers ...func() error) *App {
	return &App{
		Config:          cfg,
		logger:          logger,
		photoUseCase:    photoUseCase,
		repairPublisher: repairPublisher,
		repairConsumer:  repairConsumer,
		uploadLimiter:   uploadLimiter,
		closers:         closers,
	}
}

func (a *App) Run(ctx context.Context, mode string) error {
	// канал для graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("starting application", "mode", mode)

	var err error
	switch mode {
	case ModeServer:
		err = runServer(ctx, a.Config, a.photoUseCase, a.repairPublisher, a.uploadLimiter, a.logger)
	case ModeWorker:
		err = runWorker(ctx, a.photoUseCase, a.repairConsumer, a.logger)
	default:
		err = fmt.Errorf("неизвестный режим: %s (используйте '%s' или '%s')", mode, ModeServer, ModeWorker)
	}

	// аккуратно закрываем ресурсы
	if closeErr := a.Shutdown(); closeErr != nil {
		a.logger.Error("shutdown finished with errors", "error", closeErr)
	}

	if err != nil {
		return err
	}
	a.logger.Info("application stopped")
	return nil
}

// Shutdown закрывает все ресурсы приложения
func (a *App) Shutdown() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoggerIns возвращает основной логгер приложения
func (a *App) LoggerIns() *slog.Logger {
	return a.logger
}
