package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/domain"
	"github.com/GoArmGo/FaceShare/internal/messaging/payloads"
	"github.com/GoArmGo/FaceShare/internal/usecase"
)

// repairHandler повторно регистрирует лица фото из заявки.
// Заявка на фото без записи метаданных, как и заявка с неустранимой ошибкой
// (битое изображение, удаленный объект), подтверждается и отбрасывается.
func repairHandler(photoUseCase usecase.PhotoUseCase, logger *slog.Logger) func(context.Context, payloads.PhotoRepairPayload) error {
	return func(ctx context.Context, payload payloads.PhotoRepairPayload) error {
		log := logger.With("external_image_id", payload.ExternalImageID, "reason", payload.Reason)

		indexed, err := photoUseCase.RepairPhoto(ctx, payload.ExternalImageID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			log.Warn("photo record not found, dropping repair request")
			return nil
		case errors.Is(err, domain.ErrValidation):
			log.Warn("invalid repair request, dropping", "error", err)
			return nil
		case errors.Is(err, domain.ErrPermanent):
			log.Error("repair cannot succeed, dropping request", "error", err)
			return nil
		case err != nil:
			log.Error("repair failed", "error", err)
			return err
		}

		log.Info("repair completed", "faces", len(indexed.FaceRecords))
		return nil
	}
}

// runWorker запускает потребителя RabbitMQ и блокируется до отмены ctx
func runWorker(
	ctx context.Context,
	photoUseCase usecase.PhotoUseCase,
	repairConsumer ports.PhotoRepairConsumer,
	logger *slog.Logger,
) error {
	if repairConsumer == nil {
		return errors.New("worker mode requires RABBITMQ_URL")
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := repairConsumer.StartConsumingPhotoRepairRequests(workerCtx, repairHandler(photoUseCase, logger)); err != nil {
		return fmt.Errorf("ошибка при запуске потребителя RabbitMQ: %w", err)
	}

	logger.Info("worker started, waiting for repair requests")
	<-ctx.Done()

	logger.Info("shutdown signal received, stopping worker")
	return nil
}
