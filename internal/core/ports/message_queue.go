package ports

import (
	"context"

	"github.com/GoArmGo/FaceShare/internal/messaging/payloads"
)

// PhotoRepairPublisher публикует задачи на повторную регистрацию лиц
// для фото, индексация которых оборвалась после записи метаданных.
type PhotoRepairPublisher interface {
	PublishPhotoRepairRequest(ctx context.Context, payload payloads.PhotoRepairPayload) error
}

// PhotoRepairConsumer используется воркером для получения задач из очереди.
type PhotoRepairConsumer interface {
	// StartConsumingPhotoRepairRequests начинает прослушивание очереди.
	// handler вызывается для каждого полученного сообщения.
	StartConsumingPhotoRepairRequests(ctx context.Context, handler func(context.Context, payloads.PhotoRepairPayload) error) error
}
