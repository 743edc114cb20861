package ports

import (
	"context"

	"github.com/GoArmGo/FaceShare/internal/domain"
)

// BlobStore определяет методы для работы с объектным хранилищем (AWS S3, MinIO).
type BlobStore interface {
	// PutObject сохраняет байты изображения под ключом key.
	// После успешного возврата объект доступен по ObjectURL(key).
	PutObject(ctx context.Context, key string, data []byte) error

	// ObjectURL возвращает публичный URL объекта. Чистая функция от ключа.
	ObjectURL(key string) string

	// GetObject читает объект по ключу.
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// MetadataStore определяет методы для хранилища метаданных фото.
type MetadataStore interface {
	// SavePhoto сохраняет запись по ExternalImageID.
	SavePhoto(ctx context.Context, photo *domain.PhotoRecord) error

	// GetPhoto возвращает запись или domain.ErrNotFound, если её нет.
	GetPhoto(ctx context.Context, externalID string) (*domain.PhotoRecord, error)
}
