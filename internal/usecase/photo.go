package usecase

import (
	"context"

	"github.com/GoArmGo/FaceShare/internal/domain"
)

const (
	// DefaultMaxResults — сколько совпадений запрашивать у сервиса распознавания по умолчанию.
	DefaultMaxResults = 5
	// DefaultSimilarityThreshold — минимальная схожесть (0-100) по умолчанию.
	DefaultSimilarityThreshold = 70.0
	// MaxMatchResults — верхняя граница MaxResults, которую принимает сервис распознавания.
	MaxMatchResults = 4096
)

// WorkflowConfig — конфигурация внешних ресурсов, общая для всего процесса.
// Передаётся явно при создании use case, без глобальных переменных.
type WorkflowConfig struct {
	BlobLocation     string // имя бакета
	MetadataLocation string // имя таблицы метаданных
	CollectionID     string // коллекция лиц
}

// MatchOptions ограничивает поиск совпадений.
// Нулевые значения заменяются значениями по умолчанию, слишком большие урезаются.
type MatchOptions struct {
	MaxResults          int
	SimilarityThreshold float64
}

func (o MatchOptions) normalized() MatchOptions {
	switch {
	case o.MaxResults <= 0:
		o.MaxResults = DefaultMaxResults
	case o.MaxResults > MaxMatchResults:
		o.MaxResults = MaxMatchResults
	}
	switch {
	case o.SimilarityThreshold <= 0:
		o.SimilarityThreshold = DefaultSimilarityThreshold
	case o.SimilarityThreshold > 100:
		o.SimilarityThreshold = 100
	}
	return o
}

// PhotoUseCase определяет бизнес-логику индексации и поиска лиц.
type PhotoUseCase interface {
	// IndexPhoto сохраняет изображение, записывает метаданные и регистрирует лица в коллекции.
	// Шаги выполняются строго последовательно, первая ошибка прерывает воркфлоу.
	IndexPhoto(ctx context.Context, req domain.UploadRequest) (*domain.IndexResult, error)

	// MatchPhoto ищет в коллекции лица с пробного изображения и возвращает
	// соответствующие записи метаданных в порядке ранжирования сервиса.
	MatchPhoto(ctx context.Context, probe []byte, opts MatchOptions) ([]domain.PhotoRecord, error)

	// RepairPhoto повторно регистрирует лица уже сохранённого фото.
	// Используется воркером очереди восстановления, не входит в IndexPhoto.
	RepairPhoto(ctx context.Context, externalID string) (*domain.IndexedFaces, error)
}
