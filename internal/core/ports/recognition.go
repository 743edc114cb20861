package ports

import (
	"context"

	"github.com/GoArmGo/FaceShare/internal/domain"
)

// FaceRecognizer — внешний сервис распознавания лиц (AWS Rekognition).
type FaceRecognizer interface {
	// IndexFaces находит лица на изображении и регистрирует их в коллекции
	// под внешним идентификатором externalID. Ноль найденных лиц не ошибка.
	IndexFaces(ctx context.Context, collectionID string, image []byte, externalID string) (*domain.IndexedFaces, error)

	// SearchFacesByImage ищет в коллекции лица, похожие на лицо с пробного изображения.
	// Результаты упорядочены по убыванию similarity.
	SearchFacesByImage(ctx context.Context, collectionID string, image []byte, maxFaces int, threshold float64) ([]domain.FaceMatch, error)
}
