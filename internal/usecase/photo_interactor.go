package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Формат времени как у Date.toISOString: UTC с миллисекундами.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// resolveConcurrency ограничивает число параллельных запросов к хранилищу метаданных.
const resolveConcurrency = 8

// photoUseCase implements PhotoUseCase
type photoUseCase struct {
	blobStore     ports.BlobStore
	metadataStore ports.MetadataStore
	recognizer    ports.FaceRecognizer
	cfg           WorkflowConfig
	logger        *slog.Logger

	now   func() time.Time
	newID func(filename string) string
}

// NewPhotoUseCase создает новый экземпляр PhotoUseCase.
// Use case не хранит изменяемого состояния и безопасен для параллельных вызовов.
func NewPhotoUseCase(
	blobStore ports.BlobStore,
	metadataStore ports.MetadataStore,
	recognizer ports.FaceRecognizer,
	cfg WorkflowConfig,
	logger *slog.Logger,
) PhotoUseCase {
	return &photoUseCase{
		blobStore:     blobStore,
		metadataStore: metadataStore,
		recognizer:    recognizer,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
		newID:         NewExternalImageID,
	}
}

// IndexPhoto: blob -> метаданные -> регистрация лиц.
// Порядок гарантирует, что регистрация никогда не ссылается на несуществующий объект,
// а опубликованный в метаданных URL уже разрешается. Откат выполненных шагов не делается.
func (uc *photoUseCase) IndexPhoto(ctx context.Context, req domain.UploadRequest) (*domain.IndexResult, error) {
	if len(req.ImageBytes) == 0 {
		return nil, domain.NewWorkflowError(domain.ErrValidation, domain.OpValidate, "", errors.New("no image bytes provided"))
	}

	externalID := uc.newID(req.Filename)
	log := uc.logger.With("external_image_id", externalID, "collection_id", uc.cfg.CollectionID)
	start := time.Now()

	// 1. Объект в хранилище
	if err := uc.blobStore.PutObject(ctx, externalID, req.ImageBytes); err != nil {
		log.Error("failed to store image", "bucket", uc.cfg.BlobLocation, "error", err)
		return nil, domain.NewWorkflowError(domain.ErrStorage, domain.OpPutBlob, externalID, err)
	}
	imageURL := uc.blobStore.ObjectURL(externalID)

	// 2. Метаданные: с этого момента фото видно в хранилище метаданных
	record := &domain.PhotoRecord{
		ExternalImageID: externalID,
		ImageURL:        imageURL,
		Comments:        []string{req.Comment},
		Topic:           req.Topic,
		PosterName:      req.PosterName,
		Timestamp:       uc.now().UTC().Format(timestampLayout),
	}
	if err := uc.metadataStore.SavePhoto(ctx, record); err != nil {
		log.Error("failed to save photo metadata", "table", uc.cfg.MetadataLocation, "error", err)
		return nil, domain.NewWorkflowError(domain.ErrStorage, domain.OpSaveMetadata, externalID, err)
	}

	// 3. Регистрация лиц: фото становится доступно для поиска по лицу
	indexed, err := uc.recognizer.IndexFaces(ctx, uc.cfg.CollectionID, req.ImageBytes, externalID)
	if err != nil {
		log.Error("failed to register faces, photo left unindexed", "error", err)
		return nil, domain.NewWorkflowError(domain.ErrRecognition, domain.OpRegisterFaces, externalID, err)
	}
	if indexed == nil {
		indexed = &domain.IndexedFaces{}
	}

	if len(indexed.FaceRecords) == 0 {
		log.Warn("no faces detected, photo is not reachable by face search")
	}

	log.Info("photo indexed",
		"faces", len(indexed.FaceRecords),
		"unindexed_faces", indexed.UnindexedFaces,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &domain.IndexResult{
		ExternalImageID:  externalID,
		ImageURL:         imageURL,
		FaceRecords:      indexed.FaceRecords,
		FaceModelVersion: indexed.FaceModelVersion,
		UnindexedFaces:   indexed.UnindexedFaces,
	}, nil
}

// MatchPhoto ищет совпадения и разрешает каждое в PhotoRecord.
// Только ошибка поиска прерывает воркфлоу; отсутствующие записи и ошибки чтения пропускаются.
func (uc *photoUseCase) MatchPhoto(ctx context.Context, probe []byte, opts MatchOptions) ([]domain.PhotoRecord, error) {
	if len(probe) == 0 {
		return nil, domain.NewWorkflowError(domain.ErrValidation, domain.OpValidate, "", errors.New("no probe image provided"))
	}
	opts = opts.normalized()
	start := time.Now()

	matches, err := uc.recognizer.SearchFacesByImage(ctx, uc.cfg.CollectionID, probe, opts.MaxResults, opts.SimilarityThreshold)
	if err != nil {
		uc.logger.Error("face search failed", "collection_id", uc.cfg.CollectionID, "error", err)
		return nil, domain.NewWorkflowError(domain.ErrRecognition, domain.OpSearchFaces, "", err)
	}

	// Каждое совпадение пишет только в свой слот, порядок ранжирования сохраняется.
	slots := make([]*domain.PhotoRecord, len(matches))
	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	for i, match := range matches {
		g.Go(func() error {
			slots[i] = uc.resolveMatch(ctx, match)
			return nil
		})
	}
	_ = g.Wait()

	photos := make([]domain.PhotoRecord, 0, len(matches))
	for _, rec := range slots {
		if rec != nil {
			photos = append(photos, *rec)
		}
	}

	uc.logger.Info("face search completed",
		"collection_id", uc.cfg.CollectionID,
		"matches", len(matches),
		"resolved", len(photos),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return photos, nil
}

func (uc *photoUseCase) resolveMatch(ctx context.Context, match domain.FaceMatch) *domain.PhotoRecord {
	rec, err := uc.metadataStore.GetPhoto(ctx, match.ExternalImageID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		uc.logger.Warn("matched face has no photo record, skipping",
			"external_image_id", match.ExternalImageID,
			"similarity", match.Similarity,
		)
		return nil
	case err != nil:
		uc.logger.Error("failed to resolve matched face, skipping",
			"external_image_id", match.ExternalImageID,
			"error", err,
		)
		return nil
	}
	return rec
}

// Параметры проверки перед повторной регистрацией: лицо, уже внесенное
// под тем же externalID, находится с почти полной схожестью.
const (
	repairCheckMaxFaces  = 100
	repairCheckThreshold = 99.0
)

// RepairPhoto повторно регистрирует лица фото, для которого уже записаны объект и метаданные.
// Если лица уже есть в коллекции (регистрация прошла, но ответ не дошел), повторной записи нет.
func (uc *photoUseCase) RepairPhoto(ctx context.Context, externalID string) (*domain.IndexedFaces, error) {
	if externalID == "" {
		return nil, domain.NewWorkflowError(domain.ErrValidation, domain.OpValidate, "", errors.New("empty external image id"))
	}
	log := uc.logger.With("external_image_id", externalID, "collection_id", uc.cfg.CollectionID)

	if _, err := uc.metadataStore.GetPhoto(ctx, externalID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewWorkflowError(domain.ErrNotFound, domain.OpGetMetadata, externalID, err)
		}
		return nil, domain.NewWorkflowError(domain.ErrStorage, domain.OpGetMetadata, externalID, err)
	}

	image, err := uc.blobStore.GetObject(ctx, externalID)
	if err != nil {
		return nil, domain.NewWorkflowError(domain.ErrStorage, domain.OpGetBlob, externalID, err)
	}

	if existing := uc.registeredFaces(ctx, image, externalID); len(existing.FaceRecords) > 0 {
		log.Info("photo faces already registered, skipping", "faces", len(existing.FaceRecords))
		return existing, nil
	}

	indexed, err := uc.recognizer.IndexFaces(ctx, uc.cfg.CollectionID, image, externalID)
	if err != nil {
		return nil, domain.NewWorkflowError(domain.ErrRecognition, domain.OpRegisterFaces, externalID, err)
	}
	if indexed == nil {
		indexed = &domain.IndexedFaces{}
	}

	log.Info("photo faces re-registered", "faces", len(indexed.FaceRecords))
	return indexed, nil
}

// registeredFaces ищет в коллекции лица изображения, уже внесенные под externalID.
// IndexFaces регистрирует все лица изображения одним вызовом, поэтому достаточно
// найти самое крупное. Ошибка поиска не мешает повторной регистрации.
func (uc *photoUseCase) registeredFaces(ctx context.Context, image []byte, externalID string) *domain.IndexedFaces {
	found := &domain.IndexedFaces{FaceRecords: []domain.FaceRecord{}}

	matches, err := uc.recognizer.SearchFacesByImage(ctx, uc.cfg.CollectionID, image, repairCheckMaxFaces, repairCheckThreshold)
	if err != nil {
		uc.logger.Warn("failed to check existing faces, registering anyway",
			"external_image_id", externalID,
			"error", err,
		)
		return found
	}
	for _, m := range matches {
		if m.ExternalImageID != externalID {
			continue
		}
		found.FaceRecords = append(found.FaceRecords, domain.FaceRecord{
			FaceID:          m.FaceID,
			ExternalImageID: m.ExternalImageID,
			Confidence:      m.Confidence,
		})
	}
	return found
}
