package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/domain"
)

// photoRow — строка таблицы photos.
type photoRow struct {
	ExternalImageID string         `db:"external_image_id"`
	ImageURL        string         `db:"image_url"`
	Comments        pq.StringArray `db:"comments"`
	Topic           string         `db:"topic"`
	PosterName      string         `db:"poster_name"`
	Timestamp       string         `db:"timestamp"`
}

func toRow(p *domain.PhotoRecord) photoRow {
	comments := pq.StringArray(p.Comments)
	if comments == nil {
		comments = pq.StringArray{}
	}
	return photoRow{
		ExternalImageID: p.ExternalImageID,
		ImageURL:        p.ImageURL,
		Comments:        comments,
		Topic:           p.Topic,
		PosterName:      p.PosterName,
		Timestamp:       p.Timestamp,
	}
}

func (r photoRow) toDomain() *domain.PhotoRecord {
	return &domain.PhotoRecord{
		ExternalImageID: r.ExternalImageID,
		ImageURL:        r.ImageURL,
		Comments:        []string(r.Comments),
		Topic:           r.Topic,
		PosterName:      r.PosterName,
		Timestamp:       r.Timestamp,
	}
}

type PostgresStorage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStorage(db *sqlx.DB, logger *slog.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// SavePhoto сохраняет метаданные фотографии, перезаписывая запись с тем же ключом
func (s *PostgresStorage) SavePhoto(ctx context.Context, photo *domain.PhotoRecord) error {
	start := time.Now()

	query := `
	INSERT INTO photos (external_image_id, image_url, comments, topic, poster_name, "timestamp")
	VALUES (:external_image_id, :image_url, :comments, :topic, :poster_name, :timestamp)
	ON CONFLICT (external_image_id) DO UPDATE SET
		image_url = EXCLUDED.image_url,
		comments = EXCLUDED.comments,
		topic = EXCLUDED.topic,
		poster_name = EXCLUDED.poster_name,
		"timestamp" = EXCLUDED."timestamp"
	`

	if _, err := s.db.NamedExecContext(ctx, query, toRow(photo)); err != nil {
		s.logger.Error("failed to save photo", "external_image_id", photo.ExternalImageID, "error", err)
		return fmt.Errorf("ошибка при сохранении фото: %w", err)
	}

	s.logger.Debug("photo saved successfully",
		"external_image_id", photo.ExternalImageID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// GetPhoto получает метаданные фото по ExternalImageId
func (s *PostgresStorage) GetPhoto(ctx context.Context, externalID string) (*domain.PhotoRecord, error) {
	start := time.Now()

	var row photoRow
	query := `
	SELECT external_image_id, image_url, comments, topic, poster_name, "timestamp"
	FROM photos WHERE external_image_id = $1
	`

	if err := s.db.GetContext(ctx, &row, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("фото %s: %w", externalID, domain.ErrNotFound)
		}
		s.logger.Error("failed to get photo", "external_image_id", externalID, "error", err)
		return nil, fmt.Errorf("ошибка при получении фото: %w", err)
	}

	s.logger.Debug("photo retrieved",
		"external_image_id", externalID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return row.toDomain(), nil
}

var _ ports.MetadataStore = (*PostgresStorage)(nil)
