// Package rekognition реализует ports.FaceRecognizer поверх AWS Rekognition.
package rekognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/domain"
)

// API — подмножество rekognition.Client, которое использует распознаватель.
type API interface {
	IndexFaces(ctx context.Context, params *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	SearchFacesByImage(ctx context.Context, params *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	DescribeCollection(ctx context.Context, params *rekognition.DescribeCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.DescribeCollectionOutput, error)
	CreateCollection(ctx context.Context, params *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
}

// ErrMalformedResponse возвращается, если ответ сервиса не содержит обязательных полей.
var ErrMalformedResponse = errors.New("malformed rekognition response")

// ErrImageTooLarge — изображение больше, чем Rekognition принимает в теле запроса.
var ErrImageTooLarge = errors.New("image exceeds inline rekognition limit")

// Пределы сервиса.
const (
	MaxInlineImageBytes = 5 << 20
	MaxSearchFaces      = 4096
)

// Client — клиент коллекции лиц.
type Client struct {
	api    API
	bucket string
	logger *slog.Logger
}

// NewClient создает клиент из общего aws.Config.
// Если bucket задан, регистрация ссылается на объект bucket/externalID вместо передачи байтов.
func NewClient(awsCfg aws.Config, bucket string, logger *slog.Logger) *Client {
	return NewClientWithAPI(rekognition.NewFromConfig(awsCfg), bucket, logger)
}

// NewClientWithAPI оборачивает готовую реализацию API.
func NewClientWithAPI(api API, bucket string, logger *slog.Logger) *Client {
	return &Client{api: api, bucket: bucket, logger: logger}
}

// indexImage выбирает источник изображения для регистрации.
// Объект к этому моменту уже записан в бакет под ключом externalID.
func (c *Client) indexImage(image []byte, externalID string) (*types.Image, error) {
	if c.bucket != "" {
		return &types.Image{S3Object: &types.S3Object{
			Bucket: aws.String(c.bucket),
			Name:   aws.String(externalID),
		}}, nil
	}
	if len(image) > MaxInlineImageBytes {
		return nil, fmt.Errorf("%w: %w: %d bytes", domain.ErrPermanent, ErrImageTooLarge, len(image))
	}
	return &types.Image{Bytes: image}, nil
}

// classify помечает ошибки, которые не пройдут и при повторе.
func classify(err error) error {
	var (
		invalidFormat *types.InvalidImageFormatException
		tooLarge      *types.ImageTooLargeException
		invalidObject *types.InvalidS3ObjectException
		invalidParam  *types.InvalidParameterException
	)
	switch {
	case errors.As(err, &invalidFormat),
		errors.As(err, &tooLarge),
		errors.As(err, &invalidObject),
		errors.As(err, &invalidParam):
		return fmt.Errorf("%w: %w", domain.ErrPermanent, err)
	}
	return err
}

// EnsureCollection создает коллекцию, если её нет.
func (c *Client) EnsureCollection(ctx context.Context, collectionID string) error {
	_, err := c.api.DescribeCollection(ctx, &rekognition.DescribeCollectionInput{
		CollectionId: aws.String(collectionID),
	})
	if err == nil {
		c.logger.Info("face collection already exists", "collection_id", collectionID)
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe collection %s: %w", collectionID, err)
	}

	if _, err := c.api.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(collectionID),
	}); err != nil {
		var exists *types.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create collection %s: %w", collectionID, err)
	}

	c.logger.Info("face collection created", "collection_id", collectionID)
	return nil
}

// IndexFaces регистрирует все найденные на изображении лица под externalID.
func (c *Client) IndexFaces(ctx context.Context, collectionID string, image []byte, externalID string) (*domain.IndexedFaces, error) {
	img, err := c.indexImage(image, externalID)
	if err != nil {
		return nil, fmt.Errorf("index faces in collection %s: %w", collectionID, err)
	}

	out, err := c.api.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId:        aws.String(collectionID),
		Image:               img,
		ExternalImageId:     aws.String(externalID),
		DetectionAttributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, fmt.Errorf("index faces in collection %s: %w", collectionID, classify(err))
	}

	result := &domain.IndexedFaces{
		FaceRecords:      make([]domain.FaceRecord, 0, len(out.FaceRecords)),
		FaceModelVersion: aws.ToString(out.FaceModelVersion),
		UnindexedFaces:   len(out.UnindexedFaces),
	}
	for _, rec := range out.FaceRecords {
		if rec.Face == nil {
			return nil, fmt.Errorf("index faces: face record without face: %w", ErrMalformedResponse)
		}
		result.FaceRecords = append(result.FaceRecords, toFaceRecord(rec.Face))
	}

	c.logger.Debug("faces indexed",
		"collection_id", collectionID,
		"external_image_id", externalID,
		"faces", len(result.FaceRecords),
		"unindexed_faces", result.UnindexedFaces,
	)
	return result, nil
}

// SearchFacesByImage ищет самое крупное лицо изображения в коллекции.
// Результаты упорядочены по убыванию сходства. maxFaces приводится к 1..MaxSearchFaces.
func (c *Client) SearchFacesByImage(ctx context.Context, collectionID string, image []byte, maxFaces int, threshold float64) ([]domain.FaceMatch, error) {
	maxFaces = min(max(maxFaces, 1), MaxSearchFaces)

	out, err := c.api.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(collectionID),
		Image:              &types.Image{Bytes: image},
		MaxFaces:           aws.Int32(int32(maxFaces)),
		FaceMatchThreshold: aws.Float32(float32(threshold)),
	})
	if err != nil {
		return nil, fmt.Errorf("search faces in collection %s: %w", collectionID, classify(err))
	}

	matches := make([]domain.FaceMatch, 0, len(out.FaceMatches))
	for _, m := range out.FaceMatches {
		if m.Face == nil || aws.ToString(m.Face.ExternalImageId) == "" {
			return nil, fmt.Errorf("search faces: match without external image id: %w", ErrMalformedResponse)
		}
		matches = append(matches, domain.FaceMatch{
			ExternalImageID: aws.ToString(m.Face.ExternalImageId),
			FaceID:          aws.ToString(m.Face.FaceId),
			Similarity:      float64(aws.ToFloat32(m.Similarity)),
			Confidence:      float64(aws.ToFloat32(m.Face.Confidence)),
		})
	}
	return matches, nil
}

func toFaceRecord(f *types.Face) domain.FaceRecord {
	rec := domain.FaceRecord{
		FaceID:          aws.ToString(f.FaceId),
		ExternalImageID: aws.ToString(f.ExternalImageId),
		Confidence:      float64(aws.ToFloat32(f.Confidence)),
	}
	if bb := f.BoundingBox; bb != nil {
		rec.BoundingBox = domain.BoundingBox{
			Width:  float64(aws.ToFloat32(bb.Width)),
			Height: float64(aws.ToFloat32(bb.Height)),
			Left:   float64(aws.ToFloat32(bb.Left)),
			Top:    float64(aws.ToFloat32(bb.Top)),
		}
	}
	return rec
}

var _ ports.FaceRecognizer = (*Client)(nil)
