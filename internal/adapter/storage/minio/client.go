// Package minio реализует ports.BlobStore поверх S3-совместимого хранилища (AWS S3 или MinIO).
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/domain"
)

// S3API — подмножество s3.Client, которое использует хранилище.
type S3API interface {
	manager.UploadAPIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config описывает бакет и формат публичных ссылок.
type Config struct {
	BucketName    string
	Region        string
	PublicBaseURL string // по умолчанию https://<bucket>.s3.amazonaws.com
	UsePathStyle  bool
}

// Client представляет собой клиент для взаимодействия с S3-совместимым хранилищем.
type Client struct {
	s3Client      S3API
	uploader      *manager.Uploader
	bucketName    string
	region        string
	publicBaseURL string
	logger        *slog.Logger
}

// NewMinioClient создает клиент хранилища поверх общего aws.Config.
func NewMinioClient(awsCfg aws.Config, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name must be set")
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newClient(s3Client, cfg, logger), nil
}

func newClient(api S3API, cfg Config, logger *slog.Logger) *Client {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.BucketName)
	}
	return &Client{
		s3Client:      api,
		uploader:      manager.NewUploader(api),
		bucketName:    cfg.BucketName,
		region:        cfg.Region,
		publicBaseURL: base,
		logger:        logger,
	}
}

// EnsureBucket создает бакет, если его еще нет.
func (c *Client) EnsureBucket(ctx context.Context) error {
	headCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.s3Client.HeadBucket(headCtx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucketName),
	})
	if err == nil {
		c.logger.Info("bucket already exists", "bucket", c.bucketName)
		return nil
	}

	c.logger.Info("bucket not found, creating", "bucket", c.bucketName, "reason", err)

	input := &s3.CreateBucketInput{Bucket: aws.String(c.bucketName)}
	// us-east-1 не принимает LocationConstraint
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.s3Client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return fmt.Errorf("failed to create bucket '%s': %w", c.bucketName, err)
		}
	}

	waiter := s3.NewBucketExistsWaiter(c.s3Client)
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucketName),
	}, 30*time.Second); err != nil {
		return fmt.Errorf("failed waiting for bucket '%s' to be created: %w", c.bucketName, err)
	}

	c.logger.Info("bucket created", "bucket", c.bucketName)
	return nil
}

// PutObject загружает объект под ключом key. Content-Type определяется по содержимому.
func (c *Client) PutObject(ctx context.Context, key string, data []byte) error {
	contentType := http.DetectContentType(data)
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, c.bucketName, err)
	}

	c.logger.Debug("object uploaded", "bucket", c.bucketName, "key", key, "size", len(data), "content_type", contentType)
	return nil
}

// ObjectURL возвращает публичную ссылку на объект. Сетевых вызовов не делает.
func (c *Client) ObjectURL(key string) string {
	return c.publicBaseURL + "/" + key
}

// GetObject читает объект целиком.
func (c *Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	output, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			// удаленный объект повтором не вернуть
			err = fmt.Errorf("%w: %w", domain.ErrPermanent, err)
		}
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, c.bucketName, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

var _ ports.BlobStore = (*Client)(nil)
