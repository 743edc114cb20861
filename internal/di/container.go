package di

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoArmGo/FaceShare/internal/adapter/awsclient"
	"github.com/GoArmGo/FaceShare/internal/adapter/dynamodb"
	"github.com/GoArmGo/FaceShare/internal/adapter/rekognition"
	"github.com/GoArmGo/FaceShare/internal/adapter/storage/minio"
	"github.com/GoArmGo/FaceShare/internal/app"
	"github.com/GoArmGo/FaceShare/internal/config"
	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/database/client"
	"github.com/GoArmGo/FaceShare/internal/database/storage"
	"github.com/GoArmGo/FaceShare/internal/logger"
	"github.com/GoArmGo/FaceShare/internal/rabbitmq"
	"github.com/GoArmGo/FaceShare/internal/usecase"
	"github.com/aws/aws-sdk-go-v2/aws"
)

// Ограничение параллельных загрузок в режиме server.
const maxConcurrentUploads = 5

const provisionTimeout = 60 * time.Second

// BuildApp инициализирует все зависимости и возвращает готовый объект App.
func BuildApp(ctx context.Context, mode string) (*app.App, error) {
	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	slogger := logger.NewSlog(logger.SlogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	slogger.Info("logger initialized", "level", cfg.LogLevel, "format", cfg.LogFormat)

	var closers []func() error
	fail := func(err error) (*app.App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	provisionCtx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	// 2. Общий AWS конфиг для S3, Rekognition и DynamoDB
	awsCfg, err := awsclient.LoadConfig(provisionCtx, awsclient.Options{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	// 3. Объектное хранилище
	blobStore, err := minio.NewMinioClient(awsCfg, minio.Config{
		BucketName:    cfg.BucketName,
		Region:        cfg.AWS.Region,
		PublicBaseURL: cfg.PublicBaseURL(),
		UsePathStyle:  cfg.S3UsePathStyle,
	}, slogger.With("component", "blob_store"))
	if err != nil {
		return nil, err
	}
	if err := blobStore.EnsureBucket(provisionCtx); err != nil {
		return nil, err
	}

	// 4. Коллекция лиц
	var imageBucket string
	if cfg.RekognitionImageSource == config.ImageSourceS3 {
		imageBucket = cfg.BucketName
	}
	recognizer := rekognition.NewClient(awsCfg, imageBucket, slogger.With("component", "recognizer"))
	if err := recognizer.EnsureCollection(provisionCtx, cfg.CollectionID); err != nil {
		return nil, err
	}

	// 5. Хранилище метаданных
	metadataStore, closeMetadata, err := newMetadataStore(provisionCtx, cfg, awsCfg, slogger.With("component", "metadata_store"))
	if err != nil {
		return nil, err
	}
	if closeMetadata != nil {
		closers = append(closers, closeMetadata)
	}

	// 6. RabbitMQ: необязателен для server, обязателен для worker
	var (
		repairPublisher ports.PhotoRepairPublisher
		repairConsumer  ports.PhotoRepairConsumer
	)
	if cfg.RabbitMQ.RabbitMQURL != "" {
		rabbitMQClient, err := rabbitmq.NewClient(cfg.RabbitMQ.RabbitMQURL, cfg.RabbitMQ.RabbitMQQueueName, slogger.With("component", "rabbitmq"))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { rabbitMQClient.Close(); return nil })
		repairPublisher = rabbitMQClient
		repairConsumer = rabbitMQClient
	} else if mode == app.ModeWorker {
		return fail(fmt.Errorf("RABBITMQ_URL is required in %s mode", app.ModeWorker))
	} else {
		slogger.Warn("RABBITMQ_URL not set, failed face registrations will not be retried")
	}

	// 7. Бизнес-логика
	photoUseCase := usecase.NewPhotoUseCase(blobStore, metadataStore, recognizer, usecase.WorkflowConfig{
		BlobLocation:     cfg.BucketName,
		MetadataLocation: cfg.MetadataLocation(),
		CollectionID:     cfg.CollectionID,
	}, slogger.With("component", "usecase"))

	// 8. Сборка итогового приложения
	application := app.NewApp(
		cfg,
		slogger,
		photoUseCase,
		repairPublisher,
		repairConsumer,
		make(chan struct{}, maxConcurrentUploads),
		closers...,
	)

	slogger.Info("all dependencies initialized",
		"metadata_backend", cfg.MetadataBackend,
		"collection_id", cfg.CollectionID,
		"bucket", cfg.BucketName,
	)
	return application, nil
}

// newMetadataStore выбирает хранилище метаданных по METADATA_BACKEND.
func newMetadataStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, log *slog.Logger) (ports.MetadataStore, func() error, error) {
	switch cfg.MetadataBackend {
	case config.MetadataBackendDynamoDB:
		store := dynamodb.NewPhotoStore(awsCfg, cfg.PhotosTable, log)
		if err := store.CheckTable(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.MetadataBackendPostgres:
		dbClient, err := client.NewClient(cfg.DatabaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		if err := dbClient.Migrate(); err != nil {
			_ = dbClient.Close()
			return nil, nil, err
		}
		return storage.NewPostgresStorage(dbClient.DB, log), dbClient.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
	}
}
