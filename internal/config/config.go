package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Поддерживаемые хранилища метаданных.
const (
	MetadataBackendPostgres = "postgres"
	MetadataBackendDynamoDB = "dynamodb"
)

// Способы передачи изображения в Rekognition при регистрации лиц.
const (
	ImageSourceS3    = "s3"
	ImageSourceBytes = "bytes"
)

// Ограничения Rekognition на размер изображения.
const (
	MaxS3ImageBytes     = 15 << 20
	MaxInlineImageBytes = 5 << 20
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort        string        `env:"SERVER_PORT" envDefault:"8080"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Общие настройки AWS. Endpoint задаётся для MinIO / localstack.
	AWS struct {
		Region          string `env:"AWS_REGION,required,notEmpty"`
		Endpoint        string `env:"AWS_ENDPOINT"`
		AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
		SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	}

	// Объектное хранилище
	BucketName        string `env:"BUCKET_NAME,required,notEmpty"`
	BlobPublicBaseURL string `env:"BLOB_PUBLIC_BASE_URL"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE"`

	// Коллекция лиц
	CollectionID             string  `env:"COLLECTION_ID" envDefault:"my-collection-id"`
	MatchMaxResults          int     `env:"MATCH_MAX_RESULTS" envDefault:"5"`
	MatchSimilarityThreshold float64 `env:"MATCH_SIMILARITY_THRESHOLD" envDefault:"70"`
	// s3 — регистрация по ссылке на объект в бакете, bytes — изображение в теле запроса.
	RekognitionImageSource string `env:"REKOGNITION_IMAGE_SOURCE" envDefault:"s3"`

	// Хранилище метаданных
	MetadataBackend string `env:"METADATA_BACKEND" envDefault:"postgres"`
	DatabaseURL     string `env:"DATABASE_URL"`
	PhotosTable     string `env:"PHOTOS_TABLE" envDefault:"photos"`

	RabbitMQ struct {
		RabbitMQURL       string `env:"RABBITMQ_URL"`
		RabbitMQQueueName string `env:"RABBITMQ_QUEUE_NAME" envDefault:"photo_repair_queue"`
	}
}

// LoadConfig загружает конфигурацию из переменных окружения.
// В режиме разработки пытается загрузить .env файл.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); !os.IsNotExist(err) {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность параметров, которые не выражаются тегами.
func (c *Config) Validate() error {
	switch c.MetadataBackend {
	case MetadataBackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres metadata backend")
		}
	case MetadataBackendDynamoDB:
		if c.PhotosTable == "" {
			return errors.New("PHOTOS_TABLE is required for dynamodb metadata backend")
		}
	default:
		return fmt.Errorf("unknown METADATA_BACKEND %q (use %q or %q)", c.MetadataBackend, MetadataBackendPostgres, MetadataBackendDynamoDB)
	}

	if c.CollectionID == "" {
		return errors.New("COLLECTION_ID must not be empty")
	}
	if c.MatchSimilarityThreshold < 0 || c.MatchSimilarityThreshold > 100 {
		return fmt.Errorf("MATCH_SIMILARITY_THRESHOLD must be within 0..100, got %v", c.MatchSimilarityThreshold)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	limit, err := c.MaxImageBytes()
	if err != nil {
		return err
	}
	if c.MaxUploadBytes > limit {
		return fmt.Errorf("MAX_UPLOAD_BYTES must not exceed %d for REKOGNITION_IMAGE_SOURCE=%s, got %d",
			limit, c.RekognitionImageSource, c.MaxUploadBytes)
	}
	return nil
}

// MaxImageBytes — наибольший размер изображения, который Rekognition примет при выбранном способе передачи.
func (c *Config) MaxImageBytes() (int64, error) {
	switch c.RekognitionImageSource {
	case ImageSourceS3:
		return MaxS3ImageBytes, nil
	case ImageSourceBytes:
		return MaxInlineImageBytes, nil
	default:
		return 0, fmt.Errorf("unknown REKOGNITION_IMAGE_SOURCE %q (use %q or %q)", c.RekognitionImageSource, ImageSourceS3, ImageSourceBytes)
	}
}

// PublicBaseURL возвращает базовый URL публичных ссылок на объекты.
// По умолчанию — виртуальный хост бакета S3.
func (c *Config) PublicBaseURL() string {
	if c.BlobPublicBaseURL != "" {
		return c.BlobPublicBaseURL
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com", c.BucketName)
}

// MetadataLocation — имя ресурса с метаданными для логов и WorkflowConfig.
func (c *Config) MetadataLocation() string {
	return c.PhotosTable
}
