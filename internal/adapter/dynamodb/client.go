// Package dynamodb реализует ports.MetadataStore поверх таблицы DynamoDB.
// Таблица ключуется строковым атрибутом ExternalImageId.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/GoArmGo/FaceShare/internal/core/ports"
	"github.com/GoArmGo/FaceShare/internal/domain"
)

const keyAttribute = "ExternalImageId"

// API — подмножество dynamodb.Client, которое использует хранилище.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// PhotoStore хранит PhotoRecord в DynamoDB.
type PhotoStore struct {
	api    API
	table  string
	logger *slog.Logger
}

// NewPhotoStore создает хранилище из общего aws.Config.
func NewPhotoStore(awsCfg aws.Config, table string, logger *slog.Logger) *PhotoStore {
	return NewPhotoStoreWithAPI(dynamodb.NewFromConfig(awsCfg), table, logger)
}

// NewPhotoStoreWithAPI оборачивает готовую реализацию API.
func NewPhotoStoreWithAPI(api API, table string, logger *slog.Logger) *PhotoStore {
	return &PhotoStore{api: api, table: table, logger: logger}
}

// CheckTable проверяет, что таблица существует. Таблица создается вне приложения.
func (s *PhotoStore) CheckTable(ctx context.Context) error {
	if _, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	}); err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	s.logger.Info("metadata table is available", "table", s.table)
	return nil
}

// SavePhoto записывает запись целиком.
func (s *PhotoStore) SavePhoto(ctx context.Context, photo *domain.PhotoRecord) error {
	item, err := attributevalue.MarshalMap(photo)
	if err != nil {
		return fmt.Errorf("marshal photo %s: %w", photo.ExternalImageID, err)
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put photo %s into %s: %w", photo.ExternalImageID, s.table, err)
	}
	return nil
}

// GetPhoto читает запись по ключу. Отсутствие записи — domain.ErrNotFound.
func (s *PhotoStore) GetPhoto(ctx context.Context, externalID string) (*domain.PhotoRecord, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{keyAttribute: &types.AttributeValueMemberS{Value: externalID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		var missingTable *types.ResourceNotFoundException
		if errors.As(err, &missingTable) {
			return nil, fmt.Errorf("get photo %s: table %s missing: %w", externalID, s.table, err)
		}
		return nil, fmt.Errorf("get photo %s: %w", externalID, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("get photo %s: %w", externalID, domain.ErrNotFound)
	}

	var photo domain.PhotoRecord
	if err := attributevalue.UnmarshalMap(out.Item, &photo); err != nil {
		return nil, fmt.Errorf("unmarshal photo %s: %w", externalID, err)
	}
	return &photo, nil
}

var _ ports.MetadataStore = (*PhotoStore)(nil)
