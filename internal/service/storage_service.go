package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/pricewatch-api/internal/config"
	"github.com/jmylchreest/pricewatch-api/internal/models"
)

const searchArchivePrefix = "searches/"

// ErrStorageDisabled is returned by reads when no bucket is configured.
var ErrStorageDisabled = errors.New("storage is not enabled")

// objectStore is the subset of the S3 API the storage service uses.
type objectStore interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// StorageService archives completed searches in object storage (Tigris/S3-compatible).
type StorageService struct {
	client  objectStore
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			enabled: false,
			logger:  logger,
		}, nil
	}

	// Load AWS config with static credentials
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true // Required for some S3-compatible services
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return newStorageService(client, cfg.StorageBucket, logger), nil
}

func newStorageService(client objectStore, bucket string, logger *slog.Logger) *StorageService {
	return &StorageService{
		client:  client,
		bucket:  bucket,
		enabled: true,
		logger:  logger.With("component", "storage"),
	}
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// SearchArchiveKey returns the object key for a search.
func SearchArchiveKey(userID, searchID string) string {
	return fmt.Sprintf("%s%s/%s.json", searchArchivePrefix, userID, searchID)
}

// ArchiveSearch stores the full search as JSON and returns its key.
// Returns an empty key when storage is disabled.
func (s *StorageService) ArchiveSearch(ctx context.Context, search *models.Search) (string, error) {
	if !s.enabled {
		return "", nil
	}

	data, err := json.Marshal(search)
	if err != nil {
		return "", fmt.Errorf("failed to marshal search: %w", err)
	}

	key := SearchArchiveKey(search.UserID, search.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive search: %w", err)
	}

	s.logger.DebugContext(ctx, "archived search",
		"search_id", search.ID,
		"key", key,
		"size_bytes", len(data),
	)
	return key, nil
}

// GetArchivedSearch reads an archived search by key.
func (s *StorageService) GetArchivedSearch(ctx context.Context, key string) (*models.Search, error) {
	if !s.enabled {
		return nil, ErrStorageDisabled
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get archived search: %w", err)
	}
	defer func() { _ = output.Body.Close() }()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived search: %w", err)
	}

	var search models.Search
	if err := json.Unmarshal(data, &search); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archived search: %w", err)
	}
	return &search, nil
}

// DeleteOldArchives deletes archived searches last modified before now-maxAge.
// Returns the number of deleted objects.
func (s *StorageService) DeleteOldArchives(ctx context.Context, maxAge time.Duration) (int, error) {
	if !s.enabled {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(searchArchivePrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				s.logger.Warn("failed to delete old object",
					"key", aws.ToString(obj.Key),
					"error", err,
				)
				continue
			}
			deleted++
		}
	}

	return deleted, nil
}
