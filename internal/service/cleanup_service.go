package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/repository"
)

// CleanupService removes cached searches and their archives once they age out.
type CleanupService struct {
	searchRepo repository.SearchRepository
	storageSvc *StorageService
	logger     *slog.Logger
}

// NewCleanupService creates a new cleanup service. storageSvc may be nil.
func NewCleanupService(searchRepo repository.SearchRepository, storageSvc *StorageService, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		searchRepo: searchRepo,
		storageSvc: storageSvc,
		logger:     logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of a cleanup operation.
type CleanupResult struct {
	SearchesDeleted int64
	ArchivesDeleted int
	Errors          []error
}

// CleanupOldSearches deletes searches created before now-maxAgeSearches from
// the database and archives older than maxAgeArchives from storage.
// Users and tracked products are never touched.
func (s *CleanupService) CleanupOldSearches(ctx context.Context, maxAgeSearches, maxAgeArchives time.Duration) *CleanupResult {
	result := &CleanupResult{}
	cutoff := time.Now().Add(-maxAgeSearches)

	s.logger.Info("starting search cleanup",
		"max_age_searches", maxAgeSearches.String(),
		"max_age_archives", maxAgeArchives.String(),
		"cutoff", cutoff.Format(time.RFC3339),
	)

	n, err := s.searchRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to delete old searches", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.SearchesDeleted = n
	}

	if s.storageSvc != nil && s.storageSvc.IsEnabled() {
		count, err := s.storageSvc.DeleteOldArchives(ctx, maxAgeArchives)
		if err != nil {
			s.logger.Error("failed to delete old search archives", "error", err)
			result.Errors = append(result.Errors, err)
		}
		result.ArchivesDeleted = count
	}

	s.logger.Info("cleanup completed",
		"searches_deleted", result.SearchesDeleted,
		"archives_deleted", result.ArchivesDeleted,
		"errors", len(result.Errors),
	)
	return result
}

// RunScheduledCleanup runs cleanup immediately and then every interval until
// ctx is cancelled.
func (s *CleanupService) RunScheduledCleanup(ctx context.Context, maxAgeSearches, maxAgeArchives, interval time.Duration) {
	s.logger.Info("starting scheduled cleanup",
		"max_age_searches", maxAgeSearches.String(),
		"max_age_archives", maxAgeArchives.String(),
		"interval", interval.String(),
	)

	s.CleanupOldSearches(ctx, maxAgeSearches, maxAgeArchives)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			s.CleanupOldSearches(ctx, maxAgeSearches, maxAgeArchives)
		}
	}
}
