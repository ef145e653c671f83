// Package cache keeps recent searches in Redis so identical searches within
// the cache window skip the database and the workflow.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

const keyPrefix = "pricewatch:search:"

// SearchCache stores searches as JSON under a per-user, per-query key.
type SearchCache struct {
	client *redis.Client
}

// NewSearchCache connects to the Redis server at rawURL
// (redis://[:password@]host:port/db) and pings it.
func NewSearchCache(ctx context.Context, rawURL string) (*SearchCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &SearchCache{client: client}, nil
}

// NewSearchCacheWithClient wraps an existing client.
func NewSearchCacheWithClient(client *redis.Client) *SearchCache {
	return &SearchCache{client: client}
}

func searchKey(userID, normalizedQuery string) string {
	return keyPrefix + userID + ":" + normalizedQuery
}

// Get returns the cached search, or nil on a miss.
func (c *SearchCache) Get(ctx context.Context, userID, normalizedQuery string) (*models.Search, error) {
	data, err := c.client.Get(ctx, searchKey(userID, normalizedQuery)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached search: %w", err)
	}

	var entry cachedSearch
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached search: %w", err)
	}
	return entry.toSearch(), nil
}

// Set caches the search for ttl.
func (c *SearchCache) Set(ctx context.Context, s *models.Search, ttl time.Duration) error {
	data, err := json.Marshal(fromSearch(s))
	if err != nil {
		return fmt.Errorf("failed to encode search: %w", err)
	}
	if err := c.client.Set(ctx, searchKey(s.UserID, s.NormalizedQuery), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache search: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *SearchCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *SearchCache) Close() error {
	return c.client.Close()
}

// cachedSearch carries the fields models.Search hides from API JSON.
type cachedSearch struct {
	models.Search
	NormalizedQuery string `json:"normalizedQuery"`
	ArchiveKey      string `json:"archiveKey,omitempty"`
}

func fromSearch(s *models.Search) cachedSearch {
	return cachedSearch{Search: *s, NormalizedQuery: s.NormalizedQuery, ArchiveKey: s.ArchiveKey}
}

func (e cachedSearch) toSearch() *models.Search {
	s := e.Search
	s.NormalizedQuery = e.NormalizedQuery
	s.ArchiveKey = e.ArchiveKey
	return &s
}
