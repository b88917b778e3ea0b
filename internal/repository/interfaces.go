package repository

import (
	"context"
	"time"

	"giftcheck/internal/model"
)

// MySQLRepositoryInterface defines the interface for MySQL operations
type MySQLRepositoryInterface interface {
	SaveCheckLog(ctx context.Context, cl *model.CheckLog) error
	GetCheckLogs(ctx context.Context, batchID string, limit int) ([]model.CheckLog, error)
	GetRecentCheckLogs(ctx context.Context, limit int) ([]model.CheckLog, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
	CleanupOldCheckLogs(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

// RedisRepositoryInterface defines the interface for Redis operations
type RedisRepositoryInterface interface {
	GetResolution(ctx context.Context, sourceURL string) (string, string, error)
	SaveResolution(ctx context.Context, sourceURL, redirectURL, category string, ttl time.Duration) error
	IncrBatchStatus(ctx context.Context, batchID, status string) (int64, error)
	GetBatchStatusCounts(ctx context.Context, batchID string) (map[string]int64, error)
	Close() error
}
