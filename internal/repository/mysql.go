package repository

import (
	"context"
	"time"

	"giftcheck/internal/config"
	"giftcheck/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLRepository persists the check history.
type MySQLRepository struct {
	db *gorm.DB
}

// NewMySQLRepository creates a new MySQL repository
func NewMySQLRepository(cfg *config.MySQLConfig) *MySQLRepository {
	// Configure GORM logger
	var gormLogger logger.Interface
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gormLogger = logger.Default.LogMode(logger.Silent)
	} else {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MySQL")
	}

	// Auto migrate tables
	if err := db.AutoMigrate(&model.CheckLog{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	log.Info().Msg("MySQL connected successfully")

	return &MySQLRepository{db: db}
}

// GetDB returns the GORM DB instance
func (r *MySQLRepository) GetDB() *gorm.DB {
	return r.db
}

// SaveCheckLog saves a completed check to MySQL
func (r *MySQLRepository) SaveCheckLog(ctx context.Context, cl *model.CheckLog) error {
	return r.db.WithContext(ctx).Create(cl).Error
}

// GetCheckLogs retrieves check logs for a batch, newest first
func (r *MySQLRepository) GetCheckLogs(ctx context.Context, batchID string, limit int) ([]model.CheckLog, error) {
	var logs []model.CheckLog
	query := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("checked_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&logs).Error
	return logs, err
}

// GetRecentCheckLogs retrieves the most recent check logs across batches
func (r *MySQLRepository) GetRecentCheckLogs(ctx context.Context, limit int) ([]model.CheckLog, error) {
	var logs []model.CheckLog
	query := r.db.WithContext(ctx).Order("checked_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&logs).Error
	return logs, err
}

// CountByOutcome returns check counts grouped by outcome kind
func (r *MySQLRepository) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Outcome string
		Count   int64
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.CheckLog{}).
		Select("outcome, count(*) as count").
		Group("outcome").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, rw := range rows {
		counts[rw.Outcome] = rw.Count
	}
	return counts, nil
}

// CleanupOldCheckLogs removes check logs older than the retention window
func (r *MySQLRepository) CleanupOldCheckLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := r.db.WithContext(ctx).
		Where("checked_at < ?", cutoff).
		Delete(&model.CheckLog{})
	return result.RowsAffected, result.Error
}

// Close closes the database connection
func (r *MySQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
