package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crucible/pkg/models"
	"crucible/pkg/storage"
)

// PostgresStore persists collected job results on the dispatcher side.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore initializes the GORM connection and migrates the result
// schema.
func NewPostgresStore(connString string) (*PostgresStore, error) {
	config := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.ResultRecord{}); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveResult persists one job outcome.
func (s *PostgresStore) SaveResult(ctx context.Context, rec *models.ResultRecord) error {
	result := s.db.WithContext(ctx).Create(rec)
	if result.Error != nil {
		return fmt.Errorf("failed to save result: %w", result.Error)
	}
	return nil
}

// ListByBatch returns every stored result for a batch, newest first.
func (s *PostgresStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.ResultRecord, error) {
	var recs []models.ResultRecord
	result := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("completed_at DESC").
		Find(&recs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list results: %w", result.Error)
	}
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}
	return recs, nil
}

// CountByBatch reports how many of a batch's jobs have completed and how
// many failed at the boundary.
func (s *PostgresStore) CountByBatch(ctx context.Context, batchID uuid.UUID) (int64, int64, error) {
	var completed, failed int64

	if err := s.db.WithContext(ctx).Model(&models.ResultRecord{}).
		Where("batch_id = ? AND failure = ''", batchID).
		Count(&completed).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count results: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.ResultRecord{}).
		Where("batch_id = ? AND failure <> ''", batchID).
		Count(&failed).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return completed, failed, nil
}
