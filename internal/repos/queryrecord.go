package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/types"
)

type QueryRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, record *types.QueryRecord) (*types.QueryRecord, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.QueryRecord, error)
}

type queryRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueryRecordRepo(db *gorm.DB, baseLog *logger.Logger) QueryRecordRepo {
	return &queryRecordRepo{db: db, log: baseLog.With("repo", "QueryRecordRepo")}
}

func (r *queryRecordRepo) Create(ctx context.Context, tx *gorm.DB, record *types.QueryRecord) (*types.QueryRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if record == nil {
		return nil, errors.New("query record required")
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *queryRecordRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.QueryRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QueryRecord
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
