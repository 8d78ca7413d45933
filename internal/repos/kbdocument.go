package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/types"
)

type KBDocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.KBDocument) (*types.KBDocument, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.KBDocument, error)
	List(ctx context.Context, tx *gorm.DB, category types.KBDocumentCategory) ([]*types.KBDocument, error)
	// TransitionStatus performs a guarded status update; it reports false when
	// the document was not in the expected source status.
	TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.KBDocumentStatus, updates map[string]interface{}) (bool, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type kbDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKBDocumentRepo(db *gorm.DB, baseLog *logger.Logger) KBDocumentRepo {
	return &kbDocumentRepo{db: db, log: baseLog.With("repo", "KBDocumentRepo")}
}

func (r *kbDocumentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.KBDocument) (*types.KBDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil {
		return nil, errors.New("kb document required")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *kbDocumentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.KBDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.KBDocument
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *kbDocumentRepo) List(ctx context.Context, tx *gorm.DB, category types.KBDocumentCategory) ([]*types.KBDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.KBDocument
	q := transaction.WithContext(ctx).Order("uploaded_at DESC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *kbDocumentRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to types.KBDocumentStatus, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(ctx).
		Model(&types.KBDocument{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *kbDocumentRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.KBDocument{}).Error
}
