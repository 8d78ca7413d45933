package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type KBDocumentStatus string

const (
	KBDocumentStatusPending    KBDocumentStatus = "pending"
	KBDocumentStatusProcessing KBDocumentStatus = "processing"
	KBDocumentStatusProcessed  KBDocumentStatus = "processed"
	KBDocumentStatusFailed     KBDocumentStatus = "failed"
)

type KBDocumentCategory string

const (
	KBCategoryPolicies    KBDocumentCategory = "policies"
	KBCategoryRegulations KBDocumentCategory = "regulations"
	KBCategoryStandards   KBDocumentCategory = "standards"
	KBCategoryProcedures  KBDocumentCategory = "procedures"
)

func IsValidKBCategory(c string) bool {
	switch KBDocumentCategory(c) {
	case KBCategoryPolicies, KBCategoryRegulations, KBCategoryStandards, KBCategoryProcedures:
		return true
	}
	return false
}

// IngestionStep names the pipeline step recorded on failure.
type IngestionStep string

const (
	IngestionStepExtraction IngestionStep = "extraction"
	IngestionStepChunking   IngestionStep = "chunking"
	IngestionStepEmbedding  IngestionStep = "embedding"
	IngestionStepIndexing   IngestionStep = "indexing"
)

// KBDocument is immutable once processed: reprocessing requires a new
// document identity, never in-place mutation of published chunks.
type KBDocument struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Filename     string             `gorm:"column:filename;not null" json:"filename"`
	ContentType  string             `gorm:"column:content_type;not null" json:"contentType"`
	SizeBytes    int64              `gorm:"column:size_bytes" json:"sizeBytes"`
	Category     KBDocumentCategory `gorm:"column:category;not null;default:'policies';index" json:"category"`
	StorageKey   string             `gorm:"column:storage_key;not null" json:"storageKey"`
	Status       KBDocumentStatus   `gorm:"column:status;not null;default:'pending';index" json:"status"`
	FailedStep   IngestionStep      `gorm:"column:failed_step" json:"failedStep,omitempty"`
	ErrorMessage string             `gorm:"column:error_message" json:"errorMessage,omitempty"`
	ChunkCount   int                `gorm:"column:chunk_count;not null;default:0" json:"chunkCount"`
	Metadata     datatypes.JSON     `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	UploadedAt   time.Time          `gorm:"column:uploaded_at;not null" json:"uploadedAt"`
	ProcessedAt  *time.Time         `gorm:"column:processed_at" json:"processedAt,omitempty"`
	CreatedAt    time.Time          `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time          `gorm:"not null" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt     `gorm:"index" json:"-"`
}

func (KBDocument) TableName() string { return "kb_document" }
