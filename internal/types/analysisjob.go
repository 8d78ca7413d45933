package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AnalysisJobStatus string

const (
	AnalysisStatusPending    AnalysisJobStatus = "pending"
	AnalysisStatusEmbedding  AnalysisJobStatus = "embedding"
	AnalysisStatusRetrieving AnalysisJobStatus = "retrieving"
	AnalysisStatusAnalyzing  AnalysisJobStatus = "analyzing"
	AnalysisStatusCompleted  AnalysisJobStatus = "completed"
	AnalysisStatusFailed     AnalysisJobStatus = "failed"
)

func (s AnalysisJobStatus) Terminal() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed
}

type AnalysisType string

const (
	AnalysisTypeCompliance  AnalysisType = "compliance"
	AnalysisTypeRisk        AnalysisType = "risk"
	AnalysisTypePolicyMatch AnalysisType = "policy_match"
)

func IsValidAnalysisType(t string) bool {
	switch AnalysisType(t) {
	case AnalysisTypeCompliance, AnalysisTypeRisk, AnalysisTypePolicyMatch:
		return true
	}
	return false
}

// AnalysisJob tracks one compliance analysis of a user upload. The result
// column is populated only in the completed state; error_message and
// failed_step only in the failed state.
type AnalysisJob struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"analysisId"`
	UserID           uuid.UUID         `gorm:"type:uuid;not null;index" json:"userId"`
	DocumentID       string            `gorm:"column:document_id;not null" json:"documentId"`
	Filename         string            `gorm:"column:filename;not null" json:"filename"`
	StorageKey       string            `gorm:"column:storage_key;not null" json:"storageKey"`
	AnalysisType     AnalysisType      `gorm:"column:analysis_type;not null;default:'compliance'" json:"analysisType"`
	Status           AnalysisJobStatus `gorm:"column:status;not null;default:'pending';index" json:"status"`
	IdempotencyKey   string            `gorm:"column:idempotency_key;not null;uniqueIndex" json:"-"`
	Result           datatypes.JSON    `gorm:"column:result;type:jsonb" json:"results,omitempty"`
	FailedStep       string            `gorm:"column:failed_step" json:"failedStep,omitempty"`
	ErrorMessage     string            `gorm:"column:error_message" json:"errorMessage,omitempty"`
	ProcessingTimeMs int64             `gorm:"column:processing_time_ms;not null;default:0" json:"processingTimeMs"`
	CreatedAt        time.Time         `gorm:"not null" json:"createdAt"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updatedAt"`
	CompletedAt      *time.Time        `gorm:"column:completed_at" json:"completedAt,omitempty"`
	DeletedAt        gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (AnalysisJob) TableName() string { return "analysis_job" }

// AnalysisIdempotencyKey is deterministic over (user, document, analysisType)
// so concurrent equivalent requests collapse onto one job.
func AnalysisIdempotencyKey(userID uuid.UUID, documentID string, analysisType AnalysisType) string {
	h := sha256.New()
	h.Write([]byte(userID.String()))
	h.Write([]byte("|"))
	h.Write([]byte(documentID))
	h.Write([]byte("|"))
	h.Write([]byte(analysisType))
	return hex.EncodeToString(h.Sum(nil))
}
