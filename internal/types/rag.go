package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QueryType string

const (
	QueryTypeGeneral    QueryType = "general"
	QueryTypePolicy     QueryType = "policy"
	QueryTypeRegulation QueryType = "regulation"
	QueryTypeCompliance QueryType = "compliance"
)

func IsValidQueryType(t string) bool {
	switch QueryType(t) {
	case QueryTypeGeneral, QueryTypePolicy, QueryTypeRegulation, QueryTypeCompliance:
		return true
	}
	return false
}

type RAGQuery struct {
	QueryID             uuid.UUID `json:"queryId"`
	UserID              uuid.UUID `json:"userId"`
	QueryText           string    `json:"queryText"`
	QueryType           QueryType `json:"queryType"`
	MaxResults          int       `json:"maxResults"`
	SimilarityThreshold float64   `json:"similarityThreshold"`
}

type Source struct {
	DocumentID     string  `json:"documentId"`
	DocumentName   string  `json:"documentName"`
	Category       string  `json:"category"`
	ChunkID        string  `json:"chunkId"`
	RelevanceScore float64 `json:"relevanceScore"`
	Excerpt        string  `json:"excerpt"`
}

type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type RAGResponse struct {
	QueryID          uuid.UUID  `json:"queryId"`
	ResponseText     string     `json:"responseText"`
	Sources          []Source   `json:"sources"`
	ConfidenceScore  float64    `json:"confidenceScore"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
	TokenUsage       TokenUsage `json:"tokenUsage"`
}

// QueryRecord is the persisted history row for one completed RAG exchange.
type QueryRecord struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"queryId"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	QueryText       string         `gorm:"column:query_text;not null" json:"queryText"`
	QueryType       QueryType      `gorm:"column:query_type;not null;default:'general'" json:"queryType"`
	ResponseText    string         `gorm:"column:response_text" json:"responseText"`
	Sources         datatypes.JSON `gorm:"column:sources;type:jsonb" json:"sources,omitempty"`
	ConfidenceScore float64        `gorm:"column:confidence_score;not null;default:0" json:"confidenceScore"`
	InputTokens     int            `gorm:"column:input_tokens;not null;default:0" json:"inputTokens"`
	OutputTokens    int            `gorm:"column:output_tokens;not null;default:0" json:"outputTokens"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"createdAt"`
}

func (QueryRecord) TableName() string { return "query_record" }
