package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/platform/vector"
	"github.com/complyra/complyra-backend/internal/repos"
	"github.com/complyra/complyra-backend/internal/types"
)

const maxExcerptRunes = 200

// RAGService answers knowledge base questions. Stateless per request; the
// only side effect is the history record, which is best effort.
type RAGService interface {
	Query(ctx context.Context, q types.RAGQuery) (*types.RAGResponse, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*types.QueryRecord, error)
}

type ragService struct {
	log     *logger.Logger
	records repos.QueryRecordRepo
	embed   TextEmbedder
	vec     vector.Store
	gen     Generator
}

func NewRAGService(
	baseLog *logger.Logger,
	records repos.QueryRecordRepo,
	embed TextEmbedder,
	vec vector.Store,
	gen Generator,
) RAGService {
	return &ragService{
		log:     baseLog.With("service", "RAGService"),
		records: records,
		embed:   embed,
		vec:     vec,
		gen:     gen,
	}
}

func (s *ragService) Query(ctx context.Context, q types.RAGQuery) (*types.RAGResponse, error) {
	started := time.Now()
	if q.QueryID == uuid.Nil {
		q.QueryID = uuid.New()
	}
	if strings.TrimSpace(q.QueryText) == "" {
		return nil, &QueryError{QueryID: q.QueryID, Reason: "query text required"}
	}

	qVectors, err := s.embed.EmbedTexts(ctx, []string{q.QueryText})
	if err != nil {
		return nil, &QueryError{QueryID: q.QueryID, Reason: "query embedding failed", Cause: err}
	}
	scored, err := s.vec.Query(ctx, vector.CollectionKB, qVectors[0], q.MaxResults, q.SimilarityThreshold)
	if err != nil {
		return nil, &QueryError{QueryID: q.QueryID, Reason: "retrieval failed", Cause: err}
	}

	if len(scored) == 0 {
		resp := &types.RAGResponse{
			QueryID:          q.QueryID,
			ResponseText:     InsufficientContextAnswer,
			Sources:          []types.Source{},
			ConfidenceScore:  0,
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		}
		s.record(ctx, q, resp)
		return resp, nil
	}

	entries := make([]contextEntry, len(scored))
	similarities := make([]float64, len(scored))
	for i, rec := range scored {
		text, _ := rec.Metadata[vector.MetaText].(string)
		name, _ := rec.Metadata[vector.MetaDocumentName].(string)
		entries[i] = contextEntry{DocumentName: name, Text: text, Score: rec.Score}
		similarities[i] = rec.Score
	}
	contextBlock, included := buildContextBlock(entries, contextTokenBudget)
	if included == 0 {
		// Every chunk individually overflows the budget; answer from nothing
		// rather than feeding the model a truncated sentence.
		resp := &types.RAGResponse{
			QueryID:          q.QueryID,
			ResponseText:     InsufficientContextAnswer,
			Sources:          []types.Source{},
			ConfidenceScore:  0,
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		}
		s.record(ctx, q, resp)
		return resp, nil
	}

	answer, usage, err := s.gen.GenerateText(ctx, ragSystemPrompt(q.QueryType), buildRAGUserPrompt(q.QueryText, contextBlock))
	if err != nil {
		return nil, &QueryError{QueryID: q.QueryID, Reason: "answer generation failed", Cause: err}
	}

	resp := &types.RAGResponse{
		QueryID:          q.QueryID,
		ResponseText:     answer,
		Sources:          sourcesFromRecords(scored),
		ConfidenceScore:  retrievalConfidence(similarities),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		TokenUsage:       usage,
	}
	s.record(ctx, q, resp)
	return resp, nil
}

func sourcesFromRecords(scored []vector.ScoredRecord) []types.Source {
	sources := make([]types.Source, 0, len(scored))
	for _, rec := range scored {
		text, _ := rec.Metadata[vector.MetaText].(string)
		name, _ := rec.Metadata[vector.MetaDocumentName].(string)
		docID, _ := rec.Metadata[vector.MetaDocumentID].(string)
		category, _ := rec.Metadata[vector.MetaCategory].(string)
		chunkID, _ := rec.Metadata[vector.MetaChunkID].(string)
		if chunkID == "" {
			chunkID = rec.ID
		}
		sources = append(sources, types.Source{
			DocumentID:     docID,
			DocumentName:   name,
			Category:       category,
			ChunkID:        chunkID,
			RelevanceScore: rec.Score,
			Excerpt:        excerpt(text),
		})
	}
	return sources
}

// excerpt truncates rune-safe so multi-byte text never splits mid-character.
func excerpt(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= maxExcerptRunes {
		return string(r)
	}
	return string(r[:maxExcerptRunes])
}

// record writes the exchange to history. Failures are logged, never
// surfaced: the user already has their answer.
func (s *ragService) record(ctx context.Context, q types.RAGQuery, resp *types.RAGResponse) {
	raw, err := json.Marshal(resp.Sources)
	if err != nil {
		s.log.Warn("query history encode failed", "queryId", q.QueryID, "error", err)
		return
	}
	rec := &types.QueryRecord{
		ID:              q.QueryID,
		UserID:          q.UserID,
		QueryText:       q.QueryText,
		QueryType:       q.QueryType,
		ResponseText:    resp.ResponseText,
		Sources:         datatypes.JSON(raw),
		ConfidenceScore: resp.ConfidenceScore,
		InputTokens:     resp.TokenUsage.InputTokens,
		OutputTokens:    resp.TokenUsage.OutputTokens,
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := s.records.Create(ctx, nil, rec); err != nil {
		s.log.Warn("query history write failed", "queryId", q.QueryID, "error", err)
	}
}

func (s *ragService) History(ctx context.Context, userID uuid.UUID, limit int) ([]*types.QueryRecord, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id required")
	}
	return s.records.ListByUser(ctx, nil, userID, limit)
}
