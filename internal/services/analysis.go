package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/complyra/complyra-backend/internal/clients/gcs"
	"github.com/complyra/complyra-backend/internal/ingestion/chunker"
	"github.com/complyra/complyra-backend/internal/ingestion/extractor"
	"github.com/complyra/complyra-backend/internal/platform/apierr"
	"github.com/complyra/complyra-backend/internal/platform/ctxutil"
	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/platform/vector"
	"github.com/complyra/complyra-backend/internal/repos"
	"github.com/complyra/complyra-backend/internal/types"
)

// Generator is the slice of the model client the orchestrators call.
type Generator interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, types.TokenUsage, error)
	GenerateText(ctx context.Context, system, user string) (string, types.TokenUsage, error)
}

type StartAnalysisRequest struct {
	UserID       uuid.UUID
	DocumentID   string
	Filename     string
	StorageKey   string
	AnalysisType types.AnalysisType
}

type AnalysisUploadTarget struct {
	DocumentID string
	StorageKey string
	UploadURL  string
}

// AnalysisService owns the analysis job lifecycle: upload targets, the
// idempotent start, the retrieval+generation pipeline, and job queries.
type AnalysisService interface {
	CreateUploadTarget(ctx context.Context, userID uuid.UUID, filename, contentType string, sizeBytes int64) (*AnalysisUploadTarget, error)
	Start(ctx context.Context, req StartAnalysisRequest) (*types.AnalysisJob, bool, error)
	Get(ctx context.Context, userID, jobID uuid.UUID) (*types.AnalysisJob, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]*types.AnalysisJob, error)
	Delete(ctx context.Context, userID, jobID uuid.UUID) error
}

type analysisService struct {
	log       *logger.Logger
	jobs      repos.AnalysisJobRepo
	tracker   JobTracker
	bucket    gcs.BucketService
	extract   extractor.TextExtractor
	embed     TextEmbedder
	vec       vector.Store
	gen       Generator
	scorer    Scorer
	chunkSize int
	overlap   int
	topK      int
	minSim    float64
	retention bool
	timeout   time.Duration
	// inline makes Start run the pipeline before returning. Tests only.
	inline bool
}

func NewAnalysisService(
	baseLog *logger.Logger,
	jobs repos.AnalysisJobRepo,
	tracker JobTracker,
	bucket gcs.BucketService,
	extract extractor.TextExtractor,
	embed TextEmbedder,
	vec vector.Store,
	gen Generator,
	scorer Scorer,
) AnalysisService {
	return &analysisService{
		log:       baseLog.With("service", "AnalysisService"),
		jobs:      jobs,
		tracker:   tracker,
		bucket:    bucket,
		extract:   extract,
		embed:     embed,
		vec:       vec,
		gen:       gen,
		scorer:    scorer,
		chunkSize: envInt("CHUNK_MAX_SIZE", chunker.DefaultMaxChunkSize),
		overlap:   envInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
		topK:      envInt("ANALYSIS_TOP_K", 5),
		minSim:    0.7,
		retention: envBool("UPLOAD_VECTOR_RETENTION"),
		timeout:   time.Duration(envInt("ANALYSIS_TIMEOUT_SECONDS", 600)) * time.Second,
	}
}

func (s *analysisService) CreateUploadTarget(ctx context.Context, userID uuid.UUID, filename, contentType string, sizeBytes int64) (*AnalysisUploadTarget, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apierr.BadRequest("invalid_filename", fmt.Errorf("filename required"))
	}
	if sizeBytes <= 0 || sizeBytes > maxUploadSizeBytes {
		return nil, apierr.BadRequest("invalid_size", fmt.Errorf("size_bytes must be in (0, %d]", maxUploadSizeBytes))
	}
	documentID := uuid.New().String()
	storageKey := fmt.Sprintf("uploads/%s/%s/%s", userID, documentID, filename)
	uploadURL, err := s.bucket.SignedUploadURL(gcs.BucketCategoryUploads, storageKey, contentType, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("signed upload url: %w", err)
	}
	return &AnalysisUploadTarget{DocumentID: documentID, StorageKey: storageKey, UploadURL: uploadURL}, nil
}

// Start creates or observes the job for (user, document, type). Exactly one
// caller creates the row; only the creator, holding the claim lock, runs the
// pipeline. Duplicates get the existing job back.
func (s *analysisService) Start(ctx context.Context, req StartAnalysisRequest) (*types.AnalysisJob, bool, error) {
	if req.UserID == uuid.Nil {
		return nil, false, apierr.BadRequest("invalid_user", fmt.Errorf("user id required"))
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, false, apierr.BadRequest("invalid_document_id", fmt.Errorf("document id required"))
	}
	if !types.IsValidAnalysisType(string(req.AnalysisType)) {
		return nil, false, apierr.BadRequest("invalid_analysis_type", fmt.Errorf("invalid analysis type %q", req.AnalysisType))
	}
	storageKey := strings.TrimSpace(req.StorageKey)
	if storageKey == "" {
		storageKey = fmt.Sprintf("uploads/%s/%s/%s", req.UserID, req.DocumentID, req.Filename)
	}

	job := &types.AnalysisJob{
		ID:             uuid.New(),
		UserID:         req.UserID,
		DocumentID:     req.DocumentID,
		Filename:       strings.TrimSpace(req.Filename),
		StorageKey:     storageKey,
		AnalysisType:   req.AnalysisType,
		Status:         types.AnalysisStatusPending,
		IdempotencyKey: types.AnalysisIdempotencyKey(req.UserID, req.DocumentID, req.AnalysisType),
	}
	job, created, err := s.jobs.CreateOrGet(ctx, nil, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return job, false, nil
	}

	release, acquired, err := s.tracker.ClaimAnalysis(ctx, job.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		// Another worker holds the claim; it will drive this job.
		return job, true, nil
	}

	run := func() {
		defer release()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.runPipeline(runCtx, job); err != nil {
			s.log.Error("analysis pipeline failed", "jobId", job.ID, "error", err)
		}
	}
	if s.inline {
		run()
	} else {
		go run()
	}
	return job, true, nil
}

// kbMatch is one deduplicated retrieval hit.
type kbMatch struct {
	ChunkID      string
	DocumentName string
	Text         string
	Score        float64
}

func (s *analysisService) runPipeline(ctx context.Context, job *types.AnalysisJob) error {
	started := time.Now()
	cur := types.AnalysisStatusPending

	fail := func(step string, cause error) error {
		aErr := &AnalysisError{JobID: job.ID, Step: step, Reason: "pipeline step failed", Cause: cause}
		if terr := s.tracker.FailAnalysis(ctx, job.ID, cur, step, cause); terr != nil {
			s.log.Error("failed to record analysis failure", "jobId", job.ID, "error", terr)
		}
		return aErr
	}
	advance := func(to types.AnalysisJobStatus, updates map[string]interface{}) error {
		if err := s.tracker.AdvanceAnalysis(ctx, job.ID, cur, to, updates); err != nil {
			return err
		}
		cur = to
		return nil
	}

	if err := advance(types.AnalysisStatusEmbedding, nil); err != nil {
		return err
	}
	text, err := s.fetchUploadText(ctx, job)
	if err != nil {
		return fail("embedding", err)
	}
	chunks, err := chunker.Split(text, s.chunkSize, s.overlap)
	if err != nil {
		return fail("embedding", err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embed.EmbedTexts(ctx, texts)
	if err != nil {
		return fail("embedding", err)
	}
	if s.retention {
		if err := s.retainUploadVectors(ctx, job, chunks, vectors); err != nil {
			s.log.Warn("upload vector retention failed", "jobId", job.ID, "error", err)
		}
	}

	if err := advance(types.AnalysisStatusRetrieving, nil); err != nil {
		return err
	}
	matches, err := s.retrieveMatches(ctx, vectors)
	if err != nil {
		return fail("retrieving", err)
	}

	var result *types.ComplianceAnalysisResult
	var usage types.TokenUsage
	if len(matches) == 0 {
		result = noPolicyResult(job)
	} else {
		if err := advance(types.AnalysisStatusAnalyzing, nil); err != nil {
			return err
		}
		result, usage, err = s.analyze(ctx, job, text, matches)
		if err != nil {
			return fail("analyzing", err)
		}
	}

	result.DocumentID = job.DocumentID
	result.AnalysisType = job.AnalysisType
	result.AnalysisDate = time.Now().UTC()
	result.Normalize()
	result.OverallScore = s.scorer.ScoreAnalysis(result)
	result.ProcessingTimeMs = time.Since(started).Milliseconds()

	raw, err := json.Marshal(result)
	if err != nil {
		return fail(string(cur), fmt.Errorf("encode result: %w", err))
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"result":             datatypes.JSON(raw),
		"processing_time_ms": result.ProcessingTimeMs,
		"completed_at":       &now,
	}
	if err := advance(types.AnalysisStatusCompleted, updates); err != nil {
		return err
	}
	s.persistReport(ctx, job, raw)
	s.log.Info("analysis completed",
		"jobId", job.ID,
		"matches", len(matches),
		"overallScore", result.OverallScore,
		"inputTokens", usage.InputTokens,
		"outputTokens", usage.OutputTokens,
		"durationMs", result.ProcessingTimeMs)
	return nil
}

func (s *analysisService) fetchUploadText(ctx context.Context, job *types.AnalysisJob) (string, error) {
	dlCtx, cancel := ctxutil.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	rc, err := s.bucket.Download(dlCtx, gcs.BucketCategoryUploads, job.StorageKey)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", job.StorageKey, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", job.StorageKey, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(job.Filename))
	return s.extract.Extract(ctx, data, contentType)
}

// retrieveMatches queries the knowledge base per chunk and dedupes by chunk
// ID, keeping the highest score. Results come back sorted score descending
// with chunk ID as the tiebreak so context assembly is deterministic.
func (s *analysisService) retrieveMatches(ctx context.Context, vectors [][]float32) ([]kbMatch, error) {
	best := map[string]kbMatch{}
	for _, v := range vectors {
		scored, err := s.vec.Query(ctx, vector.CollectionKB, v, s.topK, s.minSim)
		if err != nil {
			return nil, err
		}
		for _, rec := range scored {
			chunkID, _ := rec.Metadata[vector.MetaChunkID].(string)
			if chunkID == "" {
				chunkID = rec.ID
			}
			if prev, ok := best[chunkID]; ok && prev.Score >= rec.Score {
				continue
			}
			text, _ := rec.Metadata[vector.MetaText].(string)
			name, _ := rec.Metadata[vector.MetaDocumentName].(string)
			best[chunkID] = kbMatch{ChunkID: chunkID, DocumentName: name, Text: text, Score: rec.Score}
		}
	}
	matches := make([]kbMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	return matches, nil
}

// analyze runs the structured generation call. A malformed response gets one
// retry with a stricter prompt; a second failure fails the job rather than
// fabricating a score.
func (s *analysisService) analyze(ctx context.Context, job *types.AnalysisJob, documentText string, matches []kbMatch) (*types.ComplianceAnalysisResult, types.TokenUsage, error) {
	entries := make([]contextEntry, len(matches))
	for i, m := range matches {
		entries[i] = contextEntry{DocumentName: m.DocumentName, Text: m.Text, Score: m.Score}
	}
	contextBlock, included := buildContextBlock(entries, contextTokenBudget)
	s.log.Debug("analysis context assembled", "jobId", job.ID, "matches", len(matches), "included", included)

	user := buildAnalysisUserPrompt(job.Filename, documentText, contextBlock)
	schema := analysisJSONSchema()
	var usage types.TokenUsage

	out, u, err := s.gen.GenerateJSON(ctx, analysisSystemPrompt(job.AnalysisType), user, analysisSchemaName, schema)
	usage.InputTokens += u.InputTokens
	usage.OutputTokens += u.OutputTokens
	result, parseErr := parseAnalysisResult(out, err)
	if parseErr != nil {
		s.log.Warn("structured analysis output invalid, retrying once", "jobId", job.ID, "error", parseErr)
		out, u, err = s.gen.GenerateJSON(ctx, analysisRetrySystemPrompt(job.AnalysisType), user, analysisSchemaName, schema)
		usage.InputTokens += u.InputTokens
		usage.OutputTokens += u.OutputTokens
		result, parseErr = parseAnalysisResult(out, err)
		if parseErr != nil {
			return nil, usage, fmt.Errorf("structured output invalid after retry: %w", parseErr)
		}
	}
	return result, usage, nil
}

func parseAnalysisResult(out map[string]any, callErr error) (*types.ComplianceAnalysisResult, error) {
	if callErr != nil {
		return nil, callErr
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("re-encode model output: %w", err)
	}
	var result types.ComplianceAnalysisResult
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	for _, gap := range result.ComplianceGaps {
		if !validSeverity(gap.Severity) {
			return nil, fmt.Errorf("invalid gap severity %q", gap.Severity)
		}
	}
	for _, flag := range result.RiskFlags {
		if !validSeverity(flag.Severity) {
			return nil, fmt.Errorf("invalid risk severity %q", flag.Severity)
		}
	}
	return &result, nil
}

func validSeverity(s types.Severity) bool {
	return s == types.SeverityLow || s == types.SeverityMedium || s == types.SeverityHigh
}

// noPolicyResult is the completed outcome when retrieval finds nothing
// relevant. Not a failure: the honest answer is that no applicable policy
// content exists in the knowledge base.
func noPolicyResult(job *types.AnalysisJob) *types.ComplianceAnalysisResult {
	return &types.ComplianceAnalysisResult{
		OverallScore:    0,
		ConfidenceScore: 0,
		PolicyMatches:   []types.PolicyMatch{},
		ComplianceGaps: []types.ComplianceGap{{
			GapType:        "no_applicable_policy",
			Severity:       types.SeverityMedium,
			Confidence:     1,
			Description:    "No knowledge base content was relevant to this document above the similarity threshold.",
			Recommendation: "Upload the applicable policy or regulation documents to the knowledge base, then resubmit the analysis.",
		}},
		RiskFlags:       []types.RiskFlag{},
		Recommendations: []string{"Review the document manually until applicable policies are available."},
	}
}

func (s *analysisService) retainUploadVectors(ctx context.Context, job *types.AnalysisJob, chunks []chunker.Chunk, vectors [][]float32) error {
	now := time.Now().UTC()
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		chunkID := fmt.Sprintf("%s:%d", job.DocumentID, c.Index)
		records[i] = vector.Record{
			ID:     chunkID,
			Values: vectors[i],
			Metadata: map[string]any{
				vector.MetaDocumentID:   job.DocumentID,
				vector.MetaChunkID:      chunkID,
				vector.MetaChunkIndex:   c.Index,
				vector.MetaText:         c.Text,
				vector.MetaDocumentName: job.Filename,
				vector.MetaIngestedAt:   now.UnixNano(),
			},
		}
	}
	return s.vec.Upsert(ctx, vector.CollectionUploads, records)
}

// persistReport writes the completed report next to other analysis artifacts.
// The database row is authoritative; a storage failure is logged, not fatal.
func (s *analysisService) persistReport(ctx context.Context, job *types.AnalysisJob, raw []byte) {
	key := fmt.Sprintf("analyses/%s.json", job.ID)
	upCtx, cancel := ctxutil.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.bucket.Upload(upCtx, gcs.BucketCategoryReports, key, "application/json", bytes.NewReader(raw)); err != nil {
		s.log.Warn("report persistence failed", "jobId", job.ID, "key", key, "error", err)
	}
}

func (s *analysisService) Get(ctx context.Context, userID, jobID uuid.UUID) (*types.AnalysisJob, error) {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.UserID != userID {
		return nil, apierr.NotFound("analysis_not_found", fmt.Errorf("analysis job %s not found for user", jobID))
	}
	return job, nil
}

func (s *analysisService) List(ctx context.Context, userID uuid.UUID, limit int) ([]*types.AnalysisJob, error) {
	return s.jobs.ListByUser(ctx, nil, userID, limit)
}

// Delete removes the job row and any retained upload vectors. A pipeline
// still in flight stops at its next transition, which no longer matches.
func (s *analysisService) Delete(ctx context.Context, userID, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return err
	}
	if job == nil || job.UserID != userID {
		return apierr.NotFound("analysis_not_found", fmt.Errorf("analysis job %s not found for user", jobID))
	}
	if err := s.vec.DeleteByDocument(ctx, vector.CollectionUploads, job.DocumentID); err != nil {
		s.log.Warn("upload vector cleanup failed", "jobId", job.ID, "error", err)
	}
	if err := s.jobs.Delete(ctx, nil, job.ID); err != nil {
		return err
	}
	s.log.Info("analysis job deleted", "jobId", job.ID)
	return nil
}
