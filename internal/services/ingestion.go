package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

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

const maxUploadSizeBytes = 50 << 20

// TextEmbedder is the slice of the embedding layer the orchestrators need.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type RegisterKBUploadRequest struct {
	Filename    string
	ContentType string
	SizeBytes   int64
	Category    types.KBDocumentCategory
}

type KBUploadTarget struct {
	Document  *types.KBDocument
	UploadURL string
}

// KnowledgeBaseService owns the KB document lifecycle: registration, the
// ingestion pipeline, listing, and delete-with-verification.
type KnowledgeBaseService interface {
	RegisterUpload(ctx context.Context, req RegisterKBUploadRequest) (*KBUploadTarget, error)
	Process(ctx context.Context, documentID uuid.UUID) (*types.KBDocument, error)
	Get(ctx context.Context, documentID uuid.UUID) (*types.KBDocument, error)
	List(ctx context.Context, category types.KBDocumentCategory) ([]*types.KBDocument, error)
	Delete(ctx context.Context, documentID uuid.UUID) error
}

type knowledgeBaseService struct {
	log       *logger.Logger
	docs      repos.KBDocumentRepo
	tracker   JobTracker
	bucket    gcs.BucketService
	extract   extractor.TextExtractor
	embed     TextEmbedder
	vec       vector.Store
	chunkSize int
	overlap   int
	timeout   time.Duration
	// inline makes Process run the pipeline before returning. Tests only.
	inline bool
}

func NewKnowledgeBaseService(
	baseLog *logger.Logger,
	docs repos.KBDocumentRepo,
	tracker JobTracker,
	bucket gcs.BucketService,
	extract extractor.TextExtractor,
	embed TextEmbedder,
	vec vector.Store,
) KnowledgeBaseService {
	return &knowledgeBaseService{
		log:       baseLog.With("service", "KnowledgeBaseService"),
		docs:      docs,
		tracker:   tracker,
		bucket:    bucket,
		extract:   extract,
		embed:     embed,
		vec:       vec,
		chunkSize: envInt("CHUNK_MAX_SIZE", chunker.DefaultMaxChunkSize),
		overlap:   envInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
		timeout:   time.Duration(envInt("INGESTION_TIMEOUT_SECONDS", 600)) * time.Second,
	}
}

func (s *knowledgeBaseService) RegisterUpload(ctx context.Context, req RegisterKBUploadRequest) (*KBUploadTarget, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, apierr.BadRequest("invalid_filename", fmt.Errorf("filename required"))
	}
	if !types.IsValidKBCategory(string(req.Category)) {
		return nil, apierr.BadRequest("invalid_category", fmt.Errorf("invalid category %q", req.Category))
	}
	if req.SizeBytes <= 0 || req.SizeBytes > maxUploadSizeBytes {
		return nil, apierr.BadRequest("invalid_size", fmt.Errorf("size_bytes must be in (0, %d]", maxUploadSizeBytes))
	}

	id := uuid.New()
	doc := &types.KBDocument{
		ID:          id,
		Filename:    filename,
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
		Category:    req.Category,
		StorageKey:  fmt.Sprintf("kb/%s/%s", id, filename),
		Status:      types.KBDocumentStatusPending,
		UploadedAt:  time.Now().UTC(),
	}
	created, err := s.docs.Create(ctx, nil, doc)
	if err != nil {
		return nil, err
	}
	uploadURL, err := s.bucket.SignedUploadURL(gcs.BucketCategoryKB, doc.StorageKey, doc.ContentType, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("signed upload url: %w", err)
	}
	s.log.Info("kb document registered", "documentId", created.ID, "category", created.Category)
	return &KBUploadTarget{Document: created, UploadURL: uploadURL}, nil
}

// Process claims the document for ingestion and runs the pipeline in the
// background. A document already processing is rejected by the guarded
// transition; a failed document re-enters as a fresh attempt. Processed
// documents are immutable: replacing one means uploading a new document.
func (s *knowledgeBaseService) Process(ctx context.Context, documentID uuid.UUID) (*types.KBDocument, error) {
	doc, err := s.docs.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound("kb_document_not_found", fmt.Errorf("kb document %s not found", documentID))
	}
	updates := map[string]interface{}{
		"failed_step":   "",
		"error_message": "",
		"chunk_count":   0,
		"processed_at":  nil,
	}
	if err := s.tracker.AdvanceDocument(ctx, doc.ID, doc.Status, types.KBDocumentStatusProcessing, updates); err != nil {
		return nil, err
	}
	doc.Status = types.KBDocumentStatusProcessing

	run := func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.runPipeline(runCtx, doc); err != nil {
			s.log.Error("kb ingestion failed", "documentId", doc.ID, "error", err)
		}
	}
	if s.inline {
		run()
	} else {
		go run()
	}
	return doc, nil
}

// runPipeline executes extraction, chunking, embedding, and indexing.
// A failure records the failing step and moves the document to failed; the
// error returned here is for logging, the document row is the source of truth.
func (s *knowledgeBaseService) runPipeline(ctx context.Context, doc *types.KBDocument) error {
	fail := func(step types.IngestionStep, cause error) error {
		kbErr := &KnowledgeBaseError{DocumentID: doc.ID, Step: string(step), Reason: "pipeline step failed", Cause: cause}
		if terr := s.tracker.FailDocument(ctx, doc.ID, step, cause); terr != nil {
			s.log.Error("failed to record document failure", "documentId", doc.ID, "error", terr)
		}
		return kbErr
	}

	// A fresh attempt never resumes partial state from an earlier one.
	if err := s.vec.DeleteByDocument(ctx, vector.CollectionKB, doc.ID.String()); err != nil {
		return fail(types.IngestionStepIndexing, fmt.Errorf("clear prior vectors: %w", err))
	}

	text, err := s.fetchText(ctx, doc)
	if err != nil {
		return fail(types.IngestionStepExtraction, err)
	}

	chunks, err := chunker.Split(text, s.chunkSize, s.overlap)
	if err != nil {
		return fail(types.IngestionStepChunking, err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embed.EmbedTexts(ctx, texts)
	if err != nil {
		return fail(types.IngestionStepEmbedding, err)
	}

	now := time.Now().UTC()
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		chunkID := fmt.Sprintf("%s:%d", doc.ID, c.Index)
		records[i] = vector.Record{
			ID:     chunkID,
			Values: vectors[i],
			Metadata: map[string]any{
				vector.MetaDocumentID:   doc.ID.String(),
				vector.MetaChunkID:      chunkID,
				vector.MetaChunkIndex:   c.Index,
				vector.MetaText:         c.Text,
				vector.MetaDocumentName: doc.Filename,
				vector.MetaCategory:     string(doc.Category),
				vector.MetaIngestedAt:   now.UnixNano(),
			},
		}
	}
	if err := s.vec.Upsert(ctx, vector.CollectionKB, records); err != nil {
		return fail(types.IngestionStepIndexing, err)
	}
	stored, err := s.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())
	if err != nil {
		return fail(types.IngestionStepIndexing, err)
	}
	if stored != len(chunks) {
		return fail(types.IngestionStepIndexing, fmt.Errorf("stored vector count %d does not match chunk count %d", stored, len(chunks)))
	}

	updates := map[string]interface{}{
		"chunk_count":  len(chunks),
		"processed_at": &now,
	}
	if err := s.tracker.AdvanceDocument(ctx, doc.ID, types.KBDocumentStatusProcessing, types.KBDocumentStatusProcessed, updates); err != nil {
		return err
	}
	s.log.Info("kb document processed", "documentId", doc.ID, "chunks", len(chunks))
	return nil
}

func (s *knowledgeBaseService) fetchText(ctx context.Context, doc *types.KBDocument) (string, error) {
	dlCtx, cancel := ctxutil.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	rc, err := s.bucket.Download(dlCtx, gcs.BucketCategoryKB, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", doc.StorageKey, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", doc.StorageKey, err)
	}
	return s.extract.Extract(ctx, data, doc.ContentType)
}

func (s *knowledgeBaseService) Get(ctx context.Context, documentID uuid.UUID) (*types.KBDocument, error) {
	doc, err := s.docs.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound("kb_document_not_found", fmt.Errorf("kb document %s not found", documentID))
	}
	return doc, nil
}

func (s *knowledgeBaseService) List(ctx context.Context, category types.KBDocumentCategory) ([]*types.KBDocument, error) {
	return s.docs.List(ctx, nil, category)
}

// Delete removes vectors first, verifies none remain, then removes the
// stored object and the metadata row. Order matters: a dangling metadata row
// is recoverable, orphaned vectors leaking into retrieval are not.
func (s *knowledgeBaseService) Delete(ctx context.Context, documentID uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, nil, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return apierr.NotFound("kb_document_not_found", fmt.Errorf("kb document %s not found", documentID))
	}
	if err := s.vec.DeleteByDocument(ctx, vector.CollectionKB, doc.ID.String()); err != nil {
		return &KnowledgeBaseError{DocumentID: doc.ID, Step: "delete_vectors", Reason: "vector deletion failed", Cause: err}
	}
	remaining, err := s.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())
	if err != nil {
		return &KnowledgeBaseError{DocumentID: doc.ID, Step: "delete_vectors", Reason: "post-delete verification failed", Cause: err}
	}
	if remaining != 0 {
		return &KnowledgeBaseError{DocumentID: doc.ID, Step: "delete_vectors", Reason: fmt.Sprintf("%d vectors remain after delete", remaining)}
	}
	if err := s.bucket.Delete(ctx, gcs.BucketCategoryKB, doc.StorageKey); err != nil {
		s.log.Warn("stored object delete failed", "documentId", doc.ID, "key", doc.StorageKey, "error", err)
	}
	if err := s.docs.Delete(ctx, nil, doc.ID); err != nil {
		return err
	}
	s.log.Info("kb document deleted", "documentId", doc.ID)
	return nil
}
