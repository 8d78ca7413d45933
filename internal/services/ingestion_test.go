package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/complyra/complyra-backend/internal/clients/gcs"
	"github.com/complyra/complyra-backend/internal/ingestion/extractor"
	"github.com/complyra/complyra-backend/internal/platform/vector"
	"github.com/complyra/complyra-backend/internal/repos"
	"github.com/complyra/complyra-backend/internal/types"
)

type kbTestEnv struct {
	svc    *knowledgeBaseService
	docs   repos.KBDocumentRepo
	bucket *gcs.MemoryBucketService
	vec    *vector.MemoryStore
	embed  *stubEmbedder
}

func newKBTestEnv(t *testing.T) *kbTestEnv {
	t.Helper()
	log := newTestLogger(t)
	db := newTestDB(t)
	docs := repos.NewKBDocumentRepo(db, log)
	jobs := repos.NewAnalysisJobRepo(db, log)
	tracker := NewJobTracker(log, jobs, docs, nil)
	bucket := gcs.NewMemoryBucketService()
	embed := &stubEmbedder{}
	vec := vector.NewMemoryStore(embed.Dimension())
	svc := &knowledgeBaseService{
		log:       log,
		docs:      docs,
		tracker:   tracker,
		bucket:    bucket,
		extract:   extractor.NewPlainTextExtractor(),
		embed:     embed,
		vec:       vec,
		chunkSize: 500,
		overlap:   50,
		timeout:   30 * time.Second,
		inline:    true,
	}
	return &kbTestEnv{svc: svc, docs: docs, bucket: bucket, vec: vec, embed: embed}
}

func seedKBDocument(t *testing.T, env *kbTestEnv, text string) *types.KBDocument {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	doc, err := env.docs.Create(ctx, nil, &types.KBDocument{
		ID:          id,
		Filename:    "policy.txt",
		ContentType: "text/plain",
		SizeBytes:   int64(len(text)),
		Category:    types.KBCategoryPolicies,
		StorageKey:  "kb/" + id.String() + "/policy.txt",
		Status:      types.KBDocumentStatusPending,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	if text != "" {
		if err := env.bucket.Upload(ctx, gcs.BucketCategoryKB, doc.StorageKey, "text/plain", strings.NewReader(text)); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}
	return doc
}

func TestProcessSixThousandCharDocument(t *testing.T) {
	env := newKBTestEnv(t)
	ctx := context.Background()
	doc := seedKBDocument(t, env, strings.Repeat("x", 6000))

	if _, err := env.svc.Process(ctx, doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, err := env.docs.GetByID(ctx, nil, doc.ID)
	if err != nil || got == nil {
		t.Fatalf("get doc: %v", err)
	}
	if got.Status != types.KBDocumentStatusProcessed {
		t.Fatalf("status: want=processed got=%s (%s: %s)", got.Status, got.FailedStep, got.ErrorMessage)
	}
	if got.ChunkCount < 13 || got.ChunkCount > 15 {
		t.Fatalf("chunk count: want 13..15 got=%d", got.ChunkCount)
	}
	if got.ProcessedAt == nil {
		t.Fatalf("processed_at not set")
	}
	stored, err := env.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if stored != got.ChunkCount {
		t.Fatalf("stored vectors: want=%d got=%d", got.ChunkCount, stored)
	}
}

func TestProcessEmbeddingFailureMarksStep(t *testing.T) {
	env := newKBTestEnv(t)
	env.embed.fail = true
	ctx := context.Background()
	doc := seedKBDocument(t, env, "The retention period is seven years. Records are destroyed after.")

	if _, err := env.svc.Process(ctx, doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := env.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.KBDocumentStatusFailed {
		t.Fatalf("status: want=failed got=%s", got.Status)
	}
	if got.FailedStep != types.IngestionStepEmbedding {
		t.Fatalf("failed_step: want=embedding got=%s", got.FailedStep)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("error_message empty")
	}
	stored, _ := env.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())
	if stored != 0 {
		t.Fatalf("no vectors expected after failure, got %d", stored)
	}
}

func TestProcessMissingObjectFailsExtraction(t *testing.T) {
	env := newKBTestEnv(t)
	ctx := context.Background()
	doc := seedKBDocument(t, env, "")

	if _, err := env.svc.Process(ctx, doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := env.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.KBDocumentStatusFailed {
		t.Fatalf("status: want=failed got=%s", got.Status)
	}
	if got.FailedStep != types.IngestionStepExtraction {
		t.Fatalf("failed_step: want=extraction got=%s", got.FailedStep)
	}
}

func TestProcessRejectsDocumentAlreadyProcessing(t *testing.T) {
	env := newKBTestEnv(t)
	ctx := context.Background()
	doc := seedKBDocument(t, env, "text")
	if err := env.svc.tracker.AdvanceDocument(ctx, doc.ID, types.KBDocumentStatusPending, types.KBDocumentStatusProcessing, nil); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := env.svc.Process(ctx, doc.ID); err == nil {
		t.Fatalf("expected rejection while processing")
	}
}

func TestRetryAfterFailureClearsPriorVectors(t *testing.T) {
	env := newKBTestEnv(t)
	ctx := context.Background()
	doc := seedKBDocument(t, env, "Access reviews run quarterly. Exceptions need sign-off from the control owner.")
	if err := env.svc.tracker.AdvanceDocument(ctx, doc.ID, types.KBDocumentStatusPending, types.KBDocumentStatusProcessing, nil); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := env.svc.tracker.FailDocument(ctx, doc.ID, types.IngestionStepIndexing, errors.New("stored vector count mismatch")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	// Leftovers from the failed attempt.
	stale := []vector.Record{
		{ID: doc.ID.String() + ":stale-0", Values: []float32{1, 0, 0, 0}, Metadata: map[string]any{
			vector.MetaDocumentID: doc.ID.String(),
		}},
		{ID: doc.ID.String() + ":stale-1", Values: []float32{0, 1, 0, 0}, Metadata: map[string]any{
			vector.MetaDocumentID: doc.ID.String(),
		}},
	}
	if err := env.vec.Upsert(ctx, vector.CollectionKB, stale); err != nil {
		t.Fatalf("seed stale vectors: %v", err)
	}

	if _, err := env.svc.Process(ctx, doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := env.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.KBDocumentStatusProcessed {
		t.Fatalf("status: want=processed got=%s", got.Status)
	}
	stored, _ := env.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())
	if stored != got.ChunkCount {
		t.Fatalf("stale vectors not cleared: count=%d chunkCount=%d", stored, got.ChunkCount)
	}
}

func TestProcessRejectsProcessedDocument(t *testing.T) {
	env := newKBTestEnv(t)
	ctx := context.Background()
	doc := seedKBDocument(t, env, "Retention is seven years for transaction records.")
	if _, err := env.svc.Process(ctx, doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := env.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.KBDocumentStatusProcessed {
		t.Fatalf("status: want=processed got=%s", got.Status)
	}
	before, _ := env.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())

	var transitionErr *TransitionError
	if _, err := env.svc.Process(ctx, doc.ID); err == nil || !errors.As(err, &transitionErr) {
		t.Fatalf("second process: want TransitionError got %v", err)
	}
	got, _ = env.docs.GetByID(ctx, nil, doc.ID)
	if got.Status != types.KBDocumentStatusProcessed {
		t.Fatalf("status after rejected process: want=processed got=%s", got.Status)
	}
	after, _ := env.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())
	if before == 0 || after != before {
		t.Fatalf("published vectors changed: before=%d after=%d", before, after)
	}
}

func TestDeleteVerifiesZeroVectorsThenRemovesRow(t *testing.T) {
	env := newKBTestEnv(t)
	ctx := context.Background()
	doc := seedKBDocument(t, env, strings.Repeat("policy text. ", 100))
	if _, err := env.svc.Process(ctx, doc.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := env.svc.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stored, _ := env.vec.CountByDocument(ctx, vector.CollectionKB, doc.ID.String())
	if stored != 0 {
		t.Fatalf("vectors remain after delete: %d", stored)
	}
	got, err := env.docs.GetByID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("document row still visible after delete")
	}
}

func TestRegisterUploadValidation(t *testing.T) {
	env := newKBTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.RegisterUpload(ctx, RegisterKBUploadRequest{Filename: "", ContentType: "text/plain", SizeBytes: 10, Category: types.KBCategoryPolicies}); err == nil {
		t.Fatalf("expected error for empty filename")
	}
	if _, err := env.svc.RegisterUpload(ctx, RegisterKBUploadRequest{Filename: "a.txt", ContentType: "text/plain", SizeBytes: 10, Category: "other"}); err == nil {
		t.Fatalf("expected error for invalid category")
	}
	if _, err := env.svc.RegisterUpload(ctx, RegisterKBUploadRequest{Filename: "a.txt", ContentType: "text/plain", SizeBytes: maxUploadSizeBytes + 1, Category: types.KBCategoryPolicies}); err == nil {
		t.Fatalf("expected error for oversize upload")
	}

	target, err := env.svc.RegisterUpload(ctx, RegisterKBUploadRequest{Filename: "a.txt", ContentType: "text/plain", SizeBytes: 10, Category: types.KBCategoryPolicies})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if target.Document.Status != types.KBDocumentStatusPending {
		t.Fatalf("status: want=pending got=%s", target.Document.Status)
	}
	if target.UploadURL == "" {
		t.Fatalf("upload url empty")
	}
}
