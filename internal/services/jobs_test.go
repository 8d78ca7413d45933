package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/complyra/complyra-backend/internal/repos"
	"github.com/complyra/complyra-backend/internal/types"
)

func newTestTracker(t *testing.T, rdb *goredis.Client) (JobTracker, repos.AnalysisJobRepo, repos.KBDocumentRepo) {
	t.Helper()
	log := newTestLogger(t)
	db := newTestDB(t)
	jobs := repos.NewAnalysisJobRepo(db, log)
	docs := repos.NewKBDocumentRepo(db, log)
	return NewJobTracker(log, jobs, docs, rdb), jobs, docs
}

func seedJob(t *testing.T, jobs repos.AnalysisJobRepo) *types.AnalysisJob {
	t.Helper()
	userID := uuid.New()
	job := &types.AnalysisJob{
		UserID:         userID,
		DocumentID:     uuid.New().String(),
		Filename:       "contract.txt",
		StorageKey:     "uploads/x/contract.txt",
		AnalysisType:   types.AnalysisTypeCompliance,
		Status:         types.AnalysisStatusPending,
		IdempotencyKey: types.AnalysisIdempotencyKey(userID, "doc", types.AnalysisTypeCompliance),
	}
	job, created, err := jobs.CreateOrGet(context.Background(), nil, job)
	if err != nil || !created {
		t.Fatalf("seed job: created=%v err=%v", created, err)
	}
	return job
}

func TestAdvanceAnalysisRejectsIllegalEdge(t *testing.T) {
	tracker, jobs, _ := newTestTracker(t, nil)
	job := seedJob(t, jobs)

	err := tracker.AdvanceAnalysis(context.Background(), job.ID, types.AnalysisStatusPending, types.AnalysisStatusCompleted, nil)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("want TransitionError, got %v", err)
	}

	got, err := jobs.GetByID(context.Background(), nil, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != types.AnalysisStatusPending {
		t.Fatalf("status: want=pending got=%s", got.Status)
	}
}

func TestAdvanceAnalysisGuardedAgainstStaleFrom(t *testing.T) {
	tracker, jobs, _ := newTestTracker(t, nil)
	job := seedJob(t, jobs)
	ctx := context.Background()

	if err := tracker.AdvanceAnalysis(ctx, job.ID, types.AnalysisStatusPending, types.AnalysisStatusEmbedding, nil); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	// A second writer still holding the stale pending view must lose.
	err := tracker.AdvanceAnalysis(ctx, job.ID, types.AnalysisStatusPending, types.AnalysisStatusEmbedding, nil)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("want TransitionError, got %v", err)
	}

	got, _ := jobs.GetByID(ctx, nil, job.ID)
	if got.Status != types.AnalysisStatusEmbedding {
		t.Fatalf("status: want=embedding got=%s", got.Status)
	}
}

func TestFailAnalysisRecordsStepAndMessage(t *testing.T) {
	tracker, jobs, _ := newTestTracker(t, nil)
	job := seedJob(t, jobs)
	ctx := context.Background()

	if err := tracker.FailAnalysis(ctx, job.ID, types.AnalysisStatusPending, "embedding", errors.New("backend down")); err != nil {
		t.Fatalf("fail analysis: %v", err)
	}
	got, _ := jobs.GetByID(ctx, nil, job.ID)
	if got.Status != types.AnalysisStatusFailed {
		t.Fatalf("status: want=failed got=%s", got.Status)
	}
	if got.FailedStep != "embedding" {
		t.Fatalf("failed_step: want=embedding got=%s", got.FailedStep)
	}
	if got.ErrorMessage != "backend down" {
		t.Fatalf("error_message: want=%q got=%q", "backend down", got.ErrorMessage)
	}

	// Terminal states never move again.
	if err := tracker.FailAnalysis(ctx, job.ID, types.AnalysisStatusFailed, "embedding", errors.New("again")); err == nil {
		t.Fatalf("expected error failing a terminal job")
	}
}

func TestAdvanceDocumentRetryEdges(t *testing.T) {
	tracker, _, docs := newTestTracker(t, nil)
	ctx := context.Background()
	doc, err := docs.Create(ctx, nil, &types.KBDocument{
		Filename:    "policy.txt",
		ContentType: "text/plain",
		SizeBytes:   10,
		Category:    types.KBCategoryPolicies,
		StorageKey:  "kb/x/policy.txt",
		Status:      types.KBDocumentStatusPending,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed doc: %v", err)
	}

	steps := []struct{ from, to types.KBDocumentStatus }{
		{types.KBDocumentStatusPending, types.KBDocumentStatusProcessing},
		{types.KBDocumentStatusProcessing, types.KBDocumentStatusFailed},
		{types.KBDocumentStatusFailed, types.KBDocumentStatusProcessing},
		{types.KBDocumentStatusProcessing, types.KBDocumentStatusProcessed},
	}
	for _, s := range steps {
		if err := tracker.AdvanceDocument(ctx, doc.ID, s.from, s.to, nil); err != nil {
			t.Fatalf("transition %s -> %s: %v", s.from, s.to, err)
		}
	}

	var transitionErr *TransitionError
	err = tracker.AdvanceDocument(ctx, doc.ID, types.KBDocumentStatusProcessed, types.KBDocumentStatusProcessing, nil)
	if err == nil || !errors.As(err, &transitionErr) {
		t.Fatalf("processed -> processing: want TransitionError got %v", err)
	}
	if err := tracker.AdvanceDocument(ctx, doc.ID, types.KBDocumentStatusProcessing, types.KBDocumentStatusPending, nil); err == nil {
		t.Fatalf("expected rejection for processing -> pending")
	}
}

func TestClaimAnalysisExclusiveUntilReleased(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tracker, _, _ := newTestTracker(t, rdb)
	ctx := context.Background()

	release, acquired, err := tracker.ClaimAnalysis(ctx, "key-1")
	if err != nil || !acquired {
		t.Fatalf("first claim: acquired=%v err=%v", acquired, err)
	}
	_, second, err := tracker.ClaimAnalysis(ctx, "key-1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second {
		t.Fatalf("second claim should not acquire while held")
	}
	// A different key is independent.
	_, other, err := tracker.ClaimAnalysis(ctx, "key-2")
	if err != nil || !other {
		t.Fatalf("independent claim: acquired=%v err=%v", other, err)
	}

	release()
	_, again, err := tracker.ClaimAnalysis(ctx, "key-1")
	if err != nil || !again {
		t.Fatalf("claim after release: acquired=%v err=%v", again, err)
	}
}

func TestClaimAnalysisWithoutRedisAlwaysAcquires(t *testing.T) {
	tracker, _, _ := newTestTracker(t, nil)
	release, acquired, err := tracker.ClaimAnalysis(context.Background(), "key")
	if err != nil || !acquired {
		t.Fatalf("claim: acquired=%v err=%v", acquired, err)
	}
	release()
}
