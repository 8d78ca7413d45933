package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/repos"
	"github.com/complyra/complyra-backend/internal/types"
)

// TransitionError reports a status change that the state machine does not
// allow, or one that lost the race against another writer.
type TransitionError struct {
	Entity string
	ID     uuid.UUID
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: transition %s -> %s rejected: %s", e.Entity, e.ID, e.From, e.To, e.Reason)
}

// Legal forward edges for each state machine. Anything absent is rejected
// before the database is touched.
var analysisTransitions = map[types.AnalysisJobStatus][]types.AnalysisJobStatus{
	types.AnalysisStatusPending:    {types.AnalysisStatusEmbedding, types.AnalysisStatusFailed},
	types.AnalysisStatusEmbedding:  {types.AnalysisStatusRetrieving, types.AnalysisStatusFailed},
	types.AnalysisStatusRetrieving: {types.AnalysisStatusAnalyzing, types.AnalysisStatusCompleted, types.AnalysisStatusFailed},
	types.AnalysisStatusAnalyzing:  {types.AnalysisStatusCompleted, types.AnalysisStatusFailed},
}

var documentTransitions = map[types.KBDocumentStatus][]types.KBDocumentStatus{
	types.KBDocumentStatusPending:    {types.KBDocumentStatusProcessing, types.KBDocumentStatusFailed},
	types.KBDocumentStatusProcessing: {types.KBDocumentStatusProcessed, types.KBDocumentStatusFailed},
	// A failed ingest may retry; a processed document is immutable and
	// never re-enters the pipeline.
	types.KBDocumentStatusFailed: {types.KBDocumentStatusProcessing},
}

// JobTracker is the single writer for job and document status. All pipeline
// code moves state through it so illegal edges and concurrent claims are
// caught in one place.
type JobTracker interface {
	AdvanceAnalysis(ctx context.Context, id uuid.UUID, from, to types.AnalysisJobStatus, updates map[string]interface{}) error
	FailAnalysis(ctx context.Context, id uuid.UUID, from types.AnalysisJobStatus, step string, cause error) error
	AdvanceDocument(ctx context.Context, id uuid.UUID, from, to types.KBDocumentStatus, updates map[string]interface{}) error
	FailDocument(ctx context.Context, id uuid.UUID, step types.IngestionStep, cause error) error
	ClaimAnalysis(ctx context.Context, idempotencyKey string) (release func(), acquired bool, err error)
}

type jobTracker struct {
	log      *logger.Logger
	jobs     repos.AnalysisJobRepo
	docs     repos.KBDocumentRepo
	rdb      *goredis.Client
	claimTTL time.Duration
}

// NewJobTracker builds the tracker. rdb may be nil, in which case claims are
// always granted (single instance deployments).
func NewJobTracker(baseLog *logger.Logger, jobs repos.AnalysisJobRepo, docs repos.KBDocumentRepo, rdb *goredis.Client) JobTracker {
	return &jobTracker{
		log:      baseLog.With("service", "JobTracker"),
		jobs:     jobs,
		docs:     docs,
		rdb:      rdb,
		claimTTL: 15 * time.Minute,
	}
}

func legalAnalysisEdge(from, to types.AnalysisJobStatus) bool {
	for _, next := range analysisTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func legalDocumentEdge(from, to types.KBDocumentStatus) bool {
	for _, next := range documentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t *jobTracker) AdvanceAnalysis(ctx context.Context, id uuid.UUID, from, to types.AnalysisJobStatus, updates map[string]interface{}) error {
	if !legalAnalysisEdge(from, to) {
		return &TransitionError{Entity: "analysis job", ID: id, From: string(from), To: string(to), Reason: "edge not in state machine"}
	}
	ok, err := t.jobs.TransitionStatus(ctx, nil, id, from, to, updates)
	if err != nil {
		return err
	}
	if !ok {
		return &TransitionError{Entity: "analysis job", ID: id, From: string(from), To: string(to), Reason: "current status does not match expected"}
	}
	t.log.Info("analysis job transition", "jobId", id, "from", from, "to", to)
	return nil
}

// FailAnalysis moves a job to failed from whatever non-terminal status it was
// observed in, recording the step that broke and the cause.
func (t *jobTracker) FailAnalysis(ctx context.Context, id uuid.UUID, from types.AnalysisJobStatus, step string, cause error) error {
	if from.Terminal() {
		return &TransitionError{Entity: "analysis job", ID: id, From: string(from), To: string(types.AnalysisStatusFailed), Reason: "already terminal"}
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"failed_step":   step,
		"error_message": msg,
		"completed_at":  &now,
	}
	ok, err := t.jobs.TransitionStatus(ctx, nil, id, from, types.AnalysisStatusFailed, updates)
	if err != nil {
		return err
	}
	if !ok {
		return &TransitionError{Entity: "analysis job", ID: id, From: string(from), To: string(types.AnalysisStatusFailed), Reason: "current status does not match expected"}
	}
	t.log.Warn("analysis job failed", "jobId", id, "step", step, "error", msg)
	return nil
}

func (t *jobTracker) AdvanceDocument(ctx context.Context, id uuid.UUID, from, to types.KBDocumentStatus, updates map[string]interface{}) error {
	if !legalDocumentEdge(from, to) {
		return &TransitionError{Entity: "kb document", ID: id, From: string(from), To: string(to), Reason: "edge not in state machine"}
	}
	ok, err := t.docs.TransitionStatus(ctx, nil, id, from, to, updates)
	if err != nil {
		return err
	}
	if !ok {
		return &TransitionError{Entity: "kb document", ID: id, From: string(from), To: string(to), Reason: "current status does not match expected"}
	}
	t.log.Info("kb document transition", "documentId", id, "from", from, "to", to)
	return nil
}

func (t *jobTracker) FailDocument(ctx context.Context, id uuid.UUID, step types.IngestionStep, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	updates := map[string]interface{}{
		"failed_step":   string(step),
		"error_message": msg,
	}
	ok, err := t.docs.TransitionStatus(ctx, nil, id, types.KBDocumentStatusProcessing, types.KBDocumentStatusFailed, updates)
	if err != nil {
		return err
	}
	if !ok {
		return &TransitionError{Entity: "kb document", ID: id, From: string(types.KBDocumentStatusProcessing), To: string(types.KBDocumentStatusFailed), Reason: "current status does not match expected"}
	}
	t.log.Warn("kb document ingestion failed", "documentId", id, "step", step, "error", msg)
	return nil
}

// ClaimAnalysis takes a short lived cross-instance lock on an idempotency
// key so only one worker runs a given analysis. The database unique index is
// the durable guarantee; this lock just avoids duplicate work during races.
func (t *jobTracker) ClaimAnalysis(ctx context.Context, idempotencyKey string) (func(), bool, error) {
	if t.rdb == nil {
		return func() {}, true, nil
	}
	key := "analysis:claim:" + strings.TrimSpace(idempotencyKey)
	ok, err := t.rdb.SetNX(ctx, key, "1", t.claimTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	release := func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.rdb.Del(relCtx, key).Err(); err != nil {
			t.log.Warn("claim release failed", "key", key, "error", err)
		}
	}
	return release, true, nil
}
