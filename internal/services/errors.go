package services

import (
	"fmt"

	"github.com/google/uuid"
)

// AnalysisError wraps a pipeline failure with the step that produced it so
// callers can persist failed_step without parsing messages.
type AnalysisError struct {
	JobID  uuid.UUID
	Step   string
	Reason string
	Cause  error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("analysis %s step %s: %s: %v", e.JobID, e.Step, e.Reason, e.Cause)
	}
	return fmt.Sprintf("analysis %s step %s: %s", e.JobID, e.Step, e.Reason)
}

func (e *AnalysisError) Unwrap() error { return e.Cause }

// KnowledgeBaseError wraps an ingestion or deletion failure with the step it
// happened in.
type KnowledgeBaseError struct {
	DocumentID uuid.UUID
	Step       string
	Reason     string
	Cause      error
}

func (e *KnowledgeBaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("kb document %s step %s: %s: %v", e.DocumentID, e.Step, e.Reason, e.Cause)
	}
	return fmt.Sprintf("kb document %s step %s: %s", e.DocumentID, e.Step, e.Reason)
}

func (e *KnowledgeBaseError) Unwrap() error { return e.Cause }

// QueryError wraps a retrieval query failure.
type QueryError struct {
	QueryID uuid.UUID
	Reason  string
	Cause   error
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("query %s: %s: %v", e.QueryID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("query %s: %s", e.QueryID, e.Reason)
}

func (e *QueryError) Unwrap() error { return e.Cause }
