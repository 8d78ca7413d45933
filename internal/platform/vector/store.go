package vector

import (
	"context"
	"fmt"
)

// Collection scopes vector records. KB and upload vectors must never be
// retrievable across each other's query scope; adapters enforce this, not
// caller discipline.
type Collection string

const (
	CollectionKB      Collection = "kb"
	CollectionUploads Collection = "uploads"
)

func IsValidCollection(c Collection) bool {
	return c == CollectionKB || c == CollectionUploads
}

// Well-known metadata payload keys.
const (
	MetaCollection   = "_cv_collection"
	MetaDocumentID   = "document_id"
	MetaChunkID      = "chunk_id"
	MetaChunkIndex   = "chunk_index"
	MetaText         = "text"
	MetaDocumentName = "document_filename"
	MetaCategory     = "document_category"
	MetaIngestedAt   = "ingested_at"
)

type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type ScoredRecord struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Store is the retrieval contract over a similarity index. Query results are
// ordered by similarity descending, ties broken by most-recent ingestion
// first. minSimilarity is a correctness control: it keeps low-relevance
// chunks out of model prompts.
type Store interface {
	Upsert(ctx context.Context, collection Collection, records []Record) error
	Query(ctx context.Context, collection Collection, q []float32, topK int, minSimilarity float64) ([]ScoredRecord, error)
	DeleteByDocument(ctx context.Context, collection Collection, documentID string) error
	CountByDocument(ctx context.Context, collection Collection, documentID string) (int, error)
}

// IsolationError reports a record surfacing outside its own collection.
// This is a correctness breach, never degraded gracefully.
type IsolationError struct {
	Queried  Collection
	Found    string
	VectorID string
}

func (e *IsolationError) Error() string {
	if e == nil {
		return "vector collection isolation violated"
	}
	return fmt.Sprintf(
		"vector collection isolation violated: queried=%q found=%q vector_id=%q",
		e.Queried,
		e.Found,
		e.VectorID,
	)
}

// AssertCollection validates a returned record's collection tag against the
// queried collection.
func AssertCollection(queried Collection, rec ScoredRecord) error {
	tag, _ := rec.Metadata[MetaCollection].(string)
	if tag != string(queried) {
		return &IsolationError{Queried: queried, Found: tag, VectorID: rec.ID}
	}
	return nil
}
