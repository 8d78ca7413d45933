package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Single connection keeps the shared in-memory database alive and
	// serializes writers, which sqlite requires anyway.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&types.KBDocument{}, &types.AnalysisJob{}, &types.QueryRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// stubEmbedder maps every text onto the same unit vector, so cosine
// similarity is 1.0 for any pair. Tests control match sets by seeding or not
// seeding the store.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 4 }

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubGenerator returns queued JSON outputs in order, then repeats the last.
type stubGenerator struct {
	mu        sync.Mutex
	jsonCalls int
	textCalls int
	jsonOut   []map[string]any
	jsonErr   []error
	textOut   string
	textErr   error
	delay     time.Duration
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, types.TokenUsage, error) {
	s.mu.Lock()
	idx := s.jsonCalls
	s.jsonCalls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	usage := types.TokenUsage{InputTokens: 100, OutputTokens: 40}
	var err error
	if idx < len(s.jsonErr) {
		err = s.jsonErr[idx]
	}
	if err != nil {
		return nil, usage, err
	}
	if len(s.jsonOut) == 0 {
		return map[string]any{}, usage, nil
	}
	if idx >= len(s.jsonOut) {
		idx = len(s.jsonOut) - 1
	}
	return s.jsonOut[idx], usage, nil
}

func (s *stubGenerator) GenerateText(ctx context.Context, system, user string) (string, types.TokenUsage, error) {
	s.mu.Lock()
	s.textCalls++
	s.mu.Unlock()
	if s.textErr != nil {
		return "", types.TokenUsage{}, s.textErr
	}
	return s.textOut, types.TokenUsage{InputTokens: 80, OutputTokens: 30}, nil
}

func (s *stubGenerator) jsonCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jsonCalls
}

// validAnalysisOutput is a minimal well-formed model response.
func validAnalysisOutput() map[string]any {
	return map[string]any{
		"overallScore":    0.8,
		"confidenceScore": 0.9,
		"policyMatches": []any{
			map[string]any{
				"policyId":          "pol-1",
				"policyName":        "Data Retention Policy",
				"matchScore":        0.85,
				"citedSections":     []any{"3.1"},
				"documentReference": "page 2",
			},
		},
		"complianceGaps":  []any{},
		"riskFlags":       []any{},
		"recommendations": []any{"Document the retention schedule."},
	}
}
