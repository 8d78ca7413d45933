package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/complyra/complyra-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, baseURL string) *client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return &client{
		log:        log,
		baseURL:    baseURL,
		apiKey:     "test-key",
		model:      "test-model",
		embedModel: "test-embed",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxRetries: 2,
	}
}

func TestEmbedConvertsAndOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Fatalf("inputs: want=2 got=%d", len(req.Input))
		}
		// Return out of order; client must reorder by index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0.4, 0.5}},
				{"index": 0, "embedding": []float64{0.1, 0.2}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("vectors: want=2 got=%d", len(vecs))
	}
	if vecs[0][0] != float32(0.1) || vecs[1][0] != float32(0.4) {
		t.Fatalf("vectors misordered: %v", vecs)
	}
}

func TestGenerateJSONStrictSchemaAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		text, _ := body["text"].(map[string]any)
		format, _ := text["format"].(map[string]any)
		if format["type"] != "json_schema" || format["strict"] != true {
			t.Fatalf("format: got=%v", format)
		}
		if format["name"] != "compliance_analysis" {
			t.Fatalf("schema name: got=%v", format["name"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{
					"type": "message",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "output_text", "text": `{"compliance_score": 0.8}`},
					},
				},
			},
			"usage": map[string]any{"input_tokens": 120, "output_tokens": 45},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	obj, usage, err := c.GenerateJSON(context.Background(), "sys", "user", "compliance_analysis", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["compliance_score"] != 0.8 {
		t.Fatalf("parsed object: got=%v", obj)
	}
	if usage.InputTokens != 120 || usage.OutputTokens != 45 {
		t.Fatalf("usage: got=%+v", usage)
	}
}

func TestGenerateJSONMalformedOutputErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{
					"type": "message",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "output_text", "text": "not json at all"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.GenerateJSON(context.Background(), "sys", "user", "schema", map[string]any{"type": "object"})
	if err == nil {
		t.Fatalf("expected parse error, got nil")
	}
}

func TestDoRetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{
					"type": "message",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "output_text", "text": "answer text"},
					},
				},
			},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, usage, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "answer text" {
		t.Fatalf("text: got=%q", text)
	}
	if usage.OutputTokens != 3 {
		t.Fatalf("usage: got=%+v", usage)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestGenerateTextNonRetryableStatusFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.GenerateText(context.Background(), "sys", "user")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
