package app

import (
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/complyra/complyra-backend/internal/clients/gcs"
	"github.com/complyra/complyra-backend/internal/clients/openai"
	"github.com/complyra/complyra-backend/internal/ingestion/extractor"
	"github.com/complyra/complyra-backend/internal/platform/logger"
)

type Clients struct {
	OpenAI    openai.Client
	Bucket    gcs.BucketService
	Redis     *goredis.Client
	DocAI     *extractor.DocAIExtractor
	Extractor extractor.TextExtractor
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis backs the analysis claim lock. Optional: without it each
	// instance relies on the idempotency-key unique index alone.
	var rdb *goredis.Client
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
	}

	bucket, err := gcs.NewBucketService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Document AI handles PDFs and scans. Optional: plain-text ingestion
	// works without it.
	var docai *extractor.DocAIExtractor
	if strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID")) != "" {
		d, err := extractor.NewDocAIExtractor(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init documentai client: %w", err)
		}
		docai = d
	}

	var structured extractor.TextExtractor
	if docai != nil {
		structured = docai
	}

	return Clients{
		OpenAI:    openaiClient,
		Bucket:    bucket,
		Redis:     rdb,
		DocAI:     docai,
		Extractor: extractor.NewComposite(structured),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.DocAI != nil {
		_ = c.DocAI.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
