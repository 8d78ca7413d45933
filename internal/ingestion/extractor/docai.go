package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/complyra/complyra-backend/internal/platform/ctxutil"
	"github.com/complyra/complyra-backend/internal/platform/logger"
)

// DocAIExtractor extracts text from PDFs and scanned documents through
// Document AI's online processing path.
type DocAIExtractor struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
}

func NewDocAIExtractor(log *logger.Logger) (*DocAIExtractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	projectID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	processorID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if projectID == "" || processorID == "" {
		return nil, fmt.Errorf("DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required")
	}
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(
		context.Background(),
		option.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog := log.With("service", "DocAIExtractor")
	slog.Info("Document AI initialized", "endpoint", endpoint, "location", location)

	return &DocAIExtractor{
		log:       slog,
		client:    client,
		processor: fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID),
	}, nil
}

func (d *DocAIExtractor) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *DocAIExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", &ExtractionError{ContentType: contentType, Reason: "empty document"}
	}
	mimeType := strings.TrimSpace(contentType)
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: d.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: []string{"text"}},
	}

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", &ExtractionError{
			ContentType: contentType,
			Reason:      "documentai ProcessDocument failed",
			Cause:       err,
		}
	}
	if resp == nil || resp.Document == nil {
		return "", &ExtractionError{ContentType: contentType, Reason: "documentai returned no document"}
	}

	text := strings.TrimSpace(resp.Document.Text)
	if text == "" {
		return "", &ExtractionError{ContentType: contentType, Reason: "documentai returned no text"}
	}
	return text, nil
}
