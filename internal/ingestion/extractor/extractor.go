package extractor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TextExtractor turns raw document bytes into analyzable plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

type ExtractionError struct {
	ContentType string
	Reason      string
	Cause       error
}

func (e *ExtractionError) Error() string {
	if e == nil {
		return "text extraction failed"
	}
	return fmt.Sprintf("text extraction failed (content_type=%s): %s", e.ContentType, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// PlainTextExtractor handles text-native formats directly.
type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (p *PlainTextExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", &ExtractionError{ContentType: contentType, Reason: "empty document"}
	}
	if !utf8.Valid(data) {
		return "", &ExtractionError{ContentType: contentType, Reason: "document is not valid UTF-8 text"}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", &ExtractionError{ContentType: contentType, Reason: "document contains no text"}
	}
	return text, nil
}

func isTextNative(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case ct == "application/json", ct == "application/csv":
		return true
	case ct == "":
		// Unknown content type: try text first, the extractor rejects binary.
		return true
	default:
		return false
	}
}

// Composite routes text-native formats to the plain extractor and everything
// else (PDF, scans, office formats) to the structured-document extractor.
type Composite struct {
	plain      *PlainTextExtractor
	structured TextExtractor
}

func NewComposite(structured TextExtractor) *Composite {
	return &Composite{
		plain:      NewPlainTextExtractor(),
		structured: structured,
	}
}

func (c *Composite) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if isTextNative(contentType) {
		return c.plain.Extract(ctx, data, contentType)
	}
	if c.structured == nil {
		return "", &ExtractionError{
			ContentType: contentType,
			Reason:      "no structured-document extractor configured",
		}
	}
	return c.structured.Extract(ctx, data, contentType)
}
