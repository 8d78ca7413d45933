package chunker

import (
	"errors"
	"strings"
	"testing"
)

func reconstruct(t *testing.T, chunks []Chunk) string {
	t.Helper()
	var b strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		runes := []rune(c.Text)
		if c.End-c.Start != len(runes) {
			t.Fatalf("chunk %d: offsets span %d runes but text has %d", i, c.End-c.Start, len(runes))
		}
		if c.Start > prevEnd {
			t.Fatalf("chunk %d: gap between offset %d and %d", i, prevEnd, c.Start)
		}
		b.WriteString(string(runes[prevEnd-c.Start:]))
		prevEnd = c.End
	}
	return b.String()
}

func TestSplitRoundTrip(t *testing.T) {
	text := strings.Repeat("The policy requires quarterly reviews of all vendor contracts. ", 80)
	chunks, err := Split(text, 500, 50)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected chunks")
	}
	if chunks[0].Start != 0 {
		t.Fatalf("first chunk start: got=%d", chunks[0].Start)
	}
	if got := reconstruct(t, chunks); got != text {
		t.Fatalf("reconstruction mismatch: got %d chars want %d", len(got), len(text))
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("Section 4.2 applies to custodial accounts. Exceptions require sign-off. ", 60)
	a, err := Split(text, 400, 40)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	b, err := Split(text, 400, 40)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitBounds(t *testing.T) {
	text := strings.Repeat("x", 3000)
	chunks, err := Split(text, 500, 50)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for i, c := range chunks {
		n := len([]rune(c.Text))
		if n == 0 {
			t.Fatalf("chunk %d empty", i)
		}
		if n > 500 {
			t.Fatalf("chunk %d exceeds max: %d", i, n)
		}
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		if i > 0 && chunks[i-1].End-c.Start != 50 {
			t.Fatalf("chunk %d overlap: got=%d", i, chunks[i-1].End-c.Start)
		}
	}
	if last := chunks[len(chunks)-1]; last.End != 3000 {
		t.Fatalf("last chunk end: got=%d", last.End)
	}
}

func TestSplitSentenceBoundaryPreferred(t *testing.T) {
	// One sentence ends at rune 420, well past the midpoint of a 500-rune chunk.
	text := strings.Repeat("a", 419) + "." + strings.Repeat("b", 600)
	chunks, err := Split(text, 500, 50)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if chunks[0].End != 420 {
		t.Fatalf("first chunk end: want=420 got=%d", chunks[0].End)
	}
	if !strings.HasSuffix(chunks[0].Text, ".") {
		t.Fatalf("first chunk should end at sentence boundary: %q", chunks[0].Text[len(chunks[0].Text)-10:])
	}
}

func TestSplitSixThousandCharDocument(t *testing.T) {
	text := strings.Repeat("q", 6000)
	chunks, err := Split(text, 500, 50)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 13 || len(chunks) > 15 {
		t.Fatalf("chunk count: want 13-15 got=%d", len(chunks))
	}
}

func TestSplitRuneSafety(t *testing.T) {
	text := strings.Repeat("合規政策必須每季度審查。", 200)
	chunks, err := Split(text, 300, 30)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for i, c := range chunks {
		if !strings.ContainsRune(c.Text, '合') && !strings.ContainsRune(c.Text, '。') {
			t.Fatalf("chunk %d looks corrupted: %q", i, c.Text[:20])
		}
		if strings.ContainsRune(c.Text, '�') {
			t.Fatalf("chunk %d contains replacement rune", i)
		}
	}
	if got := reconstruct(t, chunks); got != text {
		t.Fatalf("reconstruction mismatch for multibyte text")
	}
}

func TestSplitErrors(t *testing.T) {
	var chunkErr *ChunkingError
	if _, err := Split("   ", 500, 50); err == nil || !errors.As(err, &chunkErr) {
		t.Fatalf("empty input: want ChunkingError got %v", err)
	}
	if _, err := Split("some text", 100, 100); err == nil || !errors.As(err, &chunkErr) {
		t.Fatalf("overlap >= max: want ChunkingError got %v", err)
	}
	if _, err := Split("some text", 0, 50); err == nil || !errors.As(err, &chunkErr) {
		t.Fatalf("zero max chunk size: want ChunkingError got %v", err)
	}
	if _, err := Split("some text", -1, 0); err == nil || !errors.As(err, &chunkErr) {
		t.Fatalf("negative max chunk size: want ChunkingError got %v", err)
	}
	if _, err := Split("some text", 100, -1); err == nil || !errors.As(err, &chunkErr) {
		t.Fatalf("negative overlap: want ChunkingError got %v", err)
	}
}
