package store

import (
	"strings"
	"testing"
)

func TestSegmentText_Empty(t *testing.T) {
	if got := segmentText(""); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := segmentText("   \n  "); got != nil {
		t.Errorf("expected nil for whitespace, got %v", got)
	}
}

func TestSegmentText_Short(t *testing.T) {
	text := "a short note"
	got := segmentText(text)
	if len(got) != 1 || got[0] != text {
		t.Errorf("expected single segment %q, got %v", text, got)
	}
}

func TestSegmentText_SplitsParagraphs(t *testing.T) {
	para := strings.Repeat("This is a sentence. ", 15) // ~300 chars
	text := para + "\n\n" + para + "\n\n" + para

	got := segmentText(text)
	if len(got) < 2 {
		t.Fatalf("expected at least 2 segments, got %d", len(got))
	}
	for i, s := range got {
		if len(s) > segmentMax {
			t.Errorf("segment %d exceeds max: %d chars", i, len(s))
		}
	}
}

func TestSegmentText_OversizedBlock(t *testing.T) {
	// One paragraph well past the segment ceiling, with sentence boundaries.
	block := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)

	got := segmentText(block)
	if len(got) < 2 {
		t.Fatalf("expected split of oversized block, got %d segments", len(got))
	}
	for i, s := range got {
		if len(s) > segmentMax {
			t.Errorf("segment %d exceeds max: %d chars", i, len(s))
		}
	}
}

func TestSegmentText_NoBoundaries(t *testing.T) {
	// No sentence boundaries at all forces hard cuts.
	block := strings.Repeat("x", 2000)
	got := segmentText(block)
	if len(got) < 3 {
		t.Fatalf("expected hard-cut segments, got %d", len(got))
	}
	for i, s := range got {
		if len(s) > segmentMax {
			t.Errorf("segment %d exceeds max: %d chars", i, len(s))
		}
	}
}
