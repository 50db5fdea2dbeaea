package store

import "strings"

// Segment sizing for the search projection. Long plaintext is split into
// indexable segments so full-text matches stay local to a passage.
const (
	segmentTarget = 400
	segmentMax    = 600
)

// segmentText splits the plaintext search projection into segments for
// indexing. Short text yields a single segment.
func segmentText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= segmentMax {
		return []string{text}
	}

	var segments []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			segments = append(segments, s)
		}
		current.Reset()
	}

	for _, block := range splitBlocks(text) {
		if current.Len() > 0 && current.Len()+len(block) > segmentTarget {
			flush()
		}
		if len(block) > segmentMax {
			flush()
			for _, part := range splitOversized(block) {
				segments = append(segments, part)
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
	}
	flush()

	return segments
}

// splitBlocks splits text into paragraphs on blank lines.
func splitBlocks(text string) []string {
	var blocks []string
	for _, b := range strings.Split(text, "\n\n") {
		b = strings.TrimSpace(b)
		if b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// splitOversized breaks a single oversized block on sentence boundaries,
// falling back to a hard cut when no boundary is near.
func splitOversized(block string) []string {
	var parts []string
	for len(block) > segmentMax {
		cut := strings.LastIndexAny(block[:segmentMax], ".!?\n")
		if cut < segmentTarget/2 {
			cut = segmentMax - 1
		}
		parts = append(parts, strings.TrimSpace(block[:cut+1]))
		block = strings.TrimSpace(block[cut+1:])
	}
	if block != "" {
		parts = append(parts, block)
	}
	return parts
}
