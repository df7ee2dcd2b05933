package match

import (
	"github.com/xhad/reanchor/internal/models"
)

// contextMatcher is tier 2: an edit-distance scan for before+needle+after.
// The surrounding windows anchor selections whose own text was reworded.
// When the stale offset is known the scan is bounded to ContextRadius bytes
// either side of it; edits rarely move a selection further than that, and
// the chunk and trigram tiers still follow when they do.
type contextMatcher struct {
	config Config
}

func (m contextMatcher) attempt(needle, haystack string, hints Hints) (Candidate, int, bool) {
	if hints.Context == nil || (hints.Context.Before == "" && hints.Context.After == "") {
		return Candidate{}, 0, false
	}

	threshold := m.config.ContextThreshold
	if len(needle) < m.config.ShortNeedleLen {
		threshold = m.config.ShortNeedleThreshold
	}

	combined := hints.Context.Before + needle + hints.Context.After

	region, regionStart := haystack, 0
	if hints.Offset >= 0 {
		lo := hints.Offset - len(hints.Context.Before) - m.config.ContextRadius
		hi := hints.Offset + len(needle) + len(hints.Context.After) + m.config.ContextRadius
		if lo < 0 {
			lo = 0
		}
		if hi > len(haystack) {
			hi = len(haystack)
		}
		if lo < hi {
			region, regionStart = haystack[lo:hi], lo
		}
	}

	start, sim, cells := slidingSearch(normalizeFuzzy(combined), normalizeFuzzy(region))
	if start < 0 || sim < threshold {
		return Candidate{}, cells, false
	}

	selStart := regionStart + start + len(hints.Context.Before)
	selEnd := selStart + len(needle)
	if selEnd > len(haystack) {
		selEnd = len(haystack)
	}
	return Candidate{
		Start:      selStart,
		End:        selEnd,
		Confidence: sim,
		Method:     models.MethodContext,
	}, cells, true
}

// chunkMatcher is tier 3: the same sliding edit-distance scan, but restricted
// to a few chunks around the annotation's original ordinal in the new chunk
// list. Bounding the region is what keeps recovery tractable on large bodies.
type chunkMatcher struct {
	config Config
}

func (m chunkMatcher) attempt(needle, haystack string, hints Hints) (Candidate, int, bool) {
	if hints.ChunkIndex < 0 || len(hints.Chunks) == 0 {
		return Candidate{}, 0, false
	}

	lo := hints.ChunkIndex - m.config.ChunkWindow
	hi := hints.ChunkIndex + m.config.ChunkWindow
	if lo < 0 {
		lo = 0
	}
	if hi > len(hints.Chunks)-1 {
		hi = len(hints.Chunks) - 1
	}
	if lo > len(hints.Chunks)-1 {
		lo = len(hints.Chunks) - 1
	}

	regionStart := hints.Chunks[lo].StartOffset
	regionEnd := hints.Chunks[hi].EndOffset
	if regionStart < 0 {
		regionStart = 0
	}
	if regionEnd > len(haystack) {
		regionEnd = len(haystack)
	}
	if regionStart >= regionEnd {
		return Candidate{}, 0, false
	}

	region := haystack[regionStart:regionEnd]
	start, sim, cells := slidingSearch(normalizeFuzzy(needle), normalizeFuzzy(region))
	if start < 0 || sim < m.config.ChunkThreshold {
		return Candidate{}, cells, false
	}

	selStart := regionStart + start
	selEnd := selStart + len(needle)
	if selEnd > len(haystack) {
		selEnd = len(haystack)
	}
	return Candidate{
		Start:      selStart,
		End:        selEnd,
		Confidence: sim,
		Method:     models.MethodChunkBounded,
	}, cells, true
}
