package match

import (
	"strings"

	"github.com/xhad/reanchor/internal/models"
)

// Candidate is a proposed re-anchoring: a span in the new body plus a
// confidence score and the tier that produced it.
type Candidate struct {
	Start      int
	End        int
	Confidence float64
	Method     models.RecoveryMethod
}

// Result is a Candidate plus the edit-distance cell count spent finding it.
// The count is what makes the bounded-vs-unbounded search cost measurable.
type Result struct {
	Candidate
	Comparisons int
}

// Hints carries the optional recovery aids stored with an annotation.
// ChunkIndex is the annotation's original chunk ordinal and Offset its stale
// start offset in the previous body, both -1 when unknown; Chunks is the new
// (staged) chunk set it is resolved against.
type Hints struct {
	Context    *models.AnnotationContext
	ChunkIndex int
	Offset     int
	Chunks     []models.Chunk
}

// ContextOnly builds hints with just the context windows.
func ContextOnly(ctx *models.AnnotationContext) Hints {
	return Hints{Context: ctx, ChunkIndex: -1, Offset: -1}
}

// Config holds the per-tier acceptance thresholds. These gate whether a tier's
// candidate is taken; they are not the classification bands applied later.
type Config struct {
	ContextThreshold     float64 // context tier acceptance, default 0.85
	ShortNeedleThreshold float64 // raised context threshold for short needles, default 0.90
	ShortNeedleLen       int     // needles below this length use the raised threshold, default 50
	ContextRadius        int     // bytes scanned either side of the stale offset, default 2000
	ChunkThreshold       float64 // chunk-bounded tier acceptance, default 0.75
	ChunkWindow          int     // chunks searched either side of the original ordinal, default 2
}

// Engine runs the four-tier matching cascade: exact substring, context-guided
// edit distance, chunk-bounded edit distance, trigram fallback. Tiers are an
// ordered list; each is tried only if the previous one failed its gate.
type Engine struct {
	config Config
	tiers  []matcher
}

type matcher interface {
	attempt(needle, haystack string, hints Hints) (Candidate, int, bool)
}

func NewWithConfig(config Config) *Engine {
	if config.ContextThreshold == 0 {
		config.ContextThreshold = 0.85
	}
	if config.ShortNeedleThreshold == 0 {
		config.ShortNeedleThreshold = 0.90
	}
	if config.ShortNeedleLen == 0 {
		config.ShortNeedleLen = 50
	}
	if config.ContextRadius == 0 {
		config.ContextRadius = 2000
	}
	if config.ChunkThreshold == 0 {
		config.ChunkThreshold = 0.75
	}
	if config.ChunkWindow == 0 {
		config.ChunkWindow = 2
	}

	e := &Engine{config: config}
	e.tiers = []matcher{
		exactMatcher{},
		contextMatcher{config: config},
		chunkMatcher{config: config},
		trigramMatcher{},
	}
	return e
}

func New() *Engine {
	return NewWithConfig(Config{})
}

// Match resolves needle against haystack, trying each tier in order. The
// trigram fallback returns the best span it can find regardless of score, so
// a lost result means the inputs were unusable or nothing overlapped at all.
func (e *Engine) Match(needle string, hints Hints, haystack string) Result {
	lost := Result{Candidate: Candidate{Confidence: 0, Method: models.MethodLost}}

	if strings.TrimSpace(needle) == "" || haystack == "" {
		return lost
	}

	comparisons := 0
	for _, tier := range e.tiers {
		cand, cost, ok := tier.attempt(needle, haystack, hints)
		comparisons += cost
		if ok {
			return Result{Candidate: cand, Comparisons: comparisons}
		}
	}

	lost.Comparisons = comparisons
	return lost
}

// exactMatcher is tier 1: a literal substring scan, first occurrence wins.
type exactMatcher struct{}

func (exactMatcher) attempt(needle, haystack string, _ Hints) (Candidate, int, bool) {
	idx := strings.Index(haystack, needle)
	if idx < 0 {
		return Candidate{}, 0, false
	}
	return Candidate{
		Start:      idx,
		End:        idx + len(needle),
		Confidence: 1.0,
		Method:     models.MethodExact,
	}, 0, true
}
