package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate Chunker config
	if c.Chunker.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	// Validate Match config
	if c.Match.ContextThreshold <= 0 || c.Match.ContextThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "match.context_threshold",
			Message: "context_threshold must be in (0, 1]",
		})
	}

	if c.Match.ShortNeedleThreshold < c.Match.ContextThreshold || c.Match.ShortNeedleThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "match.short_needle_threshold",
			Message: "short_needle_threshold must be at least context_threshold and at most 1",
		})
	}

	if c.Match.ChunkThreshold <= 0 || c.Match.ChunkThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "match.chunk_threshold",
			Message: "chunk_threshold must be in (0, 1]",
		})
	}

	if c.Match.ContextRadius < 1 {
		errors = append(errors, ValidationError{
			Field:   "match.context_radius",
			Message: "context_radius must be positive",
		})
	}

	if c.Match.ChunkWindow < 0 {
		errors = append(errors, ValidationError{
			Field:   "match.chunk_window",
			Message: "chunk_window must be non-negative",
		})
	}

	// Validate Recovery config
	if c.Recovery.ReviewThreshold <= 0 || c.Recovery.ReviewThreshold >= c.Recovery.SuccessThreshold {
		errors = append(errors, ValidationError{
			Field:   "recovery.review_threshold",
			Message: "review_threshold must be positive and below success_threshold",
		})
	}

	if c.Recovery.SuccessThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "recovery.success_threshold",
			Message: "success_threshold must be at most 1",
		})
	}

	if c.Recovery.Workers < 0 {
		errors = append(errors, ValidationError{
			Field:   "recovery.workers",
			Message: "workers must be non-negative",
		})
	}

	// Validate Pipeline config
	if c.Pipeline.MinRecoveryRate < 0 || c.Pipeline.MinRecoveryRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.min_recovery_rate",
			Message: "min_recovery_rate must be between 0 and 1",
		})
	}

	if c.Pipeline.BudgetPerAnnotation < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.budget_per_annotation_ms",
			Message: "budget_per_annotation_ms must be positive",
		})
	}

	if c.Pipeline.BudgetFloor < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.budget_floor_ms",
			Message: "budget_floor_ms must be positive",
		})
	}

	if c.Pipeline.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
