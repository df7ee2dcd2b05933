package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageRead means the document body or database rows could not be
	// fetched. Raised before staging; nothing was mutated.
	ErrStorageRead = errors.New("storage read failed")

	// ErrRecoveryRateTooLow means too few annotations auto-recovered and the
	// run rolled back. The caller still receives the full results.
	ErrRecoveryRateTooLow = errors.New("recovery rate below commit threshold")

	// ErrRecoveryBudgetExceeded means the recovery pass outran its wall-clock
	// budget. The staged generation was discarded; retrying is safe.
	ErrRecoveryBudgetExceeded = errors.New("recovery budget exceeded")

	// ErrTransactionAborted means the commit transaction failed and the prior
	// generation is still current. Retrying the whole reprocess is safe.
	ErrTransactionAborted = errors.New("commit transaction aborted")
)

// StageError wraps a failure with the pipeline state it happened in, so a
// caller deciding whether to retry knows how far the run got.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("reprocessing failed while %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
