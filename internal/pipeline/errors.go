package pipeline

import (
	"fmt"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// StageError identifies which pipeline stage failed.
type StageError struct {
	Stage domain.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
