package classifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// Fallback tries each classifier in order and returns the first success.
type Fallback struct {
	classifiers []Classifier
	logger      *zap.Logger
}

// NewFallback builds a chain. logger may be nil.
func NewFallback(logger *zap.Logger, classifiers ...Classifier) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{classifiers: classifiers, logger: logger}
}

func (f *Fallback) Classify(ctx context.Context, subject, message string) (domain.Category, error) {
	if len(f.classifiers) == 0 {
		return "", errors.New("no classifiers configured")
	}
	var errs []error
	for i, c := range f.classifiers {
		category, err := c.Classify(ctx, subject, message)
		if err == nil {
			return category, nil
		}
		// A cancelled ticket stays cancelled; later classifiers would see the same ctx.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Join(append(errs, err)...)
		}
		f.logger.Warn("classifier failed, trying next", zap.Int("position", i), zap.Error(err))
		errs = append(errs, fmt.Errorf("classifier %d: %w", i, err))
	}
	return "", errors.Join(errs...)
}
