// Package classifier assigns a ticket to one category of the closed set.
package classifier

import (
	"context"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// Classifier maps ticket text onto a category.
type Classifier interface {
	Classify(ctx context.Context, subject, message string) (domain.Category, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, subject, message string) (domain.Category, error)

func (f Func) Classify(ctx context.Context, subject, message string) (domain.Category, error) {
	return f(ctx, subject, message)
}
