package driven

import (
	"context"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
)

// FieldProvider evaluates the field and its partial derivatives at query
// points. Implementations may be slow (a surrogate model behind a network or
// a GPU), so every call takes a context and must honor cancellation.
type FieldProvider interface {
	// Evaluate returns one Sample per point, each carrying the field value
	// and every requested derivative. Out-of-domain points fail with
	// domain.ErrEvaluation.
	Evaluate(ctx context.Context, points []domain.Point, derivatives []string) ([]domain.Sample, error)
}
