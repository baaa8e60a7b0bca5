package store

import (
	"context"
	"errors"

	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
)

// Chain saves to every persister in order. All of them are attempted; the
// joined error reports each failure. Because the whole chain reruns on retry,
// every member must tolerate saving the same record twice.
type Chain []execution.Persister

func (c Chain) Save(ctx context.Context, rec execution.Record) error {
	var errs []error
	for _, p := range c {
		if err := p.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
