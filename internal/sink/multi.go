package sink

import (
	"context"
	"errors"

	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

// Publisher is implemented by every sink in this package.
type Publisher interface {
	Publish(ctx context.Context, snap models.StudySnapshot) error
}

// Multi fans a snapshot out to several sinks and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, snap models.StudySnapshot) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that supports it.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if c, ok := p.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
