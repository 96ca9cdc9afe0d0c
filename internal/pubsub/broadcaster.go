package pubsub

import (
	"context"
	"errors"
)

type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}

// Fanout publishes to every broadcaster and joins their errors
type Fanout []Broadcaster

func (f Fanout) Publish(ctx context.Context, subject string, data interface{}) error {
	var errs []error
	for _, b := range f {
		if err := b.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Health(ctx context.Context) error {
	var errs []error
	for _, b := range f {
		if err := b.Health(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
