// Package events fans task mutations out to interested subscribers.
package events

import (
	"context"
	"errors"

	"taskboard-server/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, event domain.TaskEvent) error
}

// Multi delivers every event to each publisher in turn. One failing
// publisher does not stop the others; the errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event domain.TaskEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, domain.TaskEvent) error { return nil }
