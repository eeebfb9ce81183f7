package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/maison-luxe/storefront/internal/services"
)

// FanoutPublisher delivers each event to every configured sink. Every sink is attempted even
// when an earlier one fails.
type FanoutPublisher struct {
	sinks []namedSink
}

type namedSink struct {
	name      string
	publisher services.OrderEventPublisher
}

var _ services.OrderEventPublisher = (*FanoutPublisher)(nil)

// NewFanoutPublisher returns an empty fan-out.
func NewFanoutPublisher() *FanoutPublisher {
	return &FanoutPublisher{}
}

// Add registers a sink under name. Nil publishers are ignored.
func (f *FanoutPublisher) Add(name string, publisher services.OrderEventPublisher) *FanoutPublisher {
	if publisher != nil {
		f.sinks = append(f.sinks, namedSink{name: name, publisher: publisher})
	}
	return f
}

// Len reports how many sinks are registered.
func (f *FanoutPublisher) Len() int {
	return len(f.sinks)
}

// PublishOrderCompleted returns the first sink's reference and the joined sink errors.
func (f *FanoutPublisher) PublishOrderCompleted(ctx context.Context, event services.OrderCompletedEvent) (string, error) {
	var (
		ref  string
		errs []error
	)
	for _, sink := range f.sinks {
		id, err := sink.publisher.PublishOrderCompleted(ctx, event)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.name, err))
			continue
		}
		if ref == "" {
			ref = id
		}
	}
	return ref, errors.Join(errs...)
}
