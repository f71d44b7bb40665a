// Package pubsub is the best-effort topic bus that links server instances.
// Nothing here persists; a subscriber only sees what is published while it
// is subscribed.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"clubimpact/config"
	"clubimpact/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus wraps a watermill publisher/subscriber pair.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func New(publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{publisher: publisher, subscriber: subscriber, logger: logger}
}

// NewMemory fans out within this process only.
func NewMemory(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NewSlogLogger(logger))
	return New(ch, ch, logger)
}

// Open builds the bus selected by cfg.Driver.
func Open(cfg config.BusConfig, logger *slog.Logger) (*Bus, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(logger), nil
	case "nats":
		return NewNATS(cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.Driver)
	}
}

// Publish sends payload to every current subscriber of topic. Failures are
// wrapped in domain.ErrTransientBus.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("%w: publish %s: %v", domain.ErrTransientBus, topic, err)
	}
	b.logger.DebugContext(ctx, "published", slog.String("topic", topic), slog.Int("bytes", len(payload)))
	return nil
}

// Subscribe returns messages for topic until ctx is cancelled or the
// transport drops the subscription; the channel is closed in both cases.
// Receivers must Ack every message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrTransientBus, topic, err)
	}
	return msgs, nil
}

func (b *Bus) Close() error {
	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	// gochannel uses one value for both sides.
	if any(b.subscriber) != any(b.publisher) {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
