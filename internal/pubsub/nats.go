package pubsub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	nc "github.com/nats-io/nats.go"
)

// NewNATS connects to core NATS (JetStream disabled: the bus carries no
// history). No queue group is set, so every instance receives every message.
func NewNATS(url string, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wlogger := watermill.NewSlogLogger(logger)
	marshaler := &wmnats.NATSMarshaler{}
	options := []nc.Option{
		nc.Name("clubimpact"),
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(time.Second),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			logger.Info("nats reconnected", slog.String("url", conn.ConnectedUrl()))
		}),
	}
	jetStream := wmnats.JetStreamConfig{Disabled: true}

	publisher, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         url,
		NatsOptions: options,
		Marshaler:   marshaler,
		JetStream:   jetStream,
	}, wlogger)
	if err != nil {
		logger.Error("Failed to create NATS publisher", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	subscriber, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		CloseTimeout:     10 * time.Second,
		AckWaitTimeout:   10 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		NatsOptions:      options,
		Unmarshaler:      marshaler,
		JetStream:        jetStream,
	}, wlogger)
	if err != nil {
		_ = publisher.Close()
		logger.Error("Failed to create NATS subscriber", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
	}
	return New(publisher, subscriber, logger), nil
}
