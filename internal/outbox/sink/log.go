package sink

import (
	"context"

	"github.com/lendstack/underwriting/internal/outbox/publisher"
	"go.uber.org/zap"
)

// NewLogPublisher returns a sink that writes events to the structured log.
// Useful for local development and as the default when no broker is
// configured.
func NewLogPublisher(log *zap.Logger) publisher.PublishFunc {
	sinkLog := log.Named("outbox.sink.log")
	return func(ctx context.Context, topic, eventType string, payload []byte, headers map[string]string) error {
		_ = ctx
		sinkLog.Info("publish",
			zap.String("topic", topic),
			zap.String("event_type", eventType),
			zap.ByteString("payload", payload),
			zap.Any("headers", headers),
		)
		return nil
	}
}
