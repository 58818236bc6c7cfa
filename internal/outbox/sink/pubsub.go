package sink

import (
	"context"

	"cloud.google.com/go/pubsub"
	"github.com/lendstack/underwriting/internal/outbox/publisher"
)

// PubSubSink delivers outbox events to a Google Cloud Pub/Sub topic. All
// events go to the one configured topic; the logical topic and event type
// travel as message attributes so consumers can filter.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &PubSubSink{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (s *PubSubSink) Publish(ctx context.Context, topic, eventType string, payload []byte, headers map[string]string) error {
	attrs := map[string]string{
		"topic":      topic,
		"event_type": eventType,
	}
	for k, v := range headers {
		attrs[k] = v
	}

	res := s.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attrs,
	})

	_, err := res.Get(ctx)
	return err
}

func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}

var _ publisher.PublishFunc = (&PubSubSink{}).Publish
