package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/maxscroll/internal/hit"
)

// Topic is the subset of *pubsub.Topic used by PubSubSink.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
	Stop()
}

// PubSubSink publishes each hit as a JSON message to a Pub/Sub topic.
type PubSubSink struct {
	topic Topic
}

// NewPubSubSink wraps topic.
func NewPubSubSink(topic Topic) *PubSubSink {
	return &PubSubSink{topic: topic}
}

// Consume publishes the batch and waits for every publish result. Errors are
// joined so one failing hit does not hide the others.
func (s *PubSubSink) Consume(ctx context.Context, batch []hit.Hit) error {
	if s.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	results := make([]*pubsub.PublishResult, 0, len(batch))
	var errs []error
	for _, h := range batch {
		data, err := json.Marshal(h)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal hit %s: %w", h.ID, err))
			continue
		}
		msg := &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"hit_id":    h.ID,
				"hit_type":  h.Type,
				"client_id": h.ClientID,
			},
		}
		otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})
		results = append(results, s.topic.Publish(ctx, msg))
	}
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, fmt.Errorf("publish hit: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes outstanding publishes and stops the topic's goroutines.
func (s *PubSubSink) Close(context.Context) error {
	if s.topic != nil {
		s.topic.Stop()
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
