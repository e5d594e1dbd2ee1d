package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/kaigo-note/api/internal/platform/textutil"
	"github.com/kaigo-note/api/internal/services"
)

// PubSubImportPublisher publishes import-completed events to a Pub/Sub topic.
type PubSubImportPublisher struct {
	topic   *pubsub.Topic
	attrs   map[string]string
	marshal func(any) ([]byte, error)
}

// PublisherOption customises the publisher behaviour.
type PublisherOption func(*PubSubImportPublisher)

// WithStaticAttributes attaches fixed attributes to every published message.
func WithStaticAttributes(attrs map[string]string) PublisherOption {
	return func(p *PubSubImportPublisher) {
		p.attrs = textutil.NormalizeStringMap(attrs)
	}
}

// NewPubSubImportPublisher constructs a Pub/Sub backed import event publisher.
func NewPubSubImportPublisher(topic *pubsub.Topic, opts ...PublisherOption) (*PubSubImportPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub import publisher: topic is required")
	}
	publisher := &PubSubImportPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(publisher)
		}
	}
	return publisher, nil
}

// PublishImportCompleted enqueues an import completion message on the configured topic.
func (p *PubSubImportPublisher) PublishImportCompleted(ctx context.Context, message services.ImportCompletedMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub import publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal import completed event: %w", err)
	}

	attrs := make(map[string]string, len(p.attrs)+3)
	for key, value := range p.attrs {
		attrs[key] = value
	}
	attrs["event"] = "import.completed"
	attrs["importId"] = message.ImportID
	attrs["imported"] = strconv.Itoa(message.Imported)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish import completed event: %w", err)
	}
	return id, nil
}
