package kafka

import (
	"context"
	"encoding/json"

	appchat "shopme/internal/app/chat"
)

const chatEventsTopic = "chat.events"

// ChatEvents publishes chat lifecycle events for downstream consumers.
// Keyed by conversation id so one conversation's events stay ordered
// within a partition.
type ChatEvents struct {
	Producer    *Producer
	TopicPrefix string
}

func (p ChatEvents) Publish(ctx context.Context, ev appchat.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := ev.ConversationID
	if key == "" {
		key = ev.Kind
	}
	return p.Producer.Publish(ctx, p.TopicPrefix+chatEventsTopic, key, payload)
}

var _ appchat.EventPublisher = ChatEvents{}
