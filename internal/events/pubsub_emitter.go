package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/redact"
)

// PubSubEmitter publishes events as JSON messages to a Pub/Sub topic.
// Arguments are masked before publishing.
type PubSubEmitter struct {
	client    *pubsub.Client
	topic     *pubsub.Topic
	ownClient bool
}

// NewPubSubEmitter connects to projectID and publishes to topicID.
func NewPubSubEmitter(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*PubSubEmitter, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: pubsub client: %w", err)
	}
	e := NewPubSubEmitterFromClient(client, topicID)
	e.ownClient = true
	return e, nil
}

// NewPubSubEmitterFromClient publishes through an existing client. Close
// stops the topic but leaves the client open.
func NewPubSubEmitterFromClient(client *pubsub.Client, topicID string) *PubSubEmitter {
	return &PubSubEmitter{
		client: client,
		topic:  client.Topic(topicID),
	}
}

// Emit publishes ev and waits for the server acknowledgement.
func (e *PubSubEmitter) Emit(ctx context.Context, ev model.GovernanceEvent) error {
	masked := ev
	masked.Arguments = redact.RedactAuto(ev.Arguments, nil)
	if ev.HoldRequest != nil {
		hr := *ev.HoldRequest
		hr.Arguments = redact.RedactAuto(hr.Arguments, nil)
		masked.HoldRequest = &hr
	}

	data, err := json.Marshal(masked)
	if err != nil {
		return fmt.Errorf("events: marshal event %s: %w", ev.EventID, err)
	}

	res := e.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id": ev.EventID,
			"agent_id": ev.AgentID,
			"tool":     ev.Tool,
			"decision": string(ev.Decision),
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("events: publish event %s: %w", ev.EventID, err)
	}
	return nil
}

// Close flushes pending messages and releases the client when owned.
func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	if e.ownClient {
		return e.client.Close()
	}
	return nil
}
