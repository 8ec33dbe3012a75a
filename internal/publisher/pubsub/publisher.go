// Package pubsub publishes section notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/irc-crawler/internal/crawler"
)

// Publisher wraps a Pub/Sub client and caches topic handles.
type Publisher struct {
	client       *pubsub.Client
	defaultTopic string
	ownsClient   bool

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New connects to Pub/Sub using Application Default Credentials.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := NewWithClient(client, topicID)
	p.ownsClient = true
	return p, nil
}

// NewWithClient builds a Publisher around an existing client (primarily for testing).
func NewWithClient(client *pubsub.Client, topicID string) *Publisher {
	return &Publisher{
		client:       client,
		defaultTopic: topicID,
		topics:       make(map[string]*pubsub.Topic),
	}
}

// Publish marshals the payload to JSON and publishes it. An empty topic uses
// the default topic. Section records carry their number and run ID as
// message attributes.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{}}
	if record, ok := payload.(crawler.SectionRecord); ok {
		msg.Attributes["section_number"] = record.SectionNumber
		if record.RunID != "" {
			msg.Attributes["run_id"] = record.RunID
		}
	}

	result := p.topic(topic).Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	if name == "" {
		name = p.defaultTopic
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes pending messages and closes the client if the Publisher created it.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	if !p.ownsClient {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
