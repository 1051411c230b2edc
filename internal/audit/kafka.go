package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher fans committed audit entries out to a Kafka topic for
// SIEM-style consumers. The relational ledger remains the source of truth;
// this path is best-effort.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects a franz-go client to the given brokers.
// Returns nil if no brokers are configured (fan-out disabled).
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// record is the JSON shape published per entry.
type record struct {
	ID           string            `json:"id"`
	ActorID      string            `json:"actor_id"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	ModuleKey    string            `json:"module_key,omitempty"`
	ActionKey    string            `json:"action_key,omitempty"`
	ActionType   string            `json:"action_type"`
	RiskLevel    string            `json:"risk_level"`
	Details      map[string]string `json:"details,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

// Publish produces one entry synchronously. Keyed by actor so per-actor
// ordering survives partitioning.
func (p *KafkaPublisher) Publish(ctx context.Context, entry Entry) error {
	payload := record{
		ID:         entry.ID.String(),
		ActorID:    entry.ActorID.String(),
		ModuleKey:  entry.ModuleKey,
		ActionKey:  entry.ActionKey,
		ActionType: string(entry.ActionType),
		RiskLevel:  string(entry.RiskLevel),
		Details:    entry.Details,
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.TargetUserID != nil {
		payload.TargetUserID = entry.TargetUserID.String()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	result := p.client.ProduceSync(ctx, &kgo.Record{
		Topic: p.topic,
		Key:   []byte(payload.ActorID),
		Value: value,
	})
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// Close flushes and releases the Kafka client.
func (p *KafkaPublisher) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}
