package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventTypeIntakeReceived is the type of events published after an intake.
const EventTypeIntakeReceived = "intake.received"

// IntakeEvent is the Kafka payload for a stored intake. It references files
// by stored name only; consumers read them from upload storage.
type IntakeEvent struct {
	Type          string      `json:"type"`
	RequestID     string      `json:"requestId"`
	Slug          string      `json:"slug,omitempty"`
	ApplicationID string      `json:"applicationId,omitempty"`
	CustomerName  string      `json:"customerName,omitempty"`
	ReceivedAt    time.Time   `json:"receivedAt"`
	Files         []EventFile `json:"files"`
}

type EventFile struct {
	Category    string `json:"category"`
	Label       string `json:"label"`
	StoredName  string `json:"storedName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes an IntakeEvent per notification, keyed by slug
// (or application id) so events of one link stay ordered in a partition.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})}
}

func eventFor(n Notification) IntakeEvent {
	ev := IntakeEvent{
		Type:          EventTypeIntakeReceived,
		RequestID:     n.RequestID,
		Slug:          n.Slug,
		ApplicationID: n.ApplicationID,
		CustomerName:  n.CustomerName,
		ReceivedAt:    n.ReceivedAt,
		Files:         make([]EventFile, 0, len(n.Files)),
	}
	for _, f := range n.Files {
		ev.Files = append(ev.Files, EventFile{
			Category:    f.Category,
			Label:       f.Label,
			StoredName:  f.StoredName,
			ContentType: f.ContentType,
			Size:        f.Size,
		})
	}
	return ev
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, n Notification) error {
	value, err := json.Marshal(eventFor(n))
	if err != nil {
		return err
	}
	key := n.Slug
	if key == "" {
		key = "app:" + n.ApplicationID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish intake event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
