package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/pkg/log"
)

// Producer publishes domain lifecycle events onto a configured topic
// for downstream consumers outside the collector's own Postgres store.
// The only event this module publishes is the issue soft-delete
// (PublishIssueSoftDeleted).
type Producer struct {
	Config *cfg.Config
	Logger log.Logger

	mu     sync.RWMutex
	topic  string
	writer *kafka.Writer
}

// Message is the structure of messages sent to Kafka.
type Message struct {
	Key   string
	Value interface{}
}

// IssueSoftDeleted is published when reverifyIssues or the
// comments-404 path marks a previously-found issue missing, so a
// downstream system (search index, notification fan-out) can react to
// the disappearance without polling the collector's own tables.
type IssueSoftDeleted struct {
	RepoFullName string    `json:"repo_full_name"`
	IssueNumber  int64     `json:"issue_number"`
	DetectedAt   time.Time `json:"detected_at"`
}

// NewProducer creates and returns a new Kafka Producer bound to topic.
func NewProducer(config *cfg.Config, logger log.Logger, topic string) *Producer {
	if len(config.Kafka.Brokers) == 0 {
		panic("no kafka brokers configured")
	}

	return &Producer{
		Config: config,
		Logger: logger,
		topic:  topic,
		writer: newWriter(config.Kafka.Brokers, topic),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
}

// SwitchTopic closes the current writer and opens a new one against
// topic, letting a long-running producer move to an environment- or
// tenant-specific topic (e.g. on a config reload) without restarting
// the process that owns it.
func (p *Producer) SwitchTopic(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == p.topic {
		return nil
	}
	old := p.writer
	p.writer = newWriter(p.Config.Kafka.Brokers, topic)
	p.topic = topic
	return old.Close()
}

// Publish sends a value to the Kafka topic under key, JSON-encoded.
func (p *Producer) Publish(ctx context.Context, key string, value interface{}) error {
	p.mu.RLock()
	writer := p.writer
	topic := p.topic
	p.mu.RUnlock()

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return &ErrMarshal{Topic: topic, Cause: err}
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonBytes,
		Time:  time.Now(),
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return &ErrDispatch{Topic: topic, Cause: err}
	}

	return nil
}

// PublishIssueSoftDeleted is the collector worker's hook into the
// event topic: it fires once an issue's disappearance has been
// confirmed, whether by a comments-page 404 or a targeted re-read.
func (p *Producer) PublishIssueSoftDeleted(ctx context.Context, repoFullName string, issueNumber int64, detectedAt time.Time) error {
	event := IssueSoftDeleted{RepoFullName: repoFullName, IssueNumber: issueNumber, DetectedAt: detectedAt}
	if err := p.Publish(ctx, "issue_soft_deleted", event); err != nil {
		p.Logger.Warn(ctx, "failed to publish issue_soft_deleted for %s#%d: %v", repoFullName, issueNumber, err)
		return err
	}
	return nil
}

// Topic returns the topic currently targeted by Publish.
func (p *Producer) Topic() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.topic
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writer.Close()
}
