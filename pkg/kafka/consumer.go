package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/pkg/log"
)

// Consumer dispatches Kafka messages to key-registered handlers. It
// backs both the repo-discovery intake topic and, potentially, other
// keyed topics sharing the same dispatch shape.
type Consumer struct {
	Config *cfg.Config
	Logger log.Logger

	mu       sync.RWMutex
	reader   *kafka.Reader
	topic    string
	groupID  string
	handlers map[string]func([]byte) error
}

// NewConsumer creates and returns a new Kafka Consumer.
func NewConsumer(config *cfg.Config, logger log.Logger, topic, groupID string) *Consumer {
	if len(config.Kafka.Brokers) == 0 {
		panic("no kafka brokers configured")
	}

	return &Consumer{
		Config:   config,
		Logger:   logger,
		reader:   newReader(config.Kafka.Brokers, topic, groupID),
		topic:    topic,
		groupID:  groupID,
		handlers: make(map[string]func([]byte) error),
	}
}

func newReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3,        // 10KB
		MaxBytes:       10e6,        // 10MB
		MaxWait:        time.Second, // Maximum amount of time to wait for new data
		StartOffset:    kafka.FirstOffset,
		RetentionTime:  7 * 24 * time.Hour, // 1 week
		CommitInterval: time.Second,        // Flush commits to Kafka every second
	})
}

// RegisterHandler registers a message handler for a specific message key.
func (c *Consumer) RegisterHandler(key string, handler func([]byte) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[key] = handler
}

// Reload tears down the current reader and opens a new one against
// topic/groupID, picking up the latest broker list from config. It's
// meant to be wired to cfg.ViperLoader.RegisterConfigChangeCallback so
// a running intake consumer follows a config-file edit (new broker
// addresses, a topic rename between environments) without a restart.
// In-flight Start loops pick up the swapped reader on their next
// ReadMessage call.
func (c *Consumer) Reload(config *cfg.Config, topic, groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.reader
	c.Config = config
	c.reader = newReader(config.Kafka.Brokers, topic, groupID)
	c.topic = topic
	c.groupID = groupID
	return old.Close()
}

// Topic returns the topic the consumer is currently reading from.
func (c *Consumer) Topic() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topic
}

func (c *Consumer) currentReader() *kafka.Reader {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reader
}

func (c *Consumer) handlerFor(key string) (func([]byte) error, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[key]
	return h, ok
}

// Start begins consuming messages from the Kafka topic.
func (c *Consumer) Start(ctx context.Context) error {
	c.Logger.Info(ctx, "starting kafka consumer for topic: %s", c.currentReader().Config().Topic)

	for {
		select {
		case <-ctx.Done():
			return c.currentReader().Close()
		default:
			reader := c.currentReader()
			message, err := reader.ReadMessage(ctx)
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return nil
				}
				c.Logger.Error(ctx, "error reading message: %v", err)
				continue
			}

			key := string(message.Key)
			handler, exists := c.handlerFor(key)
			if !exists {
				c.Logger.Warn(ctx, "%v", &ErrNoHandler{Key: key})
				continue
			}
			if err := handler(message.Value); err != nil {
				c.Logger.Error(ctx, "error handling message with key %s: %v", key, err)
				continue
			}
			c.Logger.Info(ctx, "successfully processed message with key: %s", key)
		}
	}
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	return c.currentReader().Close()
}
