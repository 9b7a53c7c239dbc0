package kafka

import "fmt"

// ErrMarshal means a value handed to Publish couldn't be encoded as
// JSON. The caller's event type is malformed; retrying won't help.
type ErrMarshal struct {
	Topic string
	Cause error
}

func (e *ErrMarshal) Error() string {
	return fmt.Sprintf("kafka: marshal message for topic %s: %v", e.Topic, e.Cause)
}
func (e *ErrMarshal) Unwrap() error { return e.Cause }

// ErrDispatch means the broker round trip itself failed: the write
// never reached Kafka, or Kafka rejected it.
type ErrDispatch struct {
	Topic string
	Cause error
}

func (e *ErrDispatch) Error() string {
	return fmt.Sprintf("kafka: dispatch to topic %s: %v", e.Topic, e.Cause)
}
func (e *ErrDispatch) Unwrap() error { return e.Cause }

// ErrUnmarshal means a message read off a topic didn't decode into the
// handler's expected payload shape. The handler should drop the
// message rather than retry it forever.
type ErrUnmarshal struct {
	Topic string
	Key   string
	Cause error
}

func (e *ErrUnmarshal) Error() string {
	return fmt.Sprintf("kafka: unmarshal message key=%s topic=%s: %v", e.Key, e.Topic, e.Cause)
}
func (e *ErrUnmarshal) Unwrap() error { return e.Cause }

// ErrNoHandler means a message arrived keyed for a handler that was
// never registered. The consumer logs and moves on rather than
// blocking the partition on it.
type ErrNoHandler struct{ Key string }

func (e *ErrNoHandler) Error() string { return "kafka: no handler registered for key " + e.Key }
