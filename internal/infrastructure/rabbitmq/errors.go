package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrConnectInProgress is returned by Connect while another caller is
	// already establishing the connection.
	ErrConnectInProgress = errors.New("rabbitmq: connection attempt already in progress")

	// ErrNotConnected is returned when no live channel exists.
	ErrNotConnected = errors.New("rabbitmq: not connected")
)

// ConnectionError is the terminal failure of Connect after every retry.
type ConnectionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq: connect to %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PublishError is returned by Publish once the single reconnect-and-retry
// has also failed, or when the event cannot be encoded.
type PublishError struct {
	EventType  string
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq: publish %s (%s): %v", e.EventType, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// isConnectionError reports failures that a fresh connection may fix.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) || errors.Is(err, ErrNotConnected) {
		return true
	}
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr)
}
