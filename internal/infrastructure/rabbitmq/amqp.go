package rabbitmq

import (
	"context"
	"crypto/tls"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the service uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	IsClosed() bool
	Close() error
}

// Conn is the subset of *amqp.Connection the service uses.
type Conn interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection. DialAMQP is the production dialer.
type Dialer func(url string, cfg amqp.Config) (Conn, error)

func DialAMQP(url string, cfg amqp.Config) (Conn, error) {
	c, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return amqpConn{c}, nil
}

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *Connection) amqpConfig() amqp.Config {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.cfg.ServiceName + "-service-" + string(c.cfg.Role))
	props["product"] = "MSPR-Produits"

	cfg := amqp.Config{
		Heartbeat:  c.cfg.Heartbeat,
		Locale:     "en_US",
		Properties: props,
	}
	if c.cfg.ConnectTimeout > 0 {
		cfg.Dial = amqp.DefaultDial(c.cfg.ConnectTimeout)
	}
	if c.cfg.TLSInsecureSkipVerify {
		cfg.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // managed brokers behind self-signed proxies
	}
	return cfg
}
