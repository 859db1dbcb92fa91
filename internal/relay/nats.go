package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConn adapts a NATS connection to Conn.
type NATSConn struct {
	nc *nats.Conn
}

// Dial connects to the NATS server at url. The client reconnects forever;
// events published while disconnected are buffered by the NATS client up
// to its reconnect buffer size.
func Dial(url, name string, logger *slog.Logger) (*NATSConn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.PingInterval(20*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay: connect %s: %w", url, err)
	}
	return &NATSConn{nc: nc}, nil
}

func (c *NATSConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *NATSConn) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// Close drains pending messages and closes the connection.
func (c *NATSConn) Close() error {
	return c.nc.Drain()
}
