package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// NATSNotifier publishes every event as JSON on <subject>.<kind> for
// downstream consumers.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

func ConnectNATS(cfg NATSConfig) (*NATSNotifier, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(botName),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return NewNATSNotifier(conn, cfg.Subject), nil
}

func NewNATSNotifier(conn *nats.Conn, subject string) *NATSNotifier {
	if subject == "" {
		subject = "ransomwatch.events"
	}
	return &NATSNotifier{conn: conn, subject: subject}
}

func (n *NATSNotifier) Name() string { return "nats" }

func (n *NATSNotifier) Notify(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject+"."+string(ev.Kind), data); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATSNotifier) Close() {
	n.conn.Close()
}
