package reports

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ransomwatch/metrics"
)

type WebhookConfig struct {
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
}

type Config struct {
	Discord     WebhookConfig     `yaml:"discord"`
	Slack       WebhookConfig     `yaml:"slack"`
	Teams       WebhookConfig     `yaml:"teams"`
	Email       EmailConfig       `yaml:"email"`
	NATS        NATSConfig        `yaml:"nats"`
	Routes      map[Kind][]string `yaml:"routes"`
	Timeout     time.Duration     `yaml:"timeout" validate:"min=1s,max=120s"`
	Concurrency int               `yaml:"concurrency" validate:"min=1"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		Concurrency: 8,
	}
}

// DeliveryStats counts the outcome of one Dispatch call.
type DeliveryStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher fans events out to the configured platforms. Delivery is
// concurrent and best-effort: failures are logged and counted, never returned.
type Dispatcher struct {
	notifiers map[string]Notifier
	routes    map[Kind][]string
	timeout   time.Duration
	limit     int
	logger    zerolog.Logger
	metrics   *metrics.Pipeline
}

// NewDispatcher routes each Kind to the platforms named in routes. A Kind
// without a route goes to every notifier.
func NewDispatcher(notifiers []Notifier, routes map[Kind][]string, timeout time.Duration, limit int,
	logger zerolog.Logger, m *metrics.Pipeline) *Dispatcher {
	byName := make(map[string]Notifier, len(notifiers))
	for _, n := range notifiers {
		byName[n.Name()] = n
	}
	if limit < 1 {
		limit = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifiers: byName,
		routes:    routes,
		timeout:   timeout,
		limit:     limit,
		logger:    logger,
		metrics:   m,
	}
}

// FromConfig builds a dispatcher for every platform with settings. The
// returned func releases platform connections.
func FromConfig(cfg Config, logger zerolog.Logger, m *metrics.Pipeline) (*Dispatcher, func()) {
	var notifiers []Notifier
	closer := func() {}

	if cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Timeout))
	}
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Timeout))
	}
	if cfg.Teams.WebhookURL != "" {
		notifiers = append(notifiers, NewTeamsNotifier(cfg.Teams.WebhookURL, cfg.Timeout))
	}
	if cfg.Email.Enabled() {
		notifiers = append(notifiers, NewEmailNotifier(cfg.Email))
	}
	if cfg.NATS.URL != "" {
		nn, err := ConnectNATS(cfg.NATS)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS notifications disabled")
		} else {
			notifiers = append(notifiers, nn)
			closer = nn.Close
		}
	}

	d := NewDispatcher(notifiers, cfg.Routes, cfg.Timeout, cfg.Concurrency, logger, m)
	logger.Info().Strs("platforms", d.Platforms()).Msg("Notification dispatcher ready")
	return d, closer
}

func (d *Dispatcher) Platforms() []string {
	names := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) targets(kind Kind) []Notifier {
	names, routed := d.routes[kind]
	if !routed {
		names = d.Platforms()
	}

	out := make([]Notifier, 0, len(names))
	for _, name := range names {
		n, ok := d.notifiers[name]
		if !ok {
			d.logger.Debug().Str("platform", name).Str("kind", string(kind)).Msg("Route names an unconfigured platform")
			continue
		}
		out = append(out, n)
	}
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) DeliveryStats {
	var sent, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)

	for _, ev := range events {
		for _, n := range d.targets(ev.Kind) {
			g.Go(func() error {
				dctx, cancel := context.WithTimeout(gctx, d.timeout)
				defer cancel()

				err := n.Notify(dctx, ev)
				d.metrics.Notification(n.Name(), string(ev.Kind), err)
				if err != nil {
					failed.Add(1)
					d.logger.Warn().Err(err).
						Str("platform", n.Name()).
						Str("kind", string(ev.Kind)).
						Msg("Notification delivery failed")
					return nil
				}
				sent.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	return DeliveryStats{Sent: int(sent.Load()), Failed: int(failed.Load())}
}
