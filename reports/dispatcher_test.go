package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"ransomwatch/metrics"
	"ransomwatch/models"
)

type fakeNotifier struct {
	name string
	err  error

	mu     sync.Mutex
	events []Event
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestDispatchDefaultsToEveryPlatform(t *testing.T) {
	discord := &fakeNotifier{name: "discord"}
	slack := &fakeNotifier{name: "slack"}
	d := NewDispatcher([]Notifier{discord, slack}, nil, time.Second, 4, zerolog.Nop(), nil)

	stats := d.Dispatch(context.Background(), actorEvent, actorEvent)

	assert.Equal(t, DeliveryStats{Sent: 4}, stats)
	assert.Equal(t, 2, discord.count())
	assert.Equal(t, 2, slack.count())
}

func TestDispatchHonoursRoutes(t *testing.T) {
	discord := &fakeNotifier{name: "discord"}
	email := &fakeNotifier{name: "email"}
	routes := map[Kind][]string{
		KindDailySummary: {"email", "teams"},
		KindNewActor:     {"discord"},
	}
	d := NewDispatcher([]Notifier{discord, email}, routes, time.Second, 4, zerolog.Nop(), nil)

	d.Dispatch(context.Background(), actorEvent, SummaryEvent(&models.Summary{}, time.Now()))

	assert.Equal(t, 1, discord.count())
	assert.Equal(t, 1, email.count())
	assert.Equal(t, KindDailySummary, email.events[0].Kind)
}

func TestDispatchFailuresAreCountedNotReturned(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	bad := &fakeNotifier{name: "slack", err: errors.New("webhook down")}
	good := &fakeNotifier{name: "discord"}
	d := NewDispatcher([]Notifier{bad, good}, nil, time.Second, 1, zerolog.Nop(), m)

	stats := d.Dispatch(context.Background(), actorEvent)

	assert.Equal(t, DeliveryStats{Sent: 1, Failed: 1}, stats)
	assert.InDelta(t, 1, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("slack", "new_actor", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("discord", "new_actor", "ok")), 0)
}

func TestDispatchWithoutNotifiers(t *testing.T) {
	d := NewDispatcher(nil, nil, 0, 0, zerolog.Nop(), nil)
	assert.Equal(t, DeliveryStats{}, d.Dispatch(context.Background(), actorEvent))
	assert.Empty(t, d.Platforms())
}

func TestGenerateJSON(t *testing.T) {
	s := &models.Summary{TotalPosts: 2, TopSectors: []models.Bucket{{Label: "health", Count: 2}}}
	data, err := GenerateJSON(s, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"generated_at": "2024-05-01T00:00:00Z"`)
	assert.Contains(t, string(data), `"total_posts": 2`)
}

func TestSummaryTextListsImpactLevels(t *testing.T) {
	s := &models.Summary{
		TotalPosts:   5,
		ImpactLevels: []models.Bucket{{Label: "high", Count: 3}, {Label: "medium", Count: 2}},
	}
	text := SummaryEvent(s, time.Now()).Text()
	assert.Contains(t, text, "Impact levels: high: 3, medium: 2")

	text = SummaryEvent(&models.Summary{TotalPosts: 1}, time.Now()).Text()
	assert.NotContains(t, text, "Impact levels")
}
