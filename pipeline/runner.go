package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ransomwatch/database"
	"ransomwatch/metrics"
	"ransomwatch/reports"
	"ransomwatch/services"
)

type Feeds interface {
	FetchGroups(ctx context.Context) ([]services.GroupRecord, error)
	FetchPosts(ctx context.Context) ([]services.PostRecord, error)
	FetchWallets(ctx context.Context) ([]services.WalletRecord, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, events ...reports.Event) reports.DeliveryStats
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	RunID         uuid.UUID             `json:"run_id"`
	Started       time.Time             `json:"started"`
	Finished      time.Time             `json:"finished"`
	Groups        Stats                 `json:"groups"`
	Posts         Stats                 `json:"posts"`
	Wallets       Stats                 `json:"wallets"`
	Notifications reports.DeliveryStats `json:"notifications"`
	FeedErrors    map[string]string     `json:"feed_errors,omitempty"`
}

type Runner struct {
	feeds      Feeds
	engine     *Engine
	dispatcher Dispatcher
	store      database.Store
	logger     zerolog.Logger
	metrics    *metrics.Pipeline
	now        func() time.Time
}

func NewRunner(feeds Feeds, engine *Engine, dispatcher Dispatcher, store database.Store,
	logger zerolog.Logger, m *metrics.Pipeline) *Runner {
	return &Runner{
		feeds:      feeds,
		engine:     engine,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce fetches the group, post and wallet feeds in that order and ingests
// each. A failed feed is logged and skipped; only cancellation aborts the run.
func (r *Runner) RunOnce(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:      uuid.New(),
		Started:    r.now(),
		FeedErrors: map[string]string{},
	}
	log := r.logger.With().Str("run_id", report.RunID.String()).Logger()
	log.Info().Msg("Starting ingestion run")

	defer func() {
		report.Finished = r.now()
		r.metrics.ObserveRun(report.Finished.Sub(report.Started))
	}()

	groups, err := r.feeds.FetchGroups(ctx)
	r.metrics.FeedFetch(services.FeedGroups, err)
	if err != nil {
		r.feedFailed(log, report, services.FeedGroups, err)
	} else {
		stats, events, err := r.engine.ProcessGroups(ctx, groups)
		report.Groups = stats
		r.dispatch(ctx, report, events)
		if err != nil {
			return report, err
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	posts, err := r.feeds.FetchPosts(ctx)
	r.metrics.FeedFetch(services.FeedPosts, err)
	if err != nil {
		r.feedFailed(log, report, services.FeedPosts, err)
	} else {
		stats, events, err := r.engine.ProcessPosts(ctx, posts)
		report.Posts = stats
		r.dispatch(ctx, report, events)
		if err != nil {
			return report, err
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	wallets, err := r.feeds.FetchWallets(ctx)
	r.metrics.FeedFetch(services.FeedWallets, err)
	if err != nil {
		r.feedFailed(log, report, services.FeedWallets, err)
		r.dispatch(ctx, report, []reports.Event{{
			Kind:   reports.KindSourceUnreachable,
			Time:   r.now(),
			Source: &reports.SourcePayload{Feed: services.FeedWallets, Error: err.Error()},
		}})
	} else {
		stats, events, err := r.engine.ProcessWallets(ctx, wallets)
		report.Wallets = stats
		r.dispatch(ctx, report, events)
		if err != nil {
			return report, err
		}
	}

	log.Info().
		Interface("groups", report.Groups).
		Interface("posts", report.Posts).
		Interface("wallets", report.Wallets).
		Int("notified", report.Notifications.Sent).
		Int("notify_failed", report.Notifications.Failed).
		Msg("Ingestion run finished")
	return report, ctx.Err()
}

func (r *Runner) feedFailed(log zerolog.Logger, report *RunReport, feed string, err error) {
	log.Error().Err(err).Str("feed", feed).Msg("Feed fetch failed, skipping")
	report.FeedErrors[feed] = err.Error()
}

func (r *Runner) dispatch(ctx context.Context, report *RunReport, events []reports.Event) {
	if len(events) == 0 || r.dispatcher == nil {
		return
	}
	// Deliveries for writes that already committed still go out when the run
	// is cancelled mid-way.
	st := r.dispatcher.Dispatch(context.WithoutCancel(ctx), events...)
	report.Notifications.Sent += st.Sent
	report.Notifications.Failed += st.Failed
}

// SendDailySummary computes the store aggregates and dispatches them as a
// daily summary event.
func (r *Runner) SendDailySummary(ctx context.Context) (reports.DeliveryStats, error) {
	summary, err := r.store.Stats(ctx, 5)
	if err != nil {
		return reports.DeliveryStats{}, err
	}
	if r.dispatcher == nil {
		return reports.DeliveryStats{}, nil
	}
	st := r.dispatcher.Dispatch(ctx, reports.SummaryEvent(summary, r.now()))
	r.logger.Info().Int("total_posts", summary.TotalPosts).Int("sent", st.Sent).Msg("Daily summary dispatched")
	return st, nil
}
