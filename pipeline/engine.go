package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ransomwatch/classifier"
	"ransomwatch/database"
	"ransomwatch/metrics"
	"ransomwatch/models"
	"ransomwatch/reports"
	"ransomwatch/scraper"
	"ransomwatch/services"
)

// Capturer takes evidence screenshots of leak pages.
type Capturer interface {
	Capture(ctx context.Context, leakURL, title string) (string, error)
}

// Stats counts what one Process call did with its records.
type Stats struct {
	Seen      int `json:"seen"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`

	Transactions   int `json:"transactions,omitempty"`
	BalanceChanges int `json:"balance_changes,omitempty"`
}

func (s *Stats) add(o Stats) {
	s.Seen += o.Seen
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Unchanged += o.Unchanged
	s.Failed += o.Failed
	s.Transactions += o.Transactions
	s.BalanceChanges += o.BalanceChanges
}

type Config struct {
	Workers int `yaml:"workers" validate:"min=1,max=64"`
}

func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Engine decides new, duplicate or changed for every feed record and applies
// the result to the store. It never delivers notifications itself: each
// Process call returns the events its writes produced.
type Engine struct {
	store      database.Store
	classifier *classifier.Classifier
	capturer   Capturer
	home       *HomeMarket
	workers    int
	locks      *keyLock
	logger     zerolog.Logger
	metrics    *metrics.Pipeline
	now        func() time.Time
}

// NewEngine builds an engine. capturer may be nil to skip screenshots.
func NewEngine(cfg Config, store database.Store, c *classifier.Classifier, capturer Capturer,
	home *HomeMarket, logger zerolog.Logger, m *metrics.Pipeline) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		store:      store,
		classifier: c,
		capturer:   capturer,
		home:       home,
		workers:    cfg.Workers,
		locks:      newKeyLock(),
		logger:     logger,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type recordResult struct {
	stats  Stats
	events []reports.Event
}

// process runs fn over n records on the worker pool, checking ctx between
// records. Results are merged in feed order.
func (e *Engine) process(ctx context.Context, n int, fn func(ctx context.Context, i int) recordResult) (Stats, []reports.Event, error) {
	results := make([]recordResult, n)

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	var stats Stats
	var events []reports.Event
	for _, r := range results {
		stats.add(r.stats)
		events = append(events, r.events...)
	}
	return stats, events, ctx.Err()
}

func (e *Engine) ProcessGroups(ctx context.Context, records []services.GroupRecord) (Stats, []reports.Event, error) {
	stats, events, err := e.process(ctx, len(records), func(ctx context.Context, i int) recordResult {
		return e.processGroup(ctx, records[i])
	})
	e.record("group", stats)
	return stats, events, err
}

func (e *Engine) processGroup(ctx context.Context, r services.GroupRecord) recordResult {
	res := recordResult{stats: Stats{Seen: 1}}
	g := groupFromRecord(r)
	key := g.Key()
	log := e.logger.With().Str("group", g.Name).Logger()

	unlock := e.locks.Lock("group\x1f" + key.String())
	defer unlock()

	exists, err := e.store.GroupExists(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("Failed to look up group")
		res.stats.Failed++
		return res
	}
	if exists {
		res.stats.Unchanged++
		return res
	}

	g.CreatedAt = e.now()
	inserted, err := e.store.InsertGroup(ctx, g)
	if err != nil {
		log.Error().Err(err).Msg("Failed to insert group")
		res.stats.Failed++
		return res
	}
	if !inserted {
		res.stats.Unchanged++
		return res
	}

	log.Info().Str("url", g.URL).Msg("New threat actor stored")
	res.stats.Inserted++
	res.events = append(res.events, reports.Event{
		Kind:  reports.KindNewActor,
		Time:  g.CreatedAt,
		Actor: &reports.ActorPayload{Name: g.Name, URL: g.URL},
	})
	return res
}

func (e *Engine) ProcessPosts(ctx context.Context, records []services.PostRecord) (Stats, []reports.Event, error) {
	stats, events, err := e.process(ctx, len(records), func(ctx context.Context, i int) recordResult {
		return e.processPost(ctx, records[i])
	})
	e.record("post", stats)
	return stats, events, err
}

func (e *Engine) processPost(ctx context.Context, r services.PostRecord) recordResult {
	res := recordResult{stats: Stats{Seen: 1}}
	post := postFromRecord(r)
	key := post.Key()
	log := e.logger.With().Str("title", post.Title).Str("actor", post.ThreatActor).Logger()

	unlock := e.locks.Lock("post\x1f" + key.String())
	defer unlock()

	existing, err := e.store.FindPost(ctx, key)
	switch {
	case err == nil:
		return e.refreshPost(ctx, existing, log)
	case !errors.Is(err, database.ErrNotFound):
		log.Error().Err(err).Msg("Failed to look up post")
		res.stats.Failed++
		return res
	}

	now := e.now()
	post.Enrichment = e.classify(post)
	post.HackDate = parseHackDate(post.Published, now)
	post.CreatedAt = now
	post.UpdatedAt = now
	post.Screenshot = e.screenshot(ctx, post, log)

	inserted, err := e.store.InsertPost(ctx, post)
	if err != nil {
		log.Error().Err(err).Msg("Failed to insert post")
		res.stats.Failed++
		return res
	}
	if !inserted {
		res.stats.Unchanged++
		return res
	}
	res.stats.Inserted++
	log.Debug().Int64("id", post.ID).Str("sector", string(post.Sector)).Msg("Post stored")

	if matched, ok := e.home.Match(post.Country, post.Website); ok {
		res.events = append(res.events, reports.Event{
			Kind: reports.KindHomeMarketPost,
			Time: now,
			Post: &reports.PostPayload{
				Title:     post.Title,
				Company:   post.CompanyName,
				Actor:     post.ThreatActor,
				Published: post.Published,
				Website:   post.Website,
				Country:   post.Country,
				LeakURL:   post.LeakURL,
				Matched:   matched,
			},
		})
	}
	return res
}

// refreshPost recomputes enrichment for a re-sighted post and writes it only
// when it differs. Core fields, the screenshot and hack date are left alone.
func (e *Engine) refreshPost(ctx context.Context, stored *models.Post, log zerolog.Logger) recordResult {
	res := recordResult{stats: Stats{Seen: 1}}

	enrichment := e.classify(stored)
	if enrichment == stored.Enrichment {
		res.stats.Unchanged++
		return res
	}

	if err := e.store.UpdateEnrichment(ctx, stored.ID, enrichment, stored.HackDate, e.now()); err != nil {
		log.Error().Err(err).Int64("id", stored.ID).Msg("Failed to refresh post enrichment")
		res.stats.Failed++
		return res
	}
	res.stats.Updated++
	return res
}

func (e *Engine) classify(p *models.Post) models.Enrichment {
	return e.classifier.Classify(classifier.Input{
		Title:       p.Title,
		Website:     p.Website,
		Description: p.Description,
		Country:     p.Country,
	})
}

func (e *Engine) screenshot(ctx context.Context, p *models.Post, log zerolog.Logger) string {
	if e.capturer == nil {
		return ""
	}

	key, err := e.capturer.Capture(ctx, p.LeakURL, p.Title)
	ref := scraper.Reference(key, err)
	if err != nil && !errors.Is(err, scraper.ErrNoURL) {
		log.Warn().Err(err).Str("leak_url", p.LeakURL).Msg("Screenshot capture failed")
	}
	e.metrics.Screenshot(screenshotResult(ref, err))
	return ref
}

func screenshotResult(ref string, err error) string {
	if err == nil {
		return "ok"
	}
	return ref
}

func (e *Engine) ProcessWallets(ctx context.Context, records []services.WalletRecord) (Stats, []reports.Event, error) {
	stats, events, err := e.process(ctx, len(records), func(ctx context.Context, i int) recordResult {
		return e.processWallet(ctx, records[i])
	})
	e.record("wallet", stats)
	e.metrics.Record("transaction", "inserted", stats.Transactions)
	e.metrics.Record("wallet", "balance_changed", stats.BalanceChanges)
	return stats, events, err
}

func (e *Engine) processWallet(ctx context.Context, r services.WalletRecord) recordResult {
	res := recordResult{stats: Stats{Seen: 1}}
	w := walletFromRecord(r, e.now())
	log := e.logger.With().Str("address", w.Address).Logger()

	if w.Address == "" {
		log.Warn().Msg("Skipping wallet without address")
		res.stats.Failed++
		return res
	}

	unlock := e.locks.Lock("wallet\x1f" + w.Address)
	defer unlock()

	stored, err := e.store.FindWallet(ctx, w.Address)
	switch {
	case err == nil:
		return e.compareBalance(ctx, stored, w, log)
	case !errors.Is(err, database.ErrNotFound):
		log.Error().Err(err).Msg("Failed to look up wallet")
		res.stats.Failed++
		return res
	}

	var txs []*models.Transaction
	for _, tr := range r.Transactions {
		tx := transactionFromRecord(tr)
		if tx.Hash == "" {
			continue
		}
		txs = append(txs, tx)
	}

	inserted, err := e.store.InsertWalletWithTransactions(ctx, w, txs)
	if err != nil {
		log.Error().Err(err).Int("transactions", len(txs)).Msg("Failed to insert wallet")
		res.stats.Failed++
		return res
	}
	if !inserted {
		res.stats.Unchanged++
		return res
	}
	res.stats.Inserted++

	// IDs are only set for rows this commit wrote.
	for _, tx := range txs {
		if tx.ID == 0 {
			continue
		}
		res.stats.Transactions++
		res.events = append(res.events, reports.Event{
			Kind: reports.KindNewTransaction,
			Time: e.now(),
			Wallet: &reports.WalletPayload{
				Address:    w.Address,
				Blockchain: w.Blockchain,
				Family:     w.Family,
				TxHash:     tx.Hash,
				AmountUSD:  tx.AmountUSD,
			},
		})
	}
	return res
}

func (e *Engine) compareBalance(ctx context.Context, stored, seen *models.Wallet, log zerolog.Logger) recordResult {
	res := recordResult{stats: Stats{Seen: 1}}
	if stored.Balance == seen.Balance {
		res.stats.Unchanged++
		return res
	}

	ev := &models.BalanceChangeEvent{
		Timestamp:     e.now(),
		WalletAddress: stored.Address,
		BalanceBefore: stored.Balance,
		BalanceAfter:  seen.Balance,
	}
	applied, err := e.store.ApplyBalanceChange(ctx, ev, seen.BalanceUSD)
	if err != nil {
		log.Error().Err(err).Msg("Failed to record balance change")
		res.stats.Failed++
		return res
	}
	if !applied {
		// Another writer moved the balance first and owns that event.
		log.Debug().Int64("before", stored.Balance).Msg("Balance changed concurrently")
		res.stats.Unchanged++
		return res
	}

	log.Info().Int64("before", ev.BalanceBefore).Int64("after", ev.BalanceAfter).Msg("Wallet balance changed")
	res.stats.Updated++
	res.stats.BalanceChanges++
	res.events = append(res.events, reports.Event{
		Kind: reports.KindBalanceChange,
		Time: ev.Timestamp,
		Wallet: &reports.WalletPayload{
			Address:       stored.Address,
			Blockchain:    stored.Blockchain,
			Family:        stored.Family,
			BalanceBefore: ev.BalanceBefore,
			BalanceAfter:  ev.BalanceAfter,
		},
	})
	return res
}

func (e *Engine) record(entity string, s Stats) {
	e.metrics.Record(entity, "inserted", s.Inserted)
	e.metrics.Record(entity, "updated", s.Updated)
	e.metrics.Record(entity, "unchanged", s.Unchanged)
	e.metrics.Record(entity, "failed", s.Failed)
}
