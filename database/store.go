package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ransomwatch/models"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrMissingHash = errors.New("transaction has no hash")
)

// Store is the record store the pipeline writes and the dashboard reads.
//
// Every Insert method reports inserted=false, with a nil error, when a row
// with the same natural key already exists. The unique key is enforced by the
// backend itself, so concurrent writers can race safely.
type Store interface {
	FindPost(ctx context.Context, key models.PostKey) (*models.Post, error)
	// InsertPost writes the post and its hacked-company row atomically and
	// sets p.ID on success.
	InsertPost(ctx context.Context, p *models.Post) (bool, error)
	// UpdateEnrichment rewrites only the classifier-derived fields of a post
	// and its hacked-company row.
	UpdateEnrichment(ctx context.Context, id int64, e models.Enrichment, hackDate, updatedAt time.Time) error
	ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error)
	// WalkPosts calls fn for every stored post in ID order and stops at the
	// first error fn returns.
	WalkPosts(ctx context.Context, fn func(*models.Post) error) error

	GroupExists(ctx context.Context, key models.GroupKey) (bool, error)
	InsertGroup(ctx context.Context, g *models.Group) (bool, error)

	FindWallet(ctx context.Context, address string) (*models.Wallet, error)
	// InsertWalletWithTransactions writes the wallet and its transactions in
	// one commit and sets w.ID. Each written transaction gets its ID and
	// WalletID set; one whose hash is already stored keeps ID zero. Nothing
	// is written when any step fails.
	InsertWalletWithTransactions(ctx context.Context, w *models.Wallet, txs []*models.Transaction) (bool, error)
	// ApplyBalanceChange moves the wallet from ev.BalanceBefore to
	// ev.BalanceAfter and appends ev, in one step. It reports false when the
	// stored balance no longer equals ev.BalanceBefore.
	ApplyBalanceChange(ctx context.Context, ev *models.BalanceChangeEvent, balanceUSD float64) (bool, error)
	BalanceChanges(ctx context.Context, address string) ([]models.BalanceChangeEvent, error)

	Stats(ctx context.Context, top int) (*models.Summary, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver string `yaml:"driver" validate:"oneof=postgres bolt"`
	DSN    string `yaml:"dsn" validate:"required_if=Driver postgres"`
	Path   string `yaml:"path" validate:"required_if=Driver bolt"`
}

// Open connects to the configured backend and brings its schema up to date.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "bolt":
		b, err := OpenBolt(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Path).Msg("Opened bolt store")
		return b, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Bolt)(nil)
)
