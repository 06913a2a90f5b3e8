package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"ransomwatch/models"
)

var postColumns = []string{
	"id", "title", "threat_actor", "description", "discovered", "published",
	"COALESCE(leak_url, '') AS leak_url", "country", "activity", "website", "duplicates",
	"screenshot", "company_name", "sector", "company_size", "impact_level", "employee_count",
	"revenue_range", "industry_category", "data_type_leaked", "hack_date", "created_at", "updated_at",
}

const walletColumns = "id, address, balance, balance_usd, blockchain, family, created_at, updated_at"

func (p *Postgres) FindPost(ctx context.Context, key models.PostKey) (*models.Post, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(postColumns...)
	sb.From("posts")
	sb.Where(
		sb.Equal("title", key.Title),
		sb.Equal("discovered", key.Discovered),
		sb.Equal("published", key.Published),
		sb.Equal("website", key.Website),
		sb.Equal("country", key.Country),
	)

	query, args := sb.Build()
	var post models.Post
	if err := p.db.GetContext(ctx, &post, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding post: %w", err)
	}
	return &post, nil
}

func (p *Postgres) InsertPost(ctx context.Context, post *models.Post) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("posts")
	ib.Cols("title", "threat_actor", "description", "discovered", "published", "leak_url",
		"country", "activity", "website", "duplicates", "screenshot", "company_name", "sector",
		"company_size", "impact_level", "employee_count", "revenue_range", "industry_category",
		"data_type_leaked", "hack_date", "created_at", "updated_at")
	ib.Values(post.Title, post.ThreatActor, post.Description, post.Discovered, post.Published,
		sql.NullString{String: post.LeakURL, Valid: post.LeakURL != ""},
		post.Country, post.Activity, post.Website, post.Duplicates, post.Screenshot, post.CompanyName,
		post.Sector, post.CompanySize, post.ImpactLevel, post.EmployeeCount, post.RevenueRange,
		post.IndustryCategory, post.DataTypeLeaked, post.HackDate, post.CreatedAt, post.UpdatedAt)
	ib.SQL("ON CONFLICT ON CONSTRAINT posts_dedup_key DO NOTHING")
	ib.Returning("id")

	query, args := ib.Build()
	var id int64
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting post: %w", err)
	}

	if err := upsertHackedCompany(ctx, tx, id); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing post: %w", err)
	}

	post.ID = id
	return true, nil
}

// upsertHackedCompany projects the stored post row into hacked_companies.
const upsertHackedCompanyQuery = `
	INSERT INTO hacked_companies (
		post_id, company_name, country_code, sector, company_size, hack_date, threat_actor,
		data_type_leaked, impact_level, company_website, revenue_range, employee_count,
		industry_category, created_at, updated_at)
	SELECT id, company_name, COALESCE(NULLIF(country, ''), 'Unknown'), sector, company_size, hack_date,
		COALESCE(NULLIF(threat_actor, ''), 'Unknown'), data_type_leaked, impact_level, website,
		revenue_range, employee_count, industry_category, created_at, updated_at
	FROM posts WHERE id = $1
	ON CONFLICT (post_id) DO UPDATE SET
		company_name = EXCLUDED.company_name,
		sector = EXCLUDED.sector,
		company_size = EXCLUDED.company_size,
		hack_date = EXCLUDED.hack_date,
		data_type_leaked = EXCLUDED.data_type_leaked,
		impact_level = EXCLUDED.impact_level,
		revenue_range = EXCLUDED.revenue_range,
		employee_count = EXCLUDED.employee_count,
		industry_category = EXCLUDED.industry_category,
		updated_at = EXCLUDED.updated_at`

func upsertHackedCompany(ctx context.Context, tx *sqlx.Tx, postID int64) error {
	if _, err := tx.ExecContext(ctx, upsertHackedCompanyQuery, postID); err != nil {
		return fmt.Errorf("writing hacked company for post %d: %w", postID, err)
	}
	return nil
}

func (p *Postgres) UpdateEnrichment(ctx context.Context, id int64, e models.Enrichment, hackDate, updatedAt time.Time) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("posts")
	ub.Set(
		ub.Assign("company_name", e.CompanyName),
		ub.Assign("sector", e.Sector),
		ub.Assign("company_size", e.CompanySize),
		ub.Assign("impact_level", e.ImpactLevel),
		ub.Assign("employee_count", e.EmployeeCount),
		ub.Assign("revenue_range", e.RevenueRange),
		ub.Assign("industry_category", e.IndustryCategory),
		ub.Assign("data_type_leaked", e.DataTypeLeaked),
		ub.Assign("hack_date", hackDate),
		ub.Assign("updated_at", updatedAt),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating enrichment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := upsertHackedCompany(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing enrichment: %w", err)
	}
	return nil
}

func (p *Postgres) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(postColumns...)
	sb.From("posts")

	var where []string
	if filter.Sector != "" {
		where = append(where, sb.Equal("sector", filter.Sector))
	}
	if filter.Country != "" {
		where = append(where, sb.Equal("country", filter.Country))
	}
	if filter.ThreatActor != "" {
		where = append(where, sb.Equal("threat_actor", filter.ThreatActor))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(listLimit(filter.Limit))

	query, args := sb.Build()
	var posts []models.Post
	if err := p.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

func (p *Postgres) WalkPosts(ctx context.Context, fn func(*models.Post) error) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(postColumns...)
	sb.From("posts")
	sb.OrderBy("id")

	query, args := sb.Build()
	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("walking posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var post models.Post
		if err := rows.StructScan(&post); err != nil {
			return fmt.Errorf("scanning post: %w", err)
		}
		if err := fn(&post); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *Postgres) GroupExists(ctx context.Context, key models.GroupKey) (bool, error) {
	var exists bool
	err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM threat_groups WHERE name = $1 AND url = $2)`, key.Name, key.URL)
	if err != nil {
		return false, fmt.Errorf("checking group: %w", err)
	}
	return exists, nil
}

func (p *Postgres) InsertGroup(ctx context.Context, g *models.Group) (bool, error) {
	query := `
	INSERT INTO threat_groups (name, url, meta, locations, profile, tools, ttps, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT ON CONSTRAINT threat_groups_name_url DO NOTHING
	RETURNING id`

	err := p.db.GetContext(ctx, &g.ID, query,
		g.Name, g.URL, g.Meta, g.Locations, g.Profile, g.Tools, g.TTPs, g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting group: %w", err)
	}
	return true, nil
}

func (p *Postgres) FindWallet(ctx context.Context, address string) (*models.Wallet, error) {
	var w models.Wallet
	err := p.db.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding wallet: %w", err)
	}
	return &w, nil
}

func (p *Postgres) InsertWalletWithTransactions(ctx context.Context, w *models.Wallet, txs []*models.Transaction) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var walletID int64
	err = tx.GetContext(ctx, &walletID, `
	INSERT INTO wallets (address, balance, balance_usd, blockchain, family, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (address) DO NOTHING
	RETURNING id`,
		w.Address, w.Balance, w.BalanceUSD, w.Blockchain, w.Family, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting wallet: %w", err)
	}

	txIDs := make([]int64, len(txs))
	for i, t := range txs {
		if t.Hash == "" {
			return false, fmt.Errorf("transaction %d: %w", i, ErrMissingHash)
		}
		err := tx.GetContext(ctx, &txIDs[i], `
		INSERT INTO transactions (wallet_id, hash, time, amount, amount_usd)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hash) DO NOTHING
		RETURNING id`,
			walletID, t.Hash, t.Time, t.Amount, t.AmountUSD)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("inserting transaction %s: %w", t.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing wallet: %w", err)
	}
	w.ID = walletID
	for i, t := range txs {
		t.WalletID = walletID
		t.ID = txIDs[i]
	}
	return true, nil
}

func (p *Postgres) ApplyBalanceChange(ctx context.Context, ev *models.BalanceChangeEvent, balanceUSD float64) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
	UPDATE wallets SET balance = $1, balance_usd = $2, updated_at = $3
	WHERE address = $4 AND balance = $5`,
		ev.BalanceAfter, balanceUSD, ev.Timestamp, ev.WalletAddress, ev.BalanceBefore)
	if err != nil {
		return false, fmt.Errorf("updating wallet balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	err = tx.GetContext(ctx, &ev.ID, `
	INSERT INTO balance_change_events (timestamp, wallet_address, balance_before, balance_after)
	VALUES ($1, $2, $3, $4)
	RETURNING id`,
		ev.Timestamp, ev.WalletAddress, ev.BalanceBefore, ev.BalanceAfter)
	if err != nil {
		return false, fmt.Errorf("recording balance change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing balance change: %w", err)
	}
	return true, nil
}

func (p *Postgres) BalanceChanges(ctx context.Context, address string) ([]models.BalanceChangeEvent, error) {
	var events []models.BalanceChangeEvent
	err := p.db.SelectContext(ctx, &events, `
	SELECT id, timestamp, wallet_address, balance_before, balance_after
	FROM balance_change_events WHERE wallet_address = $1 ORDER BY id`, address)
	if err != nil {
		return nil, fmt.Errorf("listing balance changes: %w", err)
	}
	return events, nil
}

func (p *Postgres) Stats(ctx context.Context, top int) (*models.Summary, error) {
	var s models.Summary
	row := p.db.QueryRowxContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM posts),
		(SELECT COUNT(DISTINCT company_name) FROM posts WHERE company_name <> ''),
		(SELECT COUNT(*) FROM threat_groups),
		(SELECT COUNT(*) FROM wallets),
		(SELECT COUNT(*) FROM transactions),
		(SELECT COUNT(*) FROM balance_change_events)`)
	if err := row.Scan(&s.TotalPosts, &s.UniqueCompanies, &s.TotalGroups,
		&s.TotalWallets, &s.TotalTransactions, &s.BalanceChanges); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	var err error
	if s.TopSectors, err = p.buckets(ctx, "sector", top); err != nil {
		return nil, err
	}
	if s.TopCountries, err = p.buckets(ctx, "country", top); err != nil {
		return nil, err
	}
	if s.TopThreatActors, err = p.buckets(ctx, "threat_actor", top); err != nil {
		return nil, err
	}
	if s.ImpactLevels, err = p.buckets(ctx, "impact_level", 0); err != nil {
		return nil, err
	}
	return &s, nil
}

// buckets groups posts by column, largest first. top <= 0 returns every group.
func (p *Postgres) buckets(ctx context.Context, column string, top int) ([]models.Bucket, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(column+" AS label", "COUNT(*) AS count")
	sb.From("posts")
	sb.Where(sb.NotEqual(column, ""))
	sb.GroupBy(column)
	sb.OrderBy("count DESC", "label ASC")
	if top > 0 {
		sb.Limit(top)
	}

	query, args := sb.Build()
	var out []models.Bucket
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("grouping posts by %s: %w", column, err)
	}
	return out, nil
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}
