package database

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"ransomwatch/models"
)

var (
	bucketPosts           = []byte("posts")
	bucketPostKeys        = []byte("post_keys")
	bucketHackedCompanies = []byte("hacked_companies")
	bucketGroups          = []byte("groups")
	bucketWallets         = []byte("wallets")
	bucketTransactions    = []byte("transactions")
	bucketBalanceChanges  = []byte("balance_changes")
)

// Bolt is a single-file Store for running without Postgres. Every write runs
// inside one bbolt update transaction, which bbolt serializes, so the key
// checks below are as authoritative as a unique constraint.
type Bolt struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketPosts, bucketPostKeys, bucketHackedCompanies, bucketGroups,
			bucketWallets, bucketTransactions, bucketBalanceChanges,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func itob(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func putJSON(bucket *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put(key, data)
}

func (b *Bolt) FindPost(_ context.Context, key models.PostKey) (*models.Post, error) {
	var post *models.Post
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketPostKeys).Get([]byte(key.String()))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketPosts).Get(id)
		if data == nil {
			return ErrNotFound
		}
		post = &models.Post{}
		return json.Unmarshal(data, post)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (b *Bolt) InsertPost(_ context.Context, p *models.Post) (bool, error) {
	inserted := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(bucketPostKeys)
		key := []byte(p.Key().String())
		if keys.Get(key) != nil {
			return nil
		}

		posts := tx.Bucket(bucketPosts)
		seq, err := posts.NextSequence()
		if err != nil {
			return err
		}
		row := *p
		row.ID = int64(seq)

		if err := putJSON(posts, itob(seq), &row); err != nil {
			return err
		}
		if err := keys.Put(key, itob(seq)); err != nil {
			return err
		}
		if err := putHackedCompany(tx, &row); err != nil {
			return err
		}

		p.ID = row.ID
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert post: %w", err)
	}
	return inserted, nil
}

func putHackedCompany(tx *bbolt.Tx, p *models.Post) error {
	bucket := tx.Bucket(bucketHackedCompanies)
	key := itob(uint64(p.ID))

	hc := models.NewHackedCompany(p)
	hc.ID = p.ID
	if data := bucket.Get(key); data != nil {
		var prev models.HackedCompany
		if err := json.Unmarshal(data, &prev); err == nil {
			hc.CreatedAt = prev.CreatedAt
		}
	}
	return putJSON(bucket, key, hc)
}

func (b *Bolt) UpdateEnrichment(_ context.Context, id int64, e models.Enrichment, hackDate, updatedAt time.Time) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		posts := tx.Bucket(bucketPosts)
		data := posts.Get(itob(uint64(id)))
		if data == nil {
			return ErrNotFound
		}

		var post models.Post
		if err := json.Unmarshal(data, &post); err != nil {
			return fmt.Errorf("decode post %d: %w", id, err)
		}
		post.Enrichment = e
		post.HackDate = hackDate
		post.UpdatedAt = updatedAt

		if err := putJSON(posts, itob(uint64(id)), &post); err != nil {
			return err
		}
		return putHackedCompany(tx, &post)
	})
}

// HackedCompany returns the enrichment row of a post.
func (b *Bolt) HackedCompany(_ context.Context, postID int64) (*models.HackedCompany, error) {
	var hc *models.HackedCompany
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketHackedCompanies).Get(itob(uint64(postID)))
		if data == nil {
			return ErrNotFound
		}
		hc = &models.HackedCompany{}
		return json.Unmarshal(data, hc)
	})
	if err != nil {
		return nil, err
	}
	return hc, nil
}

func (b *Bolt) ListPosts(_ context.Context, filter models.PostFilter) ([]models.Post, error) {
	limit := listLimit(filter.Limit)
	var out []models.Post

	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPosts).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var post models.Post
			if err := json.Unmarshal(v, &post); err != nil {
				return fmt.Errorf("decode post: %w", err)
			}
			if filter.Sector != "" && post.Sector != filter.Sector {
				continue
			}
			if filter.Country != "" && post.Country != filter.Country {
				continue
			}
			if filter.ThreatActor != "" && post.ThreatActor != filter.ThreatActor {
				continue
			}
			out = append(out, post)
			if len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (b *Bolt) WalkPosts(ctx context.Context, fn func(*models.Post) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPosts).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var post models.Post
			if err := json.Unmarshal(v, &post); err != nil {
				return fmt.Errorf("decode post: %w", err)
			}
			return fn(&post)
		})
	})
}

func (b *Bolt) GroupExists(_ context.Context, key models.GroupKey) (bool, error) {
	exists := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketGroups).Get([]byte(key.String())) != nil
		return nil
	})
	return exists, err
}

func (b *Bolt) InsertGroup(_ context.Context, g *models.Group) (bool, error) {
	inserted := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		groups := tx.Bucket(bucketGroups)
		key := []byte(g.Key().String())
		if groups.Get(key) != nil {
			return nil
		}
		seq, err := groups.NextSequence()
		if err != nil {
			return err
		}
		row := *g
		row.ID = int64(seq)
		if err := putJSON(groups, key, &row); err != nil {
			return err
		}
		g.ID = row.ID
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert group: %w", err)
	}
	return inserted, nil
}

func (b *Bolt) FindWallet(_ context.Context, address string) (*models.Wallet, error) {
	var w *models.Wallet
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketWallets).Get([]byte(address))
		if data == nil {
			return ErrNotFound
		}
		w = &models.Wallet{}
		return json.Unmarshal(data, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (b *Bolt) InsertWalletWithTransactions(_ context.Context, w *models.Wallet, txs []*models.Transaction) (bool, error) {
	inserted := false
	var walletID int64
	txIDs := make([]int64, len(txs))

	err := b.db.Update(func(tx *bbolt.Tx) error {
		wallets := tx.Bucket(bucketWallets)
		if wallets.Get([]byte(w.Address)) != nil {
			return nil
		}
		seq, err := wallets.NextSequence()
		if err != nil {
			return err
		}
		row := *w
		row.ID = int64(seq)
		if err := putJSON(wallets, []byte(w.Address), &row); err != nil {
			return err
		}
		walletID = row.ID

		bucket := tx.Bucket(bucketTransactions)
		for i, t := range txs {
			if t.Hash == "" {
				return fmt.Errorf("transaction %d: %w", i, ErrMissingHash)
			}
			if bucket.Get([]byte(t.Hash)) != nil {
				continue
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			trow := *t
			trow.ID = int64(seq)
			trow.WalletID = walletID
			if err := putJSON(bucket, []byte(t.Hash), &trow); err != nil {
				return err
			}
			txIDs[i] = trow.ID
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert wallet: %w", err)
	}
	if inserted {
		w.ID = walletID
		for i, t := range txs {
			t.WalletID = walletID
			t.ID = txIDs[i]
		}
	}
	return inserted, nil
}

func (b *Bolt) ApplyBalanceChange(_ context.Context, ev *models.BalanceChangeEvent, balanceUSD float64) (bool, error) {
	applied := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		wallets := tx.Bucket(bucketWallets)
		data := wallets.Get([]byte(ev.WalletAddress))
		if data == nil {
			return ErrNotFound
		}
		var w models.Wallet
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("decode wallet: %w", err)
		}
		if w.Balance != ev.BalanceBefore {
			return nil
		}

		w.Balance = ev.BalanceAfter
		w.BalanceUSD = balanceUSD
		w.UpdatedAt = ev.Timestamp
		if err := putJSON(wallets, []byte(w.Address), &w); err != nil {
			return err
		}

		events := tx.Bucket(bucketBalanceChanges)
		seq, err := events.NextSequence()
		if err != nil {
			return err
		}
		row := *ev
		row.ID = int64(seq)
		if err := putJSON(events, itob(seq), &row); err != nil {
			return err
		}
		ev.ID = row.ID
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply balance change: %w", err)
	}
	return applied, nil
}

func (b *Bolt) BalanceChanges(_ context.Context, address string) ([]models.BalanceChangeEvent, error) {
	var out []models.BalanceChangeEvent
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBalanceChanges).ForEach(func(_, v []byte) error {
			var ev models.BalanceChangeEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			if ev.WalletAddress == address {
				out = append(out, ev)
			}
			return nil
		})
	})
	return out, err
}

func (b *Bolt) Stats(_ context.Context, top int) (*models.Summary, error) {
	var s models.Summary
	sectors := map[string]int{}
	countries := map[string]int{}
	actors := map[string]int{}
	impacts := map[string]int{}
	companies := map[string]struct{}{}

	err := b.db.View(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketPosts).ForEach(func(_, v []byte) error {
			var post models.Post
			if err := json.Unmarshal(v, &post); err != nil {
				return err
			}
			s.TotalPosts++
			if post.CompanyName != "" {
				companies[post.CompanyName] = struct{}{}
			}
			count(sectors, string(post.Sector))
			count(countries, post.Country)
			count(actors, post.ThreatActor)
			count(impacts, string(post.ImpactLevel))
			return nil
		})
		if err != nil {
			return err
		}

		s.TotalGroups = tx.Bucket(bucketGroups).Stats().KeyN
		s.TotalWallets = tx.Bucket(bucketWallets).Stats().KeyN
		s.TotalTransactions = tx.Bucket(bucketTransactions).Stats().KeyN
		s.BalanceChanges = tx.Bucket(bucketBalanceChanges).Stats().KeyN
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}

	s.UniqueCompanies = len(companies)
	s.TopSectors = topBuckets(sectors, top)
	s.TopCountries = topBuckets(countries, top)
	s.TopThreatActors = topBuckets(actors, top)
	s.ImpactLevels = topBuckets(impacts, 0)
	return &s, nil
}

func count(m map[string]int, label string) {
	if label != "" {
		m[label]++
	}
}

// topBuckets orders by count descending then label, matching the SQL backend.
func topBuckets(m map[string]int, top int) []models.Bucket {
	out := make([]models.Bucket, 0, len(m))
	for label, n := range m {
		out = append(out, models.Bucket{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}
