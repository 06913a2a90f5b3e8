package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ransomwatch/models"
)

func openTestBolt(t *testing.T) *Bolt {
	t.Helper()

	b, err := OpenBolt(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b
}

func testPost(title string) *models.Post {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Post{
		Title:       title,
		ThreatActor: "lockbit3",
		Discovered:  "2024-05-01 10:00:00",
		Published:   "2024-05-01 09:00:00",
		Website:     "acme.com.tr",
		HackDate:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
		Enrichment: models.Enrichment{
			CompanyName: "Acme",
			Sector:      models.SectorOther,
			CompanySize: models.SizeMedium,
			ImpactLevel: models.ImpactMedium,
		},
	}
}

func TestBoltInsertPostDedup(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	first := testPost("Acme Corp")
	inserted, err := b.InsertPost(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, first.ID)

	again := testPost("Acme Corp")
	inserted, err = b.InsertPost(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Zero(t, again.ID)

	// Any differing key field makes a distinct disclosure.
	other := testPost("Acme Corp")
	other.Country = "TR"
	inserted, err = b.InsertPost(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	found, err := b.FindPost(ctx, first.Key())
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "Acme", found.CompanyName)

	_, err = b.FindPost(ctx, models.PostKey{Title: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltInsertPostConcurrent(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := b.InsertPost(ctx, testPost("Race Inc"))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestBoltHackedCompanyFollowsPost(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	p := testPost("Acme Corp")
	_, err := b.InsertPost(ctx, p)
	require.NoError(t, err)

	hc, err := b.HackedCompany(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnknownCountry, hc.CountryCode)
	assert.Equal(t, "lockbit3", hc.ThreatActor)
	assert.Equal(t, models.SectorOther, hc.Sector)

	later := p.UpdatedAt.Add(time.Hour)
	e := p.Enrichment
	e.Sector = models.SectorHealth
	require.NoError(t, b.UpdateEnrichment(ctx, p.ID, e, p.HackDate, later))

	hc, err = b.HackedCompany(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SectorHealth, hc.Sector)
	assert.True(t, hc.UpdatedAt.Equal(later))
	assert.True(t, hc.CreatedAt.Equal(p.CreatedAt))

	assert.ErrorIs(t, b.UpdateEnrichment(ctx, 999, e, later, later), ErrNotFound)
}

func TestBoltGroups(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	g := &models.Group{Name: "akira", URL: "http://akira.onion"}
	exists, err := b.GroupExists(ctx, g.Key())
	require.NoError(t, err)
	assert.False(t, exists)

	inserted, err := b.InsertGroup(ctx, g)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = b.InsertGroup(ctx, &models.Group{Name: "akira", URL: "http://akira.onion"})
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err = b.GroupExists(ctx, g.Key())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBoltBalanceChangeCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	w := &models.Wallet{Address: "0xABC", Balance: 100, Blockchain: "ethereum", Family: "lockbit"}
	inserted, err := b.InsertWalletWithTransactions(ctx, w, nil)
	require.NoError(t, err)
	require.True(t, inserted)

	ev := &models.BalanceChangeEvent{
		Timestamp:     time.Now().UTC(),
		WalletAddress: "0xABC",
		BalanceBefore: 100,
		BalanceAfter:  150,
	}
	applied, err := b.ApplyBalanceChange(ctx, ev, 42.5)
	require.NoError(t, err)
	assert.True(t, applied)

	// A stale "before" no longer matches the stored balance.
	stale := *ev
	stale.ID = 0
	applied, err = b.ApplyBalanceChange(ctx, &stale, 42.5)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := b.FindWallet(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, int64(150), stored.Balance)
	assert.InDelta(t, 42.5, stored.BalanceUSD, 0.0001)

	events, err := b.BalanceChanges(ctx, "0xABC")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(100), events[0].BalanceBefore)
	assert.Equal(t, int64(150), events[0].BalanceAfter)
}

func TestBoltWalletWithTransactions(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	w := &models.Wallet{Address: "bc1q"}
	txs := []*models.Transaction{{Hash: "h1", Amount: 5}, {Hash: "h2", Amount: 7}}
	inserted, err := b.InsertWalletWithTransactions(ctx, w, txs)
	require.NoError(t, err)
	require.True(t, inserted)
	assert.NotZero(t, w.ID)
	for _, tx := range txs {
		assert.NotZero(t, tx.ID)
		assert.Equal(t, w.ID, tx.WalletID)
	}

	// A second wallet reusing a stored hash only writes the new one.
	other := &models.Wallet{Address: "bc1q-other"}
	txs = []*models.Transaction{{Hash: "h2", Amount: 7}, {Hash: "h3", Amount: 9}}
	inserted, err = b.InsertWalletWithTransactions(ctx, other, txs)
	require.NoError(t, err)
	require.True(t, inserted)
	assert.Zero(t, txs[0].ID)
	assert.NotZero(t, txs[1].ID)

	inserted, err = b.InsertWalletWithTransactions(ctx, &models.Wallet{Address: "bc1q"}, nil)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestBoltWalletInsertRollsBack(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	w := &models.Wallet{Address: "bc1q"}
	txs := []*models.Transaction{{Hash: "h1", Amount: 5}, {Amount: 7}}
	_, err := b.InsertWalletWithTransactions(ctx, w, txs)
	require.ErrorIs(t, err, ErrMissingHash)
	assert.Zero(t, w.ID)
	assert.Zero(t, txs[0].ID)

	_, err = b.FindWallet(ctx, "bc1q")
	require.ErrorIs(t, err, ErrNotFound)

	// h1 was rolled back with the wallet, so it is new on the retry.
	txs = []*models.Transaction{{Hash: "h1", Amount: 5}}
	inserted, err := b.InsertWalletWithTransactions(ctx, w, txs)
	require.NoError(t, err)
	require.True(t, inserted)
	assert.NotZero(t, txs[0].ID)
}

func TestBoltListAndStats(t *testing.T) {
	ctx := context.Background()
	b := openTestBolt(t)

	for i, row := range []struct {
		title   string
		country string
		sector  models.Sector
		actor   string
	}{
		{"a", "TR", models.SectorHealth, "akira"},
		{"b", "TR", models.SectorHealth, "lockbit3"},
		{"c", "US", models.SectorFinance, "akira"},
		{"d", "", models.SectorFinance, "akira"},
	} {
		p := testPost(row.title)
		p.Country = row.country
		p.Sector = row.sector
		p.ThreatActor = row.actor
		p.CompanyName = row.title
		p.CreatedAt = p.CreatedAt.Add(time.Duration(i) * time.Minute)
		_, err := b.InsertPost(ctx, p)
		require.NoError(t, err)
	}

	posts, err := b.ListPosts(ctx, models.PostFilter{Country: "TR"})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "b", posts[0].Title, "newest first")

	posts, err = b.ListPosts(ctx, models.PostFilter{ThreatActor: "akira", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	s, err := b.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalPosts)
	assert.Equal(t, 4, s.UniqueCompanies)
	// finance and health tie at two; label order breaks the tie.
	assert.Equal(t, []models.Bucket{{Label: "finance", Count: 2}}, s.TopSectors)
	assert.Equal(t, []models.Bucket{{Label: "TR", Count: 2}}, s.TopCountries)
	assert.Equal(t, []models.Bucket{{Label: "akira", Count: 3}}, s.TopThreatActors)
	assert.Equal(t, []models.Bucket{{Label: "medium", Count: 4}}, s.ImpactLevels)
}
