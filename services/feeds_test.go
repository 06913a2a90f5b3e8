package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) (*FeedClient, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := FeedConfig{
		GroupsURL:  url + "/groups",
		PostsURL:   url + "/posts",
		WalletsURL: url + "/wallets",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}
	c := NewFeedClient(cfg, NewArchiver(dir), zerolog.Nop())
	c.initialInterval = time.Millisecond

	return c, dir
}

func TestFetchPostsArchivesBody(t *testing.T) {
	const body = `[{"group_name":"akira","post_title":"Acme","country":null,"duplicates":[]}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/posts", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c, dir := newTestClient(t, srv.URL)
	posts, err := c.FetchPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "akira", posts[0].GroupName)
	assert.Empty(t, posts[0].Country)

	files, err := filepath.Glob(filepath.Join(dir, "posts-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	archived, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, body, string(archived))
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"name":"akira","url":"http://akira.onion","tools":{"a":1}}]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	groups, err := c.FetchGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, `{"a":1}`, Blob(groups[0].Tools))
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, dir := newTestClient(t, srv.URL)
	_, err := c.FetchWallets(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "failed fetches are not archived")
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.FetchPosts(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchWalletsDecodesNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"address":"0xABC","balance":150,"balanceUSD":12.5,
			"blockchain":"ethereum","family":"lockbit","transactions":[{"hash":"h1","time":1700000000,"amount":5e2,"amountUSD":1.25}]}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	wallets, err := c.FetchWallets(context.Background())
	require.NoError(t, err)
	require.Len(t, wallets, 1)

	w := wallets[0]
	assert.Equal(t, int64(150), Int(w.Balance))
	assert.InDelta(t, 12.5, Float(w.BalanceUSD), 1e-9)
	require.Len(t, w.Transactions, 1)
	assert.Equal(t, int64(500), Int(w.Transactions[0].Amount))
	assert.Equal(t, int64(1700000000), Int(w.Transactions[0].Time))
}

func TestFetchPostsSkipsMalformedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"post_title":"Good A","country":"US"},{"post_title":"Bad","country":123},{"post_title":"Good B","country":"DE"}]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	posts, err := c.FetchPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "Good A", posts[0].PostTitle)
	assert.Equal(t, "US", posts[0].Country)
	assert.Equal(t, "Good B", posts[1].PostTitle)
	assert.Equal(t, "DE", posts[1].Country)
}

func TestFetchWalletsSkipsMalformedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"address":"a1","balance":1},{"address":"a2","balance":{"x":1}},{"address":"a3","balance":3}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	wallets, err := c.FetchWallets(context.Background())
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "a1", wallets[0].Address)
	assert.Equal(t, "a3", wallets[1].Address)
}

func TestFetchRejectsMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.FetchWallets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode wallets feed")
}

func TestNumberAndBlobHelpers(t *testing.T) {
	assert.Zero(t, Int(""))
	assert.Zero(t, Int("abc"))
	assert.Equal(t, int64(12), Int("12.9"))
	assert.Zero(t, Float(""))

	assert.Empty(t, Blob(nil))
	assert.Empty(t, Blob(json.RawMessage("null")))
	assert.Equal(t, "plain", Blob(json.RawMessage(`"plain"`)))
	assert.Equal(t, `["x"]`, Blob(json.RawMessage(`["x"]`)))
}
