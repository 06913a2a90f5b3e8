package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

const (
	FeedGroups  = "groups"
	FeedPosts   = "posts"
	FeedWallets = "wallets"
)

var ErrUnexpectedStatus = errors.New("unexpected feed status")

// maxFeedBytes caps a single feed body; the posts feed is tens of megabytes.
const maxFeedBytes = 256 << 20

type FeedConfig struct {
	GroupsURL       string        `yaml:"groups_url" validate:"required,url"`
	PostsURL        string        `yaml:"posts_url" validate:"required,url"`
	WalletsURL      string        `yaml:"wallets_url" validate:"required,url"`
	Timeout         time.Duration `yaml:"timeout" validate:"min=1s,max=120s"`
	MaxRetries      uint          `yaml:"max_retries"`
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		GroupsURL:       "https://api.ransomware.live/v2/groups",
		PostsURL:        "https://data.ransomware.live/posts.json",
		WalletsURL:      "https://api.ransomwhe.re/export",
		Timeout:         60 * time.Second,
		MaxRetries:      3,
		RetryMaxElapsed: 2 * time.Minute,
	}
}

// FeedClient downloads the three public feeds. A body is archived before it
// is decoded, so a payload that fails to parse is still kept.
type FeedClient struct {
	cfg      FeedConfig
	http     *http.Client
	archiver *Archiver
	logger   zerolog.Logger

	initialInterval time.Duration
}

func NewFeedClient(cfg FeedConfig, archiver *Archiver, logger zerolog.Logger) *FeedClient {
	return &FeedClient{
		cfg:             cfg,
		http:            &http.Client{Timeout: cfg.Timeout},
		archiver:        archiver,
		logger:          logger,
		initialInterval: time.Second,
	}
}

func (c *FeedClient) FetchGroups(ctx context.Context) ([]GroupRecord, error) {
	var raw []json.RawMessage
	if err := c.fetchJSON(ctx, FeedGroups, c.cfg.GroupsURL, &raw); err != nil {
		return nil, err
	}
	return decodeRecords[GroupRecord](c.logger, FeedGroups, raw), nil
}

func (c *FeedClient) FetchPosts(ctx context.Context) ([]PostRecord, error) {
	var raw []json.RawMessage
	if err := c.fetchJSON(ctx, FeedPosts, c.cfg.PostsURL, &raw); err != nil {
		return nil, err
	}
	return decodeRecords[PostRecord](c.logger, FeedPosts, raw), nil
}

func (c *FeedClient) FetchWallets(ctx context.Context) ([]WalletRecord, error) {
	var export WalletExport
	if err := c.fetchJSON(ctx, FeedWallets, c.cfg.WalletsURL, &export); err != nil {
		return nil, err
	}
	return decodeRecords[WalletRecord](c.logger, FeedWallets, export.Result), nil
}

// fetchJSON decodes only the envelope into dst; records are decoded one by
// one so a single malformed entry does not reject the feed.
func (c *FeedClient) fetchJSON(ctx context.Context, feed, url string, dst any) error {
	body, err := c.fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch %s feed: %w", feed, err)
	}

	if c.archiver != nil {
		if path, err := c.archiver.Save(feed, body); err != nil {
			c.logger.Warn().Err(err).Str("feed", feed).Msg("Failed to archive feed body")
		} else {
			c.logger.Debug().Str("feed", feed).Str("path", path).Int("bytes", len(body)).Msg("Archived feed body")
		}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s feed: %w", feed, err)
	}
	return nil
}

// decodeRecords unmarshals each element on its own, skipping the ones that
// fail.
func decodeRecords[T any](logger zerolog.Logger, feed string, raw []json.RawMessage) []T {
	out := make([]T, 0, len(raw))
	skipped := 0
	for i, msg := range raw {
		var rec T
		if err := json.Unmarshal(msg, &rec); err != nil {
			logger.Warn().Err(err).Str("feed", feed).Int("index", i).Msg("Skipping malformed feed record")
			skipped++
			continue
		}
		out = append(out, rec)
	}
	if skipped > 0 {
		logger.Warn().Str("feed", feed).Int("skipped", skipped).Int("decoded", len(out)).Msg("Feed had malformed records")
	}
	return out
}

// fetch GETs url, retrying transport errors, 429 and 5xx with exponential
// backoff. Other non-2xx statuses fail immediately.
func (c *FeedClient) fetch(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = 30 * time.Second

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", url).Msg("Feed request failed")
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			statusErr := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				c.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Feed returned retryable status")
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return nil, err
		}
		return body, nil
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(bo), backoff.WithMaxTries(c.cfg.MaxRetries + 1)}
	if c.cfg.RetryMaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.cfg.RetryMaxElapsed))
	}
	return backoff.Retry(ctx, operation, opts...)
}
