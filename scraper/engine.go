package scraper

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNoURL      = errors.New("no leak url")
	ErrConnection = errors.New("connection error")
)

// Stored screenshot references for the two failure outcomes.
const (
	RefNoURL           = "None"
	RefConnectionError = "ConnectionError"
)

const (
	DefaultProxy     = "socks5://127.0.0.1:9050"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
)

type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir" validate:"required_if=Enabled true"`
	Proxy    string        `yaml:"proxy"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=1s,max=120s"`
	Settle   time.Duration `yaml:"settle"`
	PoolSize int64         `yaml:"pool_size" validate:"min=1"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Dir:      "screenshots",
		Proxy:    DefaultProxy,
		Timeout:  30 * time.Second,
		Settle:   10 * time.Second,
		PoolSize: 2,
	}
}

type renderFunc func(ctx context.Context, url string) ([]byte, error)

// Capturer renders leak pages through the Tor proxy and saves a full-page PNG.
// At most PoolSize browsers run at once.
type Capturer struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger zerolog.Logger
	render renderFunc
}

func New(cfg Config, logger zerolog.Logger) *Capturer {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if cfg.Proxy == "" {
		cfg.Proxy = DefaultProxy
	}
	c := &Capturer{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.PoolSize),
		logger: logger,
	}
	c.render = c.renderChrome
	return c
}

// Key is the file name stem for a post's screenshot: the hex md5 of its title.
func Key(title string) string {
	sum := md5.Sum([]byte(title))
	return hex.EncodeToString(sum[:])
}

// Reference turns a Capture result into the value stored on the post.
func Reference(key string, err error) string {
	switch {
	case err == nil:
		return key
	case errors.Is(err, ErrNoURL):
		return RefNoURL
	default:
		return RefConnectionError
	}
}

// Capture saves a screenshot of leakURL as <dir>/<Key(title)>.png and returns
// the key. Errors are ErrNoURL or wrap ErrConnection; the caller is expected
// to keep going either way.
func (c *Capturer) Capture(ctx context.Context, leakURL, title string) (string, error) {
	leakURL = strings.TrimSpace(leakURL)
	if leakURL == "" || leakURL == "None" {
		return "", ErrNoURL
	}
	key := Key(title)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Debug().Str("url", leakURL).Str("key", key).Msg("Capturing screenshot")
	buf, err := c.render(ctx, leakURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if err := os.WriteFile(filepath.Join(c.cfg.Dir, key+".png"), buf, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return key, nil
}

func (c *Capturer) renderChrome(ctx context.Context, targetURL string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.ProxyServer(c.cfg.Proxy),
		chromedp.UserAgent(defaultUserAgent),
		chromedp.WindowSize(1280, 800),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(1280, 800),
		chromedp.Navigate(targetURL),
		chromedp.Sleep(c.cfg.Settle),
		chromedp.Evaluate(`window.scrollBy(0, 2000)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", targetURL, err)
	}
	return buf, nil
}
