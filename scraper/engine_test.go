package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCapturer(t *testing.T, render renderFunc) *Capturer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Timeout = time.Second
	c := New(cfg, zerolog.Nop())
	c.render = render
	return c
}

func TestKeyIsTitleMD5(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Key(""))
	assert.Equal(t, Key("Acme Corp"), Key("Acme Corp"))
	assert.NotEqual(t, Key("Acme Corp"), Key("Acme Corp."))
}

func TestCaptureWritesPNG(t *testing.T) {
	c := newTestCapturer(t, func(context.Context, string) ([]byte, error) {
		return []byte("\x89PNG"), nil
	})

	key, err := c.Capture(context.Background(), "http://leak.onion/acme", "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, Key("Acme Corp"), key)
	assert.Equal(t, key, Reference(key, err))

	data, err := os.ReadFile(filepath.Join(c.cfg.Dir, key+".png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
}

func TestCaptureNoURL(t *testing.T) {
	c := newTestCapturer(t, func(context.Context, string) ([]byte, error) {
		t.Fatal("render must not run without a url")
		return nil, nil
	})

	for _, u := range []string{"", "  ", "None"} {
		key, err := c.Capture(context.Background(), u, "Acme")
		assert.ErrorIs(t, err, ErrNoURL)
		assert.Equal(t, RefNoURL, Reference(key, err))
	}
}

func TestCaptureConnectionError(t *testing.T) {
	c := newTestCapturer(t, func(context.Context, string) ([]byte, error) {
		return nil, errors.New("net::ERR_SOCKS_CONNECTION_FAILED")
	})

	key, err := c.Capture(context.Background(), "http://down.onion", "Acme")
	assert.ErrorIs(t, err, ErrConnection)
	assert.Empty(t, key)
	assert.Equal(t, RefConnectionError, Reference(key, err))
}

func TestCaptureTimesOut(t *testing.T) {
	c := newTestCapturer(t, func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c.cfg.Timeout = 20 * time.Millisecond

	_, err := c.Capture(context.Background(), "http://slow.onion", "Acme")
	assert.ErrorIs(t, err, ErrConnection)
}

func TestCapturePoolIsBounded(t *testing.T) {
	var running, peak atomic.Int32
	c := newTestCapturer(t, func(context.Context, string) ([]byte, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return []byte("png"), nil
	})

	done := make(chan struct{})
	for i := range 6 {
		go func() {
			_, _ = c.Capture(context.Background(), "http://leak.onion", string(rune('a'+i)))
			done <- struct{}{}
		}()
	}
	for range 6 {
		<-done
	}

	assert.LessOrEqual(t, peak.Load(), int32(c.cfg.PoolSize))
}
