package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers an event to one platform.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// SlackMessage defines the JSON structure expected by Slack API
type SlackMessage struct {
	Text string `json:"text"`
}

type DiscordMessage struct {
	Content string `json:"content"`
}

// TeamsMessage is the legacy Office 365 connector card.
type TeamsMessage struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	Summary    string `json:"summary"`
	ThemeColor string `json:"themeColor"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

type webhook struct {
	url    string
	client *http.Client
}

func newWebhook(url string, timeout time.Duration) webhook {
	return webhook{url: url, client: &http.Client{Timeout: timeout}}
}

func (w webhook) post(ctx context.Context, platform string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s webhook returned status %d", platform, resp.StatusCode)
	}
	return nil
}

const botName = "ransomwatch"

type SlackNotifier struct{ webhook }

func NewSlackNotifier(url string, timeout time.Duration) *SlackNotifier {
	return &SlackNotifier{newWebhook(url, timeout)}
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Notify(ctx context.Context, ev Event) error {
	icon := "⚠️"
	if ev.Kind == KindHomeMarketPost || ev.Kind == KindSourceUnreachable {
		icon = "🚨"
	}
	return n.post(ctx, n.Name(), SlackMessage{
		Text: fmt.Sprintf("%s *%s*\n%s", icon, ev.Title(), ev.Text()),
	})
}

type DiscordNotifier struct{ webhook }

func NewDiscordNotifier(url string, timeout time.Duration) *DiscordNotifier {
	return &DiscordNotifier{newWebhook(url, timeout)}
}

func (n *DiscordNotifier) Name() string { return "discord" }

func (n *DiscordNotifier) Notify(ctx context.Context, ev Event) error {
	return n.post(ctx, n.Name(), DiscordMessage{
		Content: fmt.Sprintf("%s\n**%s**\n%s", botName, ev.Title(), ev.Text()),
	})
}

type TeamsNotifier struct{ webhook }

func NewTeamsNotifier(url string, timeout time.Duration) *TeamsNotifier {
	return &TeamsNotifier{newWebhook(url, timeout)}
}

func (n *TeamsNotifier) Name() string { return "teams" }

func (n *TeamsNotifier) Notify(ctx context.Context, ev Event) error {
	color := "0076D7"
	switch ev.Kind {
	case KindHomeMarketPost, KindSourceUnreachable:
		color = "D70000"
	case KindBalanceChange, KindNewTransaction:
		color = "FF8C00"
	}
	return n.post(ctx, n.Name(), TeamsMessage{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    ev.Title(),
		ThemeColor: color,
		Title:      ev.Title(),
		// Teams renders the text as markdown; two trailing spaces keep line breaks.
		Text: markdownLines(ev.Text()),
	})
}

func markdownLines(s string) string {
	return strings.ReplaceAll(s, "\n", "  \n")
}
