package reports

import (
	"fmt"
	"strings"
	"time"

	"ransomwatch/models"
)

// Kind names a notification trigger.
type Kind string

const (
	KindNewActor          Kind = "new_actor"
	KindHomeMarketPost    Kind = "home_market_post"
	KindBalanceChange     Kind = "balance_change"
	KindNewTransaction    Kind = "new_transaction"
	KindSourceUnreachable Kind = "source_unreachable"
	KindDailySummary      Kind = "daily_summary"
)

// Event is one notification produced by the pipeline. Exactly one payload
// field is set, matching Kind.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	Actor   *ActorPayload   `json:"actor,omitempty"`
	Post    *PostPayload    `json:"post,omitempty"`
	Wallet  *WalletPayload  `json:"wallet,omitempty"`
	Source  *SourcePayload  `json:"source,omitempty"`
	Summary *models.Summary `json:"summary,omitempty"`
}

type ActorPayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type PostPayload struct {
	Title     string `json:"title"`
	Company   string `json:"company"`
	Actor     string `json:"actor"`
	Published string `json:"published"`
	Website   string `json:"website"`
	Country   string `json:"country"`
	LeakURL   string `json:"leak_url"`
	// Matched is the home-market domain found in Website, when the post was
	// flagged by domain rather than by country.
	Matched string `json:"matched,omitempty"`
}

type WalletPayload struct {
	Address       string  `json:"address"`
	Blockchain    string  `json:"blockchain"`
	Family        string  `json:"family"`
	BalanceBefore int64   `json:"balance_before,omitempty"`
	BalanceAfter  int64   `json:"balance_after,omitempty"`
	TxHash        string  `json:"tx_hash,omitempty"`
	AmountUSD     float64 `json:"amount_usd,omitempty"`
}

type SourcePayload struct {
	Feed  string `json:"feed"`
	Error string `json:"error"`
}

// Title is a one-line headline for the event.
func (e Event) Title() string {
	switch e.Kind {
	case KindNewActor:
		return "New threat actor discovered"
	case KindHomeMarketPost:
		return "New home-market victim disclosed"
	case KindBalanceChange:
		return "Ransomware wallet balance changed"
	case KindNewTransaction:
		return "New ransomware wallet transaction"
	case KindSourceUnreachable:
		return "Data source unreachable"
	case KindDailySummary:
		return "Daily threat summary " + e.Time.Format("2006-01-02")
	default:
		return string(e.Kind)
	}
}

// Text renders the event body as plain lines shared by every chat platform.
func (e Event) Text() string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	switch {
	case e.Actor != nil:
		line("Name", e.Actor.Name)
		line("Website", e.Actor.URL)
	case e.Post != nil:
		victim := e.Post.Company
		if e.Post.Matched != "" {
			victim = e.Post.Matched
		}
		if victim == "" {
			victim = e.Post.Title
		}
		line("Victim", victim)
		line("Threat actor", e.Post.Actor)
		line("Website", e.Post.Website)
		line("Country", e.Post.Country)
		line("Date", e.Post.Published)
		line("Leak URL", e.Post.LeakURL)
	case e.Wallet != nil:
		line("Address", e.Wallet.Address)
		line("Blockchain", e.Wallet.Blockchain)
		line("Threat actor", e.Wallet.Family)
		if e.Kind == KindBalanceChange {
			line("Balance", fmt.Sprintf("%d -> %d", e.Wallet.BalanceBefore, e.Wallet.BalanceAfter))
		}
		if e.Wallet.TxHash != "" {
			line("Transaction", e.Wallet.TxHash)
			line("Amount (USD)", fmt.Sprintf("%.2f", e.Wallet.AmountUSD))
		}
	case e.Source != nil:
		line("Feed", e.Source.Feed)
		line("Error", e.Source.Error)
	case e.Summary != nil:
		s := e.Summary
		line("Total posts", fmt.Sprint(s.TotalPosts))
		line("Unique companies", fmt.Sprint(s.UniqueCompanies))
		line("Threat groups", fmt.Sprint(s.TotalGroups))
		line("Wallets", fmt.Sprint(s.TotalWallets))
		line("Top sector", topLabel(s.TopSectors))
		line("Top country", topLabel(s.TopCountries))
		line("Most active actor", topLabel(s.TopThreatActors))
		line("Impact levels", bucketList(s.ImpactLevels))
	}
	return strings.TrimRight(b.String(), "\n")
}

func bucketList(buckets []models.Bucket) string {
	parts := make([]string, 0, len(buckets))
	for _, bk := range buckets {
		parts = append(parts, fmt.Sprintf("%s: %d", bk.Label, bk.Count))
	}
	return strings.Join(parts, ", ")
}

func topLabel(buckets []models.Bucket) string {
	if len(buckets) == 0 {
		return ""
	}
	return fmt.Sprintf("%s (%d)", buckets[0].Label, buckets[0].Count)
}
