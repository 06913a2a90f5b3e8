package pipeline

import (
	"strings"
	"time"

	"ransomwatch/models"
	"ransomwatch/services"
)

// clean maps the feeds' missing-value spellings to "" so that an absent field
// compares equal to itself in dedup keys.
func clean(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "None", "null", "NULL":
		return ""
	}
	return s
}

var hackDateLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseHackDate reads the feed's published date. Anything unparseable is now.
func parseHackDate(published string, now time.Time) time.Time {
	published = clean(published)
	if published == "" {
		return now
	}
	for _, layout := range hackDateLayouts {
		if t, err := time.Parse(layout, published); err == nil {
			return t.UTC()
		}
	}
	return now
}

func postFromRecord(r services.PostRecord) *models.Post {
	return &models.Post{
		Title:       clean(r.PostTitle),
		ThreatActor: clean(r.GroupName),
		Description: clean(r.Description),
		Discovered:  clean(r.Discovered),
		Published:   clean(r.Published),
		LeakURL:     clean(r.PostURL),
		Country:     clean(r.Country),
		Activity:    clean(r.Activity),
		Website:     clean(r.Website),
		Duplicates:  services.Blob(r.Duplicates),
	}
}

func groupFromRecord(r services.GroupRecord) *models.Group {
	return &models.Group{
		Name:      clean(r.Name),
		URL:       clean(r.URL),
		Meta:      services.Blob(r.Meta),
		Locations: services.Blob(r.Locations),
		Profile:   services.Blob(r.Profile),
		Tools:     services.Blob(r.Tools),
		TTPs:      services.Blob(r.TTPs),
	}
}

func walletFromRecord(r services.WalletRecord, now time.Time) *models.Wallet {
	return &models.Wallet{
		Address:    clean(r.Address),
		Balance:    services.Int(r.Balance),
		BalanceUSD: services.Float(r.BalanceUSD),
		Blockchain: clean(r.Blockchain),
		Family:     clean(r.Family),
		CreatedAt:  parseHackDate(services.Blob(r.CreatedAt), now),
		UpdatedAt:  parseHackDate(services.Blob(r.UpdatedAt), now),
	}
}

func transactionFromRecord(r services.TransactionRecord) *models.Transaction {
	return &models.Transaction{
		Hash:      clean(r.Hash),
		Time:      services.Int(r.Time),
		Amount:    services.Int(r.Amount),
		AmountUSD: services.Float(r.AmountUSD),
	}
}
