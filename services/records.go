package services

import (
	"encoding/json"
	"strconv"
)

// GroupRecord is one entry of the group directory feed. The descriptive
// fields are kept as raw JSON and stored as-is.
type GroupRecord struct {
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	Meta      json.RawMessage `json:"meta"`
	Locations json.RawMessage `json:"locations"`
	Profile   json.RawMessage `json:"profile"`
	Tools     json.RawMessage `json:"tools"`
	TTPs      json.RawMessage `json:"ttps"`
}

// PostRecord is one entry of the posts feed. Any field may be missing or null.
type PostRecord struct {
	GroupName   string          `json:"group_name"`
	PostURL     string          `json:"post_url"`
	PostTitle   string          `json:"post_title"`
	Description string          `json:"description"`
	Discovered  string          `json:"discovered"`
	Published   string          `json:"published"`
	Website     string          `json:"website"`
	Country     string          `json:"country"`
	Activity    string          `json:"activity"`
	Duplicates  json.RawMessage `json:"duplicates"`
}

// WalletExport is the envelope of the wallet feed; each result entry is
// decoded into a WalletRecord separately.
type WalletExport struct {
	Result []json.RawMessage `json:"result"`
}

type WalletRecord struct {
	Address      string              `json:"address"`
	Balance      json.Number         `json:"balance"`
	BalanceUSD   json.Number         `json:"balanceUSD"`
	Blockchain   string              `json:"blockchain"`
	Family       string              `json:"family"`
	CreatedAt    json.RawMessage     `json:"createdAt"`
	UpdatedAt    json.RawMessage     `json:"updatedAt"`
	Transactions []TransactionRecord `json:"transactions"`
}

type TransactionRecord struct {
	Hash      string      `json:"hash"`
	Time      json.Number `json:"time"`
	Amount    json.Number `json:"amount"`
	AmountUSD json.Number `json:"amountUSD"`
}

// Int converts a feed number to int64; empty or malformed values are 0.
// Fractional values are truncated.
func Int(n json.Number) int64 {
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return int64(f)
	}
	return 0
}

// Float converts a feed number to float64; empty or malformed values are 0.
func Float(n json.Number) float64 {
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}

// Blob renders a raw JSON field for storage. Absent fields become "".
func Blob(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
