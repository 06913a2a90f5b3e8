package models

import "time"

// Wallet is a ransom payment address. Balance is in the chain's smallest unit.
type Wallet struct {
	ID         int64     `json:"id" db:"id"`
	Address    string    `json:"address" db:"address"`
	Balance    int64     `json:"balance" db:"balance"`
	BalanceUSD float64   `json:"balance_usd" db:"balance_usd"`
	Blockchain string    `json:"blockchain" db:"blockchain"`
	Family     string    `json:"family" db:"family"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type Transaction struct {
	ID        int64   `json:"id" db:"id"`
	WalletID  int64   `json:"wallet_id" db:"wallet_id"`
	Hash      string  `json:"hash" db:"hash"`
	Time      int64   `json:"time" db:"time"`
	Amount    int64   `json:"amount" db:"amount"`
	AmountUSD float64 `json:"amount_usd" db:"amount_usd"`
}

// BalanceChangeEvent is an append-only audit record of a balance delta
// between two feed observations of the same wallet.
type BalanceChangeEvent struct {
	ID            int64     `json:"id" db:"id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	BalanceBefore int64     `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64     `json:"balance_after" db:"balance_after"`
}
