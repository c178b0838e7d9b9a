// Package model defines the core domain types shared across the trading
// engine. All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Valid reports whether s is a known order side.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// User holds a cash balance. The balance is created at registration and
// mutated only by order execution: debit on buy, credit on sell.
// Invariant: balance >= 0 after every committed order.
type User struct {
	ID        int64           `json:"id" db:"id"`
	Username  string          `json:"username" db:"username"`
	Email     string          `json:"email" db:"email"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Position is a user's aggregated holding of one symbol. Quantity never
// goes negative; AverageCost is meaningless once Quantity reaches zero.
// Closed positions are kept as zero-quantity rows for audit continuity.
type Position struct {
	UserID      int64           `json:"user_id" db:"user_id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Quantity    int64           `json:"quantity" db:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost" db:"average_price"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Trade is an immutable record of an executed order. Once created these
// are never modified or deleted; positions are derivable from them.
type Trade struct {
	ID            string          `json:"id" db:"id"`
	UserID        int64           `json:"user_id" db:"user_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	Side          Side            `json:"side" db:"trade_type"`
	Quantity      int64           `json:"quantity" db:"quantity"`
	ExecutedPrice decimal.Decimal `json:"executed_price" db:"executed_price"`
	ExecutedAt    time.Time       `json:"executed_at" db:"executed_at"`
}

// Quote is one symbol's latest price as returned by the market-data feed.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Holding is a position enriched with the current market price.
type Holding struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AverageCost  decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Value        decimal.Decimal `json:"value"`
}

// LeaderboardEntry is one row of the ranked net-worth snapshot. It is a
// derived, disposable view owned entirely by the recomputation pipeline.
type LeaderboardEntry struct {
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	NetWorth decimal.Decimal `json:"net_worth"`
	Holdings []Holding       `json:"holdings"`
}
