// Package store defines the persistence interface for the trading
// engine. Implementations include PostgreSQL (source of truth) and
// in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// ErrNotFound is returned by point lookups when the row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("already exists")

// Store is the persistence interface. PostgreSQL is the source of
// truth; positions are the incrementally-maintained aggregate of the
// append-only trades table.
type Store interface {
	// CreateUser persists a new user and assigns its ID.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id int64) (*model.User, error)

	// ListUsers returns all users.
	ListUsers(ctx context.Context) ([]model.User, error)

	// GetPositions returns a user's open positions (quantity > 0).
	GetPositions(ctx context.Context, userID int64) ([]model.Position, error)

	// ListPositions returns all open positions across users.
	ListPositions(ctx context.Context) ([]model.Position, error)

	// TradesByUser returns a user's trade events, newest first.
	TradesByUser(ctx context.Context, userID int64) ([]model.Trade, error)

	// InTx runs fn inside one atomic unit of work. If fn returns an
	// error every write made through the Tx is rolled back; otherwise
	// all of them commit together.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit-of-work surface available inside InTx. Row reads
// acquire locks so concurrent orders on the same user or position
// serialize instead of interleaving their read-modify-write.
type Tx interface {
	// UserForUpdate reads a user's row and locks it for the duration
	// of the unit of work.
	UserForUpdate(ctx context.Context, id int64) (*model.User, error)

	// UpdateBalance sets a user's cash balance.
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error

	// PositionForUpdate reads and locks a position. A position that
	// does not exist yet is returned zero-quantity, not as an error.
	PositionForUpdate(ctx context.Context, userID int64, symbol string) (*model.Position, error)

	// UpsertPosition writes the merged position state.
	UpsertPosition(ctx context.Context, p *model.Position) error

	// InsertTrade appends an immutable trade event.
	InsertTrade(ctx context.Context, t *model.Trade) error
}
