// Package trade implements the order execution engine: it validates an
// order, prices it against the cache, and mutates cash balance,
// position and trade log inside one atomic unit of work.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/ledger"
	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/pricecache"
	"github.com/papertrade/trading-engine/internal/store"
)

// OrderLeg is one symbol/quantity/side of an order.
type OrderLeg struct {
	Symbol   string     `json:"symbol"`
	Quantity int64      `json:"quantity"`
	Side     model.Side `json:"side"`
}

// LegResult reports one executed leg.
type LegResult struct {
	TradeID       string          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	Side          model.Side      `json:"side"`
	Quantity      int64           `json:"quantity"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	Notional      decimal.Decimal `json:"notional"`
}

// Result is the outcome of a committed order or batch.
type Result struct {
	Legs       []LegResult     `json:"legs"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Recomputer is poked after a committed order so the ranked snapshot
// refreshes ahead of its next scheduled cycle.
type Recomputer interface {
	Trigger()
}

// Engine executes orders. Serialization comes from the store's unit of
// work (row locks per user and per position), not from a global lock,
// so orders for different users run concurrently.
type Engine struct {
	store     store.Store
	cache     pricecache.Cache
	recompute Recomputer
}

// NewEngine creates an order execution engine.
func NewEngine(st store.Store, cache pricecache.Cache) *Engine {
	return &Engine{store: st, cache: cache}
}

// NotifyOnCommit registers r to be triggered after every committed
// order. Optional; the engine works without it.
func (e *Engine) NotifyOnCommit(r Recomputer) {
	e.recompute = r
}

// Execute runs a single order to commit or rollback. There is no
// cancellation once submitted and no retry inside the engine.
func (e *Engine) Execute(ctx context.Context, userID int64, leg OrderLeg) (*Result, error) {
	return e.ExecuteBatch(ctx, userID, []OrderLeg{leg})
}

// ExecuteBatch executes several legs for one user as one all-or-nothing
// unit: the batch is priced from a single consistent cache read, and if
// any leg fails the whole unit rolls back with zero partial effect.
func (e *Engine) ExecuteBatch(ctx context.Context, userID int64, legs []OrderLeg) (*Result, error) {
	start := time.Now()

	if err := validateLegs(userID, legs); err != nil {
		countRejected(legs, err)
		return nil, err
	}

	symbols := make([]string, 0, len(legs))
	for _, leg := range legs {
		symbols = append(symbols, leg.Symbol)
	}
	prices, err := e.cache.Prices(ctx, symbols)
	if err != nil {
		countRejected(legs, ErrStorage)
		return nil, fmt.Errorf("%w: price cache: %v", ErrStorage, err)
	}
	for _, leg := range legs {
		if _, ok := prices[leg.Symbol]; !ok {
			countRejected(legs, ErrPriceUnavailable)
			return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, leg.Symbol)
		}
	}

	result := &Result{}
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		user, err := tx.UserForUpdate(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}

		balance := user.Balance
		now := time.Now().UTC()

		for _, leg := range legs {
			price := prices[leg.Symbol]
			notional := price.Mul(decimal.NewFromInt(leg.Quantity))

			pos, err := tx.PositionForUpdate(ctx, userID, leg.Symbol)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}

			switch leg.Side {
			case model.Buy:
				if balance.LessThan(notional) {
					return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, notional, balance)
				}
				balance = balance.Sub(notional)
				merged := ledger.ApplyBuy(*pos, leg.Quantity, price)
				if err := tx.UpsertPosition(ctx, &merged); err != nil {
					return fmt.Errorf("%w: %v", ErrStorage, err)
				}
			case model.Sell:
				// Fails fast before the balance credit, so an oversell
				// leaves both position and balance untouched.
				reduced, err := ledger.ApplySell(*pos, leg.Quantity)
				if err != nil {
					return fmt.Errorf("%w: %s", err, leg.Symbol)
				}
				balance = balance.Add(notional)
				if err := tx.UpsertPosition(ctx, &reduced); err != nil {
					return fmt.Errorf("%w: %v", ErrStorage, err)
				}
			}

			tr := &model.Trade{
				ID:            uuid.New().String(),
				UserID:        userID,
				Symbol:        leg.Symbol,
				Side:          leg.Side,
				Quantity:      leg.Quantity,
				ExecutedPrice: price,
				ExecutedAt:    now,
			}
			if err := tx.InsertTrade(ctx, tr); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}

			result.Legs = append(result.Legs, LegResult{
				TradeID:       tr.ID,
				Symbol:        leg.Symbol,
				Side:          leg.Side,
				Quantity:      leg.Quantity,
				ExecutedPrice: price,
				Notional:      notional,
			})
		}

		if err := tx.UpdateBalance(ctx, userID, balance); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		result.NewBalance = balance
		return nil
	})
	if err != nil {
		countRejected(legs, err)
		return nil, err
	}

	for _, leg := range legs {
		metrics.OrdersTotal.WithLabelValues(string(leg.Side), "ok").Inc()
		metrics.OrderLatency.WithLabelValues(string(leg.Side)).Observe(time.Since(start).Seconds())
	}
	slog.Info("order executed",
		"user", userID,
		"legs", len(result.Legs),
		"new_balance", result.NewBalance.String(),
	)
	if e.recompute != nil {
		e.recompute.Trigger()
	}
	return result, nil
}

func validateLegs(userID int64, legs []OrderLeg) error {
	if userID <= 0 || len(legs) == 0 {
		return ErrMissingFields
	}
	for _, leg := range legs {
		if leg.Symbol == "" || leg.Quantity <= 0 {
			return ErrMissingFields
		}
		if !leg.Side.Valid() {
			return ErrInvalidSide
		}
	}
	return nil
}

func countRejected(legs []OrderLeg, err error) {
	outcome := "rejected"
	if errors.Is(err, ErrStorage) {
		outcome = "error"
	}
	for _, leg := range legs {
		side := string(leg.Side)
		if !leg.Side.Valid() {
			side = "invalid"
		}
		metrics.OrdersTotal.WithLabelValues(side, outcome).Inc()
	}
}
