// Package ledger implements the position math: the weighted-average
// cost-basis merge on buys and the oversell guard on sells.
//
// Functions here are pure. Serialization per (user, symbol) is the
// caller's job; the store runs them inside a row-locked unit of work.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// ErrInsufficientShares is returned when a sell exceeds the held quantity.
var ErrInsufficientShares = errors.New("insufficient shares")

// basisScale is the stored scale of the average cost. It matches the
// NUMERIC(18,6) average_price column, so the in-memory and PostgreSQL
// stores agree on the basis for the same trade sequence.
const basisScale = 6

// ApplyBuy merges a buy into pos and returns the updated position.
//
//	new_qty = old_qty + qty
//	new_avg = (old_qty*old_avg + qty*price) / new_qty
//
// The merge uses exact decimal arithmetic rounded to basisScale;
// repeated buys must not drift.
func ApplyBuy(pos model.Position, quantity int64, price decimal.Decimal) model.Position {
	oldQty := decimal.NewFromInt(pos.Quantity)
	buyQty := decimal.NewFromInt(quantity)
	newQty := oldQty.Add(buyQty)

	oldCost := oldQty.Mul(pos.AverageCost)
	buyCost := buyQty.Mul(price)
	pos.AverageCost = oldCost.Add(buyCost).Div(newQty).Round(basisScale)
	pos.Quantity += quantity
	return pos
}

// ApplySell deducts a sell from pos. The average cost is unchanged by a
// sell; cash balance absorbs the proceeds. A position sold down to zero
// stays as a zero-quantity row, it is not deleted.
func ApplySell(pos model.Position, quantity int64) (model.Position, error) {
	if pos.Quantity < quantity {
		return pos, ErrInsufficientShares
	}
	pos.Quantity -= quantity
	return pos, nil
}
