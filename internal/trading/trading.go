// Package trading owns the order state machine, the portfolio ledger, and
// the backtest simulator that replays a prepared candle sequence against
// the signal engine and risk sizer to produce a reproducible performance
// report.
package trading

import (
	"fmt"
	"time"

	"hkbacktest/internal/errors"
	"hkbacktest/internal/models"
)

// allowedTransitions is the order state machine's transition table (spec
// §4.7). CREATED, SUBMITTED, and PARTIAL_FILLED are the only non-terminal
// states; FILLED, REJECTED, and CANCELLED accept no further transitions.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderCreated:       {models.OrderSubmitted, models.OrderCancelled},
	models.OrderSubmitted:     {models.OrderPartialFilled, models.OrderFilled, models.OrderRejected, models.OrderCancelled},
	models.OrderPartialFilled: {models.OrderFilled, models.OrderCancelled},
}

// Transition moves an order to a new status if the table permits it. An
// illegal transition returns an INVALID_STATE_TRANSITION error and leaves
// the order untouched.
func Transition(o *models.Order, to models.OrderStatus, at time.Time) error {
	for _, allowed := range allowedTransitions[o.Status] {
		if allowed == to {
			o.Status = to
			o.UpdatedAt = at
			return nil
		}
	}
	return errors.NewBacktestError(errors.ErrInvalidStateTransition, o.Symbol, at,
		fmt.Sprintf("cannot transition order from %s to %s", o.Status, to))
}

// NewOrder constructs a CREATED market order.
func NewOrder(id, symbol string, side models.Side, qty int, suggestedPrice float64, at time.Time) *models.Order {
	return &models.Order{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Type:           models.OrderTypeMarket,
		Quantity:       qty,
		SuggestedPrice: suggestedPrice,
		Status:         models.OrderCreated,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// Fill transitions an order straight to FILLED, recording the executed
// price/quantity/commission. The caller is responsible for having first
// transitioned the order to SUBMITTED, matching the state machine's
// required path.
func Fill(o *models.Order, price float64, qty int, commission models.CommissionBreakdown, at time.Time) error {
	o.ExecutedPrice = price
	o.ExecutedQty = qty
	o.Commission = commission
	return Transition(o, models.OrderFilled, at)
}
