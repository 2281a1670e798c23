package execution

import (
	"errors"
	"fmt"
	"time"

	"stock-bot-lab/internal/domain"
)

// Order errors.
var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderNotFound     = errors.New("order not found")
)

// allowed lists the legal forward transitions. Terminal statuses have none.
var allowed = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusWaiting: {
		domain.OrderStatusInProgress,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusInProgress: {
		domain.OrderStatusDone,
		domain.OrderStatusCancelled,
		domain.OrderStatusInsufficientFunds,
	},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition appends a status change to the order's history.
func transition(o *domain.Order, to domain.OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s (order %s)", ErrInvalidTransition, o.Status, to, o.ID)
	}
	o.History = append(o.History, domain.OrderTransition{From: o.Status, To: to, At: at})
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// crosses reports whether price has reached a target order's trigger.
// Buys fill at or below target, sells at or above.
func crosses(o *domain.Order, price float64) bool {
	target, _ := o.TargetPrice.Float64()
	if o.TransactionType == domain.TransactionBuy {
		return price <= target
	}
	return price >= target
}
