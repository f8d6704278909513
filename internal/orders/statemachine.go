// Package orders defines the order lifecycle state machine: which status
// transitions are legal and which of them move money.
package orders

import (
	"errors"
	"fmt"
	"strings"

	"tradeport/internal/models"
)

// ErrInvalidTransition is wrapped by ValidateTransition errors.
var ErrInvalidTransition = errors.New("invalid order status transition")

// transitions lists the legal next states per status. Delivered and cancelled
// are terminal. Any non-terminal order can be disputed; a disputed order
// leaves that state only through resolution (cancelled on refund, delivered
// on payout).
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCancelled, models.OrderDisputed},
	models.OrderConfirmed: {models.OrderPickedUp, models.OrderCancelled, models.OrderDisputed},
	models.OrderPickedUp:  {models.OrderInTransit, models.OrderDelivered, models.OrderDisputed},
	models.OrderInTransit: {models.OrderDelivered, models.OrderDisputed},
	models.OrderDisputed:  {models.OrderCancelled, models.OrderDelivered},
	models.OrderDelivered: {},
	models.OrderCancelled: {},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedNext returns the legal next states for a status.
func AllowedNext(from models.OrderStatus) []models.OrderStatus {
	return transitions[from]
}

// ValidateTransition returns an error naming the allowed next states when the
// step is illegal. The message is part of the API surface; callers pass it
// through to users.
func ValidateTransition(from, to models.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	allowed := AllowedNext(from)
	if len(allowed) == 0 {
		return fmt.Errorf("%w: order is %s, a terminal status", ErrInvalidTransition, from)
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return fmt.Errorf("%w: cannot move order from %s to %s; allowed next statuses: %s",
		ErrInvalidTransition, from, to, strings.Join(names, ", "))
}

// ShouldDistributeFunds is true only for the transition that pays out the
// escrow: arriving at delivered.
func ShouldDistributeFunds(to models.OrderStatus) bool {
	return to == models.OrderDelivered
}

// ShouldReverseFunds is true only when a cancellation must unwind a hold that
// payment already reached.
func ShouldReverseFunds(to models.OrderStatus, paymentWasHeld bool) bool {
	return to == models.OrderCancelled && paymentWasHeld
}
