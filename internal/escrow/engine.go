// Package escrow orchestrates fund movement for orders: the hold taken at
// payment, the payout on delivery, the refund on cancellation and the three
// dispute outcomes. Every operation is one database transaction; a failure in
// any step rolls the whole unit back.
package escrow

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeport/internal/finance"
	"tradeport/internal/models"
	"tradeport/internal/orders"
)

// Engine is the single entry point for escrow fund movement. Construct one at
// process start and inject it; controllers never re-implement the scenarios.
type Engine struct {
	db            *gorm.DB
	calc          *finance.Calculator
	metrics       *Metrics
	minWithdrawal int64
}

func NewEngine(db *gorm.DB, calc *finance.Calculator, metrics *Metrics, minWithdrawal int64) *Engine {
	return &Engine{db: db, calc: calc, metrics: metrics, minWithdrawal: minWithdrawal}
}

// Result carries the ledger entries an operation wrote (or found, for an
// idempotent retry).
type Result struct {
	Entries []models.LedgerEntry `json:"entries"`
}

// lockOrder serializes concurrent operations on one order. Preconditions are
// re-checked after this lock, never before.
func lockOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateHold records the escrow hold for a paid order: one escrow_hold entry
// with the committed split snapshot in its metadata, plus the held
// platform_commission entry (two-phase commission). The snapshot stays
// authoritative even if the commission rate changes later. Retrying against
// an existing held hold is a no-op success.
func (e *Engine) CreateHold(orderID, buyerID uint, amount int64) (*Result, error) {
	res := &Result{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return ErrWrongBuyer
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		if amount != order.TotalAmount {
			return fmt.Errorf("%w: got %d, order total is %d", ErrAmountMismatch, amount, order.TotalAmount)
		}

		existing, err := findHeldEntry(tx, orderID, models.LedgerEscrowHold)
		if err != nil {
			return err
		}
		if existing != nil {
			res.Entries = append(res.Entries, *existing)
			return nil
		}
		settled, err := findEntry(tx, orderID, models.LedgerEscrowHold, models.LedgerCompleted)
		if err != nil {
			return err
		}
		if settled == nil {
			settled, err = findEntry(tx, orderID, models.LedgerEscrowHold, models.LedgerRefunded)
			if err != nil {
				return err
			}
		}
		if settled != nil {
			return ErrEscrowAlreadySettled
		}

		// A stale payment feed can confirm capture after the order was
		// cancelled or disputed. Nothing would ever resolve a hold taken
		// here, so reject it and let the rail refund the capture.
		if order.Status.Terminal() || order.Status == models.OrderDisputed {
			return fmt.Errorf("%w: order is %s", ErrHoldNotAllowed, order.Status)
		}

		hold := models.LedgerEntry{
			OrderID:     &order.ID,
			UserID:      &order.BuyerID,
			Type:        models.LedgerEscrowHold,
			Amount:      amount,
			Status:      models.LedgerHeld,
			Description: fmt.Sprintf("Escrow hold for order #%d", order.ID),
			Metadata: models.JSONMap{
				"seller_id":           order.SellerID,
				"seller_amount":       order.SellerAmount,
				"courier_fee":         order.CourierFee,
				"platform_commission": order.PlatformCommission,
			},
		}
		if err := appendEntry(tx, &hold); err != nil {
			return err
		}

		commission := models.LedgerEntry{
			OrderID:     &order.ID,
			Type:        models.LedgerPlatformCommission,
			Amount:      order.PlatformCommission,
			Status:      models.LedgerHeld,
			Description: fmt.Sprintf("Platform commission for order #%d", order.ID),
		}
		if err := appendEntry(tx, &commission); err != nil {
			return err
		}

		order.PaymentStatus = models.PaymentHeld
		if err := tx.Save(order).Error; err != nil {
			return err
		}

		res.Entries = append(res.Entries, hold, commission)
		return nil
	})
	e.metrics.observe("create_hold", err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// holdSplit reads the committed split from the hold metadata, falling back to
// the order's own amount fields when a legacy hold carries no snapshot.
func holdSplit(hold *models.LedgerEntry, order *models.Order) (sellerAmount, courierFee, commission int64) {
	var ok bool
	if sellerAmount, ok = hold.Metadata.Int64("seller_amount"); !ok {
		log.Printf("warning: escrow hold %s has no split snapshot, falling back to order #%d amounts", hold.Reference, order.ID)
		return order.SellerAmount, order.CourierFee, order.PlatformCommission
	}
	courierFee, _ = hold.Metadata.Int64("courier_fee")
	commission, _ = hold.Metadata.Int64("platform_commission")
	return sellerAmount, courierFee, commission
}

// ReleaseOnDelivery settles the escrow when delivery is confirmed: the hold
// flips to completed, seller and courier are credited, the held commission
// completes and the order becomes delivered. Calling it again on an already
// delivered order returns the existing entries without moving money.
func (e *Engine) ReleaseOnDelivery(orderID uint) (*Result, error) {
	res := &Result{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		if order.Status == models.OrderDelivered {
			settled, err := findEntry(tx, orderID, models.LedgerEscrowHold, models.LedgerCompleted)
			if err != nil {
				return err
			}
			if settled != nil {
				res.Entries, err = orderEntries(tx, orderID)
				return err
			}
			return ErrNoActiveEscrowHold
		}

		// A disputed order reaches delivered only through resolution;
		// confirming delivery must not settle the escrow under an open
		// dispute.
		if order.Status == models.OrderDisputed {
			return ErrOrderDisputed
		}
		if err := orders.ValidateTransition(order.Status, models.OrderDelivered); err != nil {
			return err
		}

		hold, err := findHeldEntry(tx, orderID, models.LedgerEscrowHold)
		if err != nil {
			return err
		}
		if hold == nil {
			return ErrNoActiveEscrowHold
		}
		if err := flipStatus(tx, hold, models.LedgerCompleted); err != nil {
			return err
		}

		release := models.LedgerEntry{
			OrderID:     &order.ID,
			Type:        models.LedgerEscrowRelease,
			Amount:      hold.Amount,
			Status:      models.LedgerCompleted,
			Description: fmt.Sprintf("Escrow released for order #%d", order.ID),
		}
		if err := appendEntry(tx, &release); err != nil {
			return err
		}

		sellerAmount, courierFee, _ := holdSplit(hold, order)

		payout := models.LedgerEntry{
			OrderID:     &order.ID,
			UserID:      &order.SellerID,
			Type:        models.LedgerSellerPayout,
			Amount:      sellerAmount,
			Status:      models.LedgerCompleted,
			Description: fmt.Sprintf("Seller payout for order #%d", order.ID),
		}
		if err := appendEntry(tx, &payout); err != nil {
			return err
		}
		if err := creditEarnings(tx, order.SellerID, sellerAmount); err != nil {
			return err
		}
		res.Entries = append(res.Entries, *hold, release, payout)

		if order.CourierID != nil && courierFee > 0 {
			courierPayout := models.LedgerEntry{
				OrderID:     &order.ID,
				UserID:      order.CourierID,
				Type:        models.LedgerCourierPayout,
				Amount:      courierFee,
				Status:      models.LedgerCompleted,
				Description: fmt.Sprintf("Courier payout for order #%d", order.ID),
			}
			if err := appendEntry(tx, &courierPayout); err != nil {
				return err
			}
			if err := creditEarnings(tx, *order.CourierID, courierFee); err != nil {
				return err
			}
			res.Entries = append(res.Entries, courierPayout)
		}

		commission, err := findHeldEntry(tx, orderID, models.LedgerPlatformCommission)
		if err != nil {
			return err
		}
		if commission != nil {
			if err := flipStatus(tx, commission, models.LedgerCompleted); err != nil {
				return err
			}
			res.Entries = append(res.Entries, *commission)
		} else {
			log.Printf("warning: no held platform commission entry for order #%d on release", order.ID)
		}

		now := time.Now()
		order.Status = models.OrderDelivered
		order.DeliveredAt = &now
		order.PaymentStatus = models.PaymentCompleted
		return tx.Save(order).Error
	})
	e.metrics.observe("release", err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RefundOnCancellation unwinds an undelivered order: the hold flips to
// refunded, the buyer gets a refund instruction entry (the buyer has no
// internal balance; the entry drives the payment rail), the held commission
// is reversed with a negative entry so the order's net commission is zero,
// and reserved stock is restored.
func (e *Engine) RefundOnCancellation(orderID uint, cancelledBy, reason string) (*Result, error) {
	res := &Result{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		if order.Status == models.OrderCancelled {
			res.Entries, err = orderEntries(tx, orderID)
			return err
		}

		if err := orders.ValidateTransition(order.Status, models.OrderCancelled); err != nil {
			return err
		}

		paymentWasHeld := order.PaymentStatus == models.PaymentHeld
		if orders.ShouldReverseFunds(models.OrderCancelled, paymentWasHeld) {
			hold, err := findHeldEntry(tx, orderID, models.LedgerEscrowHold)
			if err != nil {
				return err
			}
			if hold != nil {
				if err := flipStatus(tx, hold, models.LedgerRefunded); err != nil {
					return err
				}
				res.Entries = append(res.Entries, *hold)
			} else {
				log.Printf("warning: order #%d payment is held but no held escrow hold entry exists", order.ID)
			}

			refund := models.LedgerEntry{
				OrderID:     &order.ID,
				UserID:      &order.BuyerID,
				Type:        models.LedgerRefund,
				Amount:      order.TotalAmount,
				Status:      models.LedgerCompleted,
				Description: fmt.Sprintf("Refund for cancelled order #%d", order.ID),
				Metadata: models.JSONMap{
					"cancelled_by": cancelledBy,
					"reason":       reason,
				},
			}
			if err := appendEntry(tx, &refund); err != nil {
				return err
			}
			res.Entries = append(res.Entries, refund)

			if err := e.reverseHeldCommission(tx, order, res); err != nil {
				return err
			}

			order.PaymentStatus = models.PaymentRefunded
		}

		if err := restoreStock(tx, order.ProductID, order.Quantity); err != nil {
			return err
		}

		now := time.Now()
		order.Status = models.OrderCancelled
		order.CancelledAt = &now
		order.CancelReason = reason
		order.CancelledBy = cancelledBy
		return tx.Save(order).Error
	})
	e.metrics.observe("refund", err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// reverseHeldCommission flips a held commission entry to refunded and writes
// the negative reversal so summing the order's commission entries nets zero.
func (e *Engine) reverseHeldCommission(tx *gorm.DB, order *models.Order, res *Result) error {
	commission, err := findHeldEntry(tx, order.ID, models.LedgerPlatformCommission)
	if err != nil {
		return err
	}
	if commission == nil {
		return nil
	}
	if err := flipStatus(tx, commission, models.LedgerRefunded); err != nil {
		return err
	}
	reversal := models.LedgerEntry{
		OrderID:     &order.ID,
		Type:        models.LedgerCommissionReversal,
		Amount:      -commission.Amount,
		Status:      models.LedgerCompleted,
		Description: fmt.Sprintf("Commission reversal for order #%d", order.ID),
	}
	if err := appendEntry(tx, &reversal); err != nil {
		return err
	}
	res.Entries = append(res.Entries, *commission, reversal)
	return nil
}

func restoreStock(tx *gorm.DB, productID uint, quantity int) error {
	return tx.Model(&models.Product{}).Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity)).Error
}

// EscrowStatus summarizes the escrow position of one order.
type EscrowStatus struct {
	HasEscrow bool                 `json:"has_escrow"`
	Status    models.LedgerStatus  `json:"status,omitempty"`
	Amount    int64                `json:"amount,omitempty"`
	Entries   []models.LedgerEntry `json:"entries"`
}

// Status reports whether an order has an escrow hold, its current state and
// the full ledger trail.
func (e *Engine) Status(orderID uint) (*EscrowStatus, error) {
	var order models.Order
	if err := e.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	entries, err := orderEntries(e.db, orderID)
	if err != nil {
		return nil, err
	}

	status := &EscrowStatus{Entries: entries}
	for _, entry := range entries {
		if entry.Type == models.LedgerEscrowHold {
			status.HasEscrow = true
			status.Status = entry.Status
			status.Amount = entry.Amount
		}
	}
	return status, nil
}
