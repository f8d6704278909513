package escrow

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeport/internal/models"
	"tradeport/internal/orders"
)

// OpenDispute creates the single active dispute for an order. When the order
// was already paid out, the seller's portion moves from available to pending
// in the same unit so it cannot be withdrawn mid-dispute; that move is a
// transfer between the two balance columns, not a removal, so it carries no
// ledger entry.
func (e *Engine) OpenDispute(orderID, raisedBy uint, reason, description string) (*models.Dispute, error) {
	var dispute models.Dispute
	err := e.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		var existing models.Dispute
		err = tx.Where("order_id = ? AND status IN ?", orderID,
			[]models.DisputeStatus{models.DisputeOpen, models.DisputeInReview}).
			First(&existing).Error
		if err == nil {
			return ErrDisputeAlreadyOpen
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if order.Status == models.OrderDelivered {
			// Already paid out; block the seller's settled portion.
			if err := blockFunds(tx, order.SellerID, order.SellerAmount); err != nil {
				return fmt.Errorf("blocking seller funds for dispute: %w", err)
			}
		} else {
			if err := orders.ValidateTransition(order.Status, models.OrderDisputed); err != nil {
				return err
			}
			order.Status = models.OrderDisputed
			if err := tx.Save(order).Error; err != nil {
				return err
			}
		}

		dispute = models.Dispute{
			OrderID:     orderID,
			RaisedBy:    raisedBy,
			Reason:      reason,
			Description: description,
			Status:      models.DisputeOpen,
		}
		return tx.Create(&dispute).Error
	})
	e.metrics.observe("open_dispute", err)
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

// ResolveDisputeParams carries the reviewer's decision.
type ResolveDisputeParams struct {
	DisputeID        uint
	Resolution       string // refund_buyer, payout_seller, partial_refund
	AdminID          uint
	Note             string
	RefundPercentage int // only for partial_refund
}

// ResolveDispute applies one of the three mutually exclusive outcomes and
// marks the dispute resolved exactly once. A resolved or closed dispute is
// rejected. Fund paths differ by whether the order was paid out before the
// dispute opened (funds sit blocked in the seller's pending balance) or was
// still in flight (funds sit in the held escrow entry).
func (e *Engine) ResolveDispute(p ResolveDisputeParams) (*Result, error) {
	res := &Result{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var dispute models.Dispute
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&dispute, p.DisputeID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDisputeNotFound
		}
		if err != nil {
			return err
		}
		if !dispute.Status.Active() {
			return ErrDisputeAlreadyResolved
		}

		order, err := lockOrder(tx, dispute.OrderID)
		if err != nil {
			return err
		}
		paidOut := order.Status == models.OrderDelivered

		meta := models.JSONMap{
			"dispute_id":  dispute.ID,
			"resolved_by": p.AdminID,
			"note":        p.Note,
		}

		switch p.Resolution {
		case models.ResolutionRefundBuyer:
			err = e.resolveRefundBuyer(tx, order, meta, paidOut, res)
		case models.ResolutionPayoutSeller:
			err = e.resolvePayoutSeller(tx, order, meta, paidOut, res)
		case models.ResolutionPartialRefund:
			if p.RefundPercentage < 1 || p.RefundPercentage > 99 {
				return ErrInvalidRefundPercentage
			}
			err = e.resolvePartialRefund(tx, order, meta, paidOut, p.RefundPercentage, res)
		default:
			return fmt.Errorf("%w: %q", ErrInvalidResolution, p.Resolution)
		}
		if err != nil {
			return err
		}

		now := time.Now()
		dispute.Status = models.DisputeResolved
		dispute.Resolution = fmt.Sprintf("%s: %s", p.Resolution, p.Note)
		dispute.ResolvedBy = &p.AdminID
		dispute.ResolvedAt = &now
		return tx.Save(&dispute).Error
	})
	e.metrics.observe("resolve_dispute", err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// resolveRefundBuyer follows the cancellation fund path but writes
// dispute_refund entries tagged with the dispute context. On a paid-out order
// the blocked seller funds are clawed back, lifetime earnings included, and
// the completed commission is corrected with a reversal entry.
func (e *Engine) resolveRefundBuyer(tx *gorm.DB, order *models.Order, meta models.JSONMap, paidOut bool, res *Result) error {
	refund := models.LedgerEntry{
		OrderID:     &order.ID,
		UserID:      &order.BuyerID,
		Type:        models.LedgerDisputeRefund,
		Amount:      order.TotalAmount,
		Status:      models.LedgerCompleted,
		Description: fmt.Sprintf("Dispute refund to buyer for order #%d", order.ID),
		Metadata:    meta,
	}

	if paidOut {
		if err := removePending(tx, order.SellerID, order.SellerAmount, true); err != nil {
			return err
		}
		if err := appendEntry(tx, &refund); err != nil {
			return err
		}
		res.Entries = append(res.Entries, refund)
		if err := e.reverseCompletedCommission(tx, order, res); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentRefunded
		return tx.Save(order).Error
	}

	hold, err := findHeldEntry(tx, order.ID, models.LedgerEscrowHold)
	if err != nil {
		return err
	}
	if hold != nil {
		if err := flipStatus(tx, hold, models.LedgerRefunded); err != nil {
			return err
		}
		res.Entries = append(res.Entries, *hold)
	} else {
		log.Printf("warning: no held escrow hold entry for disputed order #%d on refund", order.ID)
	}
	if err := appendEntry(tx, &refund); err != nil {
		return err
	}
	res.Entries = append(res.Entries, refund)
	if err := e.reverseHeldCommission(tx, order, res); err != nil {
		return err
	}
	if err := restoreStock(tx, order.ProductID, order.Quantity); err != nil {
		return err
	}

	if err := orders.ValidateTransition(order.Status, models.OrderCancelled); err != nil {
		return err
	}
	now := time.Now()
	order.Status = models.OrderCancelled
	order.CancelledAt = &now
	order.CancelReason = "dispute resolved in buyer's favour"
	order.CancelledBy = "admin"
	order.PaymentStatus = models.PaymentRefunded
	return tx.Save(order).Error
}

// resolvePayoutSeller follows the delivery fund path with dispute_payout
// entries. On a paid-out order the money already reached the seller, so the
// dispute block is simply lifted.
func (e *Engine) resolvePayoutSeller(tx *gorm.DB, order *models.Order, meta models.JSONMap, paidOut bool, res *Result) error {
	if paidOut {
		return unblockFunds(tx, order.SellerID, order.SellerAmount)
	}

	hold, err := findHeldEntry(tx, order.ID, models.LedgerEscrowHold)
	if err != nil {
		return err
	}
	if hold == nil {
		return ErrNoActiveEscrowHold
	}
	if err := flipStatus(tx, hold, models.LedgerCompleted); err != nil {
		return err
	}
	res.Entries = append(res.Entries, *hold)

	sellerAmount, courierFee, _ := holdSplit(hold, order)

	payout := models.LedgerEntry{
		OrderID:     &order.ID,
		UserID:      &order.SellerID,
		Type:        models.LedgerDisputePayout,
		Amount:      sellerAmount,
		Status:      models.LedgerCompleted,
		Description: fmt.Sprintf("Dispute payout to seller for order #%d", order.ID),
		Metadata:    meta,
	}
	if err := appendEntry(tx, &payout); err != nil {
		return err
	}
	if err := creditEarnings(tx, order.SellerID, sellerAmount); err != nil {
		return err
	}
	res.Entries = append(res.Entries, payout)

	if err := e.settleCourierFee(tx, order, courierFee, meta, res); err != nil {
		return err
	}

	commission, err := findHeldEntry(tx, order.ID, models.LedgerPlatformCommission)
	if err != nil {
		return err
	}
	if commission != nil {
		if err := flipStatus(tx, commission, models.LedgerCompleted); err != nil {
			return err
		}
		res.Entries = append(res.Entries, *commission)
	}

	if err := orders.ValidateTransition(order.Status, models.OrderDelivered); err != nil {
		return err
	}
	now := time.Now()
	order.Status = models.OrderDelivered
	order.DeliveredAt = &now
	order.PaymentStatus = models.PaymentCompleted
	return tx.Save(order).Error
}

// resolvePartialRefund refunds pct of the order total to the buyer, pays the
// remainder (less courier fee and retained commission) to the seller, and
// reduces the commission in proportion. Entry amounts reconcile: buyer
// refund + seller amount + retained commission + courier fee equals the
// original order total.
func (e *Engine) resolvePartialRefund(tx *gorm.DB, order *models.Order, meta models.JSONMap, paidOut bool, pct int, res *Result) error {
	split := e.calc.PartialRefund(order.TotalAmount, order.CourierFee, order.PlatformCommission, pct)
	meta["refund_percentage"] = pct

	refund := models.LedgerEntry{
		OrderID:     &order.ID,
		UserID:      &order.BuyerID,
		Type:        models.LedgerDisputeRefund,
		Amount:      split.RefundAmount,
		Status:      models.LedgerCompleted,
		Description: fmt.Sprintf("Partial dispute refund (%d%%) for order #%d", pct, order.ID),
		Metadata:    meta,
	}

	if paidOut {
		// Claw back the blocked full seller amount, then settle the reduced one.
		if err := removePending(tx, order.SellerID, order.SellerAmount, true); err != nil {
			return err
		}
		if err := appendEntry(tx, &refund); err != nil {
			return err
		}
		res.Entries = append(res.Entries, refund)
		if split.SellerAmount > 0 {
			payout := models.LedgerEntry{
				OrderID:     &order.ID,
				UserID:      &order.SellerID,
				Type:        models.LedgerDisputePayout,
				Amount:      split.SellerAmount,
				Status:      models.LedgerCompleted,
				Description: fmt.Sprintf("Partial dispute payout to seller for order #%d", order.ID),
				Metadata:    meta,
			}
			if err := appendEntry(tx, &payout); err != nil {
				return err
			}
			if err := creditEarnings(tx, order.SellerID, split.SellerAmount); err != nil {
				return err
			}
			res.Entries = append(res.Entries, payout)
		}
		if split.CommissionReversed > 0 {
			if err := e.appendCommissionReversal(tx, order, split.CommissionReversed, res); err != nil {
				return err
			}
		}
		return tx.Save(order).Error
	}

	hold, err := findHeldEntry(tx, order.ID, models.LedgerEscrowHold)
	if err != nil {
		return err
	}
	if hold == nil {
		return ErrNoActiveEscrowHold
	}
	if err := flipStatus(tx, hold, models.LedgerCompleted); err != nil {
		return err
	}
	res.Entries = append(res.Entries, *hold)

	if err := appendEntry(tx, &refund); err != nil {
		return err
	}
	res.Entries = append(res.Entries, refund)

	if split.SellerAmount > 0 {
		payout := models.LedgerEntry{
			OrderID:     &order.ID,
			UserID:      &order.SellerID,
			Type:        models.LedgerDisputePayout,
			Amount:      split.SellerAmount,
			Status:      models.LedgerCompleted,
			Description: fmt.Sprintf("Partial dispute payout to seller for order #%d", order.ID),
			Metadata:    meta,
		}
		if err := appendEntry(tx, &payout); err != nil {
			return err
		}
		if err := creditEarnings(tx, order.SellerID, split.SellerAmount); err != nil {
			return err
		}
		res.Entries = append(res.Entries, payout)
	}

	if err := e.settleCourierFee(tx, order, split.CourierFee, meta, res); err != nil {
		return err
	}

	commission, err := findHeldEntry(tx, order.ID, models.LedgerPlatformCommission)
	if err != nil {
		return err
	}
	if commission != nil {
		if split.CommissionRetained == 0 {
			// Nothing retained: treat as a full reversal.
			if err := flipStatus(tx, commission, models.LedgerRefunded); err != nil {
				return err
			}
			res.Entries = append(res.Entries, *commission)
			if err := e.appendCommissionReversal(tx, order, commission.Amount, res); err != nil {
				return err
			}
		} else {
			if err := flipStatus(tx, commission, models.LedgerCompleted); err != nil {
				return err
			}
			res.Entries = append(res.Entries, *commission)
			if split.CommissionReversed > 0 {
				if err := e.appendCommissionReversal(tx, order, split.CommissionReversed, res); err != nil {
					return err
				}
			}
		}
	}

	if err := orders.ValidateTransition(order.Status, models.OrderDelivered); err != nil {
		return err
	}
	now := time.Now()
	order.Status = models.OrderDelivered
	order.DeliveredAt = &now
	order.PaymentStatus = models.PaymentCompleted
	return tx.Save(order).Error
}

// settleCourierFee decides where the courier fee held in escrow goes when a
// dispute settles the hold: to the assigned courier, or back to the buyer when
// the order never got one (disputed before pickup). Either way the fee leaves
// the escrow through an entry, so the settled amounts add back up to the hold.
func (e *Engine) settleCourierFee(tx *gorm.DB, order *models.Order, courierFee int64, meta models.JSONMap, res *Result) error {
	if courierFee <= 0 {
		return nil
	}

	if order.CourierID != nil {
		payout := models.LedgerEntry{
			OrderID:     &order.ID,
			UserID:      order.CourierID,
			Type:        models.LedgerDisputePayout,
			Amount:      courierFee,
			Status:      models.LedgerCompleted,
			Description: fmt.Sprintf("Dispute payout to courier for order #%d", order.ID),
			Metadata:    meta,
		}
		if err := appendEntry(tx, &payout); err != nil {
			return err
		}
		if err := creditEarnings(tx, *order.CourierID, courierFee); err != nil {
			return err
		}
		res.Entries = append(res.Entries, payout)
		return nil
	}

	feeRefund := models.LedgerEntry{
		OrderID:     &order.ID,
		UserID:      &order.BuyerID,
		Type:        models.LedgerDisputeRefund,
		Amount:      courierFee,
		Status:      models.LedgerCompleted,
		Description: fmt.Sprintf("Courier fee refund for order #%d", order.ID),
		Metadata:    meta,
	}
	if err := appendEntry(tx, &feeRefund); err != nil {
		return err
	}
	res.Entries = append(res.Entries, feeRefund)
	return nil
}

// reverseCompletedCommission corrects a commission that already completed.
// Completed entries are immutable, so the correction is a new negative entry.
func (e *Engine) reverseCompletedCommission(tx *gorm.DB, order *models.Order, res *Result) error {
	commission, err := findEntry(tx, order.ID, models.LedgerPlatformCommission, models.LedgerCompleted)
	if err != nil {
		return err
	}
	if commission == nil {
		log.Printf("warning: no completed platform commission entry for order #%d on dispute refund", order.ID)
		return nil
	}
	return e.appendCommissionReversal(tx, order, commission.Amount, res)
}

func (e *Engine) appendCommissionReversal(tx *gorm.DB, order *models.Order, amount int64, res *Result) error {
	reversal := models.LedgerEntry{
		OrderID:     &order.ID,
		Type:        models.LedgerCommissionReversal,
		Amount:      -amount,
		Status:      models.LedgerCompleted,
		Description: fmt.Sprintf("Commission reversal for order #%d", order.ID),
	}
	if err := appendEntry(tx, &reversal); err != nil {
		return err
	}
	res.Entries = append(res.Entries, reversal)
	return nil
}
