package finance

import (
	"time"

	"tradeport/internal/models"
)

// CouponResult is the outcome of a coupon check. Invalid results always carry
// a reason; callers surface it to the buyer as-is.
type CouponResult struct {
	Valid    bool   `json:"valid"`
	Discount int64  `json:"discount"`
	Reason   string `json:"reason,omitempty"`
}

func invalidCoupon(reason string) CouponResult {
	return CouponResult{Valid: false, Reason: reason}
}

// ValidateCoupon checks a loaded coupon against an order and computes the
// discount it grants. It fails closed: any condition that cannot be verified
// makes the coupon invalid. A percentage discount is capped at MaxDiscount
// when set, then at the order amount, so the discount can never exceed the
// order total. Pass sellerID 0 when the order has no seller scoping context.
func ValidateCoupon(coupon *models.Coupon, orderAmount int64, sellerID uint, now time.Time) CouponResult {
	if coupon == nil || !coupon.IsActive {
		return invalidCoupon("coupon not found or inactive")
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return invalidCoupon("coupon has expired")
	}
	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return invalidCoupon("coupon usage limit reached")
	}
	if orderAmount < coupon.MinOrderAmount {
		return invalidCoupon("order amount below coupon minimum")
	}
	if coupon.SellerID != nil && *coupon.SellerID != sellerID {
		return invalidCoupon("coupon not valid for this seller")
	}

	var discount int64
	switch coupon.Type {
	case models.CouponPercentage:
		discount = Percent(orderAmount, coupon.Value)
		if coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
			discount = coupon.MaxDiscount
		}
	case models.CouponFixed:
		discount = coupon.Value
	default:
		return invalidCoupon("unknown coupon type")
	}

	if discount > orderAmount {
		discount = orderAmount
	}

	return CouponResult{Valid: true, Discount: discount}
}
