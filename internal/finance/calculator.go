// Package finance holds the pure money math for the marketplace: order
// totals, commission, courier fee, coupon discounts and dispute splits.
// Nothing in here touches the database.
package finance

// Calculator computes order splits. Amounts are kobo, the commission rate is
// in basis points. Construct one at process start and share it.
type Calculator struct {
	CommissionBPS     int64
	DefaultCourierFee int64
}

func NewCalculator(commissionBPS, defaultCourierFee int64) *Calculator {
	return &Calculator{
		CommissionBPS:     commissionBPS,
		DefaultCourierFee: defaultCourierFee,
	}
}

// Totals is the committed split for one order.
type Totals struct {
	Subtotal           int64 `json:"subtotal"`
	Discount           int64 `json:"discount"`
	DiscountedSubtotal int64 `json:"discounted_subtotal"`
	Commission         int64 `json:"commission"`
	SellerAmount       int64 `json:"seller_amount"`
	CourierFee         int64 `json:"courier_fee"`
	TotalAmount        int64 `json:"total_amount"`
}

// OrderTotals computes the split for a single-seller order. Commission is
// charged on the discounted subtotal, never on the raw subtotal. A negative
// courierFee selects the configured default; the discount is clamped to the
// subtotal so it can never invert the order.
func (c *Calculator) OrderTotals(unitPrice int64, quantity int, discount, courierFee int64) Totals {
	if courierFee < 0 {
		courierFee = c.DefaultCourierFee
	}
	subtotal := unitPrice * int64(quantity)
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	discounted := subtotal - discount
	commission := divRound(discounted*c.CommissionBPS, 10000)

	return Totals{
		Subtotal:           subtotal,
		Discount:           discount,
		DiscountedSubtotal: discounted,
		Commission:         commission,
		SellerAmount:       discounted - commission,
		CourierFee:         courierFee,
		TotalAmount:        discounted + courierFee,
	}
}

// CartItem is one line of a multi-seller checkout.
type CartItem struct {
	SellerID  uint
	ProductID uint
	UnitPrice int64
	Quantity  int
}

// ItemTotals is the per-seller result of a cart split.
type ItemTotals struct {
	SellerID  uint
	ProductID uint
	Totals
}

// MultiSellerTotals distributes one cart-level discount across the items in
// proportion to each item's share of the pre-discount subtotal. Each share
// rounds down, so the distributed sum never exceeds the requested discount
// and may fall short of it by up to len(items)-1 kobo. The courier fee is
// cart-level and carried only on the first item's totals; the remaining items
// get a zero fee.
func (c *Calculator) MultiSellerTotals(items []CartItem, totalDiscount, courierFee int64) []ItemTotals {
	if courierFee < 0 {
		courierFee = c.DefaultCourierFee
	}
	var totalSubtotal int64
	for _, it := range items {
		totalSubtotal += it.UnitPrice * int64(it.Quantity)
	}
	if totalDiscount < 0 {
		totalDiscount = 0
	}
	if totalDiscount > totalSubtotal {
		totalDiscount = totalSubtotal
	}

	out := make([]ItemTotals, 0, len(items))
	for i, it := range items {
		itemSubtotal := it.UnitPrice * int64(it.Quantity)
		var itemDiscount int64
		if totalSubtotal > 0 {
			itemDiscount = itemSubtotal * totalDiscount / totalSubtotal
		}
		fee := int64(0)
		if i == 0 {
			fee = courierFee
		}
		t := c.OrderTotals(it.UnitPrice, it.Quantity, itemDiscount, fee)
		out = append(out, ItemTotals{SellerID: it.SellerID, ProductID: it.ProductID, Totals: t})
	}
	return out
}

// PartialSplit is the reconciliation of a percentage dispute refund. The
// retained commission scales with the refund percentage but is computed from
// the original commission, not re-derived from the settled seller amount;
// buyer refund + seller amount + retained commission + courier fee adds back
// up to the original order total.
type PartialSplit struct {
	RefundAmount       int64
	SellerAmount       int64
	CommissionRetained int64
	CommissionReversed int64
	CourierFee         int64
}

// PartialRefund splits an order for a partial_refund(pct) dispute outcome.
func (c *Calculator) PartialRefund(totalAmount, courierFee, commission int64, pct int) PartialSplit {
	refund := Percent(totalAmount, int64(pct))
	retained := Percent(commission, int64(100-pct))

	return PartialSplit{
		RefundAmount:       refund,
		SellerAmount:       totalAmount - refund - courierFee - retained,
		CommissionRetained: retained,
		CommissionReversed: commission - retained,
		CourierFee:         courierFee,
	}
}

// Percent returns amount*pct/100 rounded half-up. Inputs must be non-negative.
func Percent(amount, pct int64) int64 {
	return divRound(amount*pct, 100)
}

func divRound(a, b int64) int64 {
	return (a + b/2) / b
}
