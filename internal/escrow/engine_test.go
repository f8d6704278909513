//go:build integration

package escrow

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradeport/internal/finance"
	"tradeport/internal/models"
	"tradeport/internal/orders"
)

// These tests need a real Postgres because the engine leans on row locks and
// guarded SQL updates. Run them with:
//
//	DATABASE_URL=postgres://... go test -tags integration ./internal/escrow/
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Coupon{},
		&models.Order{},
		&models.LedgerEntry{},
		&models.Dispute{},
		&models.BankAccount{},
	))

	require.NoError(t, db.Exec(
		"TRUNCATE users, products, coupons, orders, ledger_entries, disputes, bank_accounts RESTART IDENTITY CASCADE",
	).Error)

	return db
}

func newTestEngine(db *gorm.DB) *Engine {
	calc := finance.NewCalculator(1000, 15000)
	return NewEngine(db, calc, nil, 100000)
}

type fixture struct {
	buyer   models.User
	seller  models.User
	courier models.User
	product models.Product
	order   models.Order
}

var fixtureSeq int

// seedOrder creates the standard scenario: ₦1,000 item, ₦150 courier fee,
// 10% commission. Total 115000, commission 10000, seller amount 90000.
func seedOrder(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	fixtureSeq++
	f := &fixture{
		buyer:   models.User{FullName: "Ada Buyer", Email: fmt.Sprintf("buyer-%d@test.local", fixtureSeq), Role: "buyer"},
		seller:  models.User{FullName: "Bayo Seller", Email: fmt.Sprintf("seller-%d@test.local", fixtureSeq), Role: "seller"},
		courier: models.User{FullName: "Chika Courier", Email: fmt.Sprintf("courier-%d@test.local", fixtureSeq), Role: "courier"},
	}
	require.NoError(t, db.Create(&f.buyer).Error)
	require.NoError(t, db.Create(&f.seller).Error)
	require.NoError(t, db.Create(&f.courier).Error)

	f.product = models.Product{SellerID: f.seller.ID, Name: "Widget", Price: 100000, Stock: 9, IsActive: true}
	require.NoError(t, db.Create(&f.product).Error)

	f.order = models.Order{
		BuyerID:            f.buyer.ID,
		SellerID:           f.seller.ID,
		CourierID:          &f.courier.ID,
		ProductID:          f.product.ID,
		Quantity:           1,
		UnitPrice:          100000,
		CourierFee:         15000,
		PlatformCommission: 10000,
		SellerAmount:       90000,
		TotalAmount:        115000,
		Status:             models.OrderPending,
		PaymentStatus:      models.PaymentPending,
	}
	require.NoError(t, db.Create(&f.order).Error)
	return f
}

func reload[T any](t *testing.T, db *gorm.DB, id uint) T {
	t.Helper()
	var v T
	require.NoError(t, db.First(&v, id).Error)
	return v
}

func advanceTo(t *testing.T, db *gorm.DB, orderID uint, statuses ...models.OrderStatus) {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, orderID).Error)
	for _, s := range statuses {
		require.NoError(t, orders.ValidateTransition(order.Status, s))
		order.Status = s
		require.NoError(t, db.Save(&order).Error)
	}
}

func entryAmounts(t *testing.T, db *gorm.DB, orderID uint, typ models.LedgerType) []int64 {
	t.Helper()
	var entries []models.LedgerEntry
	require.NoError(t, db.Where("order_id = ? AND type = ?", orderID, typ).Find(&entries).Error)
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Amount)
	}
	return out
}

func TestCreateHold(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	t.Run("rejects the wrong buyer", func(t *testing.T) {
		_, err := engine.CreateHold(f.order.ID, f.seller.ID, 115000)
		assert.ErrorIs(t, err, ErrWrongBuyer)
	})

	t.Run("rejects an amount mismatch", func(t *testing.T) {
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 100000)
		assert.ErrorIs(t, err, ErrAmountMismatch)
	})

	t.Run("writes the hold and the held commission", func(t *testing.T) {
		res, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)
		require.Len(t, res.Entries, 2)

		assert.Equal(t, models.LedgerEscrowHold, res.Entries[0].Type)
		assert.Equal(t, models.LedgerHeld, res.Entries[0].Status)
		assert.Equal(t, int64(115000), res.Entries[0].Amount)

		assert.Equal(t, models.LedgerPlatformCommission, res.Entries[1].Type)
		assert.Equal(t, models.LedgerHeld, res.Entries[1].Status)
		assert.Equal(t, int64(10000), res.Entries[1].Amount)

		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.PaymentHeld, order.PaymentStatus)
	})

	t.Run("retry is a no-op success", func(t *testing.T) {
		res, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, models.LedgerHeld, res.Entries[0].Status)

		holds := entryAmounts(t, db, f.order.ID, models.LedgerEscrowHold)
		assert.Len(t, holds, 1)
	})
}

func TestHoldAfterCancellation(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	// Cancelled before any payment arrived: no hold exists, no funds move.
	_, err := engine.RefundOnCancellation(f.order.ID, "buyer", "never paid")
	require.NoError(t, err)

	order := reload[models.Order](t, db, f.order.ID)
	require.Equal(t, models.OrderCancelled, order.Status)
	require.Equal(t, models.PaymentPending, order.PaymentStatus)

	// A stale payment feed confirming capture afterwards must not open a hold
	// nothing can ever settle.
	_, err = engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
	assert.ErrorIs(t, err, ErrHoldNotAllowed)

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Where("order_id = ?", f.order.ID).Count(&count).Error)
	assert.Zero(t, count)

	order = reload[models.Order](t, db, f.order.ID)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
}

func TestHoldOnDisputedOrder(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	_, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "never arrived", "paid off-platform")
	require.NoError(t, err)

	_, err = engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
	assert.ErrorIs(t, err, ErrHoldNotAllowed)
}

func TestReleaseOnDelivery(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
	require.NoError(t, err)
	advanceTo(t, db, f.order.ID, models.OrderConfirmed, models.OrderPickedUp, models.OrderInTransit)

	_, err = engine.ReleaseOnDelivery(f.order.ID)
	require.NoError(t, err)

	t.Run("credits seller and courier", func(t *testing.T) {
		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(90000), seller.AvailableBalance)
		assert.Equal(t, int64(90000), seller.TotalEarnings)
		assert.Zero(t, seller.PendingBalance)

		courier := reload[models.User](t, db, f.courier.ID)
		assert.Equal(t, int64(15000), courier.AvailableBalance)
		assert.Equal(t, int64(15000), courier.TotalEarnings)
	})

	t.Run("hold and commission complete", func(t *testing.T) {
		var hold models.LedgerEntry
		require.NoError(t, db.Where("order_id = ? AND type = ?", f.order.ID, models.LedgerEscrowHold).First(&hold).Error)
		assert.Equal(t, models.LedgerCompleted, hold.Status)

		var commission models.LedgerEntry
		require.NoError(t, db.Where("order_id = ? AND type = ?", f.order.ID, models.LedgerPlatformCommission).First(&commission).Error)
		assert.Equal(t, models.LedgerCompleted, commission.Status)
	})

	t.Run("payouts plus commission equal the hold", func(t *testing.T) {
		var sum int64
		for _, typ := range []models.LedgerType{
			models.LedgerSellerPayout, models.LedgerCourierPayout, models.LedgerPlatformCommission,
		} {
			for _, a := range entryAmounts(t, db, f.order.ID, typ) {
				sum += a
			}
		}
		assert.Equal(t, int64(115000), sum)
	})

	t.Run("order is delivered", func(t *testing.T) {
		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.OrderDelivered, order.Status)
		assert.Equal(t, models.PaymentCompleted, order.PaymentStatus)
		assert.NotNil(t, order.DeliveredAt)
	})

	t.Run("double release moves no money", func(t *testing.T) {
		_, err := engine.ReleaseOnDelivery(f.order.ID)
		require.NoError(t, err)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(90000), seller.AvailableBalance)
		assert.Len(t, entryAmounts(t, db, f.order.ID, models.LedgerSellerPayout), 1)
	})
}

func TestReleaseWhileDisputed(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
	require.NoError(t, err)
	advanceTo(t, db, f.order.ID, models.OrderConfirmed, models.OrderPickedUp)

	dispute, err := engine.OpenDispute(f.order.ID, f.seller.ID, "address wrong", "courier cannot deliver")
	require.NoError(t, err)

	// The buyer confirming delivery must not settle the escrow while the
	// dispute is open.
	_, err = engine.ReleaseOnDelivery(f.order.ID)
	assert.ErrorIs(t, err, ErrOrderDisputed)

	seller := reload[models.User](t, db, f.seller.ID)
	assert.Zero(t, seller.AvailableBalance)

	var hold models.LedgerEntry
	require.NoError(t, db.Where("order_id = ? AND type = ?", f.order.ID, models.LedgerEscrowHold).First(&hold).Error)
	assert.Equal(t, models.LedgerHeld, hold.Status)

	// Resolution still works through the held path.
	_, err = engine.ResolveDispute(ResolveDisputeParams{
		DisputeID: dispute.ID, Resolution: models.ResolutionRefundBuyer, AdminID: 99, Note: "buyer wins",
	})
	require.NoError(t, err)

	refunds := entryAmounts(t, db, f.order.ID, models.LedgerDisputeRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(115000), refunds[0])
}

func TestReleaseWithoutHold(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)
	advanceTo(t, db, f.order.ID, models.OrderConfirmed, models.OrderPickedUp)

	_, err := engine.ReleaseOnDelivery(f.order.ID)
	assert.ErrorIs(t, err, ErrNoActiveEscrowHold)
}

func TestRefundOnCancellation(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	// Stock was reserved at order time; the refund gives it back.
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", f.product.ID).
		UpdateColumn("stock", gorm.Expr("stock - ?", 1)).Error)

	_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
	require.NoError(t, err)

	res, err := engine.RefundOnCancellation(f.order.ID, "buyer", "changed my mind")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Entries)

	t.Run("refund entry covers the full total", func(t *testing.T) {
		refunds := entryAmounts(t, db, f.order.ID, models.LedgerRefund)
		require.Len(t, refunds, 1)
		assert.Equal(t, int64(115000), refunds[0])
	})

	t.Run("commission nets to zero", func(t *testing.T) {
		var net int64
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerPlatformCommission) {
			net += a
		}
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerCommissionReversal) {
			net += a
		}
		assert.Zero(t, net)
	})

	t.Run("stock restored", func(t *testing.T) {
		product := reload[models.Product](t, db, f.product.ID)
		assert.Equal(t, 9, product.Stock)
	})

	t.Run("nobody was credited", func(t *testing.T) {
		seller := reload[models.User](t, db, f.seller.ID)
		assert.Zero(t, seller.AvailableBalance)
		assert.Zero(t, seller.TotalEarnings)
	})

	t.Run("order cancelled with audit fields", func(t *testing.T) {
		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.OrderCancelled, order.Status)
		assert.Equal(t, models.PaymentRefunded, order.PaymentStatus)
		assert.Equal(t, "buyer", order.CancelledBy)
		assert.Equal(t, "changed my mind", order.CancelReason)
	})

	t.Run("retry is a no-op success", func(t *testing.T) {
		_, err := engine.RefundOnCancellation(f.order.ID, "buyer", "again")
		require.NoError(t, err)
		assert.Len(t, entryAmounts(t, db, f.order.ID, models.LedgerRefund), 1)
		product := reload[models.Product](t, db, f.product.ID)
		assert.Equal(t, 9, product.Stock)
	})
}

func TestRefundAfterDeliveryRejected(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
	require.NoError(t, err)
	advanceTo(t, db, f.order.ID, models.OrderConfirmed, models.OrderPickedUp)
	_, err = engine.ReleaseOnDelivery(f.order.ID)
	require.NoError(t, err)

	_, err = engine.RefundOnCancellation(f.order.ID, "buyer", "too late")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestDisputeBeforePayout(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)

	t.Run("refund_buyer", func(t *testing.T) {
		f := seedOrder(t, db)
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)
		advanceTo(t, db, f.order.ID, models.OrderConfirmed)

		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "not as described", "item is broken")
		require.NoError(t, err)
		assert.Equal(t, models.DisputeOpen, dispute.Status)

		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.OrderDisputed, order.Status)

		_, err = engine.OpenDispute(f.order.ID, f.buyer.ID, "again", "again")
		assert.ErrorIs(t, err, ErrDisputeAlreadyOpen)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionRefundBuyer, AdminID: 99, Note: "verified",
		})
		require.NoError(t, err)

		refunds := entryAmounts(t, db, f.order.ID, models.LedgerDisputeRefund)
		require.Len(t, refunds, 1)
		assert.Equal(t, int64(115000), refunds[0])

		var net int64
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerPlatformCommission) {
			net += a
		}
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerCommissionReversal) {
			net += a
		}
		assert.Zero(t, net)

		order = reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.OrderCancelled, order.Status)
		assert.Equal(t, models.PaymentRefunded, order.PaymentStatus)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Zero(t, seller.AvailableBalance)

		resolved := reload[models.Dispute](t, db, dispute.ID)
		assert.Equal(t, models.DisputeResolved, resolved.Status)
		assert.Contains(t, resolved.Resolution, models.ResolutionRefundBuyer)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionRefundBuyer, AdminID: 99, Note: "twice",
		})
		assert.ErrorIs(t, err, ErrDisputeAlreadyResolved)
	})

	t.Run("payout_seller", func(t *testing.T) {
		f := seedOrder(t, db)
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)
		advanceTo(t, db, f.order.ID, models.OrderConfirmed, models.OrderPickedUp)

		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "late", "still waiting")
		require.NoError(t, err)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionPayoutSeller, AdminID: 99, Note: "delivery proven",
		})
		require.NoError(t, err)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(90000), seller.AvailableBalance)

		courier := reload[models.User](t, db, f.courier.ID)
		assert.Equal(t, int64(15000), courier.AvailableBalance)

		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.OrderDelivered, order.Status)
		assert.Equal(t, models.PaymentCompleted, order.PaymentStatus)
	})

	t.Run("partial_refund reconciles to the order total", func(t *testing.T) {
		f := seedOrder(t, db)
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)
		advanceTo(t, db, f.order.ID, models.OrderConfirmed, models.OrderPickedUp)

		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "damaged", "scratched casing")
		require.NoError(t, err)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionPartialRefund,
			AdminID: 99, Note: "split the difference", RefundPercentage: 40,
		})
		require.NoError(t, err)

		refunds := entryAmounts(t, db, f.order.ID, models.LedgerDisputeRefund)
		require.Len(t, refunds, 1)
		assert.Equal(t, int64(46000), refunds[0])

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(48000), seller.AvailableBalance)

		courier := reload[models.User](t, db, f.courier.ID)
		assert.Equal(t, int64(15000), courier.AvailableBalance)

		// Buyer refund + seller payout + courier payout + retained commission
		// must add back up to what the buyer paid in.
		var commissionNet int64
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerPlatformCommission) {
			commissionNet += a
		}
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerCommissionReversal) {
			commissionNet += a
		}
		assert.Equal(t, int64(6000), commissionNet)
		assert.Equal(t, int64(115000), refunds[0]+seller.AvailableBalance+courier.AvailableBalance+commissionNet)

		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.OrderDelivered, order.Status)
	})

	t.Run("invalid refund percentage", func(t *testing.T) {
		f := seedOrder(t, db)
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)

		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "damaged", "details")
		require.NoError(t, err)

		for _, pct := range []int{0, 100, -5, 150} {
			_, err = engine.ResolveDispute(ResolveDisputeParams{
				DisputeID: dispute.ID, Resolution: models.ResolutionPartialRefund,
				AdminID: 99, Note: "bad", RefundPercentage: pct,
			})
			assert.ErrorIs(t, err, ErrInvalidRefundPercentage, "pct=%d", pct)
		}
	})
}

func TestDisputeWithoutCourier(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)

	// Disputed from CONFIRMED: no courier was ever assigned, but the hold
	// still carries the courier fee.
	seed := func(t *testing.T) *fixture {
		f := seedOrder(t, db)
		require.NoError(t, db.Model(&models.Order{}).Where("id = ?", f.order.ID).
			Update("courier_id", nil).Error)
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)
		advanceTo(t, db, f.order.ID, models.OrderConfirmed)
		return f
	}

	t.Run("payout_seller refunds the fee to the buyer", func(t *testing.T) {
		f := seed(t)
		dispute, err := engine.OpenDispute(f.order.ID, f.seller.ID, "buyer unresponsive", "cannot arrange delivery")
		require.NoError(t, err)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionPayoutSeller, AdminID: 99, Note: "seller fulfilled",
		})
		require.NoError(t, err)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(90000), seller.AvailableBalance)

		refunds := entryAmounts(t, db, f.order.ID, models.LedgerDisputeRefund)
		require.Len(t, refunds, 1)
		assert.Equal(t, int64(15000), refunds[0])

		// Settled entries add back up to the hold.
		var sum int64
		for _, typ := range []models.LedgerType{
			models.LedgerDisputePayout, models.LedgerDisputeRefund, models.LedgerPlatformCommission,
		} {
			for _, a := range entryAmounts(t, db, f.order.ID, typ) {
				sum += a
			}
		}
		assert.Equal(t, int64(115000), sum)
	})

	t.Run("partial_refund refunds the fee to the buyer", func(t *testing.T) {
		f := seed(t)
		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "delayed", "order stuck")
		require.NoError(t, err)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionPartialRefund,
			AdminID: 99, Note: "split", RefundPercentage: 40,
		})
		require.NoError(t, err)

		refunds := entryAmounts(t, db, f.order.ID, models.LedgerDisputeRefund)
		require.Len(t, refunds, 2)
		assert.ElementsMatch(t, []int64{46000, 15000}, refunds)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(48000), seller.AvailableBalance)

		var commissionNet int64
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerPlatformCommission) {
			commissionNet += a
		}
		for _, a := range entryAmounts(t, db, f.order.ID, models.LedgerCommissionReversal) {
			commissionNet += a
		}
		assert.Equal(t, int64(6000), commissionNet)

		// 46000 + 15000 to the buyer, 48000 to the seller, 6000 retained.
		assert.Equal(t, int64(115000), refunds[0]+refunds[1]+seller.AvailableBalance+commissionNet)
	})
}

func TestDisputeAfterPayout(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)

	deliver := func(t *testing.T) *fixture {
		f := seedOrder(t, db)
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)
		advanceTo(t, db, f.order.ID, models.OrderConfirmed, models.OrderPickedUp)
		_, err = engine.ReleaseOnDelivery(f.order.ID)
		require.NoError(t, err)
		return f
	}

	t.Run("opening blocks the seller portion", func(t *testing.T) {
		f := deliver(t)

		_, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "fake item", "counterfeit")
		require.NoError(t, err)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Zero(t, seller.AvailableBalance)
		assert.Equal(t, int64(90000), seller.PendingBalance)
		// The block is a column transfer, not a removal.
		assert.Equal(t, int64(90000), seller.TotalEarnings)

		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.OrderDelivered, order.Status)
	})

	t.Run("refund_buyer claws the payout back", func(t *testing.T) {
		f := deliver(t)
		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "fake item", "counterfeit")
		require.NoError(t, err)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionRefundBuyer, AdminID: 99, Note: "confirmed fake",
		})
		require.NoError(t, err)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Zero(t, seller.AvailableBalance)
		assert.Zero(t, seller.PendingBalance)
		assert.Zero(t, seller.TotalEarnings)

		refunds := entryAmounts(t, db, f.order.ID, models.LedgerDisputeRefund)
		require.Len(t, refunds, 1)
		assert.Equal(t, int64(115000), refunds[0])

		reversals := entryAmounts(t, db, f.order.ID, models.LedgerCommissionReversal)
		require.Len(t, reversals, 1)
		assert.Equal(t, int64(-10000), reversals[0])

		order := reload[models.Order](t, db, f.order.ID)
		assert.Equal(t, models.PaymentRefunded, order.PaymentStatus)
	})

	t.Run("payout_seller lifts the block", func(t *testing.T) {
		f := deliver(t)
		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "late", "unfounded")
		require.NoError(t, err)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionPayoutSeller, AdminID: 99, Note: "no merit",
		})
		require.NoError(t, err)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(90000), seller.AvailableBalance)
		assert.Zero(t, seller.PendingBalance)
		assert.Equal(t, int64(90000), seller.TotalEarnings)
	})

	t.Run("partial_refund settles the reduced amount", func(t *testing.T) {
		f := deliver(t)
		dispute, err := engine.OpenDispute(f.order.ID, f.buyer.ID, "damaged", "dented")
		require.NoError(t, err)

		_, err = engine.ResolveDispute(ResolveDisputeParams{
			DisputeID: dispute.ID, Resolution: models.ResolutionPartialRefund,
			AdminID: 99, Note: "agreed", RefundPercentage: 40,
		})
		require.NoError(t, err)

		seller := reload[models.User](t, db, f.seller.ID)
		assert.Equal(t, int64(48000), seller.AvailableBalance)
		assert.Zero(t, seller.PendingBalance)
		assert.Equal(t, int64(48000), seller.TotalEarnings)

		// Courier keeps the full fee from the original release.
		courier := reload[models.User](t, db, f.courier.ID)
		assert.Equal(t, int64(15000), courier.AvailableBalance)
	})
}

func TestWithdrawals(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)

	seller := models.User{FullName: "Bayo Seller", Email: "seller-w@test.local", Role: "seller", AvailableBalance: 500000, TotalEarnings: 500000}
	require.NoError(t, db.Create(&seller).Error)

	t.Run("validate reports reasons without moving funds", func(t *testing.T) {
		check, err := engine.ValidateWithdrawal(seller.ID, 50000)
		require.NoError(t, err)
		assert.False(t, check.Valid)
		assert.Contains(t, check.Reason, "minimum")

		check, err = engine.ValidateWithdrawal(seller.ID, 900000)
		require.NoError(t, err)
		assert.False(t, check.Valid)

		check, err = engine.ValidateWithdrawal(seller.ID, 200000)
		require.NoError(t, err)
		assert.True(t, check.Valid)
		assert.Equal(t, int64(500000), check.AvailableBalance)
	})

	t.Run("request blocks the amount", func(t *testing.T) {
		entry, err := engine.RequestWithdrawal(seller.ID, 200000, 1)
		require.NoError(t, err)
		assert.Equal(t, models.LedgerPending, entry.Status)

		u := reload[models.User](t, db, seller.ID)
		assert.Equal(t, int64(300000), u.AvailableBalance)
		assert.Equal(t, int64(200000), u.PendingBalance)

		t.Run("approve removes the blocked amount", func(t *testing.T) {
			resolved, err := engine.ResolveWithdrawal(entry.ID, true, 99)
			require.NoError(t, err)
			assert.Equal(t, models.LedgerCompleted, resolved.Status)

			u := reload[models.User](t, db, seller.ID)
			assert.Equal(t, int64(300000), u.AvailableBalance)
			assert.Zero(t, u.PendingBalance)
			assert.Equal(t, int64(500000), u.TotalEarnings)

			_, err = engine.ResolveWithdrawal(entry.ID, true, 99)
			assert.ErrorIs(t, err, ErrWithdrawalNotPending)
		})
	})

	t.Run("reject returns the blocked amount", func(t *testing.T) {
		entry, err := engine.RequestWithdrawal(seller.ID, 150000, 1)
		require.NoError(t, err)

		resolved, err := engine.ResolveWithdrawal(entry.ID, false, 99)
		require.NoError(t, err)
		assert.Equal(t, models.LedgerCancelled, resolved.Status)

		u := reload[models.User](t, db, seller.ID)
		assert.Equal(t, int64(300000), u.AvailableBalance)
		assert.Zero(t, u.PendingBalance)
	})

	t.Run("below minimum rejected", func(t *testing.T) {
		_, err := engine.RequestWithdrawal(seller.ID, 50000, 1)
		assert.ErrorIs(t, err, ErrBelowMinimumWithdrawal)
	})

	t.Run("insufficient balance rejected", func(t *testing.T) {
		_, err := engine.RequestWithdrawal(seller.ID, 900000, 1)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})
}

func TestEscrowStatus(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	f := seedOrder(t, db)

	t.Run("no escrow yet", func(t *testing.T) {
		status, err := engine.Status(f.order.ID)
		require.NoError(t, err)
		assert.False(t, status.HasEscrow)
		assert.Empty(t, status.Entries)
	})

	t.Run("after hold", func(t *testing.T) {
		_, err := engine.CreateHold(f.order.ID, f.buyer.ID, 115000)
		require.NoError(t, err)

		status, err := engine.Status(f.order.ID)
		require.NoError(t, err)
		assert.True(t, status.HasEscrow)
		assert.Equal(t, models.LedgerHeld, status.Status)
		assert.Equal(t, int64(115000), status.Amount)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := engine.Status(999999)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}
