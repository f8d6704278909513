package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeport/internal/escrow"
	"tradeport/internal/finance"
	"tradeport/internal/models"
	"tradeport/internal/orders"
	"tradeport/internal/services"
)

type OrderHandler struct {
	DB       *gorm.DB
	Calc     *finance.Calculator
	Engine   *escrow.Engine
	Notifier *services.NotificationService
}

func NewOrderHandler(db *gorm.DB, calc *finance.Calculator, engine *escrow.Engine, notifier *services.NotificationService) *OrderHandler {
	return &OrderHandler{DB: db, Calc: calc, Engine: engine, Notifier: notifier}
}

var (
	errInsufficientStock = errors.New("insufficient stock for product")
	errOwnProduct        = errors.New("you cannot buy your own product")
)

type CreateOrderRequest struct {
	ProductID  uint   `json:"product_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	CouponCode string `json:"coupon_code"`
	CourierFee *int64 `json:"courier_fee"`
}

// CreateOrder creates a single-seller order: coupon applied, totals computed,
// stock reserved and the order written in one transaction. Payment (and the
// escrow hold) follows separately via the payment feed.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	req := new(CreateOrderRequest)
	if !bindBody(c, req) {
		return nil
	}

	buyerID := c.Locals("user_id").(uint)

	var order models.Order
	var couponReason string
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, req.ProductID).Error; err != nil {
			return err
		}
		if product.SellerID == buyerID {
			return errOwnProduct
		}

		subtotal := product.Price * int64(req.Quantity)

		var discount int64
		var couponID *uint
		if req.CouponCode != "" {
			var coupon models.Coupon
			err := tx.Where("code = ?", req.CouponCode).First(&coupon).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			var loaded *models.Coupon
			if err == nil {
				loaded = &coupon
			}
			result := finance.ValidateCoupon(loaded, subtotal, product.SellerID, time.Now())
			if !result.Valid {
				couponReason = result.Reason
				return errCouponInvalid
			}
			// Guard the usage increment against the limit; a concurrent
			// application of the last use loses here, not at read time.
			res := tx.Model(&models.Coupon{}).
				Where("id = ? AND (usage_limit = 0 OR usage_count < usage_limit)", coupon.ID).
				UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				couponReason = "coupon usage limit reached"
				return errCouponInvalid
			}
			discount = result.Discount
			couponID = &coupon.ID
		}

		courierFee := int64(-1)
		if req.CourierFee != nil {
			courierFee = *req.CourierFee
		}
		totals := h.Calc.OrderTotals(product.Price, req.Quantity, discount, courierFee)

		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", product.ID, req.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", req.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInsufficientStock
		}

		order = models.Order{
			BuyerID:            buyerID,
			SellerID:           product.SellerID,
			ProductID:          product.ID,
			Quantity:           req.Quantity,
			UnitPrice:          product.Price,
			Discount:           totals.Discount,
			CouponID:           couponID,
			CourierFee:         totals.CourierFee,
			PlatformCommission: totals.Commission,
			SellerAmount:       totals.SellerAmount,
			TotalAmount:        totals.TotalAmount,
			Status:             models.OrderPending,
			PaymentStatus:      models.PaymentPending,
		}
		return tx.Create(&order).Error
	})

	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
		case errors.Is(err, errOwnProduct), errors.Is(err, errInsufficientStock):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, errCouponInvalid):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": couponReason})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create order"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Order created. Complete payment to place the escrow hold.",
		"order":   order,
	})
}

var errCouponInvalid = errors.New("coupon invalid")

type CheckoutItem struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,gt=0"`
}

type CheckoutRequest struct {
	Items      []CheckoutItem `json:"items" validate:"required,min=1,dive"`
	CouponCode string         `json:"coupon_code"`
	CourierFee *int64         `json:"courier_fee"`
}

// Checkout creates one order per cart item, distributing a cart-level coupon
// discount across sellers in proportion to each item's subtotal. The courier
// fee is cart-level and lands on the first order.
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	req := new(CheckoutRequest)
	if !bindBody(c, req) {
		return nil
	}

	buyerID := c.Locals("user_id").(uint)

	var created []models.Order
	var couponReason string
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		items := make([]finance.CartItem, 0, len(req.Items))
		products := make(map[uint]models.Product, len(req.Items))
		var totalSubtotal int64
		sameSeller := true
		var firstSeller uint

		for _, it := range req.Items {
			var product models.Product
			if err := tx.First(&product, it.ProductID).Error; err != nil {
				return err
			}
			if product.SellerID == buyerID {
				return errOwnProduct
			}
			products[product.ID] = product
			items = append(items, finance.CartItem{
				SellerID:  product.SellerID,
				ProductID: product.ID,
				UnitPrice: product.Price,
				Quantity:  it.Quantity,
			})
			totalSubtotal += product.Price * int64(it.Quantity)
			if firstSeller == 0 {
				firstSeller = product.SellerID
			} else if product.SellerID != firstSeller {
				sameSeller = false
			}
		}

		var discount int64
		var couponID *uint
		if req.CouponCode != "" {
			var coupon models.Coupon
			err := tx.Where("code = ?", req.CouponCode).First(&coupon).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			var loaded *models.Coupon
			if err == nil {
				loaded = &coupon
			}
			scopeSeller := uint(0)
			if sameSeller {
				scopeSeller = firstSeller
			}
			result := finance.ValidateCoupon(loaded, totalSubtotal, scopeSeller, time.Now())
			if !result.Valid {
				couponReason = result.Reason
				return errCouponInvalid
			}
			res := tx.Model(&models.Coupon{}).
				Where("id = ? AND (usage_limit = 0 OR usage_count < usage_limit)", coupon.ID).
				UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				couponReason = "coupon usage limit reached"
				return errCouponInvalid
			}
			discount = result.Discount
			couponID = &coupon.ID
		}

		courierFee := int64(-1)
		if req.CourierFee != nil {
			courierFee = *req.CourierFee
		}
		split := h.Calc.MultiSellerTotals(items, discount, courierFee)

		for i, st := range split {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", st.ProductID, items[i].Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", items[i].Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: product #%d", errInsufficientStock, st.ProductID)
			}

			order := models.Order{
				BuyerID:            buyerID,
				SellerID:           st.SellerID,
				ProductID:          st.ProductID,
				Quantity:           items[i].Quantity,
				UnitPrice:          items[i].UnitPrice,
				Discount:           st.Discount,
				CouponID:           couponID,
				CourierFee:         st.CourierFee,
				PlatformCommission: st.Commission,
				SellerAmount:       st.SellerAmount,
				TotalAmount:        st.TotalAmount,
				Status:             models.OrderPending,
				PaymentStatus:      models.PaymentPending,
			}
			if err := tx.Create(&order).Error; err != nil {
				return err
			}
			created = append(created, order)
		}
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
		case errors.Is(err, errOwnProduct), errors.Is(err, errInsufficientStock):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, errCouponInvalid):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": couponReason})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to checkout"})
	}

	var cartTotal int64
	for _, o := range created {
		cartTotal += o.TotalAmount
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Orders created. Complete payment to place the escrow holds.",
		"orders":     created,
		"cart_total": cartTotal,
	})
}

// advance performs a pure lifecycle transition with no fund movement. The
// precondition is re-checked under the row lock.
func (h *OrderHandler) advance(orderID uint, to models.OrderStatus, allow func(*models.Order) error, mutate func(*models.Order)) (*models.Order, error) {
	var order models.Order
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return escrow.ErrOrderNotFound
			}
			return err
		}
		if err := allow(&order); err != nil {
			return err
		}
		if err := orders.ValidateTransition(order.Status, to); err != nil {
			return err
		}
		order.Status = to
		if mutate != nil {
			mutate(&order)
		}
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

var errNotYourOrder = errors.New("you don't have access to this order")

// ConfirmOrder lets the seller accept a pending order.
func (h *OrderHandler) ConfirmOrder(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")
	userID := c.Locals("user_id").(uint)

	order, err := h.advance(uint(orderID), models.OrderConfirmed,
		func(o *models.Order) error {
			if o.SellerID != userID {
				return errNotYourOrder
			}
			return nil
		}, nil)
	if err != nil {
		if errors.Is(err, errNotYourOrder) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		}
		return engineError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Order confirmed",
		"order":   fiber.Map{"id": order.ID, "status": order.Status},
	})
}

// PickupOrder assigns the calling courier and marks the order picked up.
func (h *OrderHandler) PickupOrder(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")
	courierID := c.Locals("user_id").(uint)

	order, err := h.advance(uint(orderID), models.OrderPickedUp,
		func(o *models.Order) error {
			if o.CourierID != nil && *o.CourierID != courierID {
				return errNotYourOrder
			}
			return nil
		},
		func(o *models.Order) {
			now := time.Now()
			o.CourierID = &courierID
			o.PickedUpAt = &now
		})
	if err != nil {
		if errors.Is(err, errNotYourOrder) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		}
		return engineError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Order picked up",
		"order":   fiber.Map{"id": order.ID, "status": order.Status, "picked_up_at": order.PickedUpAt},
	})
}

// TransitOrder marks the order in transit.
func (h *OrderHandler) TransitOrder(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")
	courierID := c.Locals("user_id").(uint)

	order, err := h.advance(uint(orderID), models.OrderInTransit,
		func(o *models.Order) error {
			if o.CourierID == nil || *o.CourierID != courierID {
				return errNotYourOrder
			}
			return nil
		}, nil)
	if err != nil {
		if errors.Is(err, errNotYourOrder) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		}
		return engineError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Order in transit",
		"order":   fiber.Map{"id": order.ID, "status": order.Status},
	})
}

// DeliverOrder confirms delivery and releases the escrow to seller and
// courier. Only the buyer can confirm.
func (h *OrderHandler) DeliverOrder(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")
	userID := c.Locals("user_id").(uint)

	var order models.Order
	if err := h.DB.First(&order, orderID).Error; err != nil {
		return engineError(c, err)
	}
	if order.BuyerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the buyer can confirm delivery"})
	}

	result, err := h.Engine.ReleaseOnDelivery(order.ID)
	if err != nil {
		return engineError(c, err)
	}

	var seller models.User
	if err := h.DB.First(&seller, order.SellerID).Error; err == nil {
		h.Notifier.OrderDelivered(seller.Email, order.ID, order.SellerAmount)
	}

	return c.JSON(fiber.Map{
		"message": "Delivery confirmed. Funds released to seller and courier.",
		"entries": result.Entries,
	})
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelOrder cancels an undelivered order and refunds the escrow.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")
	userID := c.Locals("user_id").(uint)

	req := new(CancelOrderRequest)
	if !bindBody(c, req) {
		return nil
	}

	var order models.Order
	if err := h.DB.First(&order, orderID).Error; err != nil {
		return engineError(c, err)
	}

	var cancelledBy string
	switch userID {
	case order.BuyerID:
		cancelledBy = "buyer"
	case order.SellerID:
		cancelledBy = "seller"
	default:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": errNotYourOrder.Error()})
	}

	result, err := h.Engine.RefundOnCancellation(order.ID, cancelledBy, req.Reason)
	if err != nil {
		return engineError(c, err)
	}

	var buyer models.User
	if err := h.DB.First(&buyer, order.BuyerID).Error; err == nil {
		h.Notifier.OrderRefunded(buyer.Email, order.ID, order.TotalAmount)
	}

	return c.JSON(fiber.Map{
		"message": "Order cancelled. Refund issued to buyer.",
		"entries": result.Entries,
	})
}

// GetMyOrders lists orders where the caller is buyer, seller or courier.
func (h *OrderHandler) GetMyOrders(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)
	role := c.Query("role")

	query := h.DB.Preload("Product")
	switch role {
	case "buyer":
		query = query.Where("buyer_id = ?", userID)
	case "seller":
		query = query.Where("seller_id = ?", userID)
	case "courier":
		query = query.Where("courier_id = ?", userID)
	default:
		query = query.Where("buyer_id = ? OR seller_id = ? OR courier_id = ?", userID, userID, userID)
	}

	var list []models.Order
	if err := query.Order("created_at DESC").Find(&list).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve orders"})
	}

	return c.JSON(fiber.Map{
		"orders": list,
		"count":  len(list),
	})
}

// GetOrderByID retrieves one order for a participant.
func (h *OrderHandler) GetOrderByID(c *fiber.Ctx) error {
	orderID, _ := c.ParamsInt("id")
	userID := c.Locals("user_id").(uint)

	var order models.Order
	if err := h.DB.Preload("Product").Preload("Ledger").First(&order, orderID).Error; err != nil {
		return engineError(c, err)
	}

	if !isParticipant(&order, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": errNotYourOrder.Error()})
	}

	return c.JSON(fiber.Map{"order": order})
}
