package models

import (
	"time"

	"gorm.io/gorm"
)

type OrderStatus string
type PaymentStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderDisputed  OrderStatus = "disputed"
)

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentHeld      PaymentStatus = "held"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Order is one purchase of one product by one buyer from one seller,
// optionally assigned a courier. Amount fields are fixed at creation and only
// change through escrow operations that write matching ledger entries.
type Order struct {
	ID        uint  `gorm:"primarykey" json:"id"`
	BuyerID   uint  `gorm:"not null;index" json:"buyer_id"`
	SellerID  uint  `gorm:"not null;index" json:"seller_id"`
	CourierID *uint `gorm:"index" json:"courier_id,omitempty"`
	ProductID uint  `gorm:"not null;index" json:"product_id"`

	Quantity  int   `gorm:"not null" json:"quantity"`
	UnitPrice int64 `gorm:"not null" json:"unit_price"`
	Discount  int64 `gorm:"not null;default:0" json:"discount"`
	CouponID  *uint `json:"coupon_id,omitempty"`

	CourierFee         int64 `gorm:"not null;default:0" json:"courier_fee"`
	PlatformCommission int64 `gorm:"not null;default:0" json:"platform_commission"`
	SellerAmount       int64 `gorm:"not null;default:0" json:"seller_amount"`
	TotalAmount        int64 `gorm:"not null" json:"total_amount"`

	Status        OrderStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`

	CancelReason string `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledBy  string `gorm:"type:varchar(20)" json:"cancelled_by,omitempty"`

	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Buyer   User    `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Seller  User    `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	Courier *User   `gorm:"foreignKey:CourierID" json:"courier,omitempty"`
	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	Ledger []LedgerEntry `gorm:"foreignKey:OrderID" json:"ledger,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// Terminal reports whether the order lifecycle has ended.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}
