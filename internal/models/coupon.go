package models

import (
	"time"

	"gorm.io/gorm"
)

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// Coupon is a read-only input to the finance calculator; the only mutation is
// the usage-count increment at application time, guarded against the limit.
type Coupon struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	Code           string     `gorm:"uniqueIndex;not null" json:"code"`
	Type           CouponType `gorm:"type:varchar(20);not null" json:"type"`
	Value          int64      `gorm:"not null" json:"value"` // percent for percentage type, kobo for fixed
	MinOrderAmount int64      `gorm:"not null;default:0" json:"min_order_amount"`
	MaxDiscount    int64      `gorm:"not null;default:0" json:"max_discount"` // 0 means uncapped
	UsageLimit     int        `gorm:"not null;default:0" json:"usage_limit"`  // 0 means unlimited
	UsageCount     int        `gorm:"not null;default:0" json:"usage_count"`
	SellerID       *uint      `gorm:"index" json:"seller_id,omitempty"` // nil means platform-wide
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Coupon) TableName() string {
	return "coupons"
}
