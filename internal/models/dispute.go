package models

import (
	"time"

	"gorm.io/gorm"
)

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeInReview DisputeStatus = "in_review"
	DisputeResolved DisputeStatus = "resolved"
	DisputeClosed   DisputeStatus = "closed"
)

// Dispute resolutions chosen by the reviewer.
const (
	ResolutionRefundBuyer   = "refund_buyer"
	ResolutionPayoutSeller  = "payout_seller"
	ResolutionPartialRefund = "partial_refund"
)

type Dispute struct {
	ID          uint          `gorm:"primarykey" json:"id"`
	OrderID     uint          `gorm:"not null;index" json:"order_id"`
	RaisedBy    uint          `gorm:"not null;index" json:"raised_by"`
	AssignedTo  *uint         `gorm:"index" json:"assigned_to,omitempty"`
	Reason      string        `gorm:"type:varchar(50);not null" json:"reason"`
	Description string        `gorm:"type:text;not null" json:"description"`
	Status      DisputeStatus `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	Resolution  string        `gorm:"type:text" json:"resolution,omitempty"`
	ResolvedBy  *uint         `gorm:"index" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Order Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	User  User  `gorm:"foreignKey:RaisedBy" json:"user,omitempty"`
}

func (Dispute) TableName() string {
	return "disputes"
}

// Active reports whether the dispute still blocks the order.
func (s DisputeStatus) Active() bool {
	return s == DisputeOpen || s == DisputeInReview
}
