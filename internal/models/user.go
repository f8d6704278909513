package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	FullName string `gorm:"not null" json:"full_name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Phone    string `json:"phone"`
	Role     string `gorm:"type:varchar(20);not null;default:'buyer'" json:"role"` // buyer, seller, courier, admin

	// Balance triple, all amounts in kobo. AvailableBalance is withdrawable
	// now, PendingBalance is reserved (dispute block, pending withdrawal),
	// TotalEarnings is lifetime earnings.
	AvailableBalance int64 `gorm:"not null;default:0" json:"available_balance"`
	PendingBalance   int64 `gorm:"not null;default:0" json:"pending_balance"`
	TotalEarnings    int64 `gorm:"not null;default:0" json:"total_earnings"`

	IsSuspended   bool       `gorm:"default:false" json:"is_suspended"`
	SuspendedAt   *time.Time `json:"suspended_at,omitempty"`
	SuspendReason string     `gorm:"type:text" json:"suspend_reason,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

func (u *User) CanPerformAction() bool {
	return !u.IsSuspended
}
