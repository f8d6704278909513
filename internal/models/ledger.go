package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type LedgerType string
type LedgerStatus string

const (
	LedgerPayment            LedgerType = "payment"
	LedgerEscrowHold         LedgerType = "escrow_hold"
	LedgerEscrowRelease      LedgerType = "escrow_release"
	LedgerSellerPayout       LedgerType = "seller_payout"
	LedgerCourierPayout      LedgerType = "courier_payout"
	LedgerPlatformCommission LedgerType = "platform_commission"
	LedgerCommissionReversal LedgerType = "commission_reversal"
	LedgerRefund             LedgerType = "refund"
	LedgerDisputeRefund      LedgerType = "dispute_refund"
	LedgerDisputePayout      LedgerType = "dispute_payout"
	LedgerWithdrawalRequest  LedgerType = "withdrawal_request"
)

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerHeld      LedgerStatus = "held"
	LedgerCompleted LedgerStatus = "completed"
	LedgerRefunded  LedgerStatus = "refunded"
	LedgerFailed    LedgerStatus = "failed"
	LedgerCancelled LedgerStatus = "cancelled"
)

// legalStatuses restricts each entry type to the statuses it may carry. Only
// the two-phase types (escrow_hold, platform_commission) pass through "held";
// a payout can never be held, a reversal is written completed or not at all.
var legalStatuses = map[LedgerType]map[LedgerStatus]bool{
	LedgerPayment:            {LedgerPending: true, LedgerCompleted: true, LedgerFailed: true},
	LedgerEscrowHold:         {LedgerHeld: true, LedgerCompleted: true, LedgerRefunded: true},
	LedgerEscrowRelease:      {LedgerCompleted: true},
	LedgerSellerPayout:       {LedgerCompleted: true},
	LedgerCourierPayout:      {LedgerCompleted: true},
	LedgerPlatformCommission: {LedgerHeld: true, LedgerCompleted: true, LedgerRefunded: true},
	LedgerCommissionReversal: {LedgerCompleted: true},
	LedgerRefund:             {LedgerCompleted: true},
	LedgerDisputeRefund:      {LedgerCompleted: true},
	LedgerDisputePayout:      {LedgerCompleted: true},
	LedgerWithdrawalRequest:  {LedgerPending: true, LedgerCompleted: true, LedgerCancelled: true},
}

func (t LedgerType) AllowsStatus(s LedgerStatus) bool {
	return legalStatuses[t][s]
}

// Terminal statuses admit no further mutation; corrections happen through new
// entries. "held" is the one non-terminal settled state and flips exactly once.
func (s LedgerStatus) Terminal() bool {
	return s == LedgerCompleted || s == LedgerRefunded || s == LedgerCancelled || s == LedgerFailed
}

// JSONMap stores structured entry metadata as jsonb.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}
	return json.Unmarshal(data, m)
}

func (JSONMap) GormDataType() string {
	return "jsonb"
}

// Int64 reads a numeric metadata field. JSON numbers come back as float64.
func (m JSONMap) Int64(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// LedgerEntry is one immutable record of a fund movement. Amounts are signed;
// reversals carry negative amounts so that per-order sums reconcile to zero
// net commission after a refund.
type LedgerEntry struct {
	ID          uint         `gorm:"primarykey" json:"id"`
	OrderID     *uint        `gorm:"index" json:"order_id,omitempty"`
	UserID      *uint        `gorm:"index" json:"user_id,omitempty"` // nil for platform-only entries
	Reference   string       `gorm:"uniqueIndex;not null" json:"reference"`
	Type        LedgerType   `gorm:"type:varchar(30);not null;index" json:"type"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Status      LedgerStatus `gorm:"type:varchar(20);not null" json:"status"`
	Description string       `gorm:"type:text" json:"description"`
	Metadata    JSONMap      `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// Validate checks the type/status pairing before any write.
func (e *LedgerEntry) Validate() error {
	if !e.Type.AllowsStatus(e.Status) {
		return fmt.Errorf("ledger entry type %s cannot have status %s", e.Type, e.Status)
	}
	return nil
}
