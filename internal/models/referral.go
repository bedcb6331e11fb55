package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral statuses
const (
	ReferralStatusPending  = "PENDING"
	ReferralStatusApproved = "APPROVED"
	ReferralStatusPaidOut  = "PAID_OUT"
)

// Referral tracks one employee-referral bonus claim
type Referral struct {
	ID          string          `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID  string          `gorm:"type:uuid;not null;index" json:"referrerId"`
	RefereeID   *string         `gorm:"type:uuid" json:"refereeId,omitempty"`
	RefereeName string          `json:"refereeName"`
	Phone       string          `json:"phone,omitempty"`
	Status      string          `gorm:"default:'PENDING'" json:"status"`
	BonusAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"bonusAmount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Referral model
func (Referral) TableName() string {
	return "referrals"
}
