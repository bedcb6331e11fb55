package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payout types
const (
	PayoutTypeFixed      = "FIXED"
	PayoutTypePercentage = "PERCENTAGE"
)

// Case resolution types used for bonus selection
const (
	ResolutionNorm     = "NORM"
	ResolutionRollback = "ROLLBACK"
)

// PayoutGrid is one row of the payout lookup table, keyed by
// bank/product/BKT. When several rows match, the highest target percent
// applies.
type PayoutGrid struct {
	ID            string           `gorm:"primaryKey;type:uuid" json:"id"`
	Bank          string           `gorm:"not null;index:idx_grid_lookup" json:"bank"`
	Product       string           `gorm:"not null;index:idx_grid_lookup" json:"product"`
	BKT           string           `gorm:"not null;index:idx_grid_lookup" json:"bkt"`
	TargetPercent decimal.Decimal  `gorm:"type:decimal(6,2);default:0" json:"targetPercent"`
	PayoutType    string           `gorm:"default:'FIXED'" json:"payoutType"`
	PayoutAmount  decimal.Decimal  `gorm:"type:decimal(20,2);default:0" json:"payoutAmount"`
	NormBonus     decimal.Decimal  `gorm:"type:decimal(20,2);default:0" json:"normBonus"`
	RollbackBonus decimal.Decimal  `gorm:"type:decimal(20,2);default:0" json:"rollbackBonus"`
	MaxEarning    *decimal.Decimal `gorm:"type:decimal(20,2)" json:"maxEarning,omitempty"`
	CreatedBy     string           `gorm:"type:uuid" json:"createdBy"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for PayoutGrid model
func (PayoutGrid) TableName() string {
	return "payout_grids"
}

// PerformanceMetric stores the computed monthly numbers per executive
type PerformanceMetric struct {
	ID           string          `gorm:"primaryKey;type:uuid" json:"id"`
	ExecutiveID  string          `gorm:"type:uuid;not null;uniqueIndex:idx_metric_period" json:"executiveId"`
	Month        int             `gorm:"not null;uniqueIndex:idx_metric_period" json:"month"`
	Year         int             `gorm:"not null;uniqueIndex:idx_metric_period" json:"year"`
	TotalCases   int             `gorm:"default:0" json:"totalCases"`
	VisitedCases int             `gorm:"default:0" json:"visitedCases"`
	TotalPOS     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"totalPos"`
	RecoveredPOS decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"recoveredPos"`
	Earnings     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"earnings"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for PerformanceMetric model
func (PerformanceMetric) TableName() string {
	return "performance_metrics"
}
