package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Case lifecycle statuses. Transitions are validated in the cases service;
// feedback submission moves PENDING -> VISITED and leaves PAID/CLOSED alone.
const (
	CaseStatusPending = "PENDING"
	CaseStatusVisited = "VISITED"
	CaseStatusPaid    = "PAID"
	CaseStatusClosed  = "CLOSED"
)

// Upload modes for case imports
const (
	UploadModeOriginal = "ORIGINAL"
	UploadModeTopUp    = "TOP_UP"
)

// Case represents a debt account under field collection.
// Lat/Lng are the geocoded registered address and may be unknown; visits
// against a case without coordinates cannot be distance-scored.
type Case struct {
	ID           string          `gorm:"primaryKey;type:uuid" json:"id"`
	AccID        string          `gorm:"uniqueIndex;not null" json:"accId"`
	CustID       string          `json:"custId,omitempty"`
	CustomerName string          `gorm:"not null" json:"customerName"`
	PhoneNumber  string          `json:"phoneNumber,omitempty"`
	Address      string          `json:"address,omitempty"`
	Pincode      string          `json:"pincode,omitempty"`
	Lat          *float64        `json:"lat,omitempty"`
	Lng          *float64        `json:"lng,omitempty"`
	POSAmount    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"posAmount"`
	OverdueAmt   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"overdueAmount"`
	DPD          int             `gorm:"default:0" json:"dpd"`
	BKT          string          `gorm:"index" json:"bkt,omitempty"`
	ProductType  string          `gorm:"index" json:"productType,omitempty"`
	BankName     string          `gorm:"index" json:"bankName,omitempty"`
	NPAStatus    string          `json:"npaStatus,omitempty"`
	Priority     string          `json:"priority,omitempty"`
	EmpID        string          `gorm:"index" json:"empId,omitempty"`
	ExecutiveID  *string         `gorm:"type:uuid;index" json:"executiveId,omitempty"`
	Status       string          `gorm:"default:'PENDING';index" json:"status"`
	LastVisitAt  *time.Time      `json:"lastVisitAt,omitempty"`
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	UploadMode   string          `gorm:"default:'ORIGINAL'" json:"uploadMode"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Executive *User      `gorm:"foreignKey:ExecutiveID" json:"executive,omitempty"`
	Feedbacks []Feedback `gorm:"foreignKey:CaseID" json:"feedbacks,omitempty"`
}

// TableName specifies the table name for Case model
func (Case) TableName() string {
	return "cases"
}

// CaseUpload records one bulk import run
type CaseUpload struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	SupervisorID string    `gorm:"type:uuid;not null" json:"supervisorId"`
	Filename     string    `json:"filename"`
	UploadMode   string    `gorm:"default:'ORIGINAL'" json:"uploadMode"`
	TotalCases   int       `json:"totalCases"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName specifies the table name for CaseUpload model
func (CaseUpload) TableName() string {
	return "case_uploads"
}
