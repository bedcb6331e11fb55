package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Visit outcome codes submitted by field executives.
// THIRD_PARTY codes carry a suffix naming who was met (e.g.
// THIRD_PARTY_FAMILY); they are validated by prefix.
const (
	VisitCodePaid         = "PAID"
	VisitCodePTP          = "PTP"
	VisitCodeRTP          = "RTP"
	VisitCodeNotAvailable = "NOT_AVAILABLE"
	VisitCodeANF          = "ANF"

	visitCodeThirdPartyPrefix = "THIRD_PARTY_"
)

// ValidVisitCode reports whether code is a recognized visit outcome
func ValidVisitCode(code string) bool {
	switch code {
	case VisitCodePaid, VisitCodePTP, VisitCodeRTP, VisitCodeNotAvailable, VisitCodeANF:
		return true
	}
	return strings.HasPrefix(code, visitCodeThirdPartyPrefix) &&
		len(code) > len(visitCodeThirdPartyPrefix)
}

// Visit fraud flag states. Transitions are one-way:
// UNFLAGGED -> AUTO_FLAGGED (at creation, distance over threshold) and
// UNFLAGGED/AUTO_FLAGGED -> AUDIT_FLAGGED (manual supervisor override).
// Nothing ever clears a flag.
const (
	VisitFlagNone  = "UNFLAGGED"
	VisitFlagAuto  = "AUTO_FLAGGED"
	VisitFlagAudit = "AUDIT_FLAGGED"
)

// PTP lifecycle states. Empty means the feedback carries no promise.
// OPEN -> BROKEN happens only through the sweep's conditional update;
// a superseded promise stays OPEN forever (the newer feedback row is the
// resolution, there is no stored "superseded" state).
const (
	PTPStatusNone   = ""
	PTPStatusOpen   = "OPEN"
	PTPStatusBroken = "BROKEN"
)

// Feedback is one field-visit report against a Case. Core fields are
// immutable after creation; only VisitFlag and PTPStatus ever change, and
// only forward. Rows are removed solely by supervisor rejection.
type Feedback struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	CaseID      string `gorm:"type:uuid;not null;index" json:"caseId"`
	ExecutiveID string `gorm:"type:uuid;not null;index" json:"executiveId"`

	Lat                 float64  `json:"lat"`
	Lng                 float64  `json:"lng"`
	DistanceFromAddress *float64 `json:"distanceFromAddress,omitempty"`
	VisitFlag           string   `gorm:"default:'UNFLAGGED';index" json:"visitFlag"`

	VisitCode    string `gorm:"not null" json:"visitCode"`
	MeetingPlace string `json:"meetingPlace,omitempty"`
	AssetStatus  string `json:"assetStatus,omitempty"`
	Remarks      string `json:"remarks,omitempty"`
	PhotoURL     string `json:"photoUrl,omitempty"`

	PTPDate   *time.Time `gorm:"index" json:"ptpDate,omitempty"`
	PTPStatus string     `gorm:"default:'';index" json:"ptpStatus"`

	// DeviceInfo is a write-once forensic snapshot (user agent, IP,
	// capture time, raw coordinates). Never interpreted by business
	// logic.
	DeviceInfo datatypes.JSON `json:"deviceInfo,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	// Relations
	Case      *Case `gorm:"foreignKey:CaseID" json:"case,omitempty"`
	Executive *User `gorm:"foreignKey:ExecutiveID" json:"executive,omitempty"`
}

// TableName specifies the table name for Feedback model
func (Feedback) TableName() string {
	return "feedbacks"
}

// IsFakeVisit reports whether the visit is flagged, automatically or by
// audit
func (f *Feedback) IsFakeVisit() bool {
	return f.VisitFlag == VisitFlagAuto || f.VisitFlag == VisitFlagAudit
}

// DeviceSnapshot is the capture metadata stored in Feedback.DeviceInfo
type DeviceSnapshot struct {
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
}
