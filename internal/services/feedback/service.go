// Package feedback turns raw visit submissions into fraud-scored records
// and tracks the promise-to-pay lifecycle.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/credvue/fieldcollect/internal/geo"
	"github.com/credvue/fieldcollect/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Typed failures surfaced to the HTTP layer. Storage errors propagate
// wrapped; anything not matching these maps to a 5xx.
var (
	ErrCaseNotFound       = errors.New("case not found")
	ErrFeedbackNotFound   = errors.New("feedback not found")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidVisitCode   = errors.New("invalid visit code")
	ErrInvalidPTPDate     = errors.New("invalid ptp date")
)

// Service orchestrates feedback persistence and the PTP monitor
type Service struct {
	db        *gorm.DB
	validator geo.Validator
}

// NewService creates a feedback service
func NewService(db *gorm.DB, validator geo.Validator) *Service {
	return &Service{db: db, validator: validator}
}

// SubmitInput is one raw visit submission
type SubmitInput struct {
	CaseID       string
	ExecutiveID  string
	Lat          float64
	Lng          float64
	VisitCode    string
	MeetingPlace string
	AssetStatus  string
	Remarks      string
	PhotoURL     string
	PTPDate      string // calendar date, empty when no promise was made
	UserAgent    string
	IPAddress    string
}

// Submit validates, fraud-scores and persists one visit report, advancing
// the owning case in the same transaction. Either both the feedback row
// and the case update commit, or neither does.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Feedback, geo.Validation, error) {
	if !models.ValidVisitCode(in.VisitCode) {
		return nil, geo.Validation{}, fmt.Errorf("%w: %q", ErrInvalidVisitCode, in.VisitCode)
	}
	if err := geo.CheckCoordinates(in.Lat, in.Lng); err != nil {
		return nil, geo.Validation{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	ptpDate, err := parsePTPDate(in.PTPDate)
	if err != nil {
		return nil, geo.Validation{}, err
	}

	now := time.Now().UTC()

	snapshot, err := json.Marshal(models.DeviceSnapshot{
		UserAgent: in.UserAgent,
		IPAddress: in.IPAddress,
		Timestamp: now,
		Lat:       in.Lat,
		Lng:       in.Lng,
	})
	if err != nil {
		return nil, geo.Validation{}, fmt.Errorf("marshal device snapshot: %w", err)
	}

	var record *models.Feedback
	var validation geo.Validation

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var caseRecord models.Case
		if err := tx.First(&caseRecord, "id = ?", in.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCaseNotFound
			}
			return fmt.Errorf("fetch case: %w", err)
		}

		validation = s.validator.Validate(in.Lat, in.Lng, caseRecord.Lat, caseRecord.Lng)

		visitFlag := models.VisitFlagNone
		if !validation.IsValid {
			visitFlag = models.VisitFlagAuto
		}

		ptpStatus := models.PTPStatusNone
		if ptpDate != nil {
			ptpStatus = models.PTPStatusOpen
		}

		record = &models.Feedback{
			CaseID:              caseRecord.ID,
			ExecutiveID:         in.ExecutiveID,
			Lat:                 in.Lat,
			Lng:                 in.Lng,
			DistanceFromAddress: validation.DistanceMeters,
			VisitFlag:           visitFlag,
			VisitCode:           in.VisitCode,
			MeetingPlace:        in.MeetingPlace,
			AssetStatus:         in.AssetStatus,
			Remarks:             in.Remarks,
			PhotoURL:            in.PhotoURL,
			PTPDate:             ptpDate,
			PTPStatus:           ptpStatus,
			DeviceInfo:          datatypes.JSON(snapshot),
		}

		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}

		// A new visit always refreshes lastVisitAt. Status only moves
		// from PENDING/VISITED; a late visit on a PAID or CLOSED case
		// does not reopen it.
		updates := map[string]interface{}{"last_visit_at": now}
		if caseRecord.Status == models.CaseStatusPending || caseRecord.Status == models.CaseStatusVisited {
			updates["status"] = models.CaseStatusVisited
		}
		if err := tx.Model(&models.Case{}).Where("id = ?", caseRecord.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update case: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, geo.Validation{}, err
	}

	return record, validation, nil
}

// parsePTPDate normalizes a submitted promise date to midnight UTC.
// Accepts plain calendar dates and RFC3339 timestamps.
func parsePTPDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPTPDate, raw)
		}
	}
	day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	return &day, nil
}

// ByID fetches one feedback with its case and executive
func (s *Service) ByID(ctx context.Context, id string) (*models.Feedback, error) {
	var record models.Feedback
	err := s.db.WithContext(ctx).
		Preload("Case").
		Preload("Executive").
		First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, fmt.Errorf("fetch feedback: %w", err)
	}
	return &record, nil
}

// ByCase returns the append-only visit log for a case, newest first
func (s *Service) ByCase(ctx context.Context, caseID string) ([]models.Feedback, error) {
	var records []models.Feedback
	err := s.db.WithContext(ctx).
		Preload("Executive").
		Where("case_id = ?", caseID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetch feedbacks for case: %w", err)
	}
	return records, nil
}

// Filters narrows executive feedback queries
type Filters struct {
	FakeVisit *bool
	PTPBroken *bool
}

// ByExecutive returns an executive's visit reports, newest first
func (s *Service) ByExecutive(ctx context.Context, executiveID string, filters Filters) ([]models.Feedback, error) {
	q := s.db.WithContext(ctx).
		Preload("Case").
		Where("executive_id = ?", executiveID)

	if filters.FakeVisit != nil {
		if *filters.FakeVisit {
			q = q.Where("visit_flag IN ?", []string{models.VisitFlagAuto, models.VisitFlagAudit})
		} else {
			q = q.Where("visit_flag = ?", models.VisitFlagNone)
		}
	}
	if filters.PTPBroken != nil {
		if *filters.PTPBroken {
			q = q.Where("ptp_status = ?", models.PTPStatusBroken)
		} else {
			q = q.Where("ptp_status <> ?", models.PTPStatusBroken)
		}
	}

	var records []models.Feedback
	if err := q.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("fetch feedbacks for executive: %w", err)
	}
	return records, nil
}

// MarkFakeVisit flags a feedback after manual audit. One-way: nothing ever
// clears the flag.
func (s *Service) MarkFakeVisit(ctx context.Context, id string) (*models.Feedback, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Feedback{}).
		Where("id = ?", id).
		Update("visit_flag", models.VisitFlagAudit)
	if res.Error != nil {
		return nil, fmt.Errorf("mark fake visit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrFeedbackNotFound
	}
	return s.ByID(ctx, id)
}

// RejectFeedback hard-deletes a visit report. The owning case keeps its
// status and lastVisitAt; rejection does not rewrite history.
func (s *Service) RejectFeedback(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Feedback{})
	if res.Error != nil {
		return fmt.Errorf("reject feedback: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}

// SweepResult summarizes one broken-PTP sweep run
type SweepResult struct {
	Checked int64 `json:"checked"`
	Broken  int64 `json:"broken"`
}

// CheckBrokenPTP marks overdue promises with no superseding visit as
// BROKEN. The supersession check and the mark happen in a single
// conditional UPDATE, so a concurrent submission cannot race a sweep that
// has already read the candidate, and re-running the sweep is a no-op.
func (s *Service) CheckBrokenPTP(ctx context.Context) (SweepResult, error) {
	today := startOfToday()

	// Count and mark share one transaction so the returned pair always
	// describes the same candidate set.
	var result SweepResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Feedback{}).
			Where("ptp_status = ? AND ptp_date < ?", models.PTPStatusOpen, today).
			Count(&result.Checked).Error
		if err != nil {
			return fmt.Errorf("count overdue promises: %w", err)
		}

		res := tx.Model(&models.Feedback{}).
			Where("ptp_status = ? AND ptp_date < ?", models.PTPStatusOpen, today).
			Where("NOT EXISTS (SELECT 1 FROM feedbacks newer WHERE newer.case_id = feedbacks.case_id AND newer.created_at > feedbacks.ptp_date)").
			Update("ptp_status", models.PTPStatusBroken)
		if res.Error != nil {
			return fmt.Errorf("mark broken promises: %w", res.Error)
		}
		result.Broken = res.RowsAffected
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}

// PTP alert filters
const (
	AlertFilterToday  = "today"
	AlertFilterBroken = "broken"
)

// PTPAlerts returns promise-to-pay alert views: promises due today, or
// promises already marked broken. Read-only.
func (s *Service) PTPAlerts(ctx context.Context, filter string) ([]models.Feedback, error) {
	q := s.db.WithContext(ctx).
		Preload("Case").
		Preload("Executive")

	today := startOfToday()
	switch filter {
	case AlertFilterBroken:
		q = q.Where("ptp_status = ?", models.PTPStatusBroken)
	case AlertFilterToday, "":
		tomorrow := today.AddDate(0, 0, 1)
		q = q.Where("ptp_status = ? AND ptp_date >= ? AND ptp_date < ?",
			models.PTPStatusOpen, today, tomorrow)
	default:
		return nil, fmt.Errorf("unknown alert filter %q", filter)
	}

	var records []models.Feedback
	if err := q.Order("ptp_date ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("fetch ptp alerts: %w", err)
	}
	return records, nil
}

// FakeVisitSummary is the supervisor audit view of flagged visits
type FakeVisitSummary struct {
	Total int               `json:"total"`
	List  []models.Feedback `json:"list"`
}

// FakeVisits returns all flagged visits in the optional date range,
// newest first
func (s *Service) FakeVisits(ctx context.Context, start, end *time.Time) (FakeVisitSummary, error) {
	q := s.db.WithContext(ctx).
		Preload("Case").
		Preload("Executive").
		Where("visit_flag IN ?", []string{models.VisitFlagAuto, models.VisitFlagAudit})

	if start != nil {
		q = q.Where("created_at >= ?", *start)
	}
	if end != nil {
		q = q.Where("created_at <= ?", *end)
	}

	var records []models.Feedback
	if err := q.Order("created_at DESC").Find(&records).Error; err != nil {
		return FakeVisitSummary{}, fmt.Errorf("fetch fake visits: %w", err)
	}
	return FakeVisitSummary{Total: len(records), List: records}, nil
}

// startOfToday returns midnight UTC of the current day, matching how
// ptp_date values are stored
func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
