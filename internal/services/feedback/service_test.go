package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/credvue/fieldcollect/internal/geo"
	"github.com/credvue/fieldcollect/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Named shared-cache memory database so the gorm pool sees one store
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Case{}, &models.Feedback{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := newTestDB(t)
	return NewService(db, geo.NewValidator(300)), db
}

func fp(v float64) *float64 { return &v }

func seedCase(t *testing.T, db *gorm.DB, lat, lng *float64, status string) *models.Case {
	t.Helper()
	c := &models.Case{
		AccID:        "ACC-" + uuid.NewString()[:8],
		CustomerName: "Test Customer",
		Lat:          lat,
		Lng:          lng,
		Status:       status,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("failed to seed case: %v", err)
	}
	return c
}

func seedExecutive(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	u := &models.User{
		Username: "exec-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@example.com",
		Password: "x",
		Role:     models.RoleFieldExecutive,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("failed to seed executive: %v", err)
	}
	return u
}

func TestSubmit_FlagsDistantVisit(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Case at 10.000N 20.000E; visit from ~333 m north
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusPending)
	exec := seedExecutive(t, db)

	record, validation, err := svc.Submit(ctx, SubmitInput{
		CaseID:      c.ID,
		ExecutiveID: exec.ID,
		Lat:         10.003,
		Lng:         20.0,
		VisitCode:   models.VisitCodeNotAvailable,
		UserAgent:   "test-agent",
		IPAddress:   "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if validation.IsValid {
		t.Error("visit 333 m away should fail validation")
	}
	if validation.DistanceMeters == nil || math.Abs(*validation.DistanceMeters-333) > 3 {
		t.Errorf("expected distance ~333 m, got %v", validation.DistanceMeters)
	}
	if record.VisitFlag != models.VisitFlagAuto {
		t.Errorf("expected AUTO_FLAGGED, got %q", record.VisitFlag)
	}
	if !record.IsFakeVisit() {
		t.Error("flagged record should report as fake visit")
	}
	if record.DistanceFromAddress == nil {
		t.Error("persisted record should carry the computed distance")
	}

	var updated models.Case
	if err := db.First(&updated, "id = ?", c.ID).Error; err != nil {
		t.Fatalf("failed to reload case: %v", err)
	}
	if updated.Status != models.CaseStatusVisited {
		t.Errorf("case status should be VISITED, got %q", updated.Status)
	}
	if updated.LastVisitAt == nil {
		t.Error("lastVisitAt should be set")
	}
}

func TestSubmit_NearbyVisitStaysUnflagged(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(26.9124), fp(75.7873), models.CaseStatusPending)
	exec := seedExecutive(t, db)

	record, validation, err := svc.Submit(context.Background(), SubmitInput{
		CaseID:      c.ID,
		ExecutiveID: exec.ID,
		Lat:         26.9124,
		Lng:         75.7873,
		VisitCode:   models.VisitCodePaid,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !validation.IsValid {
		t.Error("on-location visit should validate")
	}
	if record.VisitFlag != models.VisitFlagNone {
		t.Errorf("expected UNFLAGGED, got %q", record.VisitFlag)
	}
}

func TestSubmit_NoReferenceNeverFlags(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, nil, nil, models.CaseStatusPending)
	exec := seedExecutive(t, db)

	record, validation, err := svc.Submit(context.Background(), SubmitInput{
		CaseID:      c.ID,
		ExecutiveID: exec.ID,
		Lat:         55.0,
		Lng:         -120.0,
		VisitCode:   models.VisitCodeRTP,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !validation.IsValid {
		t.Error("absence of a reference address must never be treated as fraud")
	}
	if validation.DistanceMeters != nil {
		t.Errorf("expected nil distance, got %v", *validation.DistanceMeters)
	}
	if record.VisitFlag != models.VisitFlagNone {
		t.Errorf("expected UNFLAGGED, got %q", record.VisitFlag)
	}
	if record.DistanceFromAddress != nil {
		t.Error("distance should be null when the case has no coordinates")
	}
}

func TestSubmit_CaseNotFound(t *testing.T) {
	svc, db := newTestService(t)
	exec := seedExecutive(t, db)

	_, _, err := svc.Submit(context.Background(), SubmitInput{
		CaseID:      uuid.NewString(),
		ExecutiveID: exec.ID,
		Lat:         10,
		Lng:         20,
		VisitCode:   models.VisitCodePaid,
	})
	if !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}

	var count int64
	db.Model(&models.Feedback{}).Count(&count)
	if count != 0 {
		t.Errorf("no feedback row should exist after a failed submit, found %d", count)
	}
}

func TestSubmit_RejectsBadInput(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusPending)
	exec := seedExecutive(t, db)

	base := SubmitInput{
		CaseID:      c.ID,
		ExecutiveID: exec.ID,
		Lat:         10,
		Lng:         20,
		VisitCode:   models.VisitCodePTP,
	}

	in := base
	in.Lat = 95
	if _, _, err := svc.Submit(context.Background(), in); !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates for lat=95, got %v", err)
	}

	in = base
	in.Lng = math.NaN()
	if _, _, err := svc.Submit(context.Background(), in); !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates for NaN lng, got %v", err)
	}

	in = base
	in.VisitCode = "SOMETHING_ELSE"
	if _, _, err := svc.Submit(context.Background(), in); !errors.Is(err, ErrInvalidVisitCode) {
		t.Errorf("expected ErrInvalidVisitCode, got %v", err)
	}

	in = base
	in.PTPDate = "not-a-date"
	if _, _, err := svc.Submit(context.Background(), in); !errors.Is(err, ErrInvalidPTPDate) {
		t.Errorf("expected ErrInvalidPTPDate, got %v", err)
	}

	var count int64
	db.Model(&models.Feedback{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected submissions must not persist, found %d rows", count)
	}
}

func TestSubmit_DoesNotReopenSettledCase(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusPaid)
	exec := seedExecutive(t, db)

	_, _, err := svc.Submit(context.Background(), SubmitInput{
		CaseID:      c.ID,
		ExecutiveID: exec.ID,
		Lat:         10.0,
		Lng:         20.0,
		VisitCode:   models.VisitCodeNotAvailable,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	var updated models.Case
	db.First(&updated, "id = ?", c.ID)
	if updated.Status != models.CaseStatusPaid {
		t.Errorf("a late visit must not reopen a PAID case, status is %q", updated.Status)
	}
	if updated.LastVisitAt == nil {
		t.Error("lastVisitAt should still be refreshed")
	}
}

func TestSubmit_OpensPTPAndStoresSnapshot(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusPending)
	exec := seedExecutive(t, db)

	promised := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")
	record, _, err := svc.Submit(context.Background(), SubmitInput{
		CaseID:      c.ID,
		ExecutiveID: exec.ID,
		Lat:         10.0,
		Lng:         20.0,
		VisitCode:   models.VisitCodePTP,
		PTPDate:     promised,
		UserAgent:   "field-app/2.1",
		IPAddress:   "192.0.2.7",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if record.PTPStatus != models.PTPStatusOpen {
		t.Errorf("expected OPEN ptp status, got %q", record.PTPStatus)
	}
	if record.PTPDate == nil {
		t.Fatal("ptp date should be set")
	}
	if h, m, sec := record.PTPDate.Clock(); h != 0 || m != 0 || sec != 0 {
		t.Errorf("ptp date should be truncated to midnight, got %v", record.PTPDate)
	}

	var snapshot models.DeviceSnapshot
	if err := json.Unmarshal(record.DeviceInfo, &snapshot); err != nil {
		t.Fatalf("device info should be a JSON snapshot: %v", err)
	}
	if snapshot.UserAgent != "field-app/2.1" || snapshot.IPAddress != "192.0.2.7" {
		t.Errorf("snapshot should carry capture metadata, got %+v", snapshot)
	}
	if snapshot.Lat != 10.0 || snapshot.Lng != 20.0 {
		t.Errorf("snapshot should carry the raw coordinates, got %+v", snapshot)
	}
}

// seedFeedback inserts a row with controlled timestamps, bypassing Submit
func seedFeedback(t *testing.T, db *gorm.DB, caseID, execID string, createdAt time.Time, ptpDate *time.Time, ptpStatus string) *models.Feedback {
	t.Helper()
	f := &models.Feedback{
		CaseID:      caseID,
		ExecutiveID: execID,
		Lat:         10,
		Lng:         20,
		VisitCode:   models.VisitCodePTP,
		PTPDate:     ptpDate,
		PTPStatus:   ptpStatus,
		VisitFlag:   models.VisitFlagNone,
		CreatedAt:   createdAt,
	}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("failed to seed feedback: %v", err)
	}
	return f
}

func midnight(daysFromNow int) time.Time {
	now := time.Now().UTC().AddDate(0, 0, daysFromNow)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func TestCheckBrokenPTP_MarksOverduePromise(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	yesterday := midnight(-1)
	fb := seedFeedback(t, db, c.ID, exec.ID, midnight(-3), &yesterday, models.PTPStatusOpen)

	result, err := svc.CheckBrokenPTP(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Checked != 1 || result.Broken != 1 {
		t.Errorf("expected checked=1 broken=1, got %+v", result)
	}

	var reloaded models.Feedback
	db.First(&reloaded, "id = ?", fb.ID)
	if reloaded.PTPStatus != models.PTPStatusBroken {
		t.Errorf("expected BROKEN, got %q", reloaded.PTPStatus)
	}
}

func TestCheckBrokenPTP_Idempotent(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	yesterday := midnight(-1)
	seedFeedback(t, db, c.ID, exec.ID, midnight(-3), &yesterday, models.PTPStatusOpen)

	if _, err := svc.CheckBrokenPTP(context.Background()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	second, err := svc.CheckBrokenPTP(context.Background())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second.Checked != 0 || second.Broken != 0 {
		t.Errorf("re-running the sweep must be a no-op, got %+v", second)
	}
}

func TestCheckBrokenPTP_SupersededPromiseStaysOpen(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	yesterday := midnight(-1)
	promise := seedFeedback(t, db, c.ID, exec.ID, midnight(-3), &yesterday, models.PTPStatusOpen)
	// A follow-up visit after the promised date resolves the promise
	seedFeedback(t, db, c.ID, exec.ID, time.Now().UTC(), nil, models.PTPStatusNone)

	result, err := svc.CheckBrokenPTP(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Broken != 0 {
		t.Errorf("superseded promise must not be marked broken, got %+v", result)
	}

	var reloaded models.Feedback
	db.First(&reloaded, "id = ?", promise.ID)
	if reloaded.PTPStatus != models.PTPStatusOpen {
		t.Errorf("superseded promise should stay OPEN, got %q", reloaded.PTPStatus)
	}
}

func TestCheckBrokenPTP_NewerFeedbackOnOtherCaseDoesNotResolve(t *testing.T) {
	svc, db := newTestService(t)
	c1 := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	c2 := seedCase(t, db, fp(11.0), fp(21.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	yesterday := midnight(-1)
	promise := seedFeedback(t, db, c1.ID, exec.ID, midnight(-3), &yesterday, models.PTPStatusOpen)
	seedFeedback(t, db, c2.ID, exec.ID, time.Now().UTC(), nil, models.PTPStatusNone)

	result, err := svc.CheckBrokenPTP(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Broken != 1 {
		t.Errorf("a visit to a different case must not resolve the promise, got %+v", result)
	}

	var reloaded models.Feedback
	db.First(&reloaded, "id = ?", promise.ID)
	if reloaded.PTPStatus != models.PTPStatusBroken {
		t.Errorf("expected BROKEN, got %q", reloaded.PTPStatus)
	}
}

func TestPTPAlerts(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	today := midnight(0)
	yesterday := midnight(-1)
	nextWeek := midnight(7)

	due := seedFeedback(t, db, c.ID, exec.ID, midnight(-2), &today, models.PTPStatusOpen)
	seedFeedback(t, db, c.ID, exec.ID, midnight(-3), &yesterday, models.PTPStatusBroken)
	seedFeedback(t, db, c.ID, exec.ID, midnight(-1), &nextWeek, models.PTPStatusOpen)

	todayAlerts, err := svc.PTPAlerts(context.Background(), AlertFilterToday)
	if err != nil {
		t.Fatalf("today alerts failed: %v", err)
	}
	if len(todayAlerts) != 1 || todayAlerts[0].ID != due.ID {
		t.Errorf("expected exactly the promise due today, got %d rows", len(todayAlerts))
	}

	brokenAlerts, err := svc.PTPAlerts(context.Background(), AlertFilterBroken)
	if err != nil {
		t.Fatalf("broken alerts failed: %v", err)
	}
	if len(brokenAlerts) != 1 || brokenAlerts[0].PTPStatus != models.PTPStatusBroken {
		t.Errorf("expected exactly the broken promise, got %d rows", len(brokenAlerts))
	}

	if _, err := svc.PTPAlerts(context.Background(), "everything"); err == nil {
		t.Error("unknown filter should be rejected")
	}
}

func TestPTPAlerts_OrderedByPromiseDate(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	// Two promises due today at different times of day, inserted newest
	// promise first so insertion order cannot mask the sort.
	afternoon := midnight(0).Add(14 * time.Hour)
	morning := midnight(0).Add(9 * time.Hour)
	second := seedFeedback(t, db, c.ID, exec.ID, midnight(-1), &afternoon, models.PTPStatusOpen)
	first := seedFeedback(t, db, c.ID, exec.ID, midnight(-2), &morning, models.PTPStatusOpen)

	todayAlerts, err := svc.PTPAlerts(context.Background(), AlertFilterToday)
	if err != nil {
		t.Fatalf("today alerts failed: %v", err)
	}
	if len(todayAlerts) != 2 {
		t.Fatalf("expected 2 promises due today, got %d", len(todayAlerts))
	}
	if todayAlerts[0].ID != first.ID || todayAlerts[1].ID != second.ID {
		t.Error("alerts are not ordered by ptp_date ascending")
	}

	// Broken alerts keep the same ordering across days.
	dayBefore := midnight(-2)
	yesterday := midnight(-1)
	older := seedFeedback(t, db, c.ID, exec.ID, midnight(-4), &dayBefore, models.PTPStatusBroken)
	newer := seedFeedback(t, db, c.ID, exec.ID, midnight(-3), &yesterday, models.PTPStatusBroken)

	brokenAlerts, err := svc.PTPAlerts(context.Background(), AlertFilterBroken)
	if err != nil {
		t.Fatalf("broken alerts failed: %v", err)
	}
	if len(brokenAlerts) != 2 || brokenAlerts[0].ID != older.ID || brokenAlerts[1].ID != newer.ID {
		t.Error("broken alerts are not ordered by ptp_date ascending")
	}
}

func TestMarkFakeVisit_OneWay(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)
	fb := seedFeedback(t, db, c.ID, exec.ID, time.Now().UTC(), nil, models.PTPStatusNone)

	marked, err := svc.MarkFakeVisit(context.Background(), fb.ID)
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if marked.VisitFlag != models.VisitFlagAudit {
		t.Errorf("expected AUDIT_FLAGGED, got %q", marked.VisitFlag)
	}

	// Marking again keeps the terminal state
	again, err := svc.MarkFakeVisit(context.Background(), fb.ID)
	if err != nil {
		t.Fatalf("re-mark failed: %v", err)
	}
	if again.VisitFlag != models.VisitFlagAudit {
		t.Errorf("flag must stay AUDIT_FLAGGED, got %q", again.VisitFlag)
	}

	if _, err := svc.MarkFakeVisit(context.Background(), uuid.NewString()); !errors.Is(err, ErrFeedbackNotFound) {
		t.Errorf("expected ErrFeedbackNotFound, got %v", err)
	}
}

func TestRejectFeedback_DeletesRowOnly(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)
	fb := seedFeedback(t, db, c.ID, exec.ID, time.Now().UTC(), nil, models.PTPStatusNone)

	if err := svc.RejectFeedback(context.Background(), fb.ID); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	var count int64
	db.Model(&models.Feedback{}).Where("id = ?", fb.ID).Count(&count)
	if count != 0 {
		t.Error("rejected feedback should be hard-deleted")
	}

	// Case status is intentionally untouched by rejection
	var reloaded models.Case
	db.First(&reloaded, "id = ?", c.ID)
	if reloaded.Status != models.CaseStatusVisited {
		t.Errorf("case status must not change on rejection, got %q", reloaded.Status)
	}

	if err := svc.RejectFeedback(context.Background(), fb.ID); !errors.Is(err, ErrFeedbackNotFound) {
		t.Errorf("expected ErrFeedbackNotFound on second reject, got %v", err)
	}
}

func TestFakeVisits_DateRange(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	old := seedFeedback(t, db, c.ID, exec.ID, midnight(-30), nil, models.PTPStatusNone)
	recent := seedFeedback(t, db, c.ID, exec.ID, midnight(-1), nil, models.PTPStatusNone)
	db.Model(&models.Feedback{}).Where("id IN ?", []string{old.ID, recent.ID}).
		Update("visit_flag", models.VisitFlagAuto)
	// An unflagged visit that must never appear in the audit view
	seedFeedback(t, db, c.ID, exec.ID, midnight(-1), nil, models.PTPStatusNone)

	all, err := svc.FakeVisits(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if all.Total != 2 {
		t.Errorf("expected 2 flagged visits, got %d", all.Total)
	}

	start := midnight(-7)
	ranged, err := svc.FakeVisits(context.Background(), &start, nil)
	if err != nil {
		t.Fatalf("ranged summary failed: %v", err)
	}
	if ranged.Total != 1 || ranged.List[0].ID != recent.ID {
		t.Errorf("expected only the recent flagged visit, got %d", ranged.Total)
	}
}

func TestByExecutiveFilters(t *testing.T) {
	svc, db := newTestService(t)
	c := seedCase(t, db, fp(10.0), fp(20.0), models.CaseStatusVisited)
	exec := seedExecutive(t, db)

	clean := seedFeedback(t, db, c.ID, exec.ID, midnight(-2), nil, models.PTPStatusNone)
	flagged := seedFeedback(t, db, c.ID, exec.ID, midnight(-1), nil, models.PTPStatusNone)
	db.Model(&models.Feedback{}).Where("id = ?", flagged.ID).
		Update("visit_flag", models.VisitFlagAuto)

	fake := true
	got, err := svc.ByExecutive(context.Background(), exec.ID, Filters{FakeVisit: &fake})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != flagged.ID {
		t.Errorf("expected only the flagged visit, got %d rows", len(got))
	}

	fake = false
	got, err = svc.ByExecutive(context.Background(), exec.ID, Filters{FakeVisit: &fake})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != clean.ID {
		t.Errorf("expected only the clean visit, got %d rows", len(got))
	}
}
