package payout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/credvue/fieldcollect/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.PayoutGrid{}, &models.PerformanceMetric{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	return NewService(db), db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateGrid_DefaultsAndValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grid, err := svc.CreateGrid(ctx, GridInput{
		Bank:         "HDFC",
		Product:      "PL",
		BKT:          "X",
		PayoutAmount: dec("150"),
	})
	if err != nil {
		t.Fatalf("CreateGrid failed: %v", err)
	}
	if grid.ID == "" {
		t.Error("expected grid to get an id")
	}
	if grid.PayoutType != models.PayoutTypeFixed {
		t.Errorf("expected default payout type FIXED, got %q", grid.PayoutType)
	}

	_, err = svc.CreateGrid(ctx, GridInput{
		Bank:       "HDFC",
		Product:    "PL",
		BKT:        "X",
		PayoutType: "HOURLY",
	})
	if !errors.Is(err, ErrInvalidPayoutType) {
		t.Errorf("expected ErrInvalidPayoutType, got %v", err)
	}
}

func TestLookupGrid_PrefersHighestTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, target := range []string{"40", "70", "55"} {
		_, err := svc.CreateGrid(ctx, GridInput{
			Bank:          "HDFC",
			Product:       "PL",
			BKT:           "BKT1",
			TargetPercent: dec(target),
			PayoutAmount:  dec(target).Mul(dec("10")),
		})
		if err != nil {
			t.Fatalf("CreateGrid failed: %v", err)
		}
	}

	grid, err := svc.LookupGrid(ctx, "HDFC", "PL", "BKT1")
	if err != nil {
		t.Fatalf("LookupGrid failed: %v", err)
	}
	if !grid.TargetPercent.Equal(dec("70")) {
		t.Errorf("expected the 70%% target row, got %s", grid.TargetPercent)
	}

	_, err = svc.LookupGrid(ctx, "HDFC", "PL", "BKT9")
	if !errors.Is(err, ErrGridNotFound) {
		t.Errorf("expected ErrGridNotFound, got %v", err)
	}
}

func TestUpdateGrid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	grid, err := svc.CreateGrid(ctx, GridInput{
		Bank: "AXIS", Product: "CC", BKT: "BKT2", PayoutAmount: dec("100"),
	})
	if err != nil {
		t.Fatalf("CreateGrid failed: %v", err)
	}

	updated, err := svc.UpdateGrid(ctx, grid.ID, map[string]interface{}{
		"payout_amount": dec("250"),
		"norm_bonus":    dec("25"),
	})
	if err != nil {
		t.Fatalf("UpdateGrid failed: %v", err)
	}
	if !updated.PayoutAmount.Equal(dec("250")) || !updated.NormBonus.Equal(dec("25")) {
		t.Errorf("update not applied: amount=%s bonus=%s", updated.PayoutAmount, updated.NormBonus)
	}

	_, err = svc.UpdateGrid(ctx, uuid.NewString(), map[string]interface{}{"norm_bonus": dec("1")})
	if !errors.Is(err, ErrGridNotFound) {
		t.Errorf("expected ErrGridNotFound for unknown id, got %v", err)
	}
}

func TestCopyGrids(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	for _, bkt := range []string{"BKT1", "BKT2", "BKT3"} {
		_, err := svc.CreateGrid(ctx, GridInput{
			Bank: "HDFC", Product: "PL", BKT: bkt, PayoutAmount: dec("100"),
		})
		if err != nil {
			t.Fatalf("CreateGrid failed: %v", err)
		}
	}

	copied, err := svc.CopyGrids(ctx, "HDFC", "PL", "ICICI", "PL", "")
	if err != nil {
		t.Fatalf("CopyGrids failed: %v", err)
	}
	if len(copied) != 3 {
		t.Fatalf("expected 3 copied rows, got %d", len(copied))
	}

	var count int64
	db.Model(&models.PayoutGrid{}).Where("bank = ?", "ICICI").Count(&count)
	if count != 3 {
		t.Errorf("expected 3 ICICI rows in the database, got %d", count)
	}

	_, err = svc.CopyGrids(ctx, "NOBANK", "PL", "ICICI", "PL", "")
	if !errors.Is(err, ErrGridNotFound) {
		t.Errorf("expected ErrGridNotFound for empty source, got %v", err)
	}
}

func TestCalculateEarnings_FixedAndPercentage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Fixed 200 per case plus a 50 norm bonus.
	if _, err := svc.CreateGrid(ctx, GridInput{
		Bank: "HDFC", Product: "PL", BKT: "BKT1",
		PayoutType: models.PayoutTypeFixed, PayoutAmount: dec("200"),
		NormBonus: dec("50"), RollbackBonus: dec("20"),
	}); err != nil {
		t.Fatalf("CreateGrid failed: %v", err)
	}
	// 2% of recovered POS.
	if _, err := svc.CreateGrid(ctx, GridInput{
		Bank: "AXIS", Product: "CC", BKT: "BKT2",
		PayoutType: models.PayoutTypePercentage, PayoutAmount: dec("2"),
	}); err != nil {
		t.Fatalf("CreateGrid failed: %v", err)
	}

	execID := uuid.NewString()
	result, err := svc.CalculateEarnings(ctx, EarningsInput{
		ExecutiveID:  execID,
		Month:        3,
		Year:         2026,
		CasesVisited: 3,
		RecoveredPOS: dec("60000"),
		CaseDetails: []CaseDetail{
			{Bank: "HDFC", Product: "PL", BKT: "BKT1", Resolution: models.ResolutionNorm},
			{Bank: "HDFC", Product: "PL", BKT: "BKT1", Resolution: models.ResolutionRollback},
			{Bank: "AXIS", Product: "CC", BKT: "BKT2", POSAmount: dec("50000")},
			// No grid for this combination: skipped, not failed.
			{Bank: "SBI", Product: "AL", BKT: "BKT1", POSAmount: dec("9999")},
		},
	})
	if err != nil {
		t.Fatalf("CalculateEarnings failed: %v", err)
	}

	// 200+50 + 200+20 + 50000*2% = 250 + 220 + 1000 = 1470
	if !result.Total.Equal(dec("1470")) {
		t.Errorf("expected total 1470, got %s", result.Total)
	}
	if len(result.Breakdown) != 2 {
		t.Fatalf("expected 2 breakdown buckets, got %d", len(result.Breakdown))
	}
	hdfc := result.Breakdown["HDFC_PL_BKT1"]
	if hdfc.Cases != 2 || !hdfc.Payout.Equal(dec("470")) {
		t.Errorf("unexpected HDFC bucket: cases=%d payout=%s", hdfc.Cases, hdfc.Payout)
	}

	metric, err := svc.MetricFor(ctx, execID, 3, 2026)
	if err != nil {
		t.Fatalf("MetricFor failed: %v", err)
	}
	if !metric.Earnings.Equal(dec("1470")) || metric.VisitedCases != 3 {
		t.Errorf("unexpected stored metric: earnings=%s visited=%d", metric.Earnings, metric.VisitedCases)
	}
}

func TestCalculateEarnings_CapsAtMaxEarning(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	max := dec("500")
	if _, err := svc.CreateGrid(ctx, GridInput{
		Bank: "HDFC", Product: "PL", BKT: "BKT1",
		PayoutType: models.PayoutTypeFixed, PayoutAmount: dec("300"),
		MaxEarning: &max,
	}); err != nil {
		t.Fatalf("CreateGrid failed: %v", err)
	}

	result, err := svc.CalculateEarnings(ctx, EarningsInput{
		ExecutiveID: uuid.NewString(),
		Month:       4, Year: 2026,
		CaseDetails: []CaseDetail{
			{Bank: "HDFC", Product: "PL", BKT: "BKT1"},
			{Bank: "HDFC", Product: "PL", BKT: "BKT1"},
			{Bank: "HDFC", Product: "PL", BKT: "BKT1"},
		},
	})
	if err != nil {
		t.Fatalf("CalculateEarnings failed: %v", err)
	}
	if !result.Total.Equal(dec("500")) {
		t.Errorf("expected earnings capped at 500, got %s", result.Total)
	}
}

func TestCalculateEarnings_UpsertsMetric(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateGrid(ctx, GridInput{
		Bank: "HDFC", Product: "PL", BKT: "BKT1",
		PayoutType: models.PayoutTypeFixed, PayoutAmount: dec("100"),
	}); err != nil {
		t.Fatalf("CreateGrid failed: %v", err)
	}

	execID := uuid.NewString()
	run := func(details int) Earnings {
		t.Helper()
		cases := make([]CaseDetail, details)
		for i := range cases {
			cases[i] = CaseDetail{Bank: "HDFC", Product: "PL", BKT: "BKT1"}
		}
		result, err := svc.CalculateEarnings(ctx, EarningsInput{
			ExecutiveID:  execID,
			Month:        5,
			Year:         2026,
			CasesVisited: details,
			CaseDetails:  cases,
		})
		if err != nil {
			t.Fatalf("CalculateEarnings failed: %v", err)
		}
		return result
	}

	run(2)
	run(5)

	var count int64
	db.Model(&models.PerformanceMetric{}).Where("executive_id = ?", execID).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single metric row after rerun, got %d", count)
	}

	metric, err := svc.MetricFor(ctx, execID, 5, 2026)
	if err != nil {
		t.Fatalf("MetricFor failed: %v", err)
	}
	if !metric.Earnings.Equal(dec("500")) || metric.VisitedCases != 5 {
		t.Errorf("expected the rerun to replace the metric, got earnings=%s visited=%d", metric.Earnings, metric.VisitedCases)
	}
}
