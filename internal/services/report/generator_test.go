package report

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/credvue/fieldcollect/internal/models"
	"github.com/credvue/fieldcollect/internal/services/payout"
)

func TestGeneratePayoutStatementPDF(t *testing.T) {
	data := StatementData{
		ExecutiveName: "Ravi Kumar",
		EmpID:         "EMP-1042",
		Month:         3,
		Year:          2026,
		Earnings: payout.Earnings{
			Total: decimal.RequireFromString("1470"),
			Breakdown: map[string]payout.CategoryEarning{
				"HDFC_PL_BKT1": {Payout: decimal.RequireFromString("470"), Cases: 2},
				"AXIS_CC_BKT2": {Payout: decimal.RequireFromString("1000"), Cases: 1},
			},
			Metric: &models.PerformanceMetric{
				VisitedCases: 3,
				RecoveredPOS: decimal.RequireFromString("60000"),
			},
		},
	}

	pdf, err := GeneratePayoutStatementPDF(data)
	if err != nil {
		t.Fatalf("GeneratePayoutStatementPDF failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("output does not look like a PDF document")
	}
	if len(pdf) < 1000 {
		t.Errorf("suspiciously small PDF: %d bytes", len(pdf))
	}
}

func TestGenerateCaseSheetPDF(t *testing.T) {
	cases := make([]models.Case, 12)
	for i := range cases {
		cases[i] = models.Case{
			AccID:        fmt.Sprintf("ACC%04d", i+1),
			CustomerName: fmt.Sprintf("Customer %d", i+1),
			BankName:     "HDFC",
			BKT:          "BKT1",
			OverdueAmt:   decimal.RequireFromString("15000"),
		}
	}

	pdf, err := GenerateCaseSheetPDF(cases, DefaultCaseSheetConfig())
	if err != nil {
		t.Fatalf("GenerateCaseSheetPDF failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("output does not look like a PDF document")
	}

	// 12 labels at 10 per page needs two pages.
	if pages := bytes.Count(pdf, []byte("/Type /Page ")); pages > 0 && pages < 2 {
		t.Errorf("expected at least 2 pages, found %d markers", pages)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 36); got != "short" {
		t.Errorf("short names must pass through, got %q", got)
	}
	long := "An Extremely Long Customer Name That Does Not Fit The Label"
	if got := truncate(long, 20); len(got) != 20 {
		t.Errorf("expected 20 chars, got %d (%q)", len(got), got)
	}
}
