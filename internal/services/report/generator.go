// Package report renders printable artifacts: payout statements as PDF
// and QR-coded case sheets for the field teams.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/credvue/fieldcollect/internal/models"
	"github.com/credvue/fieldcollect/internal/services/payout"
)

// StatementData feeds one payout statement
type StatementData struct {
	ExecutiveName string
	EmpID         string
	Month         int
	Year          int
	Earnings      payout.Earnings
}

// GeneratePayoutStatementPDF renders a monthly payout statement
func GeneratePayoutStatementPDF(data StatementData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Payout Statement", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	period := time.Date(data.Year, time.Month(data.Month), 1, 0, 0, 0, 0, time.UTC)
	pdf.CellFormat(0, 6, period.Format("January 2006"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Executive: %s", data.ExecutiveName), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Employee ID: %s", data.EmpID), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	// Breakdown table
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(90, 8, "Bank / Product / Bucket", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "Cases", "1", 0, "R", true, 0, "")
	pdf.CellFormat(50, 8, "Payout", "1", 1, "R", true, 0, "")

	keys := make([]string, 0, len(data.Earnings.Breakdown))
	for key := range data.Earnings.Breakdown {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pdf.SetFont("Arial", "", 10)
	for _, key := range keys {
		entry := data.Earnings.Breakdown[key]
		pdf.CellFormat(90, 7, key, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%d", entry.Cases), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 7, entry.Payout.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(130, 8, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 8, data.Earnings.Total.StringFixed(2), "1", 1, "R", false, 0, "")

	if metric := data.Earnings.Metric; metric != nil {
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("Cases visited: %d", metric.VisitedCases), "", 1, "L", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("POS recovered: %s", metric.RecoveredPOS.StringFixed(2)), "", 1, "L", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated on %s", time.Now().UTC().Format("02 Jan 2006 15:04 MST")), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render payout statement: %w", err)
	}
	return buf.Bytes(), nil
}

// CaseSheetConfig holds layout parameters for the QR case sheet
type CaseSheetConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// DefaultCaseSheetConfig is a 2x5 layout for A4
func DefaultCaseSheetConfig() CaseSheetConfig {
	return CaseSheetConfig{Cols: 2, Rows: 5, MarginTop: 10, MarginLeft: 10, GapX: 5, GapY: 5}
}

// GenerateCaseSheetPDF renders a QR-coded sheet for a batch of cases.
// Each label encodes the account id so the mobile app can open the case
// by scanning it in the field.
func GenerateCaseSheetPDF(cases []models.Case, cfg CaseSheetConfig) ([]byte, error) {
	if cfg.Cols <= 0 || cfg.Rows <= 0 {
		cfg = DefaultCaseSheetConfig()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	pageWidth, pageHeight := 210.0, 297.0
	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)
	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows

	for i, c := range cases {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols
		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrContent := fmt.Sprintf("FIELDCOLLECT/CASE/%s", c.AccID)
		qrPng, err := qrcode.Encode(qrContent, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("encode case qr: %w", err)
		}

		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		qrSize := labelH * 0.6
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		qrX := x + (labelW-qrSize)/2
		qrY := y + 2

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, y+qrSize+3)
		pdf.SetFontSize(9)
		pdf.CellFormat(labelW, 4, c.AccID, "", 2, "C", false, 0, "")
		pdf.SetFontSize(7)
		pdf.CellFormat(labelW, 4, truncate(c.CustomerName, 36), "", 2, "C", false, 0, "")
		pdf.CellFormat(labelW, 4, fmt.Sprintf("%s | BKT %s | Due %s", c.BankName, c.BKT, c.OverdueAmt.StringFixed(0)), "", 0, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render case sheet: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
