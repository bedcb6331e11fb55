// Package cases manages the debt-account inventory: imports, allocation to
// field executives, status lifecycle and performance rollups.
package cases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/credvue/fieldcollect/internal/geo"
	"github.com/credvue/fieldcollect/internal/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var (
	ErrCaseNotFound      = errors.New("case not found")
	ErrExecutiveNotFound = errors.New("executive not found or inactive")
	ErrInvalidStatus     = errors.New("invalid status transition")
	ErrEmptyWorkbook     = errors.New("workbook has no case rows")
)

// Service handles case inventory operations
type Service struct {
	db *gorm.DB
}

// NewService creates a case service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateInput carries one case row, from manual entry or a workbook row
type CreateInput struct {
	AccID        string
	CustID       string
	CustomerName string
	PhoneNumber  string
	Address      string
	Pincode      string
	Lat          *float64
	Lng          *float64
	POSAmount    decimal.Decimal
	OverdueAmt   decimal.Decimal
	DPD          int
	BKT          string
	ProductType  string
	BankName     string
	NPAStatus    string
	Priority     string
	EmpID        string
	ExecutiveID  *string
	Month        int
	Year         int
	UploadMode   string
}

// Create inserts a single case
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Case, error) {
	if in.AccID == "" {
		return nil, fmt.Errorf("acc_id is required")
	}
	if in.CustomerName == "" {
		return nil, fmt.Errorf("customer_name is required")
	}
	if in.Lat != nil && in.Lng != nil {
		if err := geo.CheckCoordinates(*in.Lat, *in.Lng); err != nil {
			return nil, fmt.Errorf("case coordinates: %w", err)
		}
	}

	now := time.Now().UTC()
	month, year := in.Month, in.Year
	if month == 0 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}
	uploadMode := in.UploadMode
	if uploadMode == "" {
		uploadMode = models.UploadModeOriginal
	}

	record := &models.Case{
		AccID:        in.AccID,
		CustID:       in.CustID,
		CustomerName: in.CustomerName,
		PhoneNumber:  in.PhoneNumber,
		Address:      in.Address,
		Pincode:      in.Pincode,
		Lat:          in.Lat,
		Lng:          in.Lng,
		POSAmount:    in.POSAmount,
		OverdueAmt:   in.OverdueAmt,
		DPD:          in.DPD,
		BKT:          in.BKT,
		ProductType:  in.ProductType,
		BankName:     in.BankName,
		NPAStatus:    in.NPAStatus,
		Priority:     in.Priority,
		EmpID:        in.EmpID,
		ExecutiveID:  in.ExecutiveID,
		Status:       models.CaseStatusPending,
		Month:        month,
		Year:         year,
		UploadMode:   uploadMode,
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	return record, nil
}

// BulkImport persists a batch of case rows plus the upload bookkeeping
// record in one transaction
func (s *Service) BulkImport(ctx context.Context, rows []CreateInput, supervisorID, filename, uploadMode string) (*models.CaseUpload, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyWorkbook
	}
	if uploadMode == "" {
		uploadMode = models.UploadModeOriginal
	}
	if filename == "" {
		filename = fmt.Sprintf("upload_%d", time.Now().UTC().UnixMilli())
	}

	upload := &models.CaseUpload{
		SupervisorID: supervisorID,
		Filename:     filename,
		UploadMode:   uploadMode,
		TotalCases:   len(rows),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(upload).Error; err != nil {
			return fmt.Errorf("create upload record: %w", err)
		}
		batchSvc := &Service{db: tx}
		for i, row := range rows {
			row.UploadMode = uploadMode
			if _, err := batchSvc.Create(ctx, row); err != nil {
				return fmt.Errorf("row %d (%s): %w", i+1, row.AccID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return upload, nil
}

// workbook columns recognized by ParseWorkbook, by lowercased header name
var workbookColumns = map[string]bool{
	"acc_id": true, "cust_id": true, "customer_name": true,
	"phone_number": true, "address": true, "pincode": true,
	"lat": true, "lng": true, "pos_amount": true, "overdue_amount": true,
	"dpd": true, "bkt": true, "product_type": true, "bank_name": true,
	"npa_status": true, "priority": true, "emp_id": true,
}

// ParseWorkbook reads case rows from the first sheet of an xlsx workbook.
// The first row is a header naming the columns; unknown columns are
// ignored.
func ParseWorkbook(r io.Reader) ([]CreateInput, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, ErrEmptyWorkbook
	}

	header := make(map[int]string)
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if workbookColumns[key] {
			header[i] = key
		}
	}

	var out []CreateInput
	for n, row := range rows[1:] {
		cells := make(map[string]string)
		for i, value := range row {
			if key, ok := header[i]; ok {
				cells[key] = strings.TrimSpace(value)
			}
		}
		if cells["acc_id"] == "" {
			continue // blank row
		}

		in := CreateInput{
			AccID:        cells["acc_id"],
			CustID:       cells["cust_id"],
			CustomerName: cells["customer_name"],
			PhoneNumber:  cells["phone_number"],
			Address:      cells["address"],
			Pincode:      cells["pincode"],
			BKT:          cells["bkt"],
			ProductType:  cells["product_type"],
			BankName:     cells["bank_name"],
			NPAStatus:    cells["npa_status"],
			Priority:     cells["priority"],
			EmpID:        cells["emp_id"],
		}

		if v := cells["lat"]; v != "" {
			lat, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad lat %q", n+2, v)
			}
			in.Lat = &lat
		}
		if v := cells["lng"]; v != "" {
			lng, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad lng %q", n+2, v)
			}
			in.Lng = &lng
		}
		if v := cells["pos_amount"]; v != "" {
			amount, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad pos_amount %q", n+2, v)
			}
			in.POSAmount = amount
		}
		if v := cells["overdue_amount"]; v != "" {
			amount, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad overdue_amount %q", n+2, v)
			}
			in.OverdueAmt = amount
		}
		if v := cells["dpd"]; v != "" {
			dpd, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad dpd %q", n+2, v)
			}
			in.DPD = dpd
		}

		out = append(out, in)
	}
	if len(out) == 0 {
		return nil, ErrEmptyWorkbook
	}
	return out, nil
}

// AllocateByEmpID assigns all unallocated cases carrying the employee tag
// to the given executive. Returns the number of cases updated.
func (s *Service) AllocateByEmpID(ctx context.Context, empID, executiveID string) (int64, error) {
	var executive models.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", executiveID, true).
		First(&executive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrExecutiveNotFound
		}
		return 0, fmt.Errorf("fetch executive: %w", err)
	}

	res := s.db.WithContext(ctx).
		Model(&models.Case{}).
		Where("emp_id = ? AND executive_id IS NULL", empID).
		Update("executive_id", executiveID)
	if res.Error != nil {
		return 0, fmt.Errorf("allocate cases: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Allocation maps an employee tag to an executive
type Allocation struct {
	EmpID       string `json:"empId"`
	ExecutiveID string `json:"executiveId"`
}

// AllocationResult is one allocation outcome
type AllocationResult struct {
	EmpID       string `json:"empId"`
	ExecutiveID string `json:"executiveId"`
	Updated     int64  `json:"updated"`
}

// BulkAllocate runs a batch of allocations, stopping at the first failure
func (s *Service) BulkAllocate(ctx context.Context, allocations []Allocation) ([]AllocationResult, error) {
	results := make([]AllocationResult, 0, len(allocations))
	for _, a := range allocations {
		updated, err := s.AllocateByEmpID(ctx, a.EmpID, a.ExecutiveID)
		if err != nil {
			return results, fmt.Errorf("allocate %s -> %s: %w", a.EmpID, a.ExecutiveID, err)
		}
		results = append(results, AllocationResult{EmpID: a.EmpID, ExecutiveID: a.ExecutiveID, Updated: updated})
	}
	return results, nil
}

// Reassign moves a case to another executive, or unassigns it when
// executiveID is nil
func (s *Service) Reassign(ctx context.Context, caseID string, executiveID *string) (*models.Case, error) {
	if executiveID != nil {
		var executive models.User
		err := s.db.WithContext(ctx).
			Where("id = ? AND is_active = ?", *executiveID, true).
			First(&executive).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrExecutiveNotFound
			}
			return nil, fmt.Errorf("fetch executive: %w", err)
		}
	}

	res := s.db.WithContext(ctx).
		Model(&models.Case{}).
		Where("id = ?", caseID).
		Update("executive_id", executiveID)
	if res.Error != nil {
		return nil, fmt.Errorf("reassign case: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrCaseNotFound
	}
	return s.ByID(ctx, caseID)
}

// allowedTransitions defines the case status state machine. Feedback
// submission handles PENDING/VISITED -> VISITED on its own path.
var allowedTransitions = map[string][]string{
	models.CaseStatusPending: {models.CaseStatusVisited, models.CaseStatusPaid, models.CaseStatusClosed},
	models.CaseStatusVisited: {models.CaseStatusPending, models.CaseStatusPaid, models.CaseStatusClosed},
	models.CaseStatusPaid:    {models.CaseStatusClosed},
	models.CaseStatusClosed:  {},
}

// UpdateStatus moves a case through the status state machine
func (s *Service) UpdateStatus(ctx context.Context, caseID, status string) (*models.Case, error) {
	var record models.Case
	if err := s.db.WithContext(ctx).First(&record, "id = ?", caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("fetch case: %w", err)
	}

	allowed := false
	for _, next := range allowedTransitions[record.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, record.Status, status)
	}

	if err := s.db.WithContext(ctx).Model(&record).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return &record, nil
}

// CaseFilters narrows case queries
type CaseFilters struct {
	Status      string
	BKT         string
	ProductType string
	NPAStatus   string
	Priority    string
	BankName    string
	Month       int
	Year        int
	Limit       int
	Offset      int
}

func (f CaseFilters) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BKT != "" {
		q = q.Where("bkt = ?", f.BKT)
	}
	if f.ProductType != "" {
		q = q.Where("product_type = ?", f.ProductType)
	}
	if f.NPAStatus != "" {
		q = q.Where("npa_status = ?", f.NPAStatus)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.BankName != "" {
		q = q.Where("bank_name = ?", f.BankName)
	}
	if f.Month != 0 {
		q = q.Where("month = ?", f.Month)
	}
	if f.Year != 0 {
		q = q.Where("year = ?", f.Year)
	}
	return q
}

// ByExecutive returns an executive's assigned cases, newest first
func (s *Service) ByExecutive(ctx context.Context, executiveID string, filters CaseFilters) ([]models.Case, error) {
	var records []models.Case
	q := filters.apply(s.db.WithContext(ctx).Where("executive_id = ?", executiveID))
	if err := q.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("fetch cases for executive: %w", err)
	}
	return records, nil
}

// ByID fetches one case with its visit log and executive
func (s *Service) ByID(ctx context.Context, id string) (*models.Case, error) {
	var record models.Case
	err := s.db.WithContext(ctx).
		Preload("Feedbacks", func(db *gorm.DB) *gorm.DB {
			return db.Order("feedbacks.created_at DESC")
		}).
		Preload("Executive").
		First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("fetch case: %w", err)
	}
	return &record, nil
}

// ByAccID fetches one case by its external account identifier
func (s *Service) ByAccID(ctx context.Context, accID string) (*models.Case, error) {
	var record models.Case
	err := s.db.WithContext(ctx).
		Preload("Feedbacks", func(db *gorm.DB) *gorm.DB {
			return db.Order("feedbacks.created_at DESC")
		}).
		Preload("Executive").
		First(&record, "acc_id = ?", accID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("fetch case by acc_id: %w", err)
	}
	return &record, nil
}

// Page is a filtered case listing with the total match count
type Page struct {
	Cases  []models.Case `json:"cases"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// All returns cases for the supervisor dashboard
func (s *Service) All(ctx context.Context, filters CaseFilters) (Page, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	base := filters.apply(s.db.WithContext(ctx).Model(&models.Case{}))

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return Page{}, fmt.Errorf("count cases: %w", err)
	}

	var records []models.Case
	err := filters.apply(s.db.WithContext(ctx)).
		Preload("Executive").
		Order("created_at DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&records).Error
	if err != nil {
		return Page{}, fmt.Errorf("fetch cases: %w", err)
	}

	return Page{Cases: records, Total: total, Limit: limit, Offset: filters.Offset}, nil
}

// GroupStat is a count/POS rollup for one BKT or product bucket
type GroupStat struct {
	Count   int             `json:"count"`
	POS     decimal.Decimal `json:"pos"`
	Visited int             `json:"visited"`
}

// Performance is the count-wise and POS-wise monthly summary for one
// executive
type Performance struct {
	TotalCases   int                  `json:"totalCases"`
	VisitedCases int                  `json:"visitedCases"`
	VisitRate    float64              `json:"visitRate"`
	TotalPOS     decimal.Decimal      `json:"totalPos"`
	RecoveredPOS decimal.Decimal      `json:"recoveredPos"`
	RecoveryRate float64              `json:"recoveryRate"`
	ByBKT        map[string]GroupStat `json:"byBkt"`
	ByProduct    map[string]GroupStat `json:"byProduct"`
}

// Performance computes the monthly summary for an executive
func (s *Service) Performance(ctx context.Context, executiveID string, month, year int) (Performance, error) {
	var records []models.Case
	err := s.db.WithContext(ctx).
		Preload("Feedbacks").
		Where("executive_id = ? AND month = ? AND year = ?", executiveID, month, year).
		Find(&records).Error
	if err != nil {
		return Performance{}, fmt.Errorf("fetch cases for performance: %w", err)
	}

	perf := Performance{
		TotalPOS:     decimal.Zero,
		RecoveredPOS: decimal.Zero,
		ByBKT:        map[string]GroupStat{},
		ByProduct:    map[string]GroupStat{},
	}

	for _, c := range records {
		perf.TotalCases++
		visited := len(c.Feedbacks) > 0
		if visited {
			perf.VisitedCases++
		}
		perf.TotalPOS = perf.TotalPOS.Add(c.POSAmount)
		if c.Status == models.CaseStatusPaid || c.Status == models.CaseStatusClosed {
			perf.RecoveredPOS = perf.RecoveredPOS.Add(c.POSAmount)
		}

		bkt := perf.ByBKT[c.BKT]
		bkt.Count++
		bkt.POS = bkt.POS.Add(c.POSAmount)
		if visited {
			bkt.Visited++
		}
		perf.ByBKT[c.BKT] = bkt

		product := perf.ByProduct[c.ProductType]
		product.Count++
		product.POS = product.POS.Add(c.POSAmount)
		if visited {
			product.Visited++
		}
		perf.ByProduct[c.ProductType] = product
	}

	if perf.TotalCases > 0 {
		perf.VisitRate = float64(perf.VisitedCases) / float64(perf.TotalCases) * 100
	}
	if perf.TotalPOS.IsPositive() {
		rate, _ := perf.RecoveredPOS.Div(perf.TotalPOS).Mul(decimal.NewFromInt(100)).Float64()
		perf.RecoveryRate = rate
	}

	return perf, nil
}
