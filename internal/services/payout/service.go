// Package payout manages the payout grid lookup tables and executive
// earnings computation.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/credvue/fieldcollect/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrGridNotFound      = errors.New("payout grid not found")
	ErrInvalidPayoutType = errors.New("invalid payout type")
)

// Service handles payout grids and earnings
type Service struct {
	db *gorm.DB
}

// NewService creates a payout service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GridInput carries one payout grid row
type GridInput struct {
	Bank          string           `json:"bank" validate:"required"`
	Product       string           `json:"product" validate:"required"`
	BKT           string           `json:"bkt" validate:"required"`
	TargetPercent decimal.Decimal  `json:"targetPercent"`
	PayoutType    string           `json:"payoutType"`
	PayoutAmount  decimal.Decimal  `json:"payoutAmount"`
	NormBonus     decimal.Decimal  `json:"normBonus"`
	RollbackBonus decimal.Decimal  `json:"rollbackBonus"`
	MaxEarning    *decimal.Decimal `json:"maxEarning,omitempty"`
	CreatedBy     string           `json:"-"`
}

// CreateGrid inserts one payout grid row
func (s *Service) CreateGrid(ctx context.Context, in GridInput) (*models.PayoutGrid, error) {
	payoutType := in.PayoutType
	if payoutType == "" {
		payoutType = models.PayoutTypeFixed
	}
	if payoutType != models.PayoutTypeFixed && payoutType != models.PayoutTypePercentage {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayoutType, payoutType)
	}

	grid := &models.PayoutGrid{
		Bank:          in.Bank,
		Product:       in.Product,
		BKT:           in.BKT,
		TargetPercent: in.TargetPercent,
		PayoutType:    payoutType,
		PayoutAmount:  in.PayoutAmount,
		NormBonus:     in.NormBonus,
		RollbackBonus: in.RollbackBonus,
		MaxEarning:    in.MaxEarning,
		CreatedBy:     in.CreatedBy,
	}
	if err := s.db.WithContext(ctx).Create(grid).Error; err != nil {
		return nil, fmt.Errorf("create payout grid: %w", err)
	}
	return grid, nil
}

// UpdateGrid applies changes to an existing grid row
func (s *Service) UpdateGrid(ctx context.Context, id string, updates map[string]interface{}) (*models.PayoutGrid, error) {
	res := s.db.WithContext(ctx).Model(&models.PayoutGrid{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update payout grid: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrGridNotFound
	}
	var grid models.PayoutGrid
	if err := s.db.WithContext(ctx).First(&grid, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("reload payout grid: %w", err)
	}
	return &grid, nil
}

// LookupGrid finds the applicable grid row for a bank/product/BKT
// combination, preferring the highest target percent
func (s *Service) LookupGrid(ctx context.Context, bank, product, bkt string) (*models.PayoutGrid, error) {
	var grid models.PayoutGrid
	err := s.db.WithContext(ctx).
		Where("bank = ? AND product = ? AND bkt = ?", bank, product, bkt).
		Order("target_percent DESC").
		First(&grid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGridNotFound
		}
		return nil, fmt.Errorf("lookup payout grid: %w", err)
	}
	return &grid, nil
}

// GridsByBankAndProduct lists all grid rows for a bank/product pair
func (s *Service) GridsByBankAndProduct(ctx context.Context, bank, product string) ([]models.PayoutGrid, error) {
	var grids []models.PayoutGrid
	err := s.db.WithContext(ctx).
		Where("bank = ? AND product = ?", bank, product).
		Order("bkt ASC, target_percent DESC").
		Find(&grids).Error
	if err != nil {
		return nil, fmt.Errorf("fetch payout grids: %w", err)
	}
	return grids, nil
}

// AllGrids lists every grid row, optionally narrowed by bank/product
func (s *Service) AllGrids(ctx context.Context, bank, product string) ([]models.PayoutGrid, error) {
	q := s.db.WithContext(ctx).Model(&models.PayoutGrid{})
	if bank != "" {
		q = q.Where("bank = ?", bank)
	}
	if product != "" {
		q = q.Where("product = ?", product)
	}
	var grids []models.PayoutGrid
	if err := q.Order("bank ASC, product ASC, bkt ASC").Find(&grids).Error; err != nil {
		return nil, fmt.Errorf("fetch payout grids: %w", err)
	}
	return grids, nil
}

// CopyGrids duplicates a bank/product grid onto another bank/product
func (s *Service) CopyGrids(ctx context.Context, fromBank, fromProduct, toBank, toProduct, createdBy string) ([]models.PayoutGrid, error) {
	source, err := s.GridsByBankAndProduct(ctx, fromBank, fromProduct)
	if err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, ErrGridNotFound
	}

	copied := make([]models.PayoutGrid, 0, len(source))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, grid := range source {
			clone := models.PayoutGrid{
				Bank:          toBank,
				Product:       toProduct,
				BKT:           grid.BKT,
				TargetPercent: grid.TargetPercent,
				PayoutType:    grid.PayoutType,
				PayoutAmount:  grid.PayoutAmount,
				NormBonus:     grid.NormBonus,
				RollbackBonus: grid.RollbackBonus,
				MaxEarning:    grid.MaxEarning,
				CreatedBy:     createdBy,
			}
			if err := tx.Create(&clone).Error; err != nil {
				return fmt.Errorf("copy grid row: %w", err)
			}
			copied = append(copied, clone)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// CaseDetail is one resolved case feeding the earnings computation
type CaseDetail struct {
	Bank       string          `json:"bank"`
	Product    string          `json:"product"`
	BKT        string          `json:"bkt"`
	Resolution string          `json:"resolution"` // NORM or ROLLBACK
	POSAmount  decimal.Decimal `json:"posAmount"`
}

// EarningsInput parameterizes one monthly earnings run
type EarningsInput struct {
	ExecutiveID  string
	Month        int
	Year         int
	CasesVisited int
	RecoveredPOS decimal.Decimal
	CaseDetails  []CaseDetail
}

// CategoryEarning is the per-bank/product/BKT breakdown entry
type CategoryEarning struct {
	Payout decimal.Decimal `json:"payout"`
	Cases  int             `json:"cases"`
}

// Earnings is the result of one computation run
type Earnings struct {
	Total     decimal.Decimal            `json:"total"`
	Breakdown map[string]CategoryEarning `json:"breakdown"`
	Metric    *models.PerformanceMetric  `json:"metric"`
}

// CalculateEarnings computes an executive's monthly payout from the grid
// and upserts the performance metric row. Cases with no matching grid row
// are skipped, not failed: grids are maintained independently of imports.
func (s *Service) CalculateEarnings(ctx context.Context, in EarningsInput) (Earnings, error) {
	total := decimal.Zero
	breakdown := map[string]CategoryEarning{}
	var capAmount *decimal.Decimal

	for _, detail := range in.CaseDetails {
		grid, err := s.LookupGrid(ctx, detail.Bank, detail.Product, detail.BKT)
		if err != nil {
			if errors.Is(err, ErrGridNotFound) {
				continue
			}
			return Earnings{}, err
		}

		var amount decimal.Decimal
		switch grid.PayoutType {
		case models.PayoutTypeFixed:
			amount = grid.PayoutAmount
		case models.PayoutTypePercentage:
			amount = detail.POSAmount.Mul(grid.PayoutAmount).Div(decimal.NewFromInt(100))
		default:
			return Earnings{}, fmt.Errorf("%w: %q", ErrInvalidPayoutType, grid.PayoutType)
		}

		switch detail.Resolution {
		case models.ResolutionNorm:
			amount = amount.Add(grid.NormBonus)
		case models.ResolutionRollback:
			amount = amount.Add(grid.RollbackBonus)
		}

		total = total.Add(amount)
		if grid.MaxEarning != nil && (capAmount == nil || grid.MaxEarning.GreaterThan(*capAmount)) {
			capAmount = grid.MaxEarning
		}

		key := fmt.Sprintf("%s_%s_%s", detail.Bank, detail.Product, detail.BKT)
		entry := breakdown[key]
		entry.Payout = entry.Payout.Add(amount)
		entry.Cases++
		breakdown[key] = entry
	}

	if capAmount != nil && total.GreaterThan(*capAmount) {
		total = *capAmount
	}

	metric := &models.PerformanceMetric{
		ExecutiveID:  in.ExecutiveID,
		Month:        in.Month,
		Year:         in.Year,
		TotalCases:   in.CasesVisited,
		VisitedCases: in.CasesVisited,
		TotalPOS:     in.RecoveredPOS,
		RecoveredPOS: in.RecoveredPOS,
		Earnings:     total,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "executive_id"}, {Name: "month"}, {Name: "year"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_cases", "visited_cases", "total_pos", "recovered_pos", "earnings", "updated_at",
			}),
		}).
		Create(metric).Error
	if err != nil {
		return Earnings{}, fmt.Errorf("upsert performance metric: %w", err)
	}

	return Earnings{Total: total, Breakdown: breakdown, Metric: metric}, nil
}

// MetricFor returns the stored performance metric for one period
func (s *Service) MetricFor(ctx context.Context, executiveID string, month, year int) (*models.PerformanceMetric, error) {
	var metric models.PerformanceMetric
	err := s.db.WithContext(ctx).
		Where("executive_id = ? AND month = ? AND year = ?", executiveID, month, year).
		First(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGridNotFound
		}
		return nil, fmt.Errorf("fetch performance metric: %w", err)
	}
	return &metric, nil
}
