package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/credvue/fieldcollect/internal/middleware"
	"github.com/credvue/fieldcollect/internal/models"
	"github.com/credvue/fieldcollect/internal/services/payout"
	"github.com/credvue/fieldcollect/internal/services/report"
)

// CreateGridRequest represents one payout grid row
type CreateGridRequest struct {
	Bank          string  `json:"bank" validate:"required"`
	Product       string  `json:"product" validate:"required"`
	BKT           string  `json:"bkt" validate:"required"`
	TargetPercent string  `json:"targetPercent"`
	PayoutType    string  `json:"payoutType" validate:"omitempty,oneof=FIXED PERCENTAGE"`
	PayoutAmount  string  `json:"payoutAmount"`
	NormBonus     string  `json:"normBonus"`
	RollbackBonus string  `json:"rollbackBonus"`
	MaxEarning    *string `json:"maxEarning"`
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, raw)
	}
	return d, nil
}

// createGrid inserts one payout grid row
func (r *Router) createGrid(w http.ResponseWriter, req *http.Request) {
	var body CreateGridRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := payout.GridInput{
		Bank:       body.Bank,
		Product:    body.Product,
		BKT:        body.BKT,
		PayoutType: body.PayoutType,
		CreatedBy:  middleware.UserIDFromContext(req.Context()),
	}
	var err error
	if in.TargetPercent, err = parseDecimal(body.TargetPercent, "targetPercent"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.PayoutAmount, err = parseDecimal(body.PayoutAmount, "payoutAmount"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.NormBonus, err = parseDecimal(body.NormBonus, "normBonus"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.RollbackBonus, err = parseDecimal(body.RollbackBonus, "rollbackBonus"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.MaxEarning != nil {
		max, err := parseDecimal(*body.MaxEarning, "maxEarning")
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.MaxEarning = &max
	}

	grid, err := r.payoutSvc.CreateGrid(req.Context(), in)
	if err != nil {
		if errors.Is(err, payout.ErrInvalidPayoutType) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to create payout grid")
		return
	}
	respondJSON(w, http.StatusCreated, grid)
}

// updateGrid patches one grid row
func (r *Router) updateGrid(w http.ResponseWriter, req *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	// Only grid value columns may be patched
	allowed := map[string]string{
		"targetPercent": "target_percent",
		"payoutType":    "payout_type",
		"payoutAmount":  "payout_amount",
		"normBonus":     "norm_bonus",
		"rollbackBonus": "rollback_bonus",
		"maxEarning":    "max_earning",
	}
	updates := map[string]interface{}{}
	for key, value := range body {
		column, ok := allowed[key]
		if !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("field %q cannot be updated", key))
			return
		}
		updates[column] = value
	}
	if len(updates) == 0 {
		respondError(w, http.StatusBadRequest, "No updatable fields provided")
		return
	}

	grid, err := r.payoutSvc.UpdateGrid(req.Context(), mux.Vars(req)["id"], updates)
	if err != nil {
		if errors.Is(err, payout.ErrGridNotFound) {
			respondError(w, http.StatusNotFound, "Payout grid not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update payout grid")
		return
	}
	respondJSON(w, http.StatusOK, grid)
}

// listGrids returns grid rows, optionally filtered by bank/product
func (r *Router) listGrids(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	grids, err := r.payoutSvc.AllGrids(req.Context(), q.Get("bank"), q.Get("product"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch payout grids")
		return
	}
	respondJSON(w, http.StatusOK, grids)
}

// CopyGridsRequest duplicates a grid across bank/product
type CopyGridsRequest struct {
	FromBank    string `json:"fromBank" validate:"required"`
	FromProduct string `json:"fromProduct" validate:"required"`
	ToBank      string `json:"toBank" validate:"required"`
	ToProduct   string `json:"toProduct" validate:"required"`
}

// copyGrids duplicates an existing grid onto a new bank/product pair
func (r *Router) copyGrids(w http.ResponseWriter, req *http.Request) {
	var body CopyGridsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	copied, err := r.payoutSvc.CopyGrids(req.Context(),
		body.FromBank, body.FromProduct, body.ToBank, body.ToProduct,
		middleware.UserIDFromContext(req.Context()))
	if err != nil {
		if errors.Is(err, payout.ErrGridNotFound) {
			respondError(w, http.StatusNotFound, "Source grid not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to copy payout grids")
		return
	}
	respondJSON(w, http.StatusCreated, copied)
}

// CalculateEarningsRequest triggers one monthly payout run
type CalculateEarningsRequest struct {
	ExecutiveID string `json:"executiveId" validate:"required,uuid4"`
	Month       int    `json:"month" validate:"required,min=1,max=12"`
	Year        int    `json:"year" validate:"required,min=2020"`
}

// calculateEarnings computes an executive's payout from their visited
// cases for the period and stores the performance metric
func (r *Router) calculateEarnings(w http.ResponseWriter, req *http.Request) {
	var body CalculateEarningsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := r.earningsInputFor(req, body)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to assemble case details")
		return
	}

	result, err := r.payoutSvc.CalculateEarnings(req.Context(), in)
	if err != nil {
		r.log.WithError(err).Error("earnings calculation failed")
		respondError(w, http.StatusInternalServerError, "Failed to calculate earnings")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// earningsInputFor assembles the resolved case list for the period
func (r *Router) earningsInputFor(req *http.Request, body CalculateEarningsRequest) (payout.EarningsInput, error) {
	var resolved []models.Case
	err := r.db.WithContext(req.Context()).
		Where("executive_id = ? AND month = ? AND year = ?", body.ExecutiveID, body.Month, body.Year).
		Where("status IN ?", []string{models.CaseStatusVisited, models.CaseStatusPaid, models.CaseStatusClosed}).
		Find(&resolved).Error
	if err != nil {
		return payout.EarningsInput{}, err
	}

	recovered := decimal.Zero
	details := make([]payout.CaseDetail, 0, len(resolved))
	for _, c := range resolved {
		resolution := models.ResolutionNorm
		if c.DPD > 90 {
			resolution = models.ResolutionRollback
		}
		details = append(details, payout.CaseDetail{
			Bank:       c.BankName,
			Product:    c.ProductType,
			BKT:        c.BKT,
			Resolution: resolution,
			POSAmount:  c.POSAmount,
		})
		if c.Status == models.CaseStatusPaid || c.Status == models.CaseStatusClosed {
			recovered = recovered.Add(c.POSAmount)
		}
	}

	return payout.EarningsInput{
		ExecutiveID:  body.ExecutiveID,
		Month:        body.Month,
		Year:         body.Year,
		CasesVisited: len(resolved),
		RecoveredPOS: recovered,
		CaseDetails:  details,
	}, nil
}

// payoutStatementPDF renders the monthly statement as a PDF download
func (r *Router) payoutStatementPDF(w http.ResponseWriter, req *http.Request) {
	executiveID := mux.Vars(req)["executiveId"]
	q := req.URL.Query()
	month, _ := strconv.Atoi(q.Get("month"))
	year, _ := strconv.Atoi(q.Get("year"))
	if month < 1 || month > 12 || year == 0 {
		respondError(w, http.StatusBadRequest, "month and year are required")
		return
	}

	var executive models.User
	if err := r.db.First(&executive, "id = ?", executiveID).Error; err != nil {
		respondError(w, http.StatusNotFound, "Executive not found")
		return
	}

	in, err := r.earningsInputFor(req, CalculateEarningsRequest{ExecutiveID: executiveID, Month: month, Year: year})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to assemble case details")
		return
	}
	earnings, err := r.payoutSvc.CalculateEarnings(req.Context(), in)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to calculate earnings")
		return
	}

	pdf, err := report.GeneratePayoutStatementPDF(report.StatementData{
		ExecutiveName: executive.FirstName + " " + executive.LastName,
		EmpID:         executive.EmpID,
		Month:         month,
		Year:          year,
		Earnings:      earnings,
	})
	if err != nil {
		r.log.WithError(err).Error("payout statement generation failed")
		respondError(w, http.StatusInternalServerError, "Failed to generate statement")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="payout_%s_%d_%d.pdf"`, executive.EmpID, month, year))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
