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
	"github.com/credvue/fieldcollect/internal/services/cases"
	"github.com/credvue/fieldcollect/internal/services/report"
	"github.com/credvue/fieldcollect/internal/websocket"
)

// CreateCaseRequest represents a single case creation
type CreateCaseRequest struct {
	AccID        string   `json:"accId" validate:"required"`
	CustID       string   `json:"custId"`
	CustomerName string   `json:"customerName" validate:"required"`
	PhoneNumber  string   `json:"phoneNumber"`
	Address      string   `json:"address"`
	Pincode      string   `json:"pincode"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	POSAmount    string   `json:"posAmount"`
	OverdueAmt   string   `json:"overdueAmt"`
	DPD          int      `json:"dpd"`
	BKT          string   `json:"bkt"`
	ProductType  string   `json:"productType"`
	BankName     string   `json:"bankName"`
	NPAStatus    string   `json:"npaStatus"`
	Priority     string   `json:"priority"`
	EmpID        string   `json:"empId"`
	ExecutiveID  *string  `json:"executiveId"`
	Month        int      `json:"month"`
	Year         int      `json:"year"`
}

func (c CreateCaseRequest) toInput() (cases.CreateInput, error) {
	in := cases.CreateInput{
		AccID:        c.AccID,
		CustID:       c.CustID,
		CustomerName: c.CustomerName,
		PhoneNumber:  c.PhoneNumber,
		Address:      c.Address,
		Pincode:      c.Pincode,
		Lat:          c.Lat,
		Lng:          c.Lng,
		DPD:          c.DPD,
		BKT:          c.BKT,
		ProductType:  c.ProductType,
		BankName:     c.BankName,
		NPAStatus:    c.NPAStatus,
		Priority:     c.Priority,
		EmpID:        c.EmpID,
		ExecutiveID:  c.ExecutiveID,
		Month:        c.Month,
		Year:         c.Year,
	}
	if c.POSAmount != "" {
		pos, err := decimal.NewFromString(c.POSAmount)
		if err != nil {
			return in, fmt.Errorf("invalid posAmount %q", c.POSAmount)
		}
		in.POSAmount = pos
	}
	if c.OverdueAmt != "" {
		amt, err := decimal.NewFromString(c.OverdueAmt)
		if err != nil {
			return in, fmt.Errorf("invalid overdueAmt %q", c.OverdueAmt)
		}
		in.OverdueAmt = amt
	}
	return in, nil
}

// createCase inserts a single case
func (r *Router) createCase(w http.ResponseWriter, req *http.Request) {
	var body CreateCaseRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := body.toInput()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := r.casesSvc.Create(req.Context(), in)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

// importCases ingests an xlsx workbook as a case upload batch
func (r *Router) importCases(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Workbook file is required")
		return
	}
	defer file.Close()

	rows, err := cases.ParseWorkbook(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	uploadMode := req.FormValue("uploadMode")
	supervisorID := middleware.UserIDFromContext(req.Context())

	upload, err := r.casesSvc.BulkImport(req.Context(), rows, supervisorID, header.Filename, uploadMode)
	if err != nil {
		if errors.Is(err, cases.ErrEmptyWorkbook) {
			respondError(w, http.StatusBadRequest, "Workbook contains no case rows")
			return
		}
		r.log.WithError(err).Error("case import failed")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.log.WithFields(map[string]interface{}{
		"uploadId": upload.ID,
		"cases":    upload.TotalCases,
	}).Info("case workbook imported")

	respondJSON(w, http.StatusCreated, upload)
}

// AllocateRequest assigns cases in bulk
type AllocateRequest struct {
	Allocations []struct {
		EmpID       string `json:"empId" validate:"required"`
		ExecutiveID string `json:"executiveId" validate:"required,uuid4"`
	} `json:"allocations" validate:"required,min=1,dive"`
}

// allocateCases assigns unallocated cases to executives by employee id
func (r *Router) allocateCases(w http.ResponseWriter, req *http.Request) {
	var body AllocateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	allocations := make([]cases.Allocation, len(body.Allocations))
	for i, a := range body.Allocations {
		allocations[i] = cases.Allocation{EmpID: a.EmpID, ExecutiveID: a.ExecutiveID}
	}

	results, err := r.casesSvc.BulkAllocate(req.Context(), allocations)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Allocation failed")
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// ReassignRequest moves a case to another executive
type ReassignRequest struct {
	ExecutiveID *string `json:"executiveId"` // null unassigns
}

// reassignCase moves one case, or unassigns it when executiveId is null
func (r *Router) reassignCase(w http.ResponseWriter, req *http.Request) {
	var body ReassignRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	record, err := r.casesSvc.Reassign(req.Context(), mux.Vars(req)["id"], body.ExecutiveID)
	if err != nil {
		switch {
		case errors.Is(err, cases.ErrCaseNotFound):
			respondError(w, http.StatusNotFound, "Case not found")
		case errors.Is(err, cases.ErrExecutiveNotFound):
			respondError(w, http.StatusBadRequest, "Executive not found or inactive")
		default:
			respondError(w, http.StatusInternalServerError, "Reassignment failed")
		}
		return
	}
	r.hub.Broadcast(websocket.EventCaseUpdate, record)
	respondJSON(w, http.StatusOK, record)
}

// UpdateStatusRequest moves a case through its lifecycle
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING VISITED PAID CLOSED"`
}

// updateCaseStatus applies a lifecycle transition
func (r *Router) updateCaseStatus(w http.ResponseWriter, req *http.Request) {
	var body UpdateStatusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := r.casesSvc.UpdateStatus(req.Context(), mux.Vars(req)["id"], body.Status)
	if err != nil {
		switch {
		case errors.Is(err, cases.ErrCaseNotFound):
			respondError(w, http.StatusNotFound, "Case not found")
		case errors.Is(err, cases.ErrInvalidStatus):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "Status update failed")
		}
		return
	}
	r.hub.Broadcast(websocket.EventCaseUpdate, record)
	respondJSON(w, http.StatusOK, record)
}

// caseFiltersFromQuery maps the common query parameters
func caseFiltersFromQuery(req *http.Request) cases.CaseFilters {
	q := req.URL.Query()
	filters := cases.CaseFilters{
		Status:      q.Get("status"),
		BKT:         q.Get("bkt"),
		ProductType: q.Get("productType"),
		NPAStatus:   q.Get("npaStatus"),
		Priority:    q.Get("priority"),
		BankName:    q.Get("bankName"),
	}
	filters.Month, _ = strconv.Atoi(q.Get("month"))
	filters.Year, _ = strconv.Atoi(q.Get("year"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Offset, _ = strconv.Atoi(q.Get("offset"))
	return filters
}

// listCases returns a filtered page for the supervisor dashboard
func (r *Router) listCases(w http.ResponseWriter, req *http.Request) {
	page, err := r.casesSvc.All(req.Context(), caseFiltersFromQuery(req))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch cases")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// casesByExecutive returns the executive's assigned cases
func (r *Router) casesByExecutive(w http.ResponseWriter, req *http.Request) {
	records, err := r.casesSvc.ByExecutive(req.Context(), mux.Vars(req)["id"], caseFiltersFromQuery(req))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch cases")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// getCase returns one case with its visit history
func (r *Router) getCase(w http.ResponseWriter, req *http.Request) {
	record, err := r.casesSvc.ByID(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		if errors.Is(err, cases.ErrCaseNotFound) {
			respondError(w, http.StatusNotFound, "Case not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch case")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// getCaseByAccID resolves a case from a scanned account id
func (r *Router) getCaseByAccID(w http.ResponseWriter, req *http.Request) {
	record, err := r.casesSvc.ByAccID(req.Context(), mux.Vars(req)["accId"])
	if err != nil {
		if errors.Is(err, cases.ErrCaseNotFound) {
			respondError(w, http.StatusNotFound, "Case not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch case")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// executivePerformance returns count-wise and POS-wise monthly numbers
func (r *Router) executivePerformance(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	month, _ := strconv.Atoi(q.Get("month"))
	year, _ := strconv.Atoi(q.Get("year"))
	if month < 1 || month > 12 || year == 0 {
		respondError(w, http.StatusBadRequest, "month and year are required")
		return
	}

	perf, err := r.casesSvc.Performance(req.Context(), mux.Vars(req)["id"], month, year)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to compute performance")
		return
	}
	respondJSON(w, http.StatusOK, perf)
}

// caseSheetPDF renders a printable QR sheet for the filtered cases
func (r *Router) caseSheetPDF(w http.ResponseWriter, req *http.Request) {
	page, err := r.casesSvc.All(req.Context(), caseFiltersFromQuery(req))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch cases")
		return
	}
	if len(page.Cases) == 0 {
		respondError(w, http.StatusNotFound, "No cases match the filters")
		return
	}

	pdf, err := report.GenerateCaseSheetPDF(page.Cases, report.DefaultCaseSheetConfig())
	if err != nil {
		r.log.WithError(err).Error("case sheet generation failed")
		respondError(w, http.StatusInternalServerError, "Failed to generate case sheet")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="case_sheet.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
