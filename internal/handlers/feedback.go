package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/credvue/fieldcollect/internal/middleware"
	"github.com/credvue/fieldcollect/internal/services/feedback"
	"github.com/credvue/fieldcollect/internal/websocket"
)

// SubmitFeedbackRequest represents a visit submission. Lat/Lng are
// pointers so a legitimate 0 coordinate (equator, prime meridian) is not
// mistaken for an absent field; range checks live in the service layer.
type SubmitFeedbackRequest struct {
	CaseID       string   `json:"caseId" validate:"required,uuid4"`
	Lat          *float64 `json:"lat" validate:"required"`
	Lng          *float64 `json:"lng" validate:"required"`
	VisitCode    string   `json:"visitCode" validate:"required"`
	MeetingPlace string  `json:"meetingPlace"`
	AssetStatus  string  `json:"assetStatus"`
	Remarks      string  `json:"remarks"`
	PhotoURL     string  `json:"photoUrl"`
	PTPDate      string  `json:"ptpDate"`
}

// submitFeedback records one field visit
func (r *Router) submitFeedback(w http.ResponseWriter, req *http.Request) {
	var body SubmitFeedbackRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, validation, err := r.feedbackSvc.Submit(req.Context(), feedback.SubmitInput{
		CaseID:       body.CaseID,
		ExecutiveID:  middleware.UserIDFromContext(req.Context()),
		Lat:          *body.Lat,
		Lng:          *body.Lng,
		VisitCode:    body.VisitCode,
		MeetingPlace: body.MeetingPlace,
		AssetStatus:  body.AssetStatus,
		Remarks:      body.Remarks,
		PhotoURL:     body.PhotoURL,
		PTPDate:      body.PTPDate,
		UserAgent:    req.UserAgent(),
		IPAddress:    clientIP(req),
	})
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrCaseNotFound):
			respondError(w, http.StatusNotFound, "Case not found")
		case errors.Is(err, feedback.ErrInvalidCoordinates),
			errors.Is(err, feedback.ErrInvalidVisitCode),
			errors.Is(err, feedback.ErrInvalidPTPDate):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			r.log.WithError(err).Error("feedback submission failed")
			respondError(w, http.StatusInternalServerError, "Failed to record feedback")
		}
		return
	}

	if !validation.IsValid {
		r.log.WithFields(map[string]interface{}{
			"feedbackId": record.ID,
			"caseId":     record.CaseID,
			"distance":   record.DistanceFromAddress,
		}).Warn("visit flagged as fake")
		r.hub.Broadcast(websocket.EventFakeVisit, record)
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"feedback":   record,
		"validation": validation,
	})
}

// getFeedback returns one feedback record
func (r *Router) getFeedback(w http.ResponseWriter, req *http.Request) {
	record, err := r.feedbackSvc.ByID(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		if errors.Is(err, feedback.ErrFeedbackNotFound) {
			respondError(w, http.StatusNotFound, "Feedback not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch feedback")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// feedbackByCase returns the visit history of a case, newest first
func (r *Router) feedbackByCase(w http.ResponseWriter, req *http.Request) {
	records, err := r.feedbackSvc.ByCase(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch feedback")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// feedbackByExecutive returns an executive's submissions with optional
// fakeVisit / ptpBroken filters
func (r *Router) feedbackByExecutive(w http.ResponseWriter, req *http.Request) {
	filters := feedback.Filters{}
	if raw := req.URL.Query().Get("fakeVisit"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "fakeVisit must be a boolean")
			return
		}
		filters.FakeVisit = &v
	}
	if raw := req.URL.Query().Get("ptpBroken"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "ptpBroken must be a boolean")
			return
		}
		filters.PTPBroken = &v
	}

	records, err := r.feedbackSvc.ByExecutive(req.Context(), mux.Vars(req)["id"], filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch feedback")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// markFakeVisit flags a submission after manual audit
func (r *Router) markFakeVisit(w http.ResponseWriter, req *http.Request) {
	record, err := r.feedbackSvc.MarkFakeVisit(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		if errors.Is(err, feedback.ErrFeedbackNotFound) {
			respondError(w, http.StatusNotFound, "Feedback not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to mark feedback")
		return
	}
	r.hub.Broadcast(websocket.EventFakeVisit, record)
	respondJSON(w, http.StatusOK, record)
}

// rejectFeedback removes a fraudulent submission entirely
func (r *Router) rejectFeedback(w http.ResponseWriter, req *http.Request) {
	if err := r.feedbackSvc.RejectFeedback(req.Context(), mux.Vars(req)["id"]); err != nil {
		if errors.Is(err, feedback.ErrFeedbackNotFound) {
			respondError(w, http.StatusNotFound, "Feedback not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to reject feedback")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Feedback rejected"})
}

// fakeVisitSummary returns flagged visits within an optional date range
func (r *Router) fakeVisitSummary(w http.ResponseWriter, req *http.Request) {
	var start, end *time.Time
	if raw := req.URL.Query().Get("startDate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "startDate must be YYYY-MM-DD")
			return
		}
		start = &parsed
	}
	if raw := req.URL.Query().Get("endDate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "endDate must be YYYY-MM-DD")
			return
		}
		// Inclusive end of day
		eod := parsed.Add(24*time.Hour - time.Nanosecond)
		end = &eod
	}

	summary, err := r.feedbackSvc.FakeVisits(req.Context(), start, end)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch fake visit summary")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// ptpAlerts returns promises due today or already broken
func (r *Router) ptpAlerts(w http.ResponseWriter, req *http.Request) {
	filter := req.URL.Query().Get("filter")
	if filter == "" {
		filter = feedback.AlertFilterToday
	}
	records, err := r.feedbackSvc.PTPAlerts(req.Context(), filter)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// checkBrokenPTP triggers the sweep on demand
func (r *Router) checkBrokenPTP(w http.ResponseWriter, req *http.Request) {
	result, err := r.feedbackSvc.CheckBrokenPTP(req.Context())
	if err != nil {
		r.log.WithError(err).Error("manual PTP sweep failed")
		respondError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}
	if result.Broken > 0 {
		r.hub.Broadcast(websocket.EventPTPBroken, result)
	}
	respondJSON(w, http.StatusOK, result)
}

// clientIP extracts the caller address, honoring X-Forwarded-For when
// the service sits behind a proxy. The header may carry a proxy chain;
// the first element is the originating client.
func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
