package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/credvue/fieldcollect/internal/middleware"
	"github.com/credvue/fieldcollect/internal/models"
)

// CreateReferralRequest represents one referral claim
type CreateReferralRequest struct {
	RefereeName string `json:"refereeName" validate:"required"`
	Phone       string `json:"phone"`
}

// createReferral records a referral claim for the authenticated user
func (r *Router) createReferral(w http.ResponseWriter, req *http.Request) {
	var body CreateReferralRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	referral := models.Referral{
		ReferrerID:  middleware.UserIDFromContext(req.Context()),
		RefereeName: body.RefereeName,
		Phone:       body.Phone,
	}
	if err := r.db.Create(&referral).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create referral")
		return
	}
	respondJSON(w, http.StatusCreated, referral)
}

// listReferrals returns referrals; HR sees everything, others their own
func (r *Router) listReferrals(w http.ResponseWriter, req *http.Request) {
	q := r.db.WithContext(req.Context()).Model(&models.Referral{})

	role := middleware.RoleFromContext(req.Context())
	switch role {
	case models.RoleAdmin, models.RoleManager, models.RoleHR:
		if status := req.URL.Query().Get("status"); status != "" {
			q = q.Where("status = ?", status)
		}
	default:
		q = q.Where("referrer_id = ?", middleware.UserIDFromContext(req.Context()))
	}

	var referrals []models.Referral
	if err := q.Order("created_at DESC").Find(&referrals).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch referrals")
		return
	}
	respondJSON(w, http.StatusOK, referrals)
}

// UpdateReferralRequest moves a referral through its lifecycle
type UpdateReferralRequest struct {
	Status      string `json:"status" validate:"required,oneof=PENDING APPROVED PAID_OUT"`
	BonusAmount string `json:"bonusAmount"`
}

// updateReferral lets HR approve or pay out a claim
func (r *Router) updateReferral(w http.ResponseWriter, req *http.Request) {
	var body UpdateReferralRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := r.validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updates := map[string]interface{}{"status": body.Status}
	if body.BonusAmount != "" {
		bonus, err := parseDecimal(body.BonusAmount, "bonusAmount")
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		updates["bonus_amount"] = bonus
	}

	res := r.db.WithContext(req.Context()).
		Model(&models.Referral{}).
		Where("id = ?", mux.Vars(req)["id"]).
		Updates(updates)
	if res.Error != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update referral")
		return
	}
	if res.RowsAffected == 0 {
		respondError(w, http.StatusNotFound, "Referral not found")
		return
	}

	var referral models.Referral
	if err := r.db.First(&referral, "id = ?", mux.Vars(req)["id"]).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to reload referral")
		return
	}
	respondJSON(w, http.StatusOK, referral)
}
