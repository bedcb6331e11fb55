package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/credvue/fieldcollect/internal/config"
	"github.com/credvue/fieldcollect/internal/database"
	"github.com/credvue/fieldcollect/internal/geo"
	"github.com/credvue/fieldcollect/internal/middleware"
	"github.com/credvue/fieldcollect/internal/models"
	"github.com/credvue/fieldcollect/internal/services/cases"
	"github.com/credvue/fieldcollect/internal/services/feedback"
	"github.com/credvue/fieldcollect/internal/services/payout"
	"github.com/credvue/fieldcollect/internal/utils"
	"github.com/credvue/fieldcollect/internal/websocket"
)

// Router wraps the mux router, the database and the domain services
type Router struct {
	*mux.Router
	db  *database.DB
	cfg *config.Config
	log *logrus.Logger

	validate *validator.Validate

	feedbackSvc *feedback.Service
	casesSvc    *cases.Service
	payoutSvc   *payout.Service
	hub         *websocket.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, cfg *config.Config, log *logrus.Logger, hub *websocket.Hub) *Router {
	r := &Router{
		Router:      mux.NewRouter(),
		db:          db,
		cfg:         cfg,
		log:         log,
		validate:    validator.New(),
		feedbackSvc: feedback.NewService(db.DB, geo.NewValidator(cfg.Geo.FakeVisitThresholdMeters)),
		casesSvc:    cases.NewService(db.DB),
		payoutSvc:   payout.NewService(db.DB),
		hub:         hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")
	auth.HandleFunc("/logout", r.logout).Methods("POST")

	authn := middleware.AuthMiddleware(cfg.JWTSecret)
	fieldRoles := middleware.Authorize(models.RoleAdmin, models.RoleManager, models.RoleSupervisor, models.RoleFieldExecutive)
	backOffice := middleware.Authorize(models.RoleAdmin, models.RoleManager, models.RoleSupervisor)
	adminOnly := middleware.Authorize(models.RoleAdmin, models.RoleManager)
	readRoles := middleware.Authorize(models.RoleAdmin, models.RoleManager, models.RoleSupervisor, models.RoleHR, models.RoleAnalytic)

	me := r.PathPrefix("/api/me").Subrouter()
	me.Use(authn)
	me.HandleFunc("", r.currentUser).Methods("GET")

	// Feedback routes: submission is open to field executives, audit and
	// PTP operations to the back office.
	fb := r.PathPrefix("/api/feedback").Subrouter()
	fb.Use(authn)
	fb.Handle("", fieldRoles(http.HandlerFunc(r.submitFeedback))).Methods("POST")
	fb.Handle("/fake-visits", readRoles(http.HandlerFunc(r.fakeVisitSummary))).Methods("GET")
	fb.Handle("/ptp-alerts", readRoles(http.HandlerFunc(r.ptpAlerts))).Methods("GET")
	fb.Handle("/check-broken-ptp", backOffice(http.HandlerFunc(r.checkBrokenPTP))).Methods("POST")
	fb.Handle("/executive/{id}", readRoles(http.HandlerFunc(r.feedbackByExecutive))).Methods("GET")
	fb.Handle("/case/{id}", fieldRoles(http.HandlerFunc(r.feedbackByCase))).Methods("GET")
	fb.Handle("/{id}", fieldRoles(http.HandlerFunc(r.getFeedback))).Methods("GET")
	fb.Handle("/{id}/mark-fake", backOffice(http.HandlerFunc(r.markFakeVisit))).Methods("PATCH")
	fb.Handle("/{id}", backOffice(http.HandlerFunc(r.rejectFeedback))).Methods("DELETE")

	// Case routes
	cs := r.PathPrefix("/api/cases").Subrouter()
	cs.Use(authn)
	cs.Handle("", readRoles(http.HandlerFunc(r.listCases))).Methods("GET")
	cs.Handle("", backOffice(http.HandlerFunc(r.createCase))).Methods("POST")
	cs.Handle("/import", backOffice(http.HandlerFunc(r.importCases))).Methods("POST")
	cs.Handle("/allocate", backOffice(http.HandlerFunc(r.allocateCases))).Methods("POST")
	cs.Handle("/sheet", backOffice(http.HandlerFunc(r.caseSheetPDF))).Methods("GET")
	cs.Handle("/executive/{id}", fieldRoles(http.HandlerFunc(r.casesByExecutive))).Methods("GET")
	cs.Handle("/executive/{id}/performance", readRoles(http.HandlerFunc(r.executivePerformance))).Methods("GET")
	cs.Handle("/acc/{accId}", fieldRoles(http.HandlerFunc(r.getCaseByAccID))).Methods("GET")
	cs.Handle("/{id}", fieldRoles(http.HandlerFunc(r.getCase))).Methods("GET")
	cs.Handle("/{id}/reassign", backOffice(http.HandlerFunc(r.reassignCase))).Methods("PATCH")
	cs.Handle("/{id}/status", backOffice(http.HandlerFunc(r.updateCaseStatus))).Methods("PATCH")

	// Payout routes
	po := r.PathPrefix("/api/payouts").Subrouter()
	po.Use(authn)
	po.Handle("/grids", readRoles(http.HandlerFunc(r.listGrids))).Methods("GET")
	po.Handle("/grids", adminOnly(http.HandlerFunc(r.createGrid))).Methods("POST")
	po.Handle("/grids/copy", adminOnly(http.HandlerFunc(r.copyGrids))).Methods("POST")
	po.Handle("/grids/{id}", adminOnly(http.HandlerFunc(r.updateGrid))).Methods("PATCH")
	po.Handle("/calculate", backOffice(http.HandlerFunc(r.calculateEarnings))).Methods("POST")
	po.Handle("/statement/{executiveId}", readRoles(http.HandlerFunc(r.payoutStatementPDF))).Methods("GET")

	// Referral routes
	rf := r.PathPrefix("/api/referrals").Subrouter()
	rf.Use(authn)
	rf.HandleFunc("", r.createReferral).Methods("POST")
	rf.HandleFunc("", r.listReferrals).Methods("GET")
	hrRoles := middleware.Authorize(models.RoleAdmin, models.RoleManager, models.RoleHR)
	rf.Handle("/{id}", hrRoles(http.HandlerFunc(r.updateReferral))).Methods("PATCH")

	// Live alerts over websocket. Token is passed as a query parameter
	// because browsers cannot set headers on websocket upgrades.
	r.HandleFunc("/ws/alerts", r.serveAlerts).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"dashboards": r.hub.ClientCount(),
	})
}

// serveAlerts upgrades the connection and registers it with the hub
func (r *Router) serveAlerts(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "token required")
		return
	}
	if _, err := utils.ValidateToken(token, r.cfg.JWTSecret); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	websocket.ServeWs(r.hub, w, req)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
