package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/credvue/fieldcollect/internal/config"
	"github.com/credvue/fieldcollect/internal/database"
	"github.com/credvue/fieldcollect/internal/models"
	"github.com/credvue/fieldcollect/internal/utils"
	"github.com/credvue/fieldcollect/internal/websocket"
)

func newTestRouter(t *testing.T) (*Router, *gorm.DB, *config.Config) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Case{}, &models.Feedback{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	cfg := &config.Config{
		JWTSecret: "test-secret-key-12345",
		Geo:       config.GeoConfig{FakeVisitThresholdMeters: 300},
	}
	router := NewRouter(&database.DB{DB: db}, cfg, config.GetLogger(), websocket.NewHub())
	return router, db, cfg
}

func executiveToken(t *testing.T, db *gorm.DB, cfg *config.Config) (string, *models.User) {
	t.Helper()
	user := &models.User{
		Username: "exec-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@example.com",
		Password: "irrelevant",
		Role:     models.RoleFieldExecutive,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to seed executive: %v", err)
	}
	access, _, err := utils.GenerateTokens(user, cfg)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return access, user
}

func TestSubmitFeedback_AcceptsZeroCoordinate(t *testing.T) {
	router, db, cfg := newTestRouter(t)
	token, _ := executiveToken(t, db, cfg)

	// Case on the equator; the visit at latitude 0 is legitimate.
	refLat, refLng := 0.001, 6.73
	c := models.Case{
		AccID:        "ACC-" + uuid.NewString()[:8],
		CustomerName: "Equator Customer",
		Lat:          &refLat,
		Lng:          &refLng,
		Status:       models.CaseStatusPending,
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("failed to seed case: %v", err)
	}

	payload := map[string]interface{}{
		"caseId":    c.ID,
		"lat":       0.0,
		"lng":       6.73,
		"visitCode": models.VisitCodeRTP,
	}
	body, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for zero-latitude submission, got %d: %s", rec.Code, rec.Body.String())
	}

	var count int64
	db.Model(&models.Feedback{}).Where("case_id = ?", c.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 feedback row, got %d", count)
	}
}

func TestSubmitFeedback_MissingCoordinateRejected(t *testing.T) {
	router, db, cfg := newTestRouter(t)
	token, _ := executiveToken(t, db, cfg)

	payload := map[string]interface{}{
		"caseId":    uuid.NewString(),
		"lng":       6.73,
		"visitCode": models.VisitCodeRTP,
	}
	body, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when lat is absent, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.5:41234"
	if got := clientIP(req); got != "10.0.0.5" {
		t.Errorf("expected remote host, got %q", got)
	}

	// Proxy chain: the first element is the originating client.
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1, 10.0.0.2")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("expected first forwarded address, got %q", got)
	}
}
