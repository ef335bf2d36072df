package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/altpaynet/regreport/internal/config"
	"github.com/altpaynet/regreport/internal/db"
	"github.com/altpaynet/regreport/internal/decta"
	"github.com/altpaynet/regreport/internal/models"
	"github.com/altpaynet/regreport/internal/security"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	cfg := &config.Config{}
	cfg.Server.JWTSecret = "test-secret"
	cfg.CESOP.DefaultThreshold = 25

	engine := gin.New()
	RegisterRoutes(engine, Deps{
		DB:       conn,
		Config:   cfg,
		Worker:   decta.NewWorker(conn, decta.NewMatcher(conn, 5), time.Minute, 10),
		Exporter: decta.NewExporter(conn, 100),
	})
	return engine, conn
}

func seedOperator(t *testing.T, conn *gorm.DB, username, password string) models.Operator {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	operator := models.Operator{Username: username, PasswordHash: hash, IsEnabled: true}
	if errCreate := conn.Create(&operator).Error; errCreate != nil {
		t.Fatalf("seed operator: %v", errCreate)
	}
	return operator
}

func doJSON(engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	return resp
}

func TestHealthzReportsOK(t *testing.T) {
	engine, _ := newTestRouter(t)

	resp := doJSON(engine, http.MethodGet, "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.Code, resp.Body.String())
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if !body.OK {
		t.Fatalf("body = %s", resp.Body.String())
	}
}

func TestLoginIssuesToken(t *testing.T) {
	engine, conn := newTestRouter(t)
	seedOperator(t, conn, "ops", "hunter2")

	resp := doJSON(engine, http.MethodPost, "/v1/login", "", gin.H{"username": "ops", "password": "hunter2"})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if body.Token == "" {
		t.Fatalf("empty token")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	engine, conn := newTestRouter(t)
	seedOperator(t, conn, "ops", "hunter2")

	resp := doJSON(engine, http.MethodPost, "/v1/login", "", gin.H{"username": "ops", "password": "wrong"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestAuthedRoutesRequireToken(t *testing.T) {
	engine, _ := newTestRouter(t)

	resp := doJSON(engine, http.MethodGet, "/v1/decta/records", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.Code)
	}

	resp = doJSON(engine, http.MethodGet, "/v1/decta/records", "not-a-jwt", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestAuthMiddlewareRejectsDisabledOperator(t *testing.T) {
	engine, conn := newTestRouter(t)
	operator := seedOperator(t, conn, "ops", "hunter2")

	token, errToken := security.GenerateToken("test-secret", operator.ID, operator.Username, time.Hour)
	if errToken != nil {
		t.Fatalf("token: %v", errToken)
	}
	if errUpdate := conn.Model(&models.Operator{}).
		Where("id = ?", operator.ID).
		Update("is_enabled", false).Error; errUpdate != nil {
		t.Fatalf("disable operator: %v", errUpdate)
	}

	resp := doJSON(engine, http.MethodGet, "/v1/decta/records", token, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestDectaMatchAndListRecords(t *testing.T) {
	engine, conn := newTestRouter(t)
	operator := seedOperator(t, conn, "ops", "hunter2")
	token, errToken := security.GenerateToken("test-secret", operator.ID, operator.Username, time.Hour)
	if errToken != nil {
		t.Fatalf("token: %v", errToken)
	}

	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	conn.Create(&models.GatewayTransaction{ID: 50, MerchantID: 1, Amount: 2000, Currency: "EUR", CreatedAt: at})
	conn.Create(&models.GatewaySettlementLog{GatewayTransactionID: 50, CrossReference: "PAY-1"})
	conn.Create(&models.DectaTransaction{
		ID: 1, PaymentID: "PAY-1", Amount: 2000, Currency: "EUR",
		OccurredAt: at, Status: models.DectaStatusPending,
	})

	resp := doJSON(engine, http.MethodPost, "/v1/decta/match", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("match status = %d body = %s", resp.Code, resp.Body.String())
	}
	var stats decta.BatchStats
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &stats); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if stats.Matched != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	// Case-insensitive payment id search.
	resp = doJSON(engine, http.MethodGet, "/v1/decta/records?payment_id=pay-1", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list status = %d", resp.Code)
	}
	var listBody struct {
		Records []models.DectaTransaction `json:"records"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &listBody); errDecode != nil {
		t.Fatalf("decode list: %v", errDecode)
	}
	if len(listBody.Records) != 1 || listBody.Records[0].Status != models.DectaStatusMatched {
		t.Fatalf("records = %+v", listBody.Records)
	}
}

func TestDectaExportStreamsCSV(t *testing.T) {
	engine, conn := newTestRouter(t)
	operator := seedOperator(t, conn, "ops", "hunter2")
	token, errToken := security.GenerateToken("test-secret", operator.ID, operator.Username, time.Hour)
	if errToken != nil {
		t.Fatalf("token: %v", errToken)
	}

	conn.Create(&models.DectaTransaction{
		ID: 1, PaymentID: "PAY-1", Amount: 2000, Currency: "EUR",
		OccurredAt: time.Now().UTC(), Status: models.DectaStatusPending,
	})

	resp := doJSON(engine, http.MethodGet, "/v1/decta/export", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("content type = %q", got)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("PAY-1")) {
		t.Fatalf("body = %q", resp.Body.String())
	}
}
