package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/altpaynet/regreport/internal/db"
	"github.com/altpaynet/regreport/internal/decta"
	"github.com/altpaynet/regreport/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DectaHandler exposes the Decta reconciliation endpoints.
type DectaHandler struct {
	db       *gorm.DB
	ingester *decta.Ingester
	worker   *decta.Worker
	exporter *decta.Exporter
}

// NewDectaHandler constructs a DectaHandler.
func NewDectaHandler(conn *gorm.DB, ingester *decta.Ingester, worker *decta.Worker, exporter *decta.Exporter) *DectaHandler {
	return &DectaHandler{db: conn, ingester: ingester, worker: worker, exporter: exporter}
}

// ingestRequest defines the request body for file ingestion.
type ingestRequest struct {
	File string `json:"file"` // Empty ingests every listed file.
}

// Ingest pulls settlement files from the configured source.
func (h *DectaHandler) Ingest(c *gin.Context) {
	var body ingestRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	if name := strings.TrimSpace(body.File); name != "" {
		stats, errIngest := h.ingester.IngestFile(c.Request.Context(), name)
		if errIngest != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": errIngest.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"files": []decta.IngestStats{stats}})
		return
	}

	stats, errIngest := h.ingester.IngestAll(c.Request.Context())
	if errIngest != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errIngest.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": stats})
}

// Match runs one matching batch over pending records.
func (h *DectaHandler) Match(c *gin.Context) {
	stats, errRun := h.worker.RunOnce(c.Request.Context())
	if errRun != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errRun.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Export streams records as CSV, optionally filtered by status.
func (h *DectaHandler) Export(c *gin.Context) {
	status := c.Query("status")

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="decta_export.csv"`)
	if _, errExport := h.exporter.Export(c.Request.Context(), c.Writer, status); errExport != nil {
		// Headers are already out; all we can do is abort the stream.
		c.Abort()
	}
}

// ListRecords returns records filtered by status and payment id search.
func (h *DectaHandler) ListRecords(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := h.db.WithContext(c.Request.Context()).
		Model(&models.DectaTransaction{}).
		Order("id DESC").
		Limit(limit)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("payment_id")); search != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+search+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(h.db, "payment_id"), pattern)
	}

	var records []models.DectaTransaction
	if errFind := query.Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
