package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/altpaynet/regreport/internal/cesop/run"
	"github.com/altpaynet/regreport/internal/config"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ReportsHandler exposes report generation and the run registry.
type ReportsHandler struct {
	runs *run.Service
	cfg  *config.Config
}

// NewReportsHandler constructs a ReportsHandler.
func NewReportsHandler(runs *run.Service, cfg *config.Config) *ReportsHandler {
	return &ReportsHandler{runs: runs, cfg: cfg}
}

// generateRequest defines the request body for report generation.
type generateRequest struct {
	Quarter     int      `json:"quarter"`
	Year        int      `json:"year"`
	Threshold   int      `json:"threshold"`
	Format      string   `json:"format"`
	MerchantIDs []uint64 `json:"merchant_ids"`
	ShopIDs     []uint64 `json:"shop_ids"`
}

// Generate runs report generation for the requested period.
func (h *ReportsHandler) Generate(c *gin.Context) {
	var body generateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Quarter < 1 || body.Quarter > 4 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quarter must be 1-4"})
		return
	}
	if body.Year < 2000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year is required"})
		return
	}
	if body.Threshold <= 0 {
		body.Threshold = h.cfg.CESOP.DefaultThreshold
	}
	if body.Format == "" {
		body.Format = run.FormatXMLValidated
	}

	outcome, errGenerate := h.runs.Generate(c.Request.Context(), run.Params{
		Quarter:     body.Quarter,
		Year:        body.Year,
		Threshold:   body.Threshold,
		Format:      body.Format,
		MerchantIDs: body.MerchantIDs,
		ShopIDs:     body.ShopIDs,
	})
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errGenerate.Error(), "run_id": outcome.RunID})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// List returns recent report runs, newest first.
func (h *ReportsHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, errList := h.runs.List(c.Request.Context(), limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Get returns one report run by its run id.
func (h *ReportsHandler) Get(c *gin.Context) {
	entry, errGet := h.runs.Get(c.Request.Context(), c.Param("run_id"))
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
