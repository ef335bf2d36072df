// Package http wires the gin API surface: operator auth, report
// generation and run listing, and the Decta reconciliation endpoints.
package http

import (
	"net/http"
	"strings"

	"github.com/altpaynet/regreport/internal/cesop/run"
	"github.com/altpaynet/regreport/internal/config"
	"github.com/altpaynet/regreport/internal/decta"
	"github.com/altpaynet/regreport/internal/http/handlers"
	"github.com/altpaynet/regreport/internal/models"
	"github.com/altpaynet/regreport/internal/security"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the services the API routes are built over.
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Runs     *run.Service
	Ingester *decta.Ingester
	Worker   *decta.Worker
	Exporter *decta.Exporter
}

// RegisterRoutes mounts the API on the engine.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	api := r.Group("/v1")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Config.Server.JWTSecret)
	api.POST("/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(operatorAuthMiddleware(deps.DB, deps.Config.Server.JWTSecret))

	reportsHandler := handlers.NewReportsHandler(deps.Runs, deps.Config)
	authed.POST("/reports", reportsHandler.Generate)
	authed.GET("/reports", reportsHandler.List)
	authed.GET("/reports/:run_id", reportsHandler.Get)

	dectaHandler := handlers.NewDectaHandler(deps.DB, deps.Ingester, deps.Worker, deps.Exporter)
	authed.POST("/decta/ingest", dectaHandler.Ingest)
	authed.POST("/decta/match", dectaHandler.Match)
	authed.GET("/decta/export", dectaHandler.Export)
	authed.GET("/decta/records", dectaHandler.ListRecords)
}

// operatorAuthMiddleware validates operator JWTs and loads the operator
// into context.
func operatorAuthMiddleware(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var operator models.Operator
		if errFind := db.WithContext(c.Request.Context()).First(&operator, claims.OperatorID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
			return
		}
		if !operator.IsEnabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator disabled"})
			return
		}

		c.Set("operator", operator)
		c.Next()
	}
}
