package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/steelstore-ledger/internal/api/handler"
	"github.com/steelstore-ledger/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	reconciliationHandler *handler.ReconciliationHandler,
	ledgerHandler *handler.LedgerHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		customers := v1.Group("/customers")
		{
			customers.POST("/:id/audit", reconciliationHandler.Audit)
			customers.POST("/:id/repair", reconciliationHandler.Repair)
			customers.GET("/:id/ledger", ledgerHandler.GetLedger)
			customers.GET("/:id/repairs", ledgerHandler.GetRepairHistory)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
