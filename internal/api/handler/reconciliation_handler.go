package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/steelstore-ledger/internal/api/service"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/reconcile"
)

// ReconciliationHandler handles HTTP requests for audit and repair operations
type ReconciliationHandler struct {
	reconciliationService service.ReconciliationService
	logger                *slog.Logger
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(logger *slog.Logger, reconciliationService service.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		logger:                logger,
	}
}

// Audit runs a reconciliation pass over one customer's ledger and returns
// the discrepancy report, returning 404 if the customer doesn't exist
func (h *ReconciliationHandler) Audit(c *gin.Context) {
	id, ok := parseCustomerID(c, h.logger)
	if !ok {
		return
	}

	report, err := h.reconciliationService.Audit(c.Request.Context(), id)
	if err != nil {
		var notFoundErr customer.ErrCustomerNotFound
		if errors.As(err, &notFoundErr) {
			RespondNotFound(c, "Customer not found")
			return
		}
		h.logger.Error("Failed to audit customer", "customer_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, report)
}

// Repair audits and repairs a customer's ledger in the requested mode.
// A repair that commits but leaves residual discrepancies still returns
// the result, with success set to false.
func (h *ReconciliationHandler) Repair(c *gin.Context) {
	id, ok := parseCustomerID(c, h.logger)
	if !ok {
		return
	}

	var req RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid repair request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	mode, err := reconcile.ParseMode(req.Mode)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	result, err := h.reconciliationService.Repair(c.Request.Context(), id, mode)
	if err != nil {
		var notFoundErr customer.ErrCustomerNotFound
		if errors.As(err, &notFoundErr) {
			RespondNotFound(c, "Customer not found")
			return
		}

		var incompleteErr *reconcile.RepairIncompleteError
		if errors.As(err, &incompleteErr) {
			h.logger.Warn("Repair committed with residual discrepancies",
				"customer_id", id.String(),
				"residual", incompleteErr.Residual.DiscrepancyCount(),
			)
			RespondOK(c, result)
			return
		}

		h.logger.Error("Failed to repair customer ledger", "customer_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, result)
}

// parseCustomerID extracts and validates the :id path parameter
func parseCustomerID(c *gin.Context, logger *slog.Logger) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		logger.Error("Invalid customer ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid customer ID")
		return uuid.Nil, false
	}
	return id, true
}
