package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/steelstore-ledger/internal/api/service"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/reconcile"
)

// LedgerHandler handles HTTP requests for ledger reads and repair history
type LedgerHandler struct {
	reconciliationService service.ReconciliationService
	logger                *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(logger *slog.Logger, reconciliationService service.ReconciliationService) *LedgerHandler {
	return &LedgerHandler{
		reconciliationService: reconciliationService,
		logger:                logger,
	}
}

// GetLedger retrieves a customer's full ordered entry stream together
// with the cached balance, returning 404 if the customer doesn't exist
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	id, ok := parseCustomerID(c, h.logger)
	if !ok {
		return
	}

	cust, entries, err := h.reconciliationService.GetLedger(c.Request.Context(), id)
	if err != nil {
		var notFoundErr customer.ErrCustomerNotFound
		if errors.As(err, &notFoundErr) {
			RespondNotFound(c, "Customer not found")
			return
		}
		h.logger.Error("Failed to get customer ledger", "customer_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	response := LedgerResponse{
		CustomerID:    cust.ID.String(),
		CustomerName:  cust.Name,
		CachedBalance: cust.CachedBalance.String(),
		Entries:       make([]EntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		response.Entries = append(response.Entries, mapEntryToResponse(e))
	}

	RespondOK(c, response)
}

// GetRepairHistory retrieves the paginated repair history for a customer
func (h *LedgerHandler) GetRepairHistory(c *gin.Context) {
	id, ok := parseCustomerID(c, h.logger)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	records, total, err := h.reconciliationService.GetRepairHistory(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		var notFoundErr customer.ErrCustomerNotFound
		if errors.As(err, &notFoundErr) {
			RespondNotFound(c, "Customer not found")
			return
		}
		h.logger.Error("Failed to get repair history", "customer_id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	if records == nil {
		records = []*reconcile.RepairRecord{}
	}
	RespondWithPaginatedData(c, http.StatusOK, records, pagination.Page, pagination.PerPage, int(total))
}
