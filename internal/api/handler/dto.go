package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/steelstore-ledger/internal/domain/ledger"
)

// RepairRequest represents a request to repair a customer's ledger
type RepairRequest struct {
	Mode string `json:"mode" binding:"required,oneof=dry_run execute"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	ID              string `json:"id"`
	EntryType       string `json:"entry_type"`
	TransactionType string `json:"transaction_type"`
	Amount          string `json:"amount"`
	ReferenceID     string `json:"reference_id,omitempty"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	BalanceBefore   string `json:"balance_before"`
	BalanceAfter    string `json:"balance_after"`
	OccurredAt      string `json:"occurred_at"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// LedgerResponse represents a customer's ledger in API responses
type LedgerResponse struct {
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CachedBalance string          `json:"cached_balance"`
	Entries       []EntryResponse `json:"entries"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// mapEntryToResponse maps a ledger entry to its response DTO
func mapEntryToResponse(e *ledger.Entry) EntryResponse {
	resp := EntryResponse{
		ID:              e.ID.String(),
		EntryType:       string(e.EntryType),
		TransactionType: string(e.TransactionType),
		Amount:          e.Amount.String(),
		ReferenceNumber: e.ReferenceNumber,
		BalanceBefore:   e.BalanceBefore.String(),
		BalanceAfter:    e.BalanceAfter.String(),
		OccurredAt:      e.OccurredAt.Format(time.RFC3339),
		Notes:           e.Notes,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
	if e.ReferenceID != uuid.Nil {
		resp.ReferenceID = e.ReferenceID.String()
	}
	return resp
}
