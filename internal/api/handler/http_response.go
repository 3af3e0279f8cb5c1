package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/steelstore-ledger/internal/api/middleware"
)

// Response is the envelope every endpoint answers with. Exactly one of
// Data and Error is set; Meta appears only on paginated lists.
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo carries a machine-readable code plus a human-readable message
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo describes the page of a paginated response
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

func respond(c *gin.Context, statusCode int, response *Response) {
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 response wrapping data in the standard envelope
func RespondOK(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, &Response{Data: data})
}

// RespondWithPaginatedData sends a data page together with its pagination
// metadata. totalItems is the full result count, not the page size.
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	totalPages := totalItems / perPage
	if totalItems%perPage > 0 {
		totalPages++
	}

	respond(c, statusCode, &Response{
		Data: data,
		Meta: &MetaInfo{
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			TotalItems: totalItems,
		},
	})
}

// RespondBadRequest sends a 400 response with the given message
func RespondBadRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, &Response{
		Error: &ErrorInfo{Code: "BAD_REQUEST", Message: message},
	})
}

// RespondNotFound sends a 404 response with the given message
func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	respond(c, http.StatusNotFound, &Response{
		Error: &ErrorInfo{Code: "NOT_FOUND", Message: message},
	})
}

// RespondInternalError sends a 500 response. The underlying error is never
// exposed to the client; it belongs in the logs with the correlation ID.
func RespondInternalError(c *gin.Context) {
	respond(c, http.StatusInternalServerError, &Response{
		Error: &ErrorInfo{Code: "INTERNAL_SERVER_ERROR", Message: "An internal server error occurred"},
	})
}
