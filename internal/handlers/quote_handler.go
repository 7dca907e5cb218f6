package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"route-aggregator/internal/services"
	"route-aggregator/internal/sources"
	"route-aggregator/internal/types"
)

// QuoteAPI is the quote pipeline as seen by the HTTP layer.
type QuoteAPI interface {
	GetQuotes(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error)
	PrepareExecution(ctx context.Context, req types.ExecutionRequest) (*types.ExecutionPayload, error)
}

// QuoteHandler handles quote and execution API requests
type QuoteHandler struct {
	quotes QuoteAPI
	logger *logrus.Logger
}

// NewQuoteHandler creates a new QuoteHandler instance
func NewQuoteHandler(quotes QuoteAPI, logger *logrus.Logger) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, logger: logger}
}

// ============================================================================
// Quotes
// ============================================================================

// GetQuotesHandler handles POST /api/v1/quotes
// Fans the request out to every enabled source and returns ranked routes
func (h *QuoteHandler) GetQuotesHandler(c *gin.Context) {
	var req types.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.quotes.GetQuotes(c.Request.Context(), req)
	if err != nil {
		var verr *types.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, validationBody(verr))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "Quote request did not complete in time",
				"code":  "QUOTE_TIMEOUT",
			})
		default:
			h.logger.WithError(err).Error("Quote request failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to query quotes",
				"code":  "INTERNAL_ERROR",
			})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ============================================================================
// Executions
// ============================================================================

// PrepareExecutionHandler handles POST /api/v1/executions
// Builds the unsigned transaction of a previously quoted route
func (h *QuoteHandler) PrepareExecutionHandler(c *gin.Context) {
	var req types.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	payload, err := h.quotes.PrepareExecution(c.Request.Context(), req)
	if err != nil {
		status, body := executionError(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithFields(logrus.Fields{
				"route_id": req.RouteID,
				"status":   status,
				"error":    err,
			}).Warn("Execution request failed")
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, payload)
}

// executionError maps an execution failure to a status code and a body without internal details.
func executionError(err error) (int, gin.H) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, validationBody(verr)
	case errors.Is(err, services.ErrSnapshotNotFound):
		return http.StatusNotFound, gin.H{"error": services.ErrSnapshotNotFound.Error(), "code": "ROUTE_NOT_FOUND"}
	case errors.Is(err, services.ErrSnapshotExpired):
		return http.StatusGone, gin.H{"error": services.ErrSnapshotExpired.Error(), "code": "ROUTE_EXPIRED"}
	case errors.Is(err, services.ErrSnapshotMismatch):
		return http.StatusConflict, gin.H{"error": services.ErrSnapshotMismatch.Error(), "code": "PARAMETERS_MISMATCH"}
	case errors.Is(err, services.ErrSnapshotInUse):
		return http.StatusConflict, gin.H{"error": services.ErrSnapshotInUse.Error(), "code": "EXECUTION_IN_PROGRESS"}
	case errors.Is(err, sources.ErrQuoteDrift):
		return http.StatusConflict, gin.H{"error": "Quoted output is no longer available, request a new quote", "code": "QUOTE_DRIFT"}
	case errors.Is(err, services.ErrSourceUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": services.ErrSourceUnavailable.Error(), "code": "SOURCE_UNAVAILABLE"}
	case errors.Is(err, sources.ErrUnsupportedTransaction):
		return http.StatusUnprocessableEntity, gin.H{"error": "Route cannot be executed through this service", "code": "UNSUPPORTED_TRANSACTION"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, gin.H{"error": "Route provider did not respond in time", "code": "SOURCE_TIMEOUT"}
	default:
		return http.StatusBadGateway, gin.H{"error": "Failed to build execution payload", "code": "SOURCE_ERROR"}
	}
}

func validationBody(verr *types.ValidationError) gin.H {
	return gin.H{
		"error": verr.Error(),
		"field": verr.Field,
		"code":  "VALIDATION_ERROR",
	}
}
