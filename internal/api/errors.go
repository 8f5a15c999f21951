package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hcc-mvi-risk-server/internal/domain"
	"github.com/hcc-mvi-risk-server/internal/hospital"
	"github.com/hcc-mvi-risk-server/internal/middleware"
)

// statusForCode maps API error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case domain.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeInsufficientData, domain.ErrCodeDegenerateFit:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeCalibrationInProgress:
		return http.StatusConflict
	case domain.ErrCodeExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// newAPIError converts err into the response envelope.
func newAPIError(c *gin.Context, err error) *domain.APIError {
	code := domain.ErrorCode(err)
	var statusErr *hospital.StatusError
	if errors.As(err, &statusErr) {
		code = domain.ErrCodeExternalAPI
	}

	message := err.Error()
	details := ""
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		message = verr.Message
		details = verr.Field
	}
	if code == domain.ErrCodeInternalServer {
		message = "internal server error"
	}

	return domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey))
}

// respondError writes err as an APIError with the matching status.
func respondError(c *gin.Context, err error) {
	apiErr := newAPIError(c, err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusForCode(apiErr.Code), gin.H{"error": apiErr})
}

// respondBadRequest rejects a request body that could not be bound.
func respondBadRequest(c *gin.Context, err error) {
	apiErr := domain.NewAPIError(domain.ErrCodeInvalidInput, "invalid request body", err.Error(), c.GetString(middleware.CorrelationIDKey))
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apiErr})
}

// respondUpstream reports a hospital API failure.
func respondUpstream(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	apiErr := domain.NewAPIError(domain.ErrCodeExternalAPI, "hospital API request failed", err.Error(), c.GetString(middleware.CorrelationIDKey))
	c.AbortWithStatusJSON(status, gin.H{"error": apiErr})
}
