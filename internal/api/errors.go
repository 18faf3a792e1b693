package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/ledger"
	"github.com/gin-gonic/gin"
)

// respondError maps service errors to status codes. It is the only place
// that does so.
func (s *Server) respondError(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= 500 {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, ErrorResponse) {
	var (
		verr *apperr.ValidationError
		serr *ledger.ShortfallError
	)
	switch {
	case errors.As(err, &verr):
		fields := make([]FieldError, 0, len(verr.Fields))
		for f, m := range verr.Fields {
			fields = append(fields, FieldError{Field: f, Message: m})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
		return http.StatusBadRequest, newValidationError("invalid request", fields)

	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrSameWarehouse),
		errors.Is(err, ledger.ErrInvalidCost),
		errors.Is(err, ledger.ErrCurrencyMismatch),
		errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Code: CodeValidation, Message: err.Error()}

	case errors.As(err, &serr):
		return http.StatusConflict, ErrorResponse{
			Code:    CodeConflict,
			Message: serr.Base.Error(),
			Details: gin.H{
				"requested": serr.Requested,
				"available": serr.Available,
				"shortfall": serr.Shortfall(),
			},
		}

	case ledger.IsNotFound(err), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: err.Error()}

	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrInsufficientReserved),
		errors.Is(err, ledger.ErrBelowReserved),
		errors.Is(err, ledger.ErrWarehouseInactive),
		errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, ErrorResponse{Code: CodeConflict, Message: err.Error()}

	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, newUnauthorizedError("invalid token")
	}
	return http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Message: "internal server error"}
}

// bindJSON decodes the body or answers 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    CodeValidation,
			Message: "invalid request body",
			Details: err.Error(),
		})
		return false
	}
	return true
}
