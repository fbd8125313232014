package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"CoverPool/internal/claims"
	"CoverPool/internal/engine"
	"CoverPool/internal/oracle"
	"CoverPool/internal/policy"
	"CoverPool/internal/pool"
	"CoverPool/internal/token"
)

// abortWithError maps domain sentinel errors to HTTP status codes.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if s.metrics != nil {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.QueryErrors.WithLabelValues(route, http.StatusText(status)).Inc()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, policy.ErrNotFound),
		errors.Is(err, claims.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, policy.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, engine.ErrDuplicateCommand),
		errors.Is(err, claims.ErrAlreadyExecuted),
		errors.Is(err, claims.ErrAlreadyVoted),
		errors.Is(err, policy.ErrInactive),
		errors.Is(err, policy.ErrPolicyLapsed),
		errors.Is(err, policy.ErrPaymentNotYetDue):
		return http.StatusConflict

	case errors.Is(err, engine.ErrMissingRef),
		errors.Is(err, engine.ErrInvalidParam),
		errors.Is(err, engine.ErrFlashAmountTooLarge),
		errors.Is(err, engine.ErrAmountExceedsCoverage),
		errors.Is(err, policy.ErrInvalidInput),
		errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, pool.ErrZeroShares),
		errors.Is(err, claims.ErrInvalidAmount),
		errors.Is(err, oracle.ErrUnsupportedAsset):
		return http.StatusBadRequest

	case errors.Is(err, engine.ErrNoBreach),
		errors.Is(err, engine.ErrNoReward),
		errors.Is(err, claims.ErrQuorumNotMet),
		errors.Is(err, pool.ErrInsufficientPoolBalance),
		errors.Is(err, pool.ErrInsufficientShares),
		errors.Is(err, pool.ErrEmptyPool),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrTransferFailed):
		return http.StatusUnprocessableEntity

	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrNoQuote):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
