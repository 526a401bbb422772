package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/govledger/internal/checkpoint"
	"github.com/jmerrifield20/govledger/internal/delegation"
	"github.com/jmerrifield20/govledger/internal/governance"
	"github.com/jmerrifield20/govledger/internal/token"
	"go.uber.org/zap"
)

// statusFor maps a governance error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, checkpoint.ErrNotYetDetermined):
		return http.StatusBadRequest, checkpoint.ErrNotYetDetermined.Error()
	case errors.Is(err, token.ErrZeroAddress), errors.Is(err, delegation.ErrInvalidDelegate):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, token.ErrNotOwner):
		return http.StatusForbidden, token.ErrNotOwner.Error()
	case errors.Is(err, token.ErrInsufficientBalance), errors.Is(err, delegation.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, governance.ErrDegraded):
		return http.StatusServiceUnavailable, governance.ErrDegraded.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *GovernanceHandler) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		fields := []zap.Field{zap.String("path", c.FullPath()), zap.Error(err)}
		if errors.Is(err, checkpoint.ErrInvariantViolation) {
			h.logger.Error("checkpoint invariant violated", fields...)
		} else {
			h.logger.Error("governance request failed", fields...)
		}
	}
	c.JSON(status, gin.H{"error": msg})
}
