package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/boddenberg/account-actor-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// parseAmount converts a decimal amount with at most two fractional digits
// into minor units.
func parseAmount(amount *decimal.Decimal) (int64, error) {
	if amount == nil {
		return 0, &domain.ErrValidation{Field: "amount", Message: "is required"}
	}
	if amount.Sign() <= 0 {
		return 0, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	if !amount.Round(2).Equal(*amount) {
		return 0, &domain.ErrValidation{Field: "amount", Message: "must have at most 2 decimal places"}
	}
	minor := amount.Shift(2)
	if minor.GreaterThan(maxMinorUnits) {
		return 0, &domain.ErrValidation{Field: "amount", Message: "is too large"}
	}
	return minor.IntPart(), nil
}

// formatMinorUnits renders minor units as a fixed two-decimal string.
func formatMinorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var validation *domain.ErrValidation
	var conflict *domain.ErrConflict
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &external):
		logger.Error("event store unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "event store unavailable")
	case errors.Is(err, domain.ErrActorStopped):
		logger.Warn("account actor stopped", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
