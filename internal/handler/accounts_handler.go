package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/boddenberg/account-actor-go/internal/infra/observability"
	"github.com/boddenberg/account-actor-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Accounts Handlers
// ============================================================

type createAccountRequest struct {
	AccountID string `json:"account_id"`
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type acceptedResponse struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

func accepted(w http.ResponseWriter, accountID string) {
	writeJSON(w, http.StatusAccepted, acceptedResponse{AccountID: accountID, Status: "accepted"})
}

func createAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts")
		defer span.End()

		var req createAccountRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		accountID := strings.TrimSpace(req.AccountID)
		if accountID == "" {
			accountID = uuid.NewString()
		}
		span.SetAttributes(attribute.String("account.id", accountID))

		if err := svc.Create(ctx, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		accepted(w, accountID)
	}
}

func depositHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts/{accountId}/deposits")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")

		amount, ok := decodeAmount(w, r, logger)
		if !ok {
			return
		}
		if err := svc.Deposit(ctx, accountID, amount); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		accepted(w, accountID)
	}
}

func withdrawHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts/{accountId}/withdrawals")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")

		amount, ok := decodeAmount(w, r, logger)
		if !ok {
			return
		}
		if err := svc.Withdraw(ctx, accountID, amount); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		accepted(w, accountID)
	}
}

func flushAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /accounts/{accountId}/flush")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")

		if err := svc.Flush(ctx, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		accepted(w, accountID)
	}
}

func getAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/{accountId}")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")

		view, err := svc.GetAccount(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		view.BalanceDisplay = formatMinorUnits(view.Balance)
		writeJSON(w, http.StatusOK, view)
	}
}

func accountEventsHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/{accountId}/events")
		defer span.End()
		accountID := chi.URLParam(r, "accountId")

		events, err := svc.History(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"account_id": accountID,
			"events":     events,
			"total":      len(events),
		})
	}
}

func actorMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}

func decodeAmount(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return 0, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		handleServiceError(w, err, logger)
		return 0, false
	}
	return amount, true
}
