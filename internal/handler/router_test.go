package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/handler"
	"github.com/boddenberg/account-actor-go/internal/infra/cache"
	"github.com/boddenberg/account-actor-go/internal/infra/memory"
	"github.com/boddenberg/account-actor-go/internal/infra/observability"
	"github.com/boddenberg/account-actor-go/internal/service"

	"go.uber.org/zap"
)

type testServer struct {
	router http.Handler
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	store := memory.NewStore()
	views := cache.New[*domain.AccountView](time.Minute)
	t.Cleanup(views.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc := service.NewAccountService(ctx, cache.NewRegistry(metrics, logger), store, views, service.ServiceConfig{}, metrics, logger)

	return &testServer{
		router: handler.NewRouter(svc, nil, metrics, logger),
		store:  store,
	}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) waitStored(t *testing.T, id string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, _ := s.store.Load(context.Background(), id)
		if len(events) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d stored events for %s", n, id)
}

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_StoreDown(t *testing.T) {
	down := func(*http.Request) error { return errors.New("connection refused") }
	router := handler.NewRouter(nil, down, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAccountLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/accounts", `{"account_id":"acc-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		AccountID string `json:"account_id"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.AccountID != "acc-1" || created.Status != "accepted" {
		t.Errorf("unexpected create response %+v", created)
	}

	if rec := s.do(http.MethodPost, "/v1/accounts/acc-1/deposits", `{"amount":"12.50"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("deposit: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodPost, "/v1/accounts/acc-1/withdrawals", `{"amount":2.25}`); rec.Code != http.StatusAccepted {
		t.Fatalf("withdraw: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodPost, "/v1/accounts/acc-1/withdrawals", `{"amount":"500"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("declined withdraw: expected 202, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/v1/accounts/acc-1/flush", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("flush: expected 202, got %d", rec.Code)
	}
	s.waitStored(t, "acc-1", 4)

	rec = s.do(http.MethodGet, "/v1/accounts/acc-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var view domain.AccountView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Balance != 1025 || view.BalanceDisplay != "10.25" || view.EventCount != 4 || !view.Live {
		t.Errorf("unexpected view %+v", view)
	}

	rec = s.do(http.MethodGet, "/v1/accounts/acc-1/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events: expected 200, got %d", rec.Code)
	}
	var history struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if history.Total != 4 || history.Events[3].Type != domain.EventTypePaymentDeclined {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestCreateAccount_GeneratesID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/accounts", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp struct {
		AccountID string `json:"account_id"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.AccountID) != 36 {
		t.Errorf("expected generated uuid, got %q", resp.AccountID)
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	s := newTestServer(t)

	s.do(http.MethodPost, "/v1/accounts", `{"account_id":"acc-1"}`)
	rec := s.do(http.MethodPost, "/v1/accounts", `{"account_id":"acc-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestDeposit_InvalidAmounts(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/v1/accounts", `{"account_id":"acc-1"}`)

	for _, body := range []string{
		`{"amount":"0"}`,
		`{"amount":"-1.00"}`,
		`{"amount":"1.234"}`,
		`{"amount":"abc"}`,
		`{}`,
		`not json`,
	} {
		rec := s.do(http.MethodPost, "/v1/accounts/acc-1/deposits", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestDeposit_UnknownAccount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/accounts/ghost/deposits", `{"amount":"1"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(http.MethodGet, "/v1/accounts/ghost", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestActorMetrics(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/v1/accounts", `{"account_id":"acc-1"}`)
	s.do(http.MethodPost, "/v1/accounts/acc-1/flush", "")
	s.waitStored(t, "acc-1", 1)

	rec := s.do(http.MethodGet, "/v1/metrics/actors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap observability.ActorSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.LiveActors != 1 || snap.CommandsAccepted != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
