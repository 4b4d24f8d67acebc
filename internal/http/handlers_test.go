package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	coordinator := ledger.NewCoordinator(store, nil, nil)
	aggregates := ledger.NewAggregateService(store, 16, time.Minute, nil)
	srv := NewServer(":0", coordinator, aggregates, nil)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv, store
}

func seedAccount(t *testing.T, store *memory.Store, id, userID string, balance string) {
	t.Helper()
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		t.Fatalf("bad balance %q: %v", balance, err)
	}
	if err := store.CreateAccount(context.Background(), core.Account{
		ID:      id,
		UserID:  userID,
		Name:    "checking",
		Class:   core.AssetAccount,
		Balance: bal,
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func doJSON(srv *Server, method, path, userID, body string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(srv, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rr.Code)
		}
	}
}

func TestRequireUser(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := doJSON(srv, http.MethodGet, "/api/transactions", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestCreateTransaction(t *testing.T) {
	srv, store := newTestServer(t)
	seedAccount(t, store, "acc-1", "user-1", "1000")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid expense",
			body:       `{"account_id":"acc-1","category_id":"cat-food","type":"expense","amount":"40.50","date":"2025-06-15"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid amount",
			body:       `{"account_id":"acc-1","type":"expense","amount":"abc","date":"2025-06-15"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid date",
			body:       `{"account_id":"acc-1","type":"expense","amount":"10","date":"15/06/2025"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field rejected",
			body:       `{"account_id":"acc-1","type":"expense","amount":"10","date":"2025-06-15","bogus":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown account",
			body:       `{"account_id":"acc-missing","category_id":"cat-food","type":"expense","amount":"10","date":"2025-06-15"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid type",
			body:       `{"account_id":"acc-1","type":"spend","amount":"10","date":"2025-06-15"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(srv, http.MethodPost, "/api/transactions", "user-1", tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestCreateTransactionResponseShape(t *testing.T) {
	srv, store := newTestServer(t)
	seedAccount(t, store, "acc-1", "user-1", "1000")

	body := `{"account_id":"acc-1","category_id":"cat-food","type":"expense","amount":"40.5","date":"2025-06-15","description":"groceries"}`
	rr := doJSON(srv, http.MethodPost, "/api/transactions", "user-1", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}

	var resp transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" {
		t.Error("response id is empty")
	}
	if resp.Amount != "40.5" {
		t.Errorf("amount = %s, want 40.5", resp.Amount)
	}
	if resp.Date != "2025-06-15" {
		t.Errorf("date = %s, want 2025-06-15", resp.Date)
	}
	if resp.Source != "manual" {
		t.Errorf("source = %s, want manual", resp.Source)
	}

	acc, err := store.GetAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Balance.String() != "959.5" {
		t.Errorf("balance = %s, want 959.5", acc.Balance.String())
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv, store := newTestServer(t)
	seedAccount(t, store, "acc-1", "user-1", "1000")

	rr := doJSON(srv, http.MethodPost, "/api/transactions", "user-1",
		`{"account_id":"acc-1","category_id":"cat-food","type":"expense","amount":"25","date":"2025-06-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}
	var created transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rr = doJSON(srv, http.MethodDelete, "/api/transactions/"+created.ID, "user-1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204 (body %s)", rr.Code, rr.Body.String())
	}

	rr = doJSON(srv, http.MethodDelete, "/api/transactions/"+created.ID, "user-1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}

	acc, _ := store.GetAccount(context.Background(), "acc-1")
	if acc.Balance.String() != "1000" {
		t.Errorf("balance after delete = %s, want 1000", acc.Balance.String())
	}
}

func TestDeleteTransactionWrongUser(t *testing.T) {
	srv, store := newTestServer(t)
	seedAccount(t, store, "acc-1", "user-1", "1000")

	rr := doJSON(srv, http.MethodPost, "/api/transactions", "user-1",
		`{"account_id":"acc-1","category_id":"cat-food","type":"expense","amount":"25","date":"2025-06-15"}`)
	var created transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rr = doJSON(srv, http.MethodDelete, "/api/transactions/"+created.ID, "user-2", "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	srv, store := newTestServer(t)
	seedAccount(t, store, "acc-1", "user-1", "1000")

	for _, body := range []string{
		`{"account_id":"acc-1","category_id":"cat-food","type":"expense","amount":"10","date":"2025-06-01"}`,
		`{"account_id":"acc-1","category_id":"cat-rent","type":"expense","amount":"20","date":"2025-07-01"}`,
	} {
		if rr := doJSON(srv, http.MethodPost, "/api/transactions", "user-1", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status = %d (body %s)", rr.Code, rr.Body.String())
		}
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{name: "all", query: "", wantStatus: http.StatusOK, wantCount: 2},
		{name: "june only", query: "?year=2025&month=6", wantStatus: http.StatusOK, wantCount: 1},
		{name: "category", query: "?category_id=cat-rent", wantStatus: http.StatusOK, wantCount: 1},
		{name: "month without year", query: "?month=6", wantStatus: http.StatusBadRequest},
		{name: "bad month", query: "?year=2025&month=13", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(srv, http.MethodGet, "/api/transactions"+tt.query, "user-1", "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var list []transactionResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if len(list) != tt.wantCount {
				t.Errorf("len = %d, want %d", len(list), tt.wantCount)
			}
		})
	}
}

func TestCreateTransfer(t *testing.T) {
	srv, store := newTestServer(t)
	seedAccount(t, store, "acc-1", "user-1", "1000")
	seedAccount(t, store, "acc-2", "user-1", "200")

	rr := doJSON(srv, http.MethodPost, "/api/transfers", "user-1",
		`{"from_account_id":"acc-1","to_account_id":"acc-2","amount":"300","date":"2025-06-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	var resp transferResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.From.TransferPeerID != resp.To.ID || resp.To.TransferPeerID != resp.From.ID {
		t.Error("transfer legs are not cross-referenced")
	}

	from, _ := store.GetAccount(context.Background(), "acc-1")
	to, _ := store.GetAccount(context.Background(), "acc-2")
	if from.Balance.String() != "700" || to.Balance.String() != "500" {
		t.Errorf("balances = %s/%s, want 700/500", from.Balance.String(), to.Balance.String())
	}

	t.Run("patch of a transfer leg is rejected", func(t *testing.T) {
		rr := doJSON(srv, http.MethodPatch, "/api/transactions/"+resp.From.ID, "user-1",
			`{"amount":"150"}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rr.Code)
		}
	})
}

func TestGetAggregate(t *testing.T) {
	srv, store := newTestServer(t)
	seedAccount(t, store, "acc-1", "user-1", "1000")
	if err := store.CreateBudget(context.Background(), core.Budget{
		ID:         "bud-1",
		UserID:     "user-1",
		CategoryID: "cat-food",
		Amount:     decimal.RequireFromString("300"),
		StartDate:  core.NewDate(2025, 6, 1),
		EndDate:    core.NewDate(2025, 6, 30),
	}); err != nil {
		t.Fatalf("seed budget: %v", err)
	}
	if rr := doJSON(srv, http.MethodPost, "/api/transactions", "user-1",
		`{"account_id":"acc-1","category_id":"cat-food","type":"expense","amount":"120","date":"2025-06-10"}`); rr.Code != http.StatusCreated {
		t.Fatalf("seed transaction status = %d", rr.Code)
	}

	rr := doJSON(srv, http.MethodGet, "/api/aggregates/2025/6", "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp aggregateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Year != 2025 || resp.Month != 6 {
		t.Errorf("period = %d-%d, want 2025-6", resp.Year, resp.Month)
	}
	if resp.TotalBudgeted != "300" {
		t.Errorf("total_budgeted = %s, want 300", resp.TotalBudgeted)
	}
	if resp.TotalSpent != "120" {
		t.Errorf("total_spent = %s, want 120", resp.TotalSpent)
	}

	t.Run("bad month", func(t *testing.T) {
		rr := doJSON(srv, http.MethodGet, "/api/aggregates/2025/13", "user-1", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}
