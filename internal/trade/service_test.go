package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/leaderboard"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/pricecache"
	"github.com/papertrade/trading-engine/internal/store"
	"github.com/papertrade/trading-engine/internal/trade"
)

type testServer struct {
	router *chi.Mux
	store  *store.MemoryStore
	cache  *pricecache.MemoryCache
	index  *leaderboard.MemoryIndex
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ms := store.NewMemoryStore()
	cache := pricecache.NewMemoryCache()
	index := leaderboard.NewMemoryIndex()
	engine := trade.NewEngine(ms, cache)
	svc := trade.NewService(engine, ms, cache, index, 10)

	r := chi.NewRouter()
	r.Post("/api/v1/auth/register", svc.Register)
	r.Post("/api/v1/trading/trade", svc.SubmitOrder)
	r.Post("/api/v1/trading/batch", svc.SubmitBatch)
	r.Get("/api/v1/trading/history", svc.History)
	r.Get("/api/v1/analytics/holdings", svc.Holdings)
	r.Get("/api/v1/analytics/portfolio", svc.Portfolio)
	r.Get("/api/v1/analytics/leaderboard", svc.Leaderboard)

	return &testServer{router: r, store: ms, cache: cache, index: index}
}

func (ts *testServer) request(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/auth/register", 0, trade.RegisterRequest{
		Username: "alice", Email: "alice@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var user model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !user.Balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected starting balance 10000, got %s", user.Balance)
	}
	if user.ID == 0 {
		t.Error("expected assigned user id")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	body := trade.RegisterRequest{Username: "alice", Email: "alice@example.com"}

	if rec := ts.request(t, http.MethodPost, "/api/v1/auth/register", 0, body); rec.Code != http.StatusCreated {
		t.Fatalf("first register failed: %d", rec.Code)
	}
	if rec := ts.request(t, http.MethodPost, "/api/v1/auth/register", 0, body); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodPost, "/api/v1/auth/register", 0, trade.RegisterRequest{Username: "alice"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitOrder(t *testing.T) {
	ts := newTestServer(t)
	userID := seedUser(t, ts.store, "alice", d(10000))
	seedPrice(t, ts.cache, "AAPL", d(150))

	rec := ts.request(t, http.MethodPost, "/api/v1/trading/trade", userID, trade.OrderRequest{
		Symbol: "AAPL", Quantity: 10, Side: model.Buy,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result trade.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !result.NewBalance.Equal(d(8500)) {
		t.Errorf("expected new balance 8500, got %s", result.NewBalance)
	}
}

func TestSubmitOrder_Unauthorized(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodPost, "/api/v1/trading/trade", 0, trade.OrderRequest{
		Symbol: "AAPL", Quantity: 1, Side: model.Buy,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

// Every typed rejection must surface a specific status, never a
// generic 500.
func TestSubmitOrder_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	userID := seedUser(t, ts.store, "alice", d(100))
	seedPrice(t, ts.cache, "AAPL", d(150))

	cases := []struct {
		name   string
		userID int64
		req    trade.OrderRequest
		want   int
	}{
		{"missing symbol", userID, trade.OrderRequest{Quantity: 1, Side: model.Buy}, http.StatusBadRequest},
		{"invalid side", userID, trade.OrderRequest{Symbol: "AAPL", Quantity: 1, Side: "HOLD"}, http.StatusBadRequest},
		{"unknown user", 999, trade.OrderRequest{Symbol: "AAPL", Quantity: 1, Side: model.Buy}, http.StatusNotFound},
		{"price unavailable", userID, trade.OrderRequest{Symbol: "ZZZZ", Quantity: 1, Side: model.Buy}, http.StatusUnprocessableEntity},
		{"insufficient funds", userID, trade.OrderRequest{Symbol: "AAPL", Quantity: 5, Side: model.Buy}, http.StatusUnprocessableEntity},
		{"insufficient shares", userID, trade.OrderRequest{Symbol: "AAPL", Quantity: 5, Side: model.Sell}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/api/v1/trading/trade", tc.userID, tc.req)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
				t.Errorf("expected a specific error reason, got %s", rec.Body.String())
			}
		})
	}
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	userID := seedUser(t, ts.store, "alice", d(10000))
	seedPrice(t, ts.cache, "AAPL", d(100))

	engine := trade.NewEngine(ts.store, ts.cache)
	engine.Execute(context.Background(), userID, trade.OrderLeg{Symbol: "AAPL", Quantity: 2, Side: model.Buy})
	engine.Execute(context.Background(), userID, trade.OrderLeg{Symbol: "AAPL", Quantity: 1, Side: model.Sell})

	rec := ts.request(t, http.MethodGet, "/api/v1/trading/history", userID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var trades []model.Trade
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	// Newest first.
	if trades[0].Side != model.Sell {
		t.Errorf("expected sell first, got %+v", trades[0])
	}
}

func TestHoldings(t *testing.T) {
	ts := newTestServer(t)
	userID := seedUser(t, ts.store, "alice", d(10000))
	seedPrice(t, ts.cache, "AAPL", d(100))

	engine := trade.NewEngine(ts.store, ts.cache)
	engine.Execute(context.Background(), userID, trade.OrderLeg{Symbol: "AAPL", Quantity: 10, Side: model.Buy})
	seedPrice(t, ts.cache, "AAPL", d(120))

	rec := ts.request(t, http.MethodGet, "/api/v1/analytics/holdings", userID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var holdings []model.Holding
	if err := json.Unmarshal(rec.Body.Bytes(), &holdings); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(holdings))
	}
	h := holdings[0]
	if !h.CurrentPrice.Equal(d(120)) || !h.Value.Equal(d(1200)) {
		t.Errorf("expected price 120 value 1200, got %+v", h)
	}
	if !h.AverageCost.Equal(d(100)) {
		t.Errorf("expected average cost 100, got %s", h.AverageCost)
	}
}

func TestPortfolio(t *testing.T) {
	ts := newTestServer(t)
	userID := seedUser(t, ts.store, "alice", d(10000))
	seedPrice(t, ts.cache, "AAPL", d(100))

	engine := trade.NewEngine(ts.store, ts.cache)
	engine.Execute(context.Background(), userID, trade.OrderLeg{Symbol: "AAPL", Quantity: 10, Side: model.Buy})
	seedPrice(t, ts.cache, "AAPL", d(150))

	rec := ts.request(t, http.MethodGet, "/api/v1/analytics/portfolio", userID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp trade.PortfolioResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// value = 9000 cash + 10*150 = 10500; invested = 9000 + 10*100 = 10000
	if !resp.CurrentValue.Equal(d(10500)) {
		t.Errorf("expected current value 10500, got %s", resp.CurrentValue)
	}
	if !resp.TotalInvestment.Equal(d(10000)) {
		t.Errorf("expected total investment 10000, got %s", resp.TotalInvestment)
	}
	if !resp.ROIPercent.Equal(d(5)) {
		t.Errorf("expected ROI 5%%, got %s", resp.ROIPercent)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	ts := newTestServer(t)
	entries := []model.LeaderboardEntry{
		{UserID: 1, Username: "alice", NetWorth: d(12000)},
		{UserID: 2, Username: "bob", NetWorth: d(11000)},
		{UserID: 3, Username: "carol", NetWorth: d(10000)},
	}
	if err := ts.index.Replace(context.Background(), entries); err != nil {
		t.Fatalf("failed to seed index: %v", err)
	}

	rec := ts.request(t, http.MethodGet, "/api/v1/analytics/leaderboard?top=2", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []model.LeaderboardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 || got[0].Username != "alice" || got[1].Username != "bob" {
		t.Errorf("unexpected leaderboard: %+v", got)
	}
}
