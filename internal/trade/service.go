package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/leaderboard"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/pricecache"
	"github.com/papertrade/trading-engine/internal/store"
)

// initialBalance is the cash every user starts with at registration.
var initialBalance = decimal.NewFromInt(10000)

// Service exposes the engine and the derived views over thin HTTP
// handlers. Routing, sessions and credential checks live in excluded
// collaborators; handlers trust the identity in the X-User-ID header.
type Service struct {
	engine *Engine
	store  store.Store
	cache  pricecache.Cache
	index  leaderboard.Index
	topK   int
}

// NewService creates the HTTP-facing service.
func NewService(engine *Engine, st store.Store, cache pricecache.Cache, index leaderboard.Index, topK int) *Service {
	return &Service{engine: engine, store: st, cache: cache, index: index, topK: topK}
}

// --- Request/response types ---

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// OrderRequest is the JSON body for POST /trading/trade.
type OrderRequest struct {
	Symbol   string     `json:"symbol"`
	Quantity int64      `json:"quantity"`
	Side     model.Side `json:"side"`
}

// BatchRequest is the JSON body for POST /trading/batch.
type BatchRequest struct {
	Orders []OrderLeg `json:"orders"`
}

// PortfolioResponse summarizes a user's portfolio performance.
type PortfolioResponse struct {
	CurrentValue    decimal.Decimal `json:"current_value"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	ROIPercent      decimal.Decimal `json:"roi_percent"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register. Every user starts with
// the same cash balance; credentials are the auth collaborator's
// problem, not ours.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Email == "" {
		writeError(w, "username and email are required", http.StatusBadRequest)
		return
	}

	user := &model.User{
		Username:  req.Username,
		Email:     req.Email,
		Balance:   initialBalance,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, "username or email already in use", http.StatusConflict)
			return
		}
		writeError(w, "registration failed", http.StatusServiceUnavailable)
		return
	}

	slog.Info("user registered", "user", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, user)
}

// SubmitOrder handles POST /api/v1/trading/trade.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Execute(r.Context(), userID, OrderLeg{
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Side:     req.Side,
	})
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SubmitBatch handles POST /api/v1/trading/batch. The batch commits or
// rolls back as one unit.
func (s *Service) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.engine.ExecuteBatch(r.Context(), userID, req.Orders)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// History handles GET /api/v1/trading/history: the user's immutable
// trade events, newest first.
func (s *Service) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	trades, err := s.store.TradesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load trade history", http.StatusServiceUnavailable)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// Holdings handles GET /api/v1/analytics/holdings: open positions
// enriched with current prices and market value.
func (s *Service) Holdings(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	holdings, err := s.holdings(r, userID)
	if err != nil {
		writeError(w, "failed to load holdings", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

// Portfolio handles GET /api/v1/analytics/portfolio: mark-to-market
// value against invested capital.
func (s *Service) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load user", http.StatusServiceUnavailable)
		return
	}

	holdings, err := s.holdings(r, userID)
	if err != nil {
		writeError(w, "failed to load holdings", http.StatusServiceUnavailable)
		return
	}

	currentValue := user.Balance
	totalInvestment := user.Balance
	for _, h := range holdings {
		qty := decimal.NewFromInt(h.Quantity)
		currentValue = currentValue.Add(h.Value)
		totalInvestment = totalInvestment.Add(h.AverageCost.Mul(qty))
	}

	roi := decimal.Zero
	if totalInvestment.IsPositive() {
		roi = currentValue.Sub(totalInvestment).
			Div(totalInvestment).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	writeJSON(w, http.StatusOK, PortfolioResponse{
		CurrentValue:    currentValue.Round(2),
		TotalInvestment: totalInvestment.Round(2),
		ROIPercent:      roi,
	})
}

// Leaderboard handles GET /api/v1/analytics/leaderboard?top=K.
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	k := s.topK
	if raw := r.URL.Query().Get("top"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			k = parsed
		}
	}

	entries, err := s.index.Top(r.Context(), k)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusServiceUnavailable)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) holdings(r *http.Request, userID int64) ([]model.Holding, error) {
	ctx := r.Context()
	positions, err := s.store.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	prices, err := s.cache.Prices(ctx, symbols)
	if err != nil {
		return nil, err
	}

	holdings := make([]model.Holding, 0, len(positions))
	for _, p := range positions {
		price := prices[p.Symbol]
		holdings = append(holdings, model.Holding{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AverageCost:  p.AverageCost,
			CurrentPrice: price,
			Value:        price.Mul(decimal.NewFromInt(p.Quantity)),
		})
	}
	return holdings, nil
}

// identity reads the verified user identity injected by the auth
// collaborator. The core performs no credential checks itself.
func identity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// writeOrderError maps typed engine failures onto HTTP statuses with a
// specific reason, never a generic failure.
func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrInvalidSide):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUserNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrPriceUnavailable),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientShares):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		writeError(w, "order failed: storage unavailable", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
