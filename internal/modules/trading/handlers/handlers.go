// Package handlers provides the HTTP handlers for the trading API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/paperdesk/internal/domain"
	"github.com/aristath/paperdesk/internal/events"
	"github.com/aristath/paperdesk/internal/modules/execution"
	"github.com/aristath/paperdesk/internal/modules/orders"
)

// TradingHandlers contains the HTTP handlers for the trading API
type TradingHandlers struct {
	execution *execution.Service
	orders    *orders.Service
	forecast  domain.ForecastProvider
	events    *events.Manager
	log       zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(
	executionService *execution.Service,
	orderService *orders.Service,
	forecastProvider domain.ForecastProvider,
	eventManager *events.Manager,
	log zerolog.Logger,
) *TradingHandlers {
	return &TradingHandlers{
		execution: executionService,
		orders:    orderService,
		forecast:  forecastProvider,
		events:    eventManager,
		log:       log.With().Str("handler", "trading").Logger(),
	}
}

type tradeRequest struct {
	UserID   string          `json:"user_id"`
	Ticker   string          `json:"ticker"`
	Side     string          `json:"side"`
	Quantity domain.Quantity `json:"quantity"`
}

// HandleExecuteTrade executes an immediate market trade.
// POST /api/trade
func (h *TradingHandlers) HandleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	side, err := domain.ParseTradeSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.execution.ExecuteTrade(r.Context(), req.UserID, req.Ticker, side, req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Executed() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// HandleGetPortfolio returns the portfolio summary.
// GET /api/portfolio?user_id=...
func (h *TradingHandlers) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	summary, err := h.execution.Summary(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleGetTransactions returns the trade audit trail, newest first.
// GET /api/portfolio/transactions?user_id=...&limit=...
func (h *TradingHandlers) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	txns, err := h.execution.Transactions(r.Context(), userID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txns})
}

// HandleGetPerformance returns realized trading results.
// GET /api/portfolio/performance?user_id=...
func (h *TradingHandlers) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	perf, err := h.execution.Performance(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"performance": perf,
		"win_rate":    perf.WinRate(),
	})
}

// HandleRefreshPrices re-marks all positions from the oracle.
// POST /api/portfolio/refresh-prices?user_id=...
func (h *TradingHandlers) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	positions, err := h.execution.RefreshPrices(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

type placeOrderRequest struct {
	UserID         string          `json:"user_id"`
	Ticker         string          `json:"ticker"`
	Side           string          `json:"side"`
	Quantity       domain.Quantity `json:"quantity"`
	LimitPrice     domain.Money    `json:"limit_price"`
	ExpirationDays int             `json:"expiration_days"`
}

// HandlePlaceOrder opens a resting limit order.
// POST /api/orders
func (h *TradingHandlers) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	side, err := domain.ParseTradeSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.PlaceLimitOrder(r.Context(), req.UserID, req.Ticker,
		side, req.Quantity, req.LimitPrice, req.ExpirationDays)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// HandleListOrders returns the user's orders, optionally filtered.
// GET /api/orders?user_id=...&status=OPEN
func (h *TradingHandlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var statuses []domain.OrderStatus
	if status := r.URL.Query().Get("status"); status != "" {
		statuses = append(statuses, domain.OrderStatus(status))
	}

	list, err := h.orders.ListOrders(r.Context(), userID, statuses...)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": list})
}

// HandleCancelOrder cancels an open order.
// DELETE /api/orders/{orderID}?user_id=...
func (h *TradingHandlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), orderID, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// HandleSweepOrders triggers a sweep outside the schedule.
// POST /api/orders/sweep
func (h *TradingHandlers) HandleSweepOrders(w http.ResponseWriter, r *http.Request) {
	result, err := h.orders.Sweep(r.Context(), time.Now())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGetForecast returns a price projection for a ticker.
// GET /api/forecast/{ticker}?days=...
func (h *TradingHandlers) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	days := 7
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		if parsed, err := strconv.Atoi(daysParam); err == nil {
			days = parsed
		}
	}

	forecast, err := h.forecast.Forecast(r.Context(), ticker, days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// HandleEventStream streams ledger events as server-sent events.
// GET /api/events
func (h *TradingHandlers) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.events.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: " + string(event.Type) + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// respondError maps domain errors to HTTP status codes.
func (h *TradingHandlers) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrPortfolioNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrNoPosition),
		errors.Is(err, domain.ErrPriceUnavailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
