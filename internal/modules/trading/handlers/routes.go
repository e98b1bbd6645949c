package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/trade", h.HandleExecuteTrade) // Immediate market execution

	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)                 // Cash, positions, totals
		r.Get("/transactions", h.HandleGetTransactions)  // Transaction history
		r.Get("/performance", h.HandleGetPerformance)    // Realized P&L counters
		r.Post("/refresh-prices", h.HandleRefreshPrices) // Re-mark held positions
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.HandlePlaceOrder)              // Place limit order
		r.Get("/", h.HandleListOrders)               // List orders, optional ?status=
		r.Delete("/{orderID}", h.HandleCancelOrder)  // Cancel open order
		r.Post("/sweep", h.HandleSweepOrders)        // Manual sweep trigger
	})

	r.Get("/forecast/{ticker}", h.HandleGetForecast) // Trend forecast
	r.Get("/events", h.HandleEventStream)            // SSE event feed
}
