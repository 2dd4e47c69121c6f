// Package api is the HTTP boundary over the settlement core. Handlers
// decode requests, call core services, and map typed domain errors to
// status codes; no business rule lives here.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/gridclear/settlement-engine/internal/bidding"
	"github.com/gridclear/settlement-engine/internal/clearing"
	"github.com/gridclear/settlement-engine/internal/contracts"
	"github.com/gridclear/settlement-engine/internal/pnl"
	"github.com/gridclear/settlement-engine/internal/prices"
)

// Server bundles the core services behind HTTP handlers.
type Server struct {
	book   *bidding.Book
	engine *clearing.Engine
	ledger *contracts.Ledger
	oracle *prices.Oracle
	calc   *pnl.Calculator
	hub    *Hub // optional WebSocket hub for real-time broadcasts
}

// NewServer creates a server over the core services.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewServer(book *bidding.Book, engine *clearing.Engine, ledger *contracts.Ledger,
	oracle *prices.Oracle, calc *pnl.Calculator, hub *Hub) *Server {
	return &Server{
		book:   book,
		engine: engine,
		ledger: ledger,
		oracle: oracle,
		calc:   calc,
		hub:    hub,
	}
}

// Routes mounts all handlers under /api/v1.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		r.Route("/bids", func(r chi.Router) {
			r.Post("/", s.submitBid)
			r.Get("/", s.listBidsByOwner)
			r.Get("/pending", s.listPendingBids)
			r.Get("/{bidID}", s.getBid)
			r.Put("/{bidID}", s.updateBid)
			r.Delete("/{bidID}", s.deleteBid)
		})

		r.Route("/clearing/{date}", func(r chi.Router) {
			r.Post("/", s.clearMarket)
			r.Get("/summary", s.clearingSummary)
		})

		r.Route("/prices/{date}", func(r chi.Router) {
			r.Post("/generate", s.generatePrices)
			r.Get("/", s.getPrices)
			r.Get("/hours/{hour}", s.getPriceAtHour)
			r.Post("/realtime", s.updateRealTimePrices)
			r.Get("/summary", s.priceSummary)
			r.Get("/chart", s.priceChart)
		})

		r.Route("/pnl/{owner}", func(r chi.Router) {
			r.Get("/", s.getUserPnL)
			r.Get("/portfolio", s.getPortfolioPnL)
			r.Post("/{date}/calculate", s.calculatePnL)
			r.Get("/{date}/summary", s.pnlSummary)
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", s.listContracts)
			r.Get("/summary", s.contractsSummary)
			r.Post("/complete-all-active", s.completeAllActive)
			r.Put("/{contractID}/status", s.updateContractStatus)
		})
	})
}
