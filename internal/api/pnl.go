package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridclear/settlement-engine/internal/model"
)

// calculatePnL handles POST /api/v1/pnl/{owner}/{date}/calculate
func (s *Server) calculatePnL(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := s.calc.Calculate(r.Context(), owner, date)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.PnLEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// getUserPnL handles GET /api/v1/pnl/{owner}?start=&end=
func (s *Server) getUserPnL(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	start, err := optionalDateQuery(r, "start")
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := optionalDateQuery(r, "end")
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := s.calc.Entries(r.Context(), owner, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.PnLEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// pnlSummary handles GET /api/v1/pnl/{owner}/{date}/summary
func (s *Server) pnlSummary(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.calc.GetSummary(r.Context(), owner, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// getPortfolioPnL handles GET /api/v1/pnl/{owner}/portfolio
func (s *Server) getPortfolioPnL(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	portfolio, err := s.calc.GetPortfolio(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}
