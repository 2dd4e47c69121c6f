package api

import (
	"net/http"

	"github.com/gridclear/settlement-engine/internal/model"
)

// clearMarket handles POST /api/v1/clearing/{date}
func (s *Server) clearMarket(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.engine.Clear(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(Message{
			Type:             "market_cleared",
			Date:             result.Date.Format(model.DateLayout),
			ContractsCreated: result.ContractsCreated,
			BidsProcessed:    result.BidsProcessed,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// clearingSummary handles GET /api/v1/clearing/{date}/summary
func (s *Server) clearingSummary(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.engine.GetSummary(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
