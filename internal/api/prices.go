package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gridclear/settlement-engine/internal/model"
)

func kindQuery(r *http.Request) (*model.QuoteKind, error) {
	s := r.URL.Query().Get("kind")
	if s == "" {
		return nil, nil
	}
	k := model.QuoteKind(s)
	if !k.Valid() {
		return nil, &model.ValidationError{Field: "kind", Reason: "must be DAY_AHEAD or REAL_TIME"}
	}
	return &k, nil
}

// generatePrices handles POST /api/v1/prices/{date}/generate?kind=
func (s *Server) generatePrices(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if kind == nil {
		writeError(w, &model.ValidationError{Field: "kind", Reason: "must not be empty"})
		return
	}

	quotes, err := s.oracle.Generate(r.Context(), date, *kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quotes)
}

// getPrices handles GET /api/v1/prices/{date}?kind=
func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	quotes, err := s.oracle.Get(r.Context(), date, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	if quotes == nil {
		quotes = []model.PriceQuote{}
	}
	writeJSON(w, http.StatusOK, quotes)
}

// getPriceAtHour handles GET /api/v1/prices/{date}/hours/{hour}?kind=
func (s *Server) getPriceAtHour(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil {
		writeError(w, &model.ValidationError{Field: "hour", Reason: "must be an integer"})
		return
	}
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if kind == nil {
		writeError(w, &model.ValidationError{Field: "kind", Reason: "must not be empty"})
		return
	}

	quote, err := s.oracle.GetAt(r.Context(), date, hour, *kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// updateRealTimePrices handles POST /api/v1/prices/{date}/realtime
func (s *Server) updateRealTimePrices(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	quotes, err := s.oracle.UpdateRealTime(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(Message{
			Type: "price_tick",
			Date: model.DateOf(date).Format(model.DateLayout),
			Kind: string(model.KindRealTime),
		})
	}
	writeJSON(w, http.StatusOK, quotes)
}

// priceSummary handles GET /api/v1/prices/{date}/summary
func (s *Server) priceSummary(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.oracle.GetSummary(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// priceChart handles GET /api/v1/prices/{date}/chart
func (s *Server) priceChart(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	chart, err := s.oracle.GetHourlyChart(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}
