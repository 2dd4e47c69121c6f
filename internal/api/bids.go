package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gridclear/settlement-engine/internal/bidding"
	"github.com/gridclear/settlement-engine/internal/model"
)

// submitBid handles POST /api/v1/bids
func (s *Server) submitBid(w http.ResponseWriter, r *http.Request) {
	var req bidding.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	bid, err := s.book.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// getBid handles GET /api/v1/bids/{bidID}
func (s *Server) getBid(w http.ResponseWriter, r *http.Request) {
	bid, err := s.book.Get(r.Context(), chi.URLParam(r, "bidID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// listBidsByOwner handles GET /api/v1/bids?owner=&date=
func (s *Server) listBidsByOwner(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, &model.ValidationError{Field: "owner", Reason: "must not be empty"})
		return
	}
	date, err := optionalDateQuery(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}

	bids, err := s.book.ListByOwner(r.Context(), owner, date)
	if err != nil {
		writeError(w, err)
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

// listPendingBids handles GET /api/v1/bids/pending?hour=
func (s *Server) listPendingBids(w http.ResponseWriter, r *http.Request) {
	var hour *int
	if h := r.URL.Query().Get("hour"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil {
			writeError(w, &model.ValidationError{Field: "hour", Reason: "must be an integer"})
			return
		}
		hour = &n
	}

	bids, err := s.book.ListPending(r.Context(), hour)
	if err != nil {
		writeError(w, err)
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

// UpdateBidRequest is the JSON body for PUT /api/v1/bids/{bidID}.
// Omitted fields are left unchanged.
type UpdateBidRequest struct {
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// updateBid handles PUT /api/v1/bids/{bidID}
func (s *Server) updateBid(w http.ResponseWriter, r *http.Request) {
	var req UpdateBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	bid, err := s.book.Update(r.Context(), chi.URLParam(r, "bidID"), req.Quantity, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// deleteBid handles DELETE /api/v1/bids/{bidID}
func (s *Server) deleteBid(w http.ResponseWriter, r *http.Request) {
	if err := s.book.Delete(r.Context(), chi.URLParam(r, "bidID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
