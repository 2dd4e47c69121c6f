package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gridclear/settlement-engine/internal/model"
	"github.com/gridclear/settlement-engine/internal/store"
)

// listContracts handles GET /api/v1/contracts?owner=&status=&date=
func (s *Server) listContracts(w http.ResponseWriter, r *http.Request) {
	filter := store.ContractFilter{Owner: r.URL.Query().Get("owner")}

	if st := r.URL.Query().Get("status"); st != "" {
		status := model.ContractStatus(st)
		if !status.Valid() {
			writeError(w, &model.ValidationError{Field: "status", Reason: "must be ACTIVE, COMPLETED, or CANCELLED"})
			return
		}
		filter.Statuses = []model.ContractStatus{status}
	}

	date, err := optionalDateQuery(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}
	filter.Date = date

	contracts, err := s.ledger.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	writeJSON(w, http.StatusOK, contracts)
}

// UpdateContractStatusRequest is the JSON body for the status transition.
type UpdateContractStatusRequest struct {
	Status model.ContractStatus `json:"status"`
}

// updateContractStatus handles PUT /api/v1/contracts/{contractID}/status
func (s *Server) updateContractStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateContractStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	contract, err := s.ledger.UpdateStatus(r.Context(), chi.URLParam(r, "contractID"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// completeAllActive handles POST /api/v1/contracts/complete-all-active?date=
func (s *Server) completeAllActive(w http.ResponseWriter, r *http.Request) {
	date, err := optionalDateQuery(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}
	if date == nil {
		writeError(w, &model.ValidationError{Field: "date", Reason: "must not be empty"})
		return
	}

	n, err := s.ledger.CompleteAllActive(r.Context(), *date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":              date.Format(model.DateLayout),
		"contracts_updated": n,
	})
}

// contractsSummary handles GET /api/v1/contracts/summary?date=
func (s *Server) contractsSummary(w http.ResponseWriter, r *http.Request) {
	date, err := optionalDateQuery(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}
	if date == nil {
		writeError(w, &model.ValidationError{Field: "date", Reason: "must not be empty"})
		return
	}

	summary, err := s.ledger.Summarize(r.Context(), *date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
