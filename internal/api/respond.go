package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridclear/settlement-engine/internal/model"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to an HTTP status and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		validation   *model.ValidationError
		quota        *model.QuotaExceededError
		marketClosed *model.MarketClosedError
		conflict     *model.StateConflictError
		notFound     *model.NotFoundError
		missingPrice *model.MissingPriceDataError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &quota), errors.As(err, &marketClosed):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &notFound), errors.As(err, &missingPrice):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// dateParam parses the {date} URL parameter.
func dateParam(r *http.Request) (time.Time, error) {
	return model.ParseDate(chi.URLParam(r, "date"))
}

// optionalDateQuery parses an optional YYYY-MM-DD query parameter.
func optionalDateQuery(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, &model.ValidationError{Field: name, Reason: "must be YYYY-MM-DD"}
	}
	return &d, nil
}
