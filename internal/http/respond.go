package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
)

type errorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Kind    apperr.Kind    `json:"kind"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindStockUnavailable, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPriceMismatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError renders err as JSON. Internal causes are logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "internal error",
			Kind:  apperr.KindInternal,
			Code:  "internal_error",
		})
		return
	}
	writeJSON(w, statusFor(e.Kind), errorResponse{
		Error:   e.Message,
		Kind:    e.Kind,
		Code:    e.Code,
		Details: e.Details,
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, apperr.Validation("bad_request", msg))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
