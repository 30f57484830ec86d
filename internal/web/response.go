package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeJSON encodes v with the given status. Encoding failures are logged,
// not surfaced; by then the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses: validation 400,
// not_found 404, unauthorized 401, domain 409, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verrs.Error(), Kind: string(freight.KindValidation)})
		return
	}

	kind := freight.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case freight.KindValidation:
		status = http.StatusBadRequest
	case freight.KindNotFound:
		status = http.StatusNotFound
	case freight.KindUnauthorized:
		status = http.StatusUnauthorized
	case freight.KindDomain:
		status = http.StatusConflict
	}
	if status >= 500 {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: string(kind)})
}

// decodeJSON reads the body into dst and rejects malformed payloads as
// validation errors.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return freight.WrapE(err, freight.KindValidation, "invalid request body")
	}
	return nil
}
