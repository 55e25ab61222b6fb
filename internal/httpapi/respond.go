package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tms-project/tms/internal/tmserrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto the §7 HTTP status classes. Unclassified
// errors surface as Internal with no detail beyond a correlation id, per
// §7's leakage policy.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *tmserrors.Error
	if !errors.As(err, &e) {
		e = tmserrors.NewInternal(err)
	}
	body := map[string]any{
		"error": e.Kind,
		"message": e.Message,
	}
	if e.Kind == tmserrors.Internal {
		body["correlation_id"] = requestID(r)
		body["message"] = "internal error"
	}
	writeJSON(w, e.Status(), body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return tmserrors.NewBadRequest("malformed JSON body")
	}
	return nil
}
