package httpapi

import (
	"encoding/json"
	"net/http"

	"edgeflowd/pkg/types"
)

// writeJSON writes a JSON body with the proper content type.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
