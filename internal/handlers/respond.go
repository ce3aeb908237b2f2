package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError emits a JSON failure body. The underlying error is echoed
// back only in development environments.
func writeError(w http.ResponseWriter, status int, message string, err error, dev bool) {
	body := map[string]any{"message": message}
	if dev && err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, status, body)
}
