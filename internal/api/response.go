package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LuckyPipe/internal/models"
)

// internalErrorBody answers requests whose own payload could not be encoded.
var internalErrorBody = mustMarshal(models.Error("Internal server error"))

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("api: cannot marshal %T: %v", v, err))
	}
	return b
}

// writeJSON sends body with the given status. The body is encoded before any
// header goes out, so an unencodable body still becomes a 500.
func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("api.writeJSON: marshal failed", "error", err, "status", status)
		payload, status = internalErrorBody, http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Warn("api.writeJSON: write failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.Error(msg))
}
