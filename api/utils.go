package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"dealforge/database"
	"dealforge/engine"
)

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// writeJSON serializes a payload with the right content type.
func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// respondWithError logs the error and sends a JSON error response
// Use this to avoid exposing internal errors while still logging them
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Printf("API Error [%d]: %s - %v", code, message, err)
	} else {
		log.Printf("API Error [%d]: %s", code, message)
	}
	writeJSON(w, code, map[string]string{"error": message})
}

// respondEngineError maps negotiation errors onto HTTP statuses:
// unknown id -> 404, terminal or round-capped -> 409, past deadline -> 410.
func respondEngineError(w http.ResponseWriter, err error) {
	var notFound *database.NotFoundError
	var invalidState *engine.InvalidStateError
	var expired *engine.ExpiredError
	var roundLimit *engine.RoundLimitError

	switch {
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &invalidState):
		respondWithError(w, http.StatusConflict, err.Error(), nil)
	case errors.As(err, &expired):
		respondWithError(w, http.StatusGone, err.Error(), nil)
	case errors.As(err, &roundLimit):
		respondWithError(w, http.StatusConflict, err.Error(), nil)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error", err)
	}
}
