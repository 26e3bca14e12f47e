// Package response writes the JSON envelopes returned by the TriageFlow API:
// data for single resources, data plus meta for paginated collections, and a
// coded error object for failures.
package response

import (
	"encoding/json"
	"net/http"
)

type dataBody struct {
	Data any `json:"data"`
}

type collectionBody struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PaginationMeta describes the page window of a collection response.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, dataBody{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, dataBody{Data: data})
}

// Accepted is used by async intake: the resource exists but its result is
// still being computed.
func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, dataBody{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionBody{Data: data, Meta: meta})
}

// Error writes a machine-readable error code plus a human-readable message.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
