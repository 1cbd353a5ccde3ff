// Package httputil holds the JSON response helpers shared by the debug
// routes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/protocol"
)

// WriteJSONError writes a JSON error response with the given status code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// StatusFor maps a client error to an HTTP status. Validation failures are
// the device's fault (422), connection failures the link's (502) and
// anything else is a 500.
func StatusFor(err error) int {
	switch protocol.KindOf(err) {
	case protocol.KindValidation:
		return http.StatusUnprocessableEntity
	case protocol.KindConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as {"error": {"kind": ..., "message": ...}} for a
// *protocol.Error, or as a plain message otherwise.
func WriteError(w http.ResponseWriter, err error) {
	var typed *protocol.Error
	if errors.As(err, &typed) {
		WriteJSON(w, StatusFor(err), map[string]*protocol.Error{"error": typed})
		return
	}
	WriteJSONError(w, StatusFor(err), err.Error())
}
