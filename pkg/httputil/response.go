// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the structured error body every failed request gets.
// Error carries the taxonomy class, Message the human-readable detail.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error taxonomy classes surfaced to HTTP callers.
const (
	ErrorValidation = "validation_error"
	ErrorAuth       = "auth_error"
	ErrorConflict   = "conflict_error"
	ErrorDependency = "dependency_error"
	ErrorNotFound   = "not_found"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a structured error body.
func WriteError(w http.ResponseWriter, status int, class, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: class, Message: message})
}

// WriteValidationError writes a 400 with the validation class.
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrorValidation, message)
}

// WriteUnauthorized writes a 401 with the auth class.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, ErrorAuth, message)
}

// WriteNotFound writes a 404.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrorNotFound, message)
}

// WriteConflict writes a 409 with the conflict class.
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, ErrorConflict, message)
}

// WriteDependencyError writes a 500 with the dependency class.
func WriteDependencyError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, ErrorDependency, err.Error())
}

// WriteSuccess writes a 200 with JSON data.
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 with JSON data.
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}
