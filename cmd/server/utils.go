package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"go.uber.org/zap"
)

const ownerHeader = "X-Owner-ID"

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeManagerError maps a FieldManager error onto a status code and body.
func writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	fe, ok := facet.AsFacetError(err)
	if !ok {
		zap.S().Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, APIResponse{Error: "internal error", Code: facet.ErrCodeInternalError})
		return
	}
	if status >= http.StatusInternalServerError {
		zap.S().Errorw("request failed", "method", r.Method, "path", r.URL.Path, "code", fe.Code, "error", err)
	}
	writeJSON(w, status, APIResponse{
		Error:   fe.Message,
		Code:    fe.Code,
		Field:   fe.Field,
		Details: fe.Details,
	})
}

func statusForError(err error) int {
	fe, ok := facet.AsFacetError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch fe.Type {
	case facet.ErrorTypeNotFound:
		return http.StatusNotFound
	case facet.ErrorTypeConflict, facet.ErrorTypeConcurrency:
		return http.StatusConflict
	case facet.ErrorTypeValidation:
		return http.StatusBadRequest
	case facet.ErrorTypeState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ownerFrom reads the owner id set by the authenticating proxy.
func ownerFrom(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(ownerHeader)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing %s header", ownerHeader)
	}
	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s header: %w", ownerHeader, err)
	}
	if owner == uuid.Nil {
		return uuid.Nil, errors.New("owner id must not be nil")
	}
	return owner, nil
}

// pathUUID parses the named path wildcard as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
