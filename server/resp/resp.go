package resp

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorResponse struct {
	Error       string              `json:"error"`
	Description string              `json:"description,omitempty"`
	Fields      map[string][]string `json:"fields,omitempty"`
}

func WriteOK(w http.ResponseWriter, object any) {
	writeResp(w, http.StatusOK, object)
}

// WriteCreated answers 201 with a Location header and, when object is not
// nil, a JSON body describing what was created.
func WriteCreated(w http.ResponseWriter, location string, object any) {
	if location != "" {
		w.Header().Add("Location", location)
	}

	writeResp(w, http.StatusCreated, object)
}

func WriteUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="plume"`)
	writeError(w, http.StatusUnauthorized, "unauthorized", description)
}

func WriteForbidden(w http.ResponseWriter, description string) {
	writeError(w, http.StatusForbidden, "forbidden", description)
}

func WriteInvalidRequest(w http.ResponseWriter, description string) {
	writeError(w, http.StatusBadRequest, "invalid_request", description)
}

// WriteFieldErrors answers 400 with per-field messages for a rejected form.
func WriteFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	writeResp(w, http.StatusBadRequest, ErrorResponse{
		Error:  "invalid_request",
		Fields: fields,
	})
}

func WriteNotFound(w http.ResponseWriter, description string) {
	writeError(w, http.StatusNotFound, "not_found", description)
}

func WriteUnsupportedMediaType(w http.ResponseWriter, description string) {
	writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", description)
}

func WriteTooManyRequests(w http.ResponseWriter, description string) {
	writeError(w, http.StatusTooManyRequests, "rate_limited", description)
}

func WriteInternalServerError(w http.ResponseWriter, description string) {
	writeError(w, http.StatusInternalServerError, "internal_server_error", description)
}

func WriteNotImplemented(w http.ResponseWriter, description string) {
	writeError(w, http.StatusNotImplemented, "not_implemented", description)
}

func WriteServiceUnavailable(w http.ResponseWriter, description string) {
	writeError(w, http.StatusServiceUnavailable, "service_unavailable", description)
}

func writeError(w http.ResponseWriter, status int, err string, description string) {
	writeResp(w, status, ErrorResponse{
		Error:       err,
		Description: description,
	})
}

func writeResp(w http.ResponseWriter, status int, object any) {
	haveObject := object != nil

	if haveObject {
		w.Header().Add("Content-Type", "application/json")
	}

	w.WriteHeader(status)

	if haveObject {
		err := json.NewEncoder(w).Encode(object)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to write standard HTTP response: %v", err), http.StatusInternalServerError)
		}
	}
}
