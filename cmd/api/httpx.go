package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

func newRequestID() string { return "req_" + uuid.NewString() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{
		RequestID: newRequestID(),
		Error:     errorBody{Code: code, Message: message},
	})
}
