package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"clipsync/internal/account"
	"clipsync/internal/storage"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "account not found"
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, account.ErrInvalidAccount), errors.Is(err, account.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity, "INVALID_ACCOUNT", err.Error()
	case errors.Is(err, storage.ErrStorageCorrupt):
		return http.StatusInternalServerError, "STORAGE_CORRUPT", "account record is corrupt"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
