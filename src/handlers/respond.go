package handlers

import (
	"budgee-automation/src/models"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RuleInvalidator drops cached rules after a user's rules change.
type RuleInvalidator interface {
	InvalidateUser(userID int64)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// statusFor maps store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, models.ErrInvalidTransfer):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
