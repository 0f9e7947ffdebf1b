package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"solestore-payments/internal/domain"
	"solestore-payments/internal/usecase"
)

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps the error taxonomy onto HTTP statuses so every
// handler reports failures the same way.
func respondDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var initErr *domain.InitiationError
	var authErr *domain.AuthError
	var invErr *domain.InventoryError

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, usecase.ErrInsufficientStock):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrVariantNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &authErr):
		respondError(w, http.StatusBadGateway, "payment gateway authentication failed")
	case errors.As(err, &initErr):
		if initErr.Retryable {
			respondError(w, http.StatusBadGateway, "payment gateway unavailable, try again")
		} else {
			respondError(w, http.StatusUnprocessableEntity, initErr.Error())
		}
	case errors.As(err, &invErr):
		respondError(w, http.StatusInternalServerError, "inventory operation failed")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
