package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/product"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/user"
)

// ErrorResponse is the structured error body: a stable machine-readable
// code plus a human-readable message.
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// StockDetails names the offending product and both quantities so the
// client can display an actionable message.
type StockDetails struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Available   int    `json:"available"`
	Requested   int    `json:"requested"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal","message":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// respondWithDomainError maps domain sentinels to status codes and
// machine-readable reasons in one place.
func respondWithDomainError(w http.ResponseWriter, err error) {
	var cartStock *cart.OutOfStockError
	var orderStock *order.InsufficientStockError

	switch {
	case errors.As(err, &cartStock):
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    "insufficient_stock",
			Message: cartStock.Error(),
			Details: StockDetails{
				ProductID:   cartStock.ProductID.String(),
				ProductName: cartStock.ProductName,
				Available:   cartStock.Available,
				Requested:   cartStock.Requested,
			},
		})
	case errors.As(err, &orderStock):
		respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    "insufficient_stock",
			Message: orderStock.Error(),
			Details: StockDetails{
				ProductID:   orderStock.ProductID.String(),
				ProductName: orderStock.ProductName,
				Available:   orderStock.Available,
				Requested:   orderStock.Requested,
			},
		})
	case errors.Is(err, cart.ErrLineNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", "Cart line not found")
	case errors.Is(err, product.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", "Product not found")
	case errors.Is(err, order.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", "Order not found")
	case errors.Is(err, user.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not_found", "User not found")
	case errors.Is(err, order.ErrCartNotFound):
		respondWithError(w, http.StatusBadRequest, "cart_not_found", "No cart to check out")
	case errors.Is(err, order.ErrCartEmpty):
		respondWithError(w, http.StatusBadRequest, "cart_empty", "Cart is empty")
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrMalformedIdentity):
		respondWithError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, order.ErrInvalidStatusTransition):
		respondWithError(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, user.ErrEmailExists):
		respondWithError(w, http.StatusConflict, "conflict", "Email already exists")
	case errors.Is(err, product.ErrSlugExists):
		respondWithError(w, http.StatusConflict, "conflict", "Product slug already exists")
	case errors.Is(err, order.ErrOrderNumberConflict):
		respondWithError(w, http.StatusConflict, "conflict", "Could not allocate a unique order number")
	case errors.Is(err, user.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Invalid email or password")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal", "Internal server error")
	}
}

func respondWithValidationError(w http.ResponseWriter, err error) bool {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return false
	}

	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}

	respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    "validation_failed",
		Message: "Validation failed",
		Details: details,
	})
	return true
}
