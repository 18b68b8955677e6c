package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

type ShippingAddressRequest struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type CheckoutRequest struct {
	ShippingAddress ShippingAddressRequest `json:"shipping_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,eq=mock"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

type OrderHandler struct {
	orders   order.Service
	validate *validator.Validate
}

func NewOrderHandler(orders order.Service) *OrderHandler {
	return &OrderHandler{orders: orders, validate: validator.New()}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.With(RequireAuth).Post("/checkout", h.handleCheckout)
	router.With(RequireAuth).Get("/orders", h.handleListOrders)
	router.With(RequireAuth).Get("/orders/{id}", h.handleGetOrder)
	router.With(RequireAdmin).Put("/orders/{id}/status", h.handleUpdateStatus)
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		if !respondWithValidationError(w, err) {
			respondWithError(w, http.StatusInternalServerError, "internal", "Internal validation error")
		}
		return
	}

	claims, _ := claimsFromContext(r.Context())

	o, err := h.orders.Checkout(r.Context(), claims.UserID, order.ShippingAddress{
		Street:  req.ShippingAddress.Street,
		City:    req.ShippingAddress.City,
		State:   req.ShippingAddress.State,
		Zip:     req.ShippingAddress.Zip,
		Country: req.ShippingAddress.Country,
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	orders, err := h.orders.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid order id")
		return
	}

	claims, _ := claimsFromContext(r.Context())

	o, err := h.orders.GetForUser(r.Context(), orderID, claims.UserID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid order id")
		return
	}

	var req UpdateOrderStatusRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		if !respondWithValidationError(w, err) {
			respondWithError(w, http.StatusInternalServerError, "internal", "Internal validation error")
		}
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), orderID, order.Status(req.Status), req.Notes); err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"id":     orderID.String(),
		"status": req.Status,
	})
}
