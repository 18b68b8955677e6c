package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
)

const (
	sessionCookieName = "cart_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type CartHandler struct {
	carts    cart.Service
	validate *validator.Validate
}

func NewCartHandler(carts cart.Service) *CartHandler {
	return &CartHandler{carts: carts, validate: validator.New()}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Post("/cart/items", h.handleAddItem)
	router.Put("/cart/items/{lineID}", h.handleUpdateItem)
	router.Delete("/cart/items/{lineID}", h.handleRemoveItem)
	router.Delete("/cart", h.handleClearCart)
}

// identity picks the caller's cart identity: the authenticated user when
// a valid token came through, otherwise the guest session cookie. A new
// session token is minted (and set as an http-only strict cookie) only
// when neither exists.
func (h *CartHandler) identity(w http.ResponseWriter, r *http.Request) (cart.Identity, error) {
	if claims, ok := claimsFromContext(r.Context()); ok {
		return cart.UserIdentity(claims.UserID), nil
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cart.SessionIdentity(cookie.Value), nil
	}

	token, err := uuid.NewV4()
	if err != nil {
		return cart.Identity{}, err
	}

	setSessionCookie(w, token.String())

	return cart.SessionIdentity(token.String()), nil
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(w, r)
	if err != nil {
		log.Error().Err(err).Msg("failed to establish cart identity")
		respondWithError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	view, err := h.carts.Get(r.Context(), identity)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest

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

	productID, err := uuid.FromString(req.ProductID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid product id")
		return
	}

	identity, err := h.identity(w, r)
	if err != nil {
		log.Error().Err(err).Msg("failed to establish cart identity")
		respondWithError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	view, err := h.carts.AddItem(r.Context(), identity, productID, req.Quantity)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.FromString(chi.URLParam(r, "lineID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid line id")
		return
	}

	var req UpdateItemRequest

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

	identity, err := h.identity(w, r)
	if err != nil {
		log.Error().Err(err).Msg("failed to establish cart identity")
		respondWithError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	view, err := h.carts.UpdateItem(r.Context(), identity, lineID, req.Quantity)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.FromString(chi.URLParam(r, "lineID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid line id")
		return
	}

	identity, err := h.identity(w, r)
	if err != nil {
		log.Error().Err(err).Msg("failed to establish cart identity")
		respondWithError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	view, err := h.carts.RemoveItem(r.Context(), identity, lineID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(w, r)
	if err != nil {
		log.Error().Err(err).Msg("failed to establish cart identity")
		respondWithError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	view, err := h.carts.Clear(r.Context(), identity)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}
