package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/user"
)

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,min=2"`
	LastName  string `json:"last_name" validate:"required,min=2"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserHandler struct {
	users    user.Service
	carts    cart.Service
	tokens   *auth.TokenManager
	validate *validator.Validate
}

func NewUserHandler(users user.Service, carts cart.Service, tokens *auth.TokenManager) *UserHandler {
	return &UserHandler{
		users:    users,
		carts:    carts,
		tokens:   tokens,
		validate: validator.New(),
	}
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Post("/auth/register", h.handleRegister)
	router.Post("/auth/login", h.handleLogin)
	router.With(RequireAuth).Get("/users/me", h.handleMe)
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func (h *UserHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

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

	u := user.User{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}

	created, err := h.users.Register(r.Context(), &u, req.Password)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, toUserResponse(created))
}

func (h *UserHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

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

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	token, err := h.tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue token")
		respondWithError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	// Best-effort guest cart merge. The error is logged and dropped at
	// this one call site: login never fails because of merge.
	if cookie, cookieErr := r.Cookie(sessionCookieName); cookieErr == nil && cookie.Value != "" {
		if mergeErr := h.carts.MergeGuestCart(r.Context(), cookie.Value, u.ID); mergeErr != nil {
			log.Error().Err(mergeErr).Stringer("user_id", u.ID).Msg("failed to merge guest cart on login")
		} else {
			clearSessionCookie(w)
		}
	}

	respondWithJSON(w, http.StatusOK, LoginResponse{Token: token, User: toUserResponse(u)})
}

func (h *UserHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	u, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(u))
}
