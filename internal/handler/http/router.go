package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/product"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/user"
)

// NewRouter assembles the full HTTP surface from explicitly constructed
// services; nothing here owns a connection or a lifecycle.
func NewRouter(
	tokens *auth.TokenManager,
	users user.Service,
	products product.Service,
	carts cart.Service,
	orders order.Service,
) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(Authenticate(tokens))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	NewUserHandler(users, carts, tokens).RegisterRoutes(router)
	NewProductHandler(products).RegisterRoutes(router)
	NewCartHandler(carts).RegisterRoutes(router)
	NewOrderHandler(orders).RegisterRoutes(router)

	return router
}
