package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/product"
)

type ProductRequest struct {
	Name          string `json:"name" validate:"required,min=2"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	Price         string `json:"price" validate:"required"`
	StockQuantity int    `json:"stock_quantity" validate:"gte=0"`
}

type ProductHandler struct {
	products product.Service
	validate *validator.Validate
}

func NewProductHandler(products product.Service) *ProductHandler {
	return &ProductHandler{products: products, validate: validator.New()}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
	router.Get("/products/{id}", h.handleGetProduct)
	router.With(RequireAdmin).Post("/products", h.handleCreateProduct)
	router.With(RequireAdmin).Put("/products/{id}", h.handleUpdateProduct)
	router.With(RequireAdmin).Post("/products/{id}/image", h.handleUploadImage)
}

func (h *ProductHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	products, err := h.products.List(r.Context(), limit, offset)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid product id")
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (*product.Product, bool) {
	var req ProductRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid request payload")
		return nil, false
	}

	if err := h.validate.Struct(req); err != nil {
		if !respondWithValidationError(w, err) {
			respondWithError(w, http.StatusInternalServerError, "internal", "Internal validation error")
		}
		return nil, false
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid price")
		return nil, false
	}

	return &product.Product{
		Name:          req.Name,
		Slug:          req.Slug,
		Description:   req.Description,
		Price:         price.Round(2),
		StockQuantity: req.StockQuantity,
	}, true
}

func (h *ProductHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	created, err := h.products.Create(r.Context(), p)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid product id")
		return
	}

	p, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	p.ID = id

	if err := h.products.Update(r.Context(), p); err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

// handleUploadImage stores the uploaded file as-is in blob storage and
// records the returned URL on the product.
func (h *ProductHandler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid product id")
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Invalid multipart payload")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "bad_request", "Image file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := h.products.UploadImage(r.Context(), id, file, contentType)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"image_url": url})
}
