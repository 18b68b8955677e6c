package product

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/storage"
)

type Service interface {
	Create(ctx context.Context, p *Product) (*Product, error)
	Update(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	List(ctx context.Context, limit, offset int) ([]Product, error)
	UploadImage(ctx context.Context, id uuid.UUID, body io.Reader, contentType string) (string, error)
}

type service struct {
	repo   Repository
	store  storage.Store
	bucket string
}

func NewService(repo Repository, store storage.Store, bucket string) Service {
	return &service{repo: repo, store: store, bucket: bucket}
}

func (s *service) Create(ctx context.Context, p *Product) (*Product, error) {
	if p.StockQuantity < 0 {
		return nil, errors.New("service: stock quantity cannot be negative")
	}
	if p.Price.IsNegative() {
		return nil, errors.New("service: price cannot be negative")
	}
	if p.Slug == "" {
		p.Slug = slugify(p.Name)
	}

	if _, err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrSlugExists) {
			return nil, ErrSlugExists
		}
		log.Error().Err(err).Msg("service: failed to create product in repository")
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", p.ID).Str("slug", p.Slug).Msg("service: product created")

	return p, nil
}

func (s *service) Update(ctx context.Context, p *Product) error {
	if p.StockQuantity < 0 {
		return errors.New("service: stock quantity cannot be negative")
	}
	if p.Price.IsNegative() {
		return errors.New("service: price cannot be negative")
	}

	err := s.repo.Update(ctx, p)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrSlugExists) {
			return err
		}
		log.Error().Err(err).Stringer("product_id", p.ID).Msg("service: failed to update product")
		return fmt.Errorf("service: failed to update product: %w", err)
	}

	return nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to fetch product")
		return nil, fmt.Errorf("service: failed to fetch product: %w", err)
	}

	return p, nil
}

func (s *service) List(ctx context.Context, limit, offset int) ([]Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	products, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list products")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}

	return products, nil
}

// UploadImage passes the file through to blob storage and records the
// resulting URL on the product. No resizing or format checks.
func (s *service) UploadImage(ctx context.Context, id uuid.UUID, body io.Reader, contentType string) (string, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("service: failed to fetch product for image upload: %w", err)
	}

	path := fmt.Sprintf("products/%s/image", id)

	url, err := s.store.Upload(ctx, s.bucket, path, body, contentType)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to upload product image")
		return "", fmt.Errorf("service: failed to upload product image: %w", err)
	}

	if err := s.repo.SetImageURL(ctx, id, url); err != nil {
		return "", fmt.Errorf("service: failed to store image url: %w", err)
	}

	return url, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	return slug
}
