package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/product"
)

var (
	ErrMalformedIdentity = errors.New("cart identity must carry a user id or a session token")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
)

// OutOfStockError reports the product and both quantities, so the client
// can render an actionable message.
type OutOfStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

type Service interface {
	Resolve(ctx context.Context, identity Identity) (*Cart, error)
	Get(ctx context.Context, identity Identity) (*View, error)
	AddItem(ctx context.Context, identity Identity, productID uuid.UUID, quantity int) (*View, error)
	UpdateItem(ctx context.Context, identity Identity, lineID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, identity Identity, lineID uuid.UUID) (*View, error)
	Clear(ctx context.Context, identity Identity) (*View, error)
	MergeGuestCart(ctx context.Context, sessionToken string, userID uuid.UUID) error
}

type service struct {
	repo     Repository
	products product.Repository
}

func NewService(repo Repository, products product.Repository) Service {
	return &service{repo: repo, products: products}
}

// Resolve finds the single active cart for the identity, creating one if
// needed. Every touch extends the cart's life by the full TTL.
func (s *service) Resolve(ctx context.Context, identity Identity) (*Cart, error) {
	if !identity.wellFormed() {
		return nil, ErrMalformedIdentity
	}

	existing, err := s.find(ctx, identity)
	if err == nil {
		expiresAt := time.Now().UTC().Add(TTL)
		if err := s.repo.Touch(ctx, existing.ID, expiresAt); err != nil {
			return nil, fmt.Errorf("service: failed to refresh cart expiry: %w", err)
		}
		existing.ExpiresAt = expiresAt
		return existing, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		log.Error().Err(err).Msg("service: failed to look up cart")
		return nil, fmt.Errorf("service: failed to look up cart: %w", err)
	}

	c := &Cart{
		UserID:       identity.UserID(),
		SessionToken: identity.SessionToken(),
		ExpiresAt:    time.Now().UTC().Add(TTL),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		log.Error().Err(err).Msg("service: failed to create cart")
		return nil, fmt.Errorf("service: failed to create cart: %w", err)
	}

	log.Debug().Stringer("cart_id", c.ID).Bool("guest", !identity.IsUser()).Msg("service: cart created")

	return c, nil
}

// find looks up a cart by the identity's own kind only: user carts by
// user id, guest carts by session token.
func (s *service) find(ctx context.Context, identity Identity) (*Cart, error) {
	if identity.IsUser() {
		return s.repo.GetByUserID(ctx, identity.UserID())
	}
	return s.repo.GetBySessionToken(ctx, identity.SessionToken())
}

func (s *service) Get(ctx context.Context, identity Identity) (*View, error) {
	c, err := s.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c.ID)
}

func (s *service) AddItem(ctx context.Context, identity Identity, productID uuid.UUID, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch product for add: %w", err)
	}

	// An existing line means the requested quantity is added on top, and
	// the combined total is what must fit in stock.
	existing, err := s.repo.GetLineByProduct(ctx, c.ID, productID)
	if err != nil && !errors.Is(err, ErrLineNotFound) {
		return nil, fmt.Errorf("service: failed to look up cart line: %w", err)
	}

	combined := quantity
	if existing != nil {
		combined += existing.Quantity
	}

	if combined > p.StockQuantity {
		return nil, &OutOfStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Available:   p.StockQuantity,
			Requested:   combined,
		}
	}

	if existing != nil {
		if err := s.repo.UpdateLineQuantity(ctx, existing.ID, combined); err != nil {
			return nil, fmt.Errorf("service: failed to update cart line quantity: %w", err)
		}
	} else {
		line := &Line{CartID: c.ID, ProductID: productID, Quantity: quantity}
		if err := s.repo.InsertLine(ctx, line); err != nil {
			return nil, fmt.Errorf("service: failed to insert cart line: %w", err)
		}
	}

	return s.view(ctx, c.ID)
}

func (s *service) UpdateItem(ctx context.Context, identity Identity, lineID uuid.UUID, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	line, err := s.ownedLine(ctx, c.ID, lineID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, line.ProductID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch product for update: %w", err)
	}

	if quantity > p.StockQuantity {
		return nil, &OutOfStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Available:   p.StockQuantity,
			Requested:   quantity,
		}
	}

	if err := s.repo.UpdateLineQuantity(ctx, lineID, quantity); err != nil {
		return nil, fmt.Errorf("service: failed to update cart line quantity: %w", err)
	}

	return s.view(ctx, c.ID)
}

func (s *service) RemoveItem(ctx context.Context, identity Identity, lineID uuid.UUID) (*View, error) {
	c, err := s.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownedLine(ctx, c.ID, lineID); err != nil {
		return nil, err
	}

	if err := s.repo.DeleteLine(ctx, lineID); err != nil {
		return nil, fmt.Errorf("service: failed to delete cart line: %w", err)
	}

	return s.view(ctx, c.ID)
}

// ownedLine enforces the ownership check: a line belonging to someone
// else's cart is indistinguishable from a missing one.
func (s *service) ownedLine(ctx context.Context, cartID, lineID uuid.UUID) (*Line, error) {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch cart line: %w", err)
	}
	if line.CartID != cartID {
		return nil, ErrLineNotFound
	}
	return line, nil
}

// Clear deletes the cart and its lines. Clearing a cart that does not
// exist is a no-op returning the empty view.
func (s *service) Clear(ctx context.Context, identity Identity) (*View, error) {
	if !identity.wellFormed() {
		return nil, ErrMalformedIdentity
	}

	c, err := s.find(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return EmptyView(), nil
		}
		return nil, fmt.Errorf("service: failed to look up cart for clear: %w", err)
	}

	if err := s.repo.DeleteCart(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("service: failed to delete cart: %w", err)
	}

	return EmptyView(), nil
}

// MergeGuestCart folds the guest cart identified by sessionToken into the
// user's cart. Quantities for overlapping products are summed. Stock is
// deliberately not validated here: merge reconciles intent, and stock is
// authoritatively checked at checkout. The login call site logs and
// discards any error from this method.
func (s *service) MergeGuestCart(ctx context.Context, sessionToken string, userID uuid.UUID) error {
	if sessionToken == "" || userID == uuid.Nil {
		return nil
	}

	guest, err := s.repo.GetBySessionToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil
		}
		return fmt.Errorf("service: failed to look up guest cart: %w", err)
	}

	lines, err := s.repo.ListLines(ctx, guest.ID)
	if err != nil {
		return fmt.Errorf("service: failed to list guest cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	userCart, err := s.Resolve(ctx, UserIdentity(userID))
	if err != nil {
		return fmt.Errorf("service: failed to resolve user cart for merge: %w", err)
	}

	if err := s.repo.Merge(ctx, guest.ID, userCart.ID); err != nil {
		return fmt.Errorf("service: failed to merge guest cart: %w", err)
	}

	log.Info().
		Stringer("guest_cart_id", guest.ID).
		Stringer("user_cart_id", userCart.ID).
		Int("merged_lines", len(lines)).
		Msg("service: guest cart merged into user cart")

	return nil
}

func (s *service) view(ctx context.Context, cartID uuid.UUID) (*View, error) {
	v, err := s.repo.View(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to build cart view: %w", err)
	}
	return v, nil
}
