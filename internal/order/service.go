package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
)

var (
	ErrCartNotFound            = errors.New("no cart to check out")
	ErrOrderNumberConflict     = errors.New("could not allocate a unique order number")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

const maxOrderNumberAttempts = 3

type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID, address ShippingAddress) (*Order, error)
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status, notes string) error
}

type service struct {
	repo  Repository
	carts cart.Repository
}

func NewService(repo Repository, carts cart.Repository) Service {
	return &service{repo: repo, carts: carts}
}

// Checkout converts the user's cart into an order. The stock validation
// and all the writes happen atomically in the repository; this layer
// resolves the cart, allocates the order number, and retries on the
// statistically rare collision.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, address ShippingAddress) (*Order, error) {
	c, err := s.carts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrCartNotFound) {
			return nil, ErrCartNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to look up cart for checkout")
		return nil, fmt.Errorf("service: failed to look up cart for checkout: %w", err)
	}

	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		number, err := NewOrderNumber(time.Now())
		if err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}

		o, err := s.repo.CreateFromCart(ctx, CheckoutParams{
			CartID:          c.ID,
			UserID:          userID,
			OrderNumber:     number,
			ShippingAddress: address,
		})
		if err != nil {
			if errors.Is(err, ErrOrderNumberTaken) {
				log.Warn().Str("order_number", number).Int("attempt", attempt).Msg("service: order number collision, retrying")
				continue
			}

			var stockErr *InsufficientStockError
			if errors.Is(err, ErrCartEmpty) || errors.As(err, &stockErr) {
				return nil, err
			}

			log.Error().Err(err).Stringer("cart_id", c.ID).Msg("service: checkout failed")
			return nil, fmt.Errorf("service: checkout failed: %w", err)
		}

		log.Info().
			Stringer("order_id", o.ID).
			Str("order_number", o.OrderNumber).
			Stringer("user_id", userID).
			Str("total", o.TotalAmount.StringFixed(2)).
			Msg("service: order created")

		return o, nil
	}

	return nil, ErrOrderNumberConflict
}

// GetForUser enforces ownership: someone else's order looks exactly like
// a missing one.
func (s *service) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}

	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}

	return o, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to list user orders")
		return nil, fmt.Errorf("service: failed to list user orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus applies an admin-driven transition through the state
// machine and appends the matching ledger event.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status, notes string) error {
	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if current.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order already in requested status")
		return nil
	}

	if !allowedTransitions[current.Status][newStatus] {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, newStatus)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, newStatus, notes); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to update order status")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("old_status", current.Status).
		Stringer("new_status", newStatus).
		Msg("service: order status updated")

	return nil
}
