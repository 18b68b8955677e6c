package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrCartEmpty        = errors.New("cart is empty")
	ErrOrderNumberTaken = errors.New("order number already taken")
)

// InsufficientStockError names the offending product and both quantities.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

// CheckoutParams is everything CreateFromCart needs besides the cart
// contents themselves, which it reads under lock.
type CheckoutParams struct {
	CartID          uuid.UUID
	UserID          uuid.UUID
	OrderNumber     string
	ShippingAddress ShippingAddress
}

type Repository interface {
	CreateFromCart(ctx context.Context, params CheckoutParams) (*Order, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status, notes string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// checkoutLine is a cart line joined with its product row, read under
// FOR UPDATE so the stock check and decrement are atomic with respect to
// concurrent checkouts.
type checkoutLine struct {
	productID   uuid.UUID
	productName string
	price       decimal.Decimal
	stock       int
	quantity    int
}

// CreateFromCart converts a cart into an immutable order as one
// transaction: it locks the touched product rows in stable (product id)
// order, validates every line's quantity against stock before any write,
// inserts the order, its line snapshots and the initial pending status
// event, decrements stock, and deletes the cart. Any failure rolls the
// whole thing back.
func (r *postgresRepository) CreateFromCart(ctx context.Context, params CheckoutParams) (o *Order, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin checkout transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("cart_id", params.CartID).Msg("repository: failed to rollback checkout after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("cart_id", params.CartID).Msg("repository: failed to rollback checkout transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				log.Error().Err(commitErr).Stringer("cart_id", params.CartID).Msg("repository: failed to commit checkout transaction")
				o = nil
				err = fmt.Errorf("repository: failed to commit checkout transaction: %w", commitErr)
			}
		}
	}()

	lines, err := r.lockCartLines(ctx, tx, params.CartID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	// Validate everything before writing anything, so a shortfall on any
	// single line leaves no partial order behind.
	for _, l := range lines {
		if l.quantity > l.stock {
			return nil, &InsufficientStockError{
				ProductID:   l.productID,
				ProductName: l.productName,
				Available:   l.stock,
				Requested:   l.quantity,
			}
		}
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.price.Mul(decimal.NewFromInt(int64(l.quantity))))
	}
	total = total.Round(2)

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate order ID: %w", err)
	}

	addressJSON, err := json.Marshal(params.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to serialize shipping address: %w", err)
	}

	now := time.Now().UTC()

	insertOrder := `
		INSERT INTO orders (id, user_id, order_number, status, total_amount, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, insertOrder,
		orderID, params.UserID, params.OrderNumber, string(StatusPending), total, addressJSON, now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrOrderNumberTaken
		}
		return nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	result := &Order{
		ID:              orderID,
		UserID:          params.UserID,
		OrderNumber:     params.OrderNumber,
		Status:          StatusPending,
		TotalAmount:     total,
		ShippingAddress: params.ShippingAddress,
		Lines:           make([]Line, 0, len(lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	insertLine := `
		INSERT INTO order_lines (id, order_id, product_id, product_name, quantity, price_per_unit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	decrementStock := `UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = $2 WHERE id = $3`

	for _, l := range lines {
		var lineID uuid.UUID
		lineID, err = uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("repository: failed to generate order line ID: %w", err)
		}

		_, err = tx.Exec(ctx, insertLine, lineID, orderID, l.productID, l.productName, l.quantity, l.price, now)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to insert order line for product %s: %w", l.productID, err)
		}

		_, err = tx.Exec(ctx, decrementStock, l.quantity, now, l.productID)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to decrement stock for product %s: %w", l.productID, err)
		}

		result.Lines = append(result.Lines, Line{
			ID:           lineID,
			OrderID:      orderID,
			ProductID:    l.productID,
			ProductName:  l.productName,
			Quantity:     l.quantity,
			PricePerUnit: l.price,
			CreatedAt:    now,
		})
	}

	event, err := r.insertStatusEvent(ctx, tx, orderID, StatusPending, "Order created", now)
	if err != nil {
		return nil, err
	}
	result.StatusHistory = []StatusEvent{*event}

	// The cart must not reappear with stale items; delete the row, its
	// lines cascade.
	if _, err = tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, params.CartID); err != nil {
		return nil, fmt.Errorf("repository: failed to delete cart %s: %w", params.CartID, err)
	}

	return result, nil
}

func (r *postgresRepository) lockCartLines(ctx context.Context, tx pgx.Tx, cartID uuid.UUID) ([]checkoutLine, error) {
	query := `
		SELECT cl.product_id, p.name, p.price, p.stock_quantity, cl.quantity
		FROM cart_lines cl
		JOIN products p ON p.id = cl.product_id
		WHERE cl.cart_id = $1
		ORDER BY cl.product_id
		FOR UPDATE OF p
	`

	rows, err := tx.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to lock cart lines for cart %s: %w", cartID, err)
	}
	defer rows.Close()

	lines := make([]checkoutLine, 0)
	for rows.Next() {
		var l checkoutLine
		if err := rows.Scan(&l.productID, &l.productName, &l.price, &l.stock, &l.quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan checkout line for cart %s: %w", cartID, err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating checkout lines for cart %s: %w", cartID, err)
	}

	return lines, nil
}

func (r *postgresRepository) insertStatusEvent(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status Status, notes string, at time.Time) (*StatusEvent, error) {
	eventID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate status event ID: %w", err)
	}

	query := `
		INSERT INTO order_status_events (id, order_id, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, query, eventID, orderID, string(status), notes, at); err != nil {
		return nil, fmt.Errorf("repository: failed to insert status event for order %s: %w", orderID, err)
	}

	return &StatusEvent{
		ID:        eventID,
		OrderID:   orderID,
		Status:    status,
		Notes:     notes,
		CreatedAt: at,
	}, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `
		SELECT id, user_id, order_number, status, total_amount, shipping_address, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o Order
	var addressJSON []byte
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.TotalAmount, &addressJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("repository: failed to decode shipping address for order %s: %w", orderID, err)
	}

	o.Lines, err = r.linesByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	o.StatusHistory, err = r.statusHistory(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *postgresRepository) linesByOrderID(ctx context.Context, orderID uuid.UUID) ([]Line, error) {
	query := `
		SELECT id, order_id, product_id, product_name, quantity, price_per_unit, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY product_id
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order lines for order %s: %w", orderID, err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.PricePerUnit, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order line for order %s: %w", orderID, err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order lines for order %s: %w", orderID, err)
	}

	return lines, nil
}

// statusHistory reads the full append-only ledger, oldest first.
func (r *postgresRepository) statusHistory(ctx context.Context, orderID uuid.UUID) ([]StatusEvent, error) {
	query := `
		SELECT id, order_id, status, notes, created_at
		FROM order_status_events
		WHERE order_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query status events for order %s: %w", orderID, err)
	}
	defer rows.Close()

	events := make([]StatusEvent, 0)
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan status event for order %s: %w", orderID, err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating status events for order %s: %w", orderID, err)
	}

	return events, nil
}

func (r *postgresRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `
		SELECT id, user_id, order_number, status, total_amount, shipping_address, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		var addressJSON []byte
		if err := rows.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.TotalAmount, &addressJSON, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for user %s: %w", userID, err)
		}
		if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("repository: failed to decode shipping address for order %s: %w", o.ID, err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for user %s: %w", userID, err)
	}

	for i := range orders {
		orders[i].Lines, err = r.linesByOrderID(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return orders, nil
}

// UpdateStatus writes the new status and appends the matching ledger
// event in one transaction.
func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status, notes string) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin status update transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback status update")
			}
		}
	}()

	now := time.Now().UTC()

	cmdTag, err := tx.Exec(ctx, `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		string(newStatus), now, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		err = ErrOrderNotFound
		return err
	}

	if _, err = r.insertStatusEvent(ctx, tx, orderID, newStatus, notes, now); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit status update transaction: %w", err)
	}

	return nil
}
