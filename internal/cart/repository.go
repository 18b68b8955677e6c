package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrLineNotFound = errors.New("cart line not found")
)

type Repository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Cart, error)
	GetBySessionToken(ctx context.Context, token string) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error
	DeleteCart(ctx context.Context, cartID uuid.UUID) error

	GetLine(ctx context.Context, lineID uuid.UUID) (*Line, error)
	GetLineByProduct(ctx context.Context, cartID, productID uuid.UUID) (*Line, error)
	ListLines(ctx context.Context, cartID uuid.UUID) ([]Line, error)
	InsertLine(ctx context.Context, line *Line) error
	UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, quantity int) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error

	View(ctx context.Context, cartID uuid.UUID) (*View, error)
	Merge(ctx context.Context, guestCartID, userCartID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const cartColumns = "id, user_id, session_token, expires_at, created_at, updated_at"

func (r *postgresRepository) scanCart(row pgx.Row) (*Cart, error) {
	var c Cart
	var userID *uuid.UUID
	var token *string

	err := row.Scan(&c.ID, &userID, &token, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to scan cart: %w", err)
	}

	if userID != nil {
		c.UserID = *userID
	}
	if token != nil {
		c.SessionToken = *token
	}

	return &c, nil
}

func (r *postgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1`
	return r.scanCart(r.db.QueryRow(ctx, query, userID))
}

func (r *postgresRepository) GetBySessionToken(ctx context.Context, token string) (*Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE session_token = $1`
	return r.scanCart(r.db.QueryRow(ctx, query, token))
}

func (r *postgresRepository) Create(ctx context.Context, c *Cart) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate cart ID: %w", err)
	}

	now := time.Now().UTC()

	var userID *uuid.UUID
	var token *string
	if c.UserID != uuid.Nil {
		userID = &c.UserID
	}
	if c.SessionToken != "" {
		token = &c.SessionToken
	}

	query := `
		INSERT INTO carts (id, user_id, session_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Exec(ctx, query, id, userID, token, c.ExpiresAt, now, now)
	if err != nil {
		return fmt.Errorf("repository: failed to insert cart: %w", err)
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now

	return nil
}

func (r *postgresRepository) Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	query := `UPDATE carts SET expires_at = $1, updated_at = $2 WHERE id = $3`

	cmdTag, err := r.db.Exec(ctx, query, expiresAt, time.Now().UTC(), cartID)
	if err != nil {
		return fmt.Errorf("repository: failed to touch cart %s: %w", cartID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartNotFound
	}

	return nil
}

// DeleteCart removes the cart row; its lines go with it via cascade.
func (r *postgresRepository) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart %s: %w", cartID, err)
	}
	return nil
}

const lineColumns = "id, cart_id, product_id, quantity, created_at, updated_at"

func (r *postgresRepository) scanLine(row pgx.Row) (*Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("repository: failed to scan cart line: %w", err)
	}
	return &l, nil
}

func (r *postgresRepository) GetLine(ctx context.Context, lineID uuid.UUID) (*Line, error) {
	query := `SELECT ` + lineColumns + ` FROM cart_lines WHERE id = $1`
	return r.scanLine(r.db.QueryRow(ctx, query, lineID))
}

func (r *postgresRepository) GetLineByProduct(ctx context.Context, cartID, productID uuid.UUID) (*Line, error) {
	query := `SELECT ` + lineColumns + ` FROM cart_lines WHERE cart_id = $1 AND product_id = $2`
	return r.scanLine(r.db.QueryRow(ctx, query, cartID, productID))
}

func (r *postgresRepository) ListLines(ctx context.Context, cartID uuid.UUID) ([]Line, error) {
	query := `SELECT ` + lineColumns + ` FROM cart_lines WHERE cart_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart lines for cart %s: %w", cartID, err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart line for cart %s: %w", cartID, err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart lines for cart %s: %w", cartID, err)
	}

	return lines, nil
}

func (r *postgresRepository) InsertLine(ctx context.Context, line *Line) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate cart line ID: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO cart_lines (id, cart_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Exec(ctx, query, id, line.CartID, line.ProductID, line.Quantity, now, now)
	if err != nil {
		return fmt.Errorf("repository: failed to insert cart line: %w", err)
	}

	line.ID = id
	line.CreatedAt = now
	line.UpdatedAt = now

	return nil
}

func (r *postgresRepository) UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, quantity int) error {
	query := `UPDATE cart_lines SET quantity = $1, updated_at = $2 WHERE id = $3`

	cmdTag, err := r.db.Exec(ctx, query, quantity, time.Now().UTC(), lineID)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart line %s: %w", lineID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLineNotFound
	}

	return nil
}

func (r *postgresRepository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1`, lineID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart line %s: %w", lineID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLineNotFound
	}

	return nil
}

// View joins the cart's lines with the current product rows, so names and
// prices are live, and computes subtotals and the grand total.
func (r *postgresRepository) View(ctx context.Context, cartID uuid.UUID) (*View, error) {
	query := `
		SELECT cl.id, cl.product_id, p.name, p.price, p.image_url, cl.quantity
		FROM cart_lines cl
		JOIN products p ON p.id = cl.product_id
		WHERE cl.cart_id = $1
		ORDER BY cl.created_at
	`

	rows, err := r.db.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart view for cart %s: %w", cartID, err)
	}
	defer rows.Close()

	view := &View{
		ID:    cartID,
		Items: make([]ViewItem, 0),
		Total: decimal.Zero,
	}

	for rows.Next() {
		var item ViewItem
		if err := rows.Scan(&item.LineID, &item.ProductID, &item.ProductName, &item.Price, &item.ImageURL, &item.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart view item for cart %s: %w", cartID, err)
		}

		item.Subtotal = item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		view.ItemCount += item.Quantity
		view.Total = view.Total.Add(item.Subtotal)
		view.Items = append(view.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart view for cart %s: %w", cartID, err)
	}

	view.Total = view.Total.Round(2)

	return view, nil
}

// Merge folds the guest cart's lines into the user cart and deletes the
// guest cart, all in one transaction. Overlapping products sum their
// quantities. Stock is not consulted here.
func (r *postgresRepository) Merge(ctx context.Context, guestCartID, userCartID uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin merge transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("guest_cart_id", guestCartID).Msg("repository: failed to rollback merge transaction")
			}
		}
	}()

	rows, err := tx.Query(ctx, `SELECT product_id, quantity FROM cart_lines WHERE cart_id = $1`, guestCartID)
	if err != nil {
		return fmt.Errorf("repository: failed to query guest cart lines: %w", err)
	}

	type guestLine struct {
		productID uuid.UUID
		quantity  int
	}
	guestLines := make([]guestLine, 0)
	for rows.Next() {
		var gl guestLine
		if err = rows.Scan(&gl.productID, &gl.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("repository: failed to scan guest cart line: %w", err)
		}
		guestLines = append(guestLines, gl)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating guest cart lines: %w", err)
	}

	now := time.Now().UTC()

	upsert := `
		INSERT INTO cart_lines (id, cart_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`
	for _, gl := range guestLines {
		var lineID uuid.UUID
		lineID, err = uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate cart line ID: %w", err)
		}

		if _, err = tx.Exec(ctx, upsert, lineID, userCartID, gl.productID, gl.quantity, now); err != nil {
			return fmt.Errorf("repository: failed to merge line for product %s: %w", gl.productID, err)
		}
	}

	if _, err = tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, guestCartID); err != nil {
		return fmt.Errorf("repository: failed to delete guest cart %s: %w", guestCartID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit merge transaction: %w", err)
	}

	return nil
}
