package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// TTL is how long a cart lives past its last touch.
const TTL = 7 * 24 * time.Hour

// Identity is the discriminated owner of a cart: an authenticated user id
// or an opaque guest session token, never both. The zero Identity is
// malformed and rejected by the resolver, so the "neither" orphan state
// is not constructible from the outside.
type Identity struct {
	userID uuid.UUID
	token  string
}

func UserIdentity(userID uuid.UUID) Identity {
	return Identity{userID: userID}
}

func SessionIdentity(token string) Identity {
	return Identity{token: token}
}

func (i Identity) IsUser() bool {
	return i.userID != uuid.Nil
}

func (i Identity) UserID() uuid.UUID { return i.userID }

func (i Identity) SessionToken() string { return i.token }

func (i Identity) wellFormed() bool {
	return i.userID != uuid.Nil || i.token != ""
}

type Cart struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	SessionToken string    `json:"-" db:"session_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Line struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CartID    uuid.UUID `json:"cart_id" db:"cart_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// View is the denormalized cart returned by every mutation. Prices are
// re-read from the product rows, so subtotals always reflect the live
// price, unlike an order line's frozen price.
type View struct {
	ID        uuid.UUID       `json:"id"`
	Items     []ViewItem      `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

type ViewItem struct {
	LineID      uuid.UUID       `json:"line_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// EmptyView is what clear returns when there is no cart to clear.
func EmptyView() *View {
	return &View{
		Items:     []ViewItem{},
		ItemCount: 0,
		Total:     decimal.Zero,
	}
}
