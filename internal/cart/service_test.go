package cart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/product"
)

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) GetBySessionToken(ctx context.Context, token string) (*cart.Cart, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) Create(ctx context.Context, c *cart.Cart) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCartRepository) Touch(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error {
	args := m.Called(ctx, cartID, expiresAt)
	return args.Error(0)
}

func (m *MockCartRepository) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

func (m *MockCartRepository) GetLine(ctx context.Context, lineID uuid.UUID) (*cart.Line, error) {
	args := m.Called(ctx, lineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Line), args.Error(1)
}

func (m *MockCartRepository) GetLineByProduct(ctx context.Context, cartID, productID uuid.UUID) (*cart.Line, error) {
	args := m.Called(ctx, cartID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Line), args.Error(1)
}

func (m *MockCartRepository) ListLines(ctx context.Context, cartID uuid.UUID) ([]cart.Line, error) {
	args := m.Called(ctx, cartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cart.Line), args.Error(1)
}

func (m *MockCartRepository) InsertLine(ctx context.Context, line *cart.Line) error {
	args := m.Called(ctx, line)
	return args.Error(0)
}

func (m *MockCartRepository) UpdateLineQuantity(ctx context.Context, lineID uuid.UUID, quantity int) error {
	args := m.Called(ctx, lineID, quantity)
	return args.Error(0)
}

func (m *MockCartRepository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	args := m.Called(ctx, lineID)
	return args.Error(0)
}

func (m *MockCartRepository) View(ctx context.Context, cartID uuid.UUID) (*cart.View, error) {
	args := m.Called(ctx, cartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.View), args.Error(1)
}

func (m *MockCartRepository) Merge(ctx context.Context, guestCartID, userCartID uuid.UUID) error {
	args := m.Called(ctx, guestCartID, userCartID)
	return args.Error(0)
}

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, p *product.Product) (uuid.UUID, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockProductRepository) Update(ctx context.Context, p *product.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

func (m *MockProductRepository) List(ctx context.Context, limit, offset int) ([]product.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.Product), args.Error(1)
}

func (m *MockProductRepository) SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	args := m.Called(ctx, id, imageURL)
	return args.Error(0)
}

func newTestCart(userID uuid.UUID, token string) *cart.Cart {
	return &cart.Cart{
		ID:           uuid.Must(uuid.NewV4()),
		UserID:       userID,
		SessionToken: token,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newTestProduct(name string, price string, stock int) *product.Product {
	return &product.Product{
		ID:            uuid.Must(uuid.NewV4()),
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}
}

func TestCartService_Resolve_CreatesWhenMissing(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	userID := uuid.Must(uuid.NewV4())

	cartRepo.On("GetByUserID", mock.Anything, userID).
		Return(nil, cart.ErrCartNotFound).
		Once()
	cartRepo.On("Create", mock.Anything, mock.AnythingOfType("*cart.Cart")).
		Run(func(args mock.Arguments) {
			c := args.Get(1).(*cart.Cart)
			require.Equal(t, userID, c.UserID)
			require.Empty(t, c.SessionToken)
			require.WithinDuration(t, time.Now().Add(cart.TTL), c.ExpiresAt, time.Minute)
			c.ID = uuid.Must(uuid.NewV4())
		}).
		Return(nil).
		Once()

	c, err := svc.Resolve(context.Background(), cart.UserIdentity(userID))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, c.ID)
	cartRepo.AssertExpectations(t)
}

func TestCartService_Resolve_TouchesExisting(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	existing := newTestCart(uuid.Nil, "token-abc")

	cartRepo.On("GetBySessionToken", mock.Anything, "token-abc").
		Return(existing, nil).
		Once()
	cartRepo.On("Touch", mock.Anything, existing.ID, mock.AnythingOfType("time.Time")).
		Return(nil).
		Once()

	c, err := svc.Resolve(context.Background(), cart.SessionIdentity("token-abc"))
	require.NoError(t, err)
	require.Equal(t, existing.ID, c.ID)
	require.WithinDuration(t, time.Now().Add(cart.TTL), c.ExpiresAt, time.Minute)
	cartRepo.AssertExpectations(t)
	cartRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCartService_Resolve_MalformedIdentity(t *testing.T) {
	svc := cart.NewService(new(MockCartRepository), new(MockProductRepository))

	_, err := svc.Resolve(context.Background(), cart.Identity{})
	require.ErrorIs(t, err, cart.ErrMalformedIdentity)
}

func TestCartService_AddItem_NewLine(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	c := newTestCart(uuid.Nil, "tok")
	p := newTestProduct("Widget", "10.00", 5)

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(c, nil).Once()
	cartRepo.On("Touch", mock.Anything, c.ID, mock.Anything).Return(nil).Once()
	productRepo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	cartRepo.On("GetLineByProduct", mock.Anything, c.ID, p.ID).Return(nil, cart.ErrLineNotFound).Once()
	cartRepo.On("InsertLine", mock.Anything, mock.MatchedBy(func(l *cart.Line) bool {
		return l.CartID == c.ID && l.ProductID == p.ID && l.Quantity == 2
	})).Return(nil).Once()
	cartRepo.On("View", mock.Anything, c.ID).Return(&cart.View{
		ID:        c.ID,
		Items:     []cart.ViewItem{{ProductID: p.ID, Quantity: 2, Subtotal: decimal.RequireFromString("20.00")}},
		ItemCount: 2,
		Total:     decimal.RequireFromString("20.00"),
	}, nil).Once()

	view, err := svc.AddItem(context.Background(), cart.SessionIdentity("tok"), p.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 2, view.ItemCount)
	require.True(t, view.Total.Equal(decimal.RequireFromString("20.00")))
	cartRepo.AssertExpectations(t)
}

func TestCartService_AddItem_SumsWithExistingLine(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	c := newTestCart(uuid.Nil, "tok")
	p := newTestProduct("Widget", "10.00", 5)
	existing := &cart.Line{ID: uuid.Must(uuid.NewV4()), CartID: c.ID, ProductID: p.ID, Quantity: 2}

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(c, nil).Once()
	cartRepo.On("Touch", mock.Anything, c.ID, mock.Anything).Return(nil).Once()
	productRepo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	cartRepo.On("GetLineByProduct", mock.Anything, c.ID, p.ID).Return(existing, nil).Once()
	// 2 already in the cart + 3 requested = 5, fits stock exactly
	cartRepo.On("UpdateLineQuantity", mock.Anything, existing.ID, 5).Return(nil).Once()
	cartRepo.On("View", mock.Anything, c.ID).Return(cart.EmptyView(), nil).Once()

	_, err := svc.AddItem(context.Background(), cart.SessionIdentity("tok"), p.ID, 3)
	require.NoError(t, err)
	cartRepo.AssertExpectations(t)
	cartRepo.AssertNotCalled(t, "InsertLine", mock.Anything, mock.Anything)
}

func TestCartService_AddItem_CombinedQuantityExceedsStock(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	c := newTestCart(uuid.Nil, "tok")
	p := newTestProduct("Widget", "10.00", 4)
	existing := &cart.Line{ID: uuid.Must(uuid.NewV4()), CartID: c.ID, ProductID: p.ID, Quantity: 2}

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(c, nil).Once()
	cartRepo.On("Touch", mock.Anything, c.ID, mock.Anything).Return(nil).Once()
	productRepo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	cartRepo.On("GetLineByProduct", mock.Anything, c.ID, p.ID).Return(existing, nil).Once()

	_, err := svc.AddItem(context.Background(), cart.SessionIdentity("tok"), p.ID, 3)

	var stockErr *cart.OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, p.ID, stockErr.ProductID)
	require.Equal(t, "Widget", stockErr.ProductName)
	require.Equal(t, 4, stockErr.Available)
	require.Equal(t, 5, stockErr.Requested)

	// the cart must be left unchanged
	cartRepo.AssertNotCalled(t, "InsertLine", mock.Anything, mock.Anything)
	cartRepo.AssertNotCalled(t, "UpdateLineQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestCartService_AddItem_InvalidQuantity(t *testing.T) {
	svc := cart.NewService(new(MockCartRepository), new(MockProductRepository))

	_, err := svc.AddItem(context.Background(), cart.SessionIdentity("tok"), uuid.Must(uuid.NewV4()), 0)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
}

func TestCartService_UpdateItem_ForeignLineIsNotFound(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	c := newTestCart(uuid.Nil, "tok")
	foreignLine := &cart.Line{
		ID:       uuid.Must(uuid.NewV4()),
		CartID:   uuid.Must(uuid.NewV4()), // someone else's cart
		Quantity: 1,
	}

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(c, nil).Once()
	cartRepo.On("Touch", mock.Anything, c.ID, mock.Anything).Return(nil).Once()
	cartRepo.On("GetLine", mock.Anything, foreignLine.ID).Return(foreignLine, nil).Once()

	_, err := svc.UpdateItem(context.Background(), cart.SessionIdentity("tok"), foreignLine.ID, 2)
	require.ErrorIs(t, err, cart.ErrLineNotFound)
	cartRepo.AssertNotCalled(t, "UpdateLineQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestCartService_UpdateItem_ExceedsStock(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	c := newTestCart(uuid.Nil, "tok")
	p := newTestProduct("Widget", "10.00", 3)
	line := &cart.Line{ID: uuid.Must(uuid.NewV4()), CartID: c.ID, ProductID: p.ID, Quantity: 1}

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(c, nil).Once()
	cartRepo.On("Touch", mock.Anything, c.ID, mock.Anything).Return(nil).Once()
	cartRepo.On("GetLine", mock.Anything, line.ID).Return(line, nil).Once()
	productRepo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()

	_, err := svc.UpdateItem(context.Background(), cart.SessionIdentity("tok"), line.ID, 4)

	var stockErr *cart.OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 3, stockErr.Available)
	require.Equal(t, 4, stockErr.Requested)
}

func TestCartService_Clear_AbsentCartIsIdempotent(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").
		Return(nil, cart.ErrCartNotFound).
		Twice()

	for i := 0; i < 2; i++ {
		view, err := svc.Clear(context.Background(), cart.SessionIdentity("tok"))
		require.NoError(t, err)
		require.Empty(t, view.Items)
		require.Zero(t, view.ItemCount)
		require.True(t, view.Total.IsZero())
	}

	cartRepo.AssertNotCalled(t, "DeleteCart", mock.Anything, mock.Anything)
}

func TestCartService_Clear_DeletesExistingCart(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	c := newTestCart(uuid.Nil, "tok")

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(c, nil).Once()
	cartRepo.On("DeleteCart", mock.Anything, c.ID).Return(nil).Once()

	view, err := svc.Clear(context.Background(), cart.SessionIdentity("tok"))
	require.NoError(t, err)
	require.Empty(t, view.Items)
	cartRepo.AssertExpectations(t)
}

func TestCartService_MergeGuestCart_NoGuestCartSkips(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").
		Return(nil, cart.ErrCartNotFound).
		Once()

	err := svc.MergeGuestCart(context.Background(), "tok", uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	cartRepo.AssertNotCalled(t, "Merge", mock.Anything, mock.Anything, mock.Anything)
}

func TestCartService_MergeGuestCart_EmptyGuestCartSkips(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	guest := newTestCart(uuid.Nil, "tok")

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(guest, nil).Once()
	cartRepo.On("ListLines", mock.Anything, guest.ID).Return([]cart.Line{}, nil).Once()

	err := svc.MergeGuestCart(context.Background(), "tok", uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	cartRepo.AssertNotCalled(t, "Merge", mock.Anything, mock.Anything, mock.Anything)
}

func TestCartService_MergeGuestCart_MergesIntoUserCart(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	userID := uuid.Must(uuid.NewV4())
	guest := newTestCart(uuid.Nil, "tok")
	userCart := newTestCart(userID, "")
	guestLines := []cart.Line{
		{ID: uuid.Must(uuid.NewV4()), CartID: guest.ID, ProductID: uuid.Must(uuid.NewV4()), Quantity: 3},
	}

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(guest, nil).Once()
	cartRepo.On("ListLines", mock.Anything, guest.ID).Return(guestLines, nil).Once()
	cartRepo.On("GetByUserID", mock.Anything, userID).Return(userCart, nil).Once()
	cartRepo.On("Touch", mock.Anything, userCart.ID, mock.Anything).Return(nil).Once()
	cartRepo.On("Merge", mock.Anything, guest.ID, userCart.ID).Return(nil).Once()

	err := svc.MergeGuestCart(context.Background(), "tok", userID)
	require.NoError(t, err)
	cartRepo.AssertExpectations(t)
}

func TestCartService_MergeGuestCart_CreatesUserCartWhenMissing(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	userID := uuid.Must(uuid.NewV4())
	guest := newTestCart(uuid.Nil, "tok")
	guestLines := []cart.Line{
		{ID: uuid.Must(uuid.NewV4()), CartID: guest.ID, ProductID: uuid.Must(uuid.NewV4()), Quantity: 1},
	}

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").Return(guest, nil).Once()
	cartRepo.On("ListLines", mock.Anything, guest.ID).Return(guestLines, nil).Once()
	cartRepo.On("GetByUserID", mock.Anything, userID).Return(nil, cart.ErrCartNotFound).Once()
	cartRepo.On("Create", mock.Anything, mock.AnythingOfType("*cart.Cart")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*cart.Cart).ID = uuid.Must(uuid.NewV4())
		}).
		Return(nil).
		Once()
	cartRepo.On("Merge", mock.Anything, guest.ID, mock.AnythingOfType("uuid.UUID")).Return(nil).Once()

	err := svc.MergeGuestCart(context.Background(), "tok", userID)
	require.NoError(t, err)
	cartRepo.AssertExpectations(t)
}

func TestCartService_MergeGuestCart_RepositoryErrorSurfaces(t *testing.T) {
	cartRepo := new(MockCartRepository)
	productRepo := new(MockProductRepository)
	svc := cart.NewService(cartRepo, productRepo)

	cartRepo.On("GetBySessionToken", mock.Anything, "tok").
		Return(nil, errors.New("connection reset")).
		Once()

	// the error surfaces here; the login call site is the one that drops it
	err := svc.MergeGuestCart(context.Background(), "tok", uuid.Must(uuid.NewV4()))
	require.Error(t, err)
}
