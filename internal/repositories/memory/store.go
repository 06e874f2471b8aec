// Package memory provides an in-process repository registry with serializable transactions.
// It backs local development (API_STORE=memory) and service-level tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/platform/pagination"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

// Error implements repositories.RepositoryError.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %s", e.op, e.msg) }
func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, id string) error {
	return &Error{op: op, msg: fmt.Sprintf("%s not found", id), notFound: true}
}

func alreadyExists(op, id string) error {
	return &Error{op: op, msg: fmt.Sprintf("%s already exists", id), conflict: true}
}

// Store keeps products, orders and users in maps. Transactions are serialised by txMu and hold it
// for their whole duration, so concurrent placements observe each other's committed stock.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	users    map[string]domain.User
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		users:    make(map[string]domain.User),
	}
}

type txState struct {
	products map[string]domain.Product
	deleted  map[string]bool
	orders   map[string]domain.Order
	created  map[string]bool
	users    map[string]domain.User
}

type txKey struct{}

func txFromContext(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txKey{}).(*txState)
	return state, ok && state != nil
}

// RunInTx stages every write made through ctx and applies them atomically when fn returns nil.
// On error the staged writes are dropped and fn's error is returned unchanged.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: transaction function is nil")
	}
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	state := &txState{
		products: make(map[string]domain.Product),
		deleted:  make(map[string]bool),
		orders:   make(map[string]domain.Order),
		created:  make(map[string]bool),
		users:    make(map[string]domain.User),
	}
	if err := fn(context.WithValue(ctx, txKey{}, state)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range state.deleted {
		delete(s.products, id)
	}
	for id, product := range state.products {
		s.products[id] = product.Clone()
	}
	for id, order := range state.orders {
		s.orders[id] = cloneOrder(order)
	}
	for id, user := range state.users {
		s.users[id] = user
	}
	return nil
}

// autoTx runs a single write as its own transaction unless ctx already carries one.
func (s *Store) autoTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTx(ctx, fn)
}

func (s *Store) Products() repositories.ProductRepository { return productRepository{s} }
func (s *Store) Orders() repositories.OrderRepository     { return orderRepository{s} }
func (s *Store) Users() repositories.UserRepository       { return userRepository{s} }

// Health reports the store as always ready.
func (s *Store) Health() repositories.HealthRepository {
	repo, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "memory", Check: func(context.Context) error { return nil }},
	})
	return repo
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// StockOf returns the committed stock of a variant, mainly for assertions in tests.
func (s *Store) StockOf(productID, variantID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[productID]
	if !ok {
		return 0, false
	}
	idx, ok := product.VariantIndex(variantID)
	if !ok {
		return 0, false
	}
	return product.Variants[idx].Stock, true
}

// OrderCount returns the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// PutUser stores a user directly, bypassing validation.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

type productRepository struct{ s *Store }

func (r productRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.s.autoTx(ctx, func(ctx context.Context) error {
		if _, err := r.FindByID(ctx, product.ID); err == nil {
			return alreadyExists("products.insert", product.ID)
		}
		state, _ := txFromContext(ctx)
		delete(state.deleted, product.ID)
		state.products[product.ID] = product.Clone()
		return nil
	})
}

func (r productRepository) Save(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("memory: product id is required")
	}
	return r.s.autoTx(ctx, func(ctx context.Context) error {
		state, _ := txFromContext(ctx)
		delete(state.deleted, product.ID)
		state.products[product.ID] = product.Clone()
		return nil
	})
}

func (r productRepository) Delete(ctx context.Context, productID string) error {
	return r.s.autoTx(ctx, func(ctx context.Context) error {
		if _, err := r.FindByID(ctx, productID); err != nil {
			return notFound("products.delete", productID)
		}
		state, _ := txFromContext(ctx)
		delete(state.products, productID)
		state.deleted[productID] = true
		return nil
	})
}

func (r productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if state, ok := txFromContext(ctx); ok {
		if state.deleted[productID] {
			return domain.Product{}, notFound("products.get", productID)
		}
		if product, staged := state.products[productID]; staged {
			return product.Clone(), nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.get", productID)
	}
	return product.Clone(), nil
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.s.autoTx(ctx, func(ctx context.Context) error {
		state, _ := txFromContext(ctx)
		if _, err := r.FindByID(ctx, order.ID); err == nil || state.created[order.ID] {
			return alreadyExists("orders.create", order.ID)
		}
		state.orders[order.ID] = cloneOrder(order)
		state.created[order.ID] = true
		return nil
	})
}

func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.s.autoTx(ctx, func(ctx context.Context) error {
		state, _ := txFromContext(ctx)
		state.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if state, ok := txFromContext(ctx); ok {
		if order, staged := state.orders[orderID]; staged {
			return cloneOrder(order), nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.RLock()
	orders := make([]domain.Order, 0, len(r.s.orders))
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	r.s.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})

	offset := 0
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		if len(cursor.StartAt) != 1 {
			return domain.CursorPage[domain.Order]{}, pagination.ErrInvalidPageToken
		}
		value, ok := cursor.StartAt[0].(float64)
		if !ok || value < 0 {
			return domain.CursorPage[domain.Order]{}, pagination.ErrInvalidPageToken
		}
		offset = int(value)
	}
	if offset > len(orders) {
		offset = len(orders)
	}
	orders = orders[offset:]

	page := domain.CursorPage[domain.Order]{Items: orders}
	if size := filter.Pagination.PageSize; size > 0 && len(orders) > size {
		page.Items = orders[:size]
		next, err := pagination.EncodeToken(pagination.Cursor{StartAt: []any{offset + size}})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = next
	}
	return page, nil
}

type userRepository struct{ s *Store }

func (r userRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if state, ok := txFromContext(ctx); ok {
		if user, staged := state.users[userID]; staged {
			return user, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[userID]
	if !ok {
		return domain.User{}, notFound("users.get", userID)
	}
	return user, nil
}

func (r userRepository) FindByEmail(_ context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, notFound("users.find_by_email", email)
}

func (r userRepository) FindByIDs(_ context.Context, userIDs []string) (map[string]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	users := make(map[string]domain.User, len(userIDs))
	for _, id := range userIDs {
		if user, ok := r.s.users[id]; ok {
			users[id] = user
		}
	}
	return users, nil
}

func (r userRepository) UpdateRole(ctx context.Context, userID string, role domain.UserRole) (domain.User, error) {
	var updated domain.User
	err := r.s.autoTx(ctx, func(ctx context.Context) error {
		user, err := r.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		user.Role = role
		user.UpdatedAt = time.Now().UTC()
		state, _ := txFromContext(ctx)
		state.users[userID] = user
		updated = user
		return nil
	})
	return updated, err
}

func cloneOrder(order domain.Order) domain.Order {
	clone := order
	if order.Items != nil {
		clone.Items = append([]domain.OrderItem(nil), order.Items...)
	}
	if order.TrackingNumber != nil {
		tracking := *order.TrackingNumber
		clone.TrackingNumber = &tracking
	}
	return clone
}
