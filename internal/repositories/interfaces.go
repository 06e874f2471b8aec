package repositories

import (
	"context"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Users() UserRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Repository calls made with the
// context handed to fn observe and join the transaction. When fn returns an error every staged write
// is discarded and that same error is returned to the caller.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog products together with their variants.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	// Save replaces the stored aggregate. Inside RunInTx the write is applied on commit.
	Save(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// Delete removes the product. Inside RunInTx the delete is applied on commit.
	Delete(ctx context.Context, productID string) error
}

// OrderListFilter restricts order listings. An empty UserID lists every order.
type OrderListFilter struct {
	UserID     string
	Pagination domain.Pagination
}

// OrderRepository persists orders. Listings are ordered newest first.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// UserRepository loads storefront accounts.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	// FindByIDs returns the users that exist, keyed by id. Missing ids are omitted.
	FindByIDs(ctx context.Context, userIDs []string) (map[string]domain.User, error)
	UpdateRole(ctx context.Context, userID string, role domain.UserRole) (domain.User, error)
}

// HealthRepository checks backing services for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
