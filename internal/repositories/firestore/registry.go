package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/vibek01/ECOM-D1/internal/platform/firestore"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

// Registry exposes the Firestore repositories sharing one provider. RunInTx opens a Firestore
// transaction that every repository joins through the context.
type Registry struct {
	provider *pfirestore.Provider
	products *ProductRepository
	orders   *OrderRepository
	users    *UserRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every Firestore repository. Extra readiness checks run next to the Firestore one.
func NewRegistry(provider *pfirestore.Provider, checks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := repositories.NewDependencyHealthRepository(append([]repositories.DependencyCheck{
		{Name: "firestore", Check: provider.Ping},
	}, checks...))
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		products: products,
		orders:   orders,
		users:    users,
		health:   health,
	}, nil
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Users() repositories.UserRepository       { return r.users }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx runs fn inside a single Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
