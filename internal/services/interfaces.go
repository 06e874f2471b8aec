package services

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Product         = domain.Product
	ProductVariant  = domain.ProductVariant
	VariantRef      = domain.VariantRef
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	ShippingAddress = domain.ShippingAddress
	PaymentDetails  = domain.PaymentDetails
	User            = domain.User
	UserSummary     = domain.UserSummary

	SystemHealthReport = domain.SystemHealthReport
)

// OrderService places orders against live stock and manages their lifecycle.
type OrderService interface {
	// PlaceOrder reserves stock for every line item and persists the order in one transaction.
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	ListUserOrders(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error)
	ListAllOrders(ctx context.Context, pager Pagination) (domain.CursorPage[AdminOrder], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// CatalogService manages products and their variant stock.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// UserService exposes account operations used by operators.
type UserService interface {
	PromoteToAdmin(ctx context.Context, email string) (User, error)
}

// SystemService reports service health for liveness and readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PlaceOrderCommand carries a validated storefront checkout request.
type PlaceOrderCommand struct {
	UserID          string
	Items           []PlaceOrderItem
	ShippingAddress ShippingAddress
	TotalAmount     decimal.Decimal
	PaymentID       string
}

// PlaceOrderItem requests Quantity units of the referenced variant.
type PlaceOrderItem struct {
	Ref      VariantRef
	Quantity int
}

// UpdateOrderStatusCommand moves an order to a new status. A nil or blank TrackingNumber keeps the
// stored one.
type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         string
	TrackingNumber *string
	ActorID        string
}

// AdminOrder is an order joined with the summary of the user who placed it. User is nil when the
// account no longer exists.
type AdminOrder struct {
	Order
	User *UserSummary
}

// UpsertProductCommand creates or replaces a catalog product. ProductID is ignored on create.
// Price is required on create; on update a nil price keeps the stored one.
type UpsertProductCommand struct {
	ProductID   string
	Name        string
	Brand       string
	Description string
	Price       *decimal.Decimal
	Variants    []ProductVariant
}
