package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines cursor-based paging inputs for list operations. A zero PageSize means unbounded.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is the catalog aggregate. Variants are owned by the product and persisted with it.
type Product struct {
	ID          string
	Name        string
	Brand       string
	Description string
	Price       decimal.Decimal
	Variants    []ProductVariant
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductVariant is a purchasable size/color combination with its own stock counter.
type ProductVariant struct {
	ID       string
	Size     string
	Color    string
	Stock    int
	ImageURL string
}

// VariantRef names one variant of one product.
type VariantRef struct {
	ProductID string
	VariantID string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is assigned to every newly placed order.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentStatus captures the outcome reported by the payment collaborator.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Order is a placed storefront order.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	Payment         PaymentDetails
	TrackingNumber  *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a snapshot of the purchased variant taken when the order was placed.
type OrderItem struct {
	ProductID string
	VariantID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	Size      string
	Color     string
	ImageURL  string
}

// Ref returns the variant reference of the line item.
func (i OrderItem) Ref() VariantRef {
	return VariantRef{ProductID: i.ProductID, VariantID: i.VariantID}
}

// ShippingAddress is embedded in the order and never changes after placement.
type ShippingAddress struct {
	FullName   string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// PaymentDetails records the charge associated with an order.
type PaymentDetails struct {
	PaymentID     string
	PaymentStatus PaymentStatus
}

// UserRole enumerates storefront account roles.
type UserRole string

const (
	UserRoleUser  UserRole = "USER"
	UserRoleAdmin UserRole = "ADMIN"
)

// User is a storefront account.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      UserRole
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSummary is the public projection of a user joined into admin listings.
type UserSummary struct {
	ID       string
	Username string
	Email    string
}

// Summary projects the user onto its listing summary.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}
