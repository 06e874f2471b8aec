package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	pfirestore "github.com/vibek01/ECOM-D1/internal/platform/firestore"
	"github.com/vibek01/ECOM-D1/internal/platform/pagination"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in the top-level orders collection.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert creates the order document. Inside a transaction the create is staged until commit.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, order.ID, fromDomainOrder(order))
}

// Update replaces the stored order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Set(ctx, order.ID, fromDomainOrder(order))
}

// FindByID loads an order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// List returns orders newest first, optionally restricted to one user.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		createdAt, id, err := decodeOrderToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: %w", err)
		}
		startAfter = []any{createdAt, id}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		if limit > 0 {
			q = q.Limit(limit + 1)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	var nextToken string
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken, err = encodeOrderToken(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		items = append(items, order)
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

func encodeOrderToken(createdAt time.Time, id string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), id},
	})
}

func decodeOrderToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok || id == "" {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return createdAt, id, nil
}

type orderDocument struct {
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	ShippingAddress shippingAddressDoc  `firestore:"shippingAddress"`
	TotalAmount     string              `firestore:"totalAmount"`
	Status          string              `firestore:"status"`
	PaymentDetails  paymentDetailsDoc   `firestore:"paymentDetails"`
	TrackingNumber  *string             `firestore:"trackingNumber"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	VariantID string `firestore:"variantId"`
	Name      string `firestore:"name"`
	Price     string `firestore:"price"`
	Quantity  int64  `firestore:"quantity"`
	Size      string `firestore:"size"`
	Color     string `firestore:"color"`
	ImageURL  string `firestore:"imageUrl"`
}

type shippingAddressDoc struct {
	FullName   string `firestore:"fullName"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type paymentDetailsDoc struct {
	PaymentID     string `firestore:"paymentId"`
	PaymentStatus string `firestore:"paymentStatus"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID: order.UserID,
		Items:  make([]orderItemDocument, 0, len(order.Items)),
		ShippingAddress: shippingAddressDoc{
			FullName:   order.ShippingAddress.FullName,
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		TotalAmount: order.TotalAmount.String(),
		Status:      string(order.Status),
		PaymentDetails: paymentDetailsDoc{
			PaymentID:     order.Payment.PaymentID,
			PaymentStatus: string(order.Payment.PaymentStatus),
		},
		TrackingNumber: order.TrackingNumber,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Price:     item.Price.String(),
			Quantity:  int64(item.Quantity),
			Size:      item.Size,
			Color:     item.Color,
			ImageURL:  item.ImageURL,
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	total, err := parseDecimal(d.TotalAmount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders.decode %s: total: %w", id, err)
	}
	order := domain.Order{
		ID:     id,
		UserID: d.UserID,
		Items:  make([]domain.OrderItem, 0, len(d.Items)),
		ShippingAddress: domain.ShippingAddress{
			FullName:   d.ShippingAddress.FullName,
			Street:     d.ShippingAddress.Street,
			City:       d.ShippingAddress.City,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
		},
		TotalAmount: total,
		Status:      domain.OrderStatus(d.Status),
		Payment: domain.PaymentDetails{
			PaymentID:     d.PaymentDetails.PaymentID,
			PaymentStatus: domain.PaymentStatus(d.PaymentDetails.PaymentStatus),
		},
		TrackingNumber: d.TrackingNumber,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, item := range d.Items {
		price, err := parseDecimal(item.Price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("orders.decode %s: item price: %w", id, err)
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Price:     price,
			Quantity:  int(item.Quantity),
			Size:      item.Size,
			Color:     item.Color,
			ImageURL:  item.ImageURL,
		})
	}
	return order, nil
}
