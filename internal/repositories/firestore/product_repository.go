package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	pfirestore "github.com/vibek01/ECOM-D1/internal/platform/firestore"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

const productCollection = "products"

// ProductRepository stores each product with its variants embedded in a single document so a stock
// decrement rewrites exactly one document.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// Insert creates a new product document.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Create(ctx, product.ID, fromDomainProduct(product))
}

// Save replaces the stored product. Inside a transaction the write is staged until commit.
func (r *ProductRepository) Save(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Set(ctx, product.ID, fromDomainProduct(product))
}

// Delete removes the product document. Orders keep their own line item snapshots.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if strings.TrimSpace(productID) == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Delete(ctx, productID)
}

// FindByID loads the product through the active transaction when one is present.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := doc.Data.toDomain(doc.ID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("products.decode %s: %w", doc.ID, err)
	}
	return product, nil
}

type productDocument struct {
	Name        string            `firestore:"name"`
	Brand       string            `firestore:"brand"`
	Description string            `firestore:"description"`
	Price       string            `firestore:"price"`
	Variants    []variantDocument `firestore:"variants"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

type variantDocument struct {
	ID       string `firestore:"id"`
	Size     string `firestore:"size"`
	Color    string `firestore:"color"`
	Stock    int64  `firestore:"stock"`
	ImageURL string `firestore:"imageUrl"`
}

func fromDomainProduct(product domain.Product) productDocument {
	doc := productDocument{
		Name:        product.Name,
		Brand:       product.Brand,
		Description: product.Description,
		Price:       product.Price.String(),
		Variants:    make([]variantDocument, 0, len(product.Variants)),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
	for _, variant := range product.Variants {
		doc.Variants = append(doc.Variants, variantDocument{
			ID:       variant.ID,
			Size:     variant.Size,
			Color:    variant.Color,
			Stock:    int64(variant.Stock),
			ImageURL: variant.ImageURL,
		})
	}
	return doc
}

func (d productDocument) toDomain(id string) (domain.Product, error) {
	price, err := parseDecimal(d.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("price: %w", err)
	}
	product := domain.Product{
		ID:          id,
		Name:        d.Name,
		Brand:       d.Brand,
		Description: d.Description,
		Price:       price,
		Variants:    make([]domain.ProductVariant, 0, len(d.Variants)),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for _, variant := range d.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			ID:       variant.ID,
			Size:     variant.Size,
			Color:    variant.Color,
			Stock:    int(variant.Stock),
			ImageURL: variant.ImageURL,
		})
	}
	return product, nil
}

// parseDecimal reads money fields, which are stored as decimal strings. Empty means zero.
func parseDecimal(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
