package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vibek01/ECOM-D1/internal/repositories"
)

const (
	productIDPrefix = "prd_"
	variantIDPrefix = "var_"
)

var (
	// ErrProductInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrProductInvalidInput = errors.New("catalog: invalid product")
	// ErrProductConflict indicates a catalog write collided with another write.
	ErrProductConflict = errors.New("catalog: conflict")
	// ErrProductUnavailable indicates the product store could not be reached.
	ErrProductUnavailable = errors.New("catalog: repository unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("catalog service: unit of work is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:   deps.Products,
		unitOfWork: deps.UnitOfWork,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogError(err)
	}
	return product, nil
}

// CreateProduct validates and stores a new product. Variant ids are always generated.
func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if cmd.Price == nil {
		return Product{}, fmt.Errorf("%w: price is required", ErrProductInvalidInput)
	}
	now := s.clock()
	product := Product{
		ID:          productIDPrefix + s.newID(),
		Name:        sanitizeText(cmd.Name),
		Brand:       sanitizeText(cmd.Brand),
		Description: sanitizeText(cmd.Description),
		Price:       *cmd.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	product.Variants = s.normalizeVariants(cmd.Variants, nil)
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapCatalogError(err)
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"product": product.ID, "variants": len(product.Variants)})
	return product, nil
}

// UpdateProduct replaces the product's fields and variants. Blank text fields and a nil price keep
// their stored values. Variant ids that exist on the stored product are preserved, other variants get new ids.
// The write runs in a transaction so it serialises with concurrent stock reservations.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	var updated Product
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return err
		}
		next := existing.Clone()
		if name := sanitizeText(cmd.Name); name != "" {
			next.Name = name
		}
		if brand := sanitizeText(cmd.Brand); brand != "" {
			next.Brand = brand
		}
		if description := sanitizeText(cmd.Description); description != "" {
			next.Description = description
		}
		if cmd.Price != nil {
			next.Price = *cmd.Price
		}
		next.Variants = s.normalizeVariants(cmd.Variants, &existing)
		next.UpdatedAt = s.clock()
		if err := validateProduct(next); err != nil {
			return err
		}
		if err := s.products.Save(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Product{}, mapCatalogError(err)
	}
	s.logger(ctx, "catalog.product.updated", map[string]any{"product": updated.ID, "variants": len(updated.Variants)})
	return updated, nil
}

// DeleteProduct removes the product. Orders keep their item snapshots. The delete runs in a
// transaction so it serialises with stock reservations against the same product.
func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.products.FindByID(ctx, productID); err != nil {
			return err
		}
		return s.products.Delete(ctx, productID)
	})
	if err != nil {
		return mapCatalogError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"product": productID})
	return nil
}

func (s *catalogService) normalizeVariants(variants []ProductVariant, existing *Product) []ProductVariant {
	out := make([]ProductVariant, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))
	for _, variant := range variants {
		id := strings.TrimSpace(variant.ID)
		if existing == nil || id == "" {
			id = ""
		} else if _, ok := existing.VariantIndex(id); !ok {
			id = ""
		}
		if _, dup := seen[id]; dup || id == "" {
			id = variantIDPrefix + s.newID()
		}
		seen[id] = struct{}{}
		out = append(out, ProductVariant{
			ID:       id,
			Size:     sanitizeText(variant.Size),
			Color:    sanitizeText(variant.Color),
			Stock:    variant.Stock,
			ImageURL: strings.TrimSpace(variant.ImageURL),
		})
	}
	return out
}

func validateProduct(product Product) error {
	var problems []string
	if product.Name == "" {
		problems = append(problems, "name is required")
	}
	if product.Brand == "" {
		problems = append(problems, "brand is required")
	}
	if product.Description == "" {
		problems = append(problems, "description is required")
	}
	if product.Price.IsNegative() {
		problems = append(problems, "price must not be negative")
	}
	if len(product.Variants) == 0 {
		problems = append(problems, "at least one variant is required")
	}
	for i, variant := range product.Variants {
		if variant.Size == "" || variant.Color == "" {
			problems = append(problems, fmt.Sprintf("variants[%d] requires size and color", i))
		}
		if variant.Stock < 0 {
			problems = append(problems, fmt.Sprintf("variants[%d] stock must not be negative", i))
		}
		if !validImageURL(variant.ImageURL) {
			problems = append(problems, fmt.Sprintf("variants[%d] requires an http(s) image url", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrProductInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func validImageURL(raw string) bool {
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func mapCatalogError(err error) error {
	if err == nil || errors.Is(err, ErrProductInvalidInput) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrProductConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrProductUnavailable, err)
		}
	}
	return err
}
