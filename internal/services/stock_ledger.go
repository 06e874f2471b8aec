package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

// stockLedger decrements variant stock through whatever transaction the context carries.
type stockLedger struct {
	products repositories.ProductRepository
	clock    func() time.Time
}

// reservation is the catalog snapshot a line item was reserved against.
type reservation struct {
	Product Product
	Variant ProductVariant
}

// resolveVariant locates the referenced variant inside an already loaded product.
func resolveVariant(product Product, ref VariantRef) (int, error) {
	idx, ok := product.VariantIndex(ref.VariantID)
	if !ok {
		return -1, &StockError{
			Code:        StockErrorVariantNotFound,
			ProductID:   product.ID,
			ProductName: product.Name,
			VariantID:   ref.VariantID,
		}
	}
	return idx, nil
}

// Reserve takes quantity units from the referenced variant and saves the product in the same
// transaction. The returned snapshot reflects the product before the decrement.
func (l stockLedger) Reserve(ctx context.Context, ref VariantRef, quantity int) (reservation, error) {
	product, err := l.products.FindByID(ctx, ref.ProductID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return reservation{}, &StockError{Code: StockErrorProductNotFound, ProductID: ref.ProductID, VariantID: ref.VariantID}
		}
		return reservation{}, err
	}

	idx, err := resolveVariant(product, ref)
	if err != nil {
		return reservation{}, err
	}

	variant := product.Variants[idx]
	if variant.Stock < quantity {
		return reservation{}, &StockError{
			Code:        StockErrorInsufficientStock,
			ProductID:   product.ID,
			ProductName: product.Name,
			VariantID:   variant.ID,
			Size:        variant.Size,
			Color:       variant.Color,
			Available:   variant.Stock,
			Requested:   quantity,
		}
	}

	updated := product.Clone()
	updated.Variants[idx].Stock -= quantity
	updated.UpdatedAt = l.clock()
	if err := l.products.Save(ctx, updated); err != nil {
		return reservation{}, err
	}
	return reservation{Product: product, Variant: variant}, nil
}

// snapshotItem builds the stored line item from the reserved catalog data.
func snapshotItem(res reservation, quantity int) domain.OrderItem {
	return domain.OrderItem{
		ProductID: res.Product.ID,
		VariantID: res.Variant.ID,
		Name:      res.Product.Name,
		Price:     res.Product.Price,
		Quantity:  quantity,
		Size:      res.Variant.Size,
		Color:     res.Variant.Color,
		ImageURL:  res.Variant.ImageURL,
	}
}
