package services

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound indicates the referenced product does not exist.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrVariantNotFound indicates the product has no variant with the referenced id.
	ErrVariantNotFound = errors.New("catalog: variant not found")
	// ErrInsufficientStock indicates a variant holds fewer units than requested.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// StockErrorCode enumerates causes for failed stock reservations.
type StockErrorCode string

const (
	StockErrorProductNotFound   StockErrorCode = "product_not_found"
	StockErrorVariantNotFound   StockErrorCode = "variant_not_found"
	StockErrorInsufficientStock StockErrorCode = "insufficient_stock"
)

// StockError describes why a line item could not be reserved. It matches ErrProductNotFound,
// ErrVariantNotFound or ErrInsufficientStock through errors.Is.
type StockError struct {
	Code        StockErrorCode
	ProductID   string
	ProductName string
	VariantID   string
	Size        string
	Color       string
	Available   int
	Requested   int
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case StockErrorProductNotFound:
		return fmt.Sprintf("product with id %s not found", e.ProductID)
	case StockErrorVariantNotFound:
		return fmt.Sprintf("variant not found for product %s", e.ProductName)
	case StockErrorInsufficientStock:
		return fmt.Sprintf("not enough stock for %s (%s/%s): available %d, requested %d",
			e.ProductName, e.Color, e.Size, e.Available, e.Requested)
	default:
		return string(e.Code)
	}
}

// Is maps the error code onto the package sentinels.
func (e *StockError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case StockErrorProductNotFound:
		return target == ErrProductNotFound
	case StockErrorVariantNotFound:
		return target == ErrVariantNotFound
	case StockErrorInsufficientStock:
		return target == ErrInsufficientStock
	}
	return false
}
