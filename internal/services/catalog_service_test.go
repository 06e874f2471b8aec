package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibek01/ECOM-D1/internal/repositories/memory"
)

func newTestCatalogService(t *testing.T, store *memory.Store) CatalogService {
	t.Helper()
	var seq int
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:   store.Products(),
		UnitOfWork: store,
		Clock:      func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("%03d", seq)
		},
	})
	require.NoError(t, err)
	return svc
}

func priceOf(value string) *decimal.Decimal {
	price := decimal.RequireFromString(value)
	return &price
}

func validProductCommand() UpsertProductCommand {
	return UpsertProductCommand{
		Name:        "Air <b>Zoom</b>",
		Brand:       "Acme",
		Description: "Lightweight runner",
		Price:       priceOf("120.00"),
		Variants: []ProductVariant{
			{ID: "client-chosen", Size: "42", Color: "black", Stock: 4, ImageURL: "https://cdn.example.com/a.png"},
			{Size: "43", Color: "white", Stock: 0, ImageURL: "https://cdn.example.com/b.png"},
		},
	}
}

func TestCreateProductGeneratesIDsAndSanitises(t *testing.T) {
	store := memory.NewStore()
	svc := newTestCatalogService(t, store)

	product, err := svc.CreateProduct(context.Background(), validProductCommand())
	require.NoError(t, err)
	assert.Equal(t, "prd_001", product.ID)
	assert.Equal(t, "Air Zoom", product.Name)
	require.Len(t, product.Variants, 2)
	assert.Equal(t, "var_002", product.Variants[0].ID)
	assert.Equal(t, "var_003", product.Variants[1].ID)

	stored, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, product.Variants, stored.Variants)
}

func TestCreateProductValidation(t *testing.T) {
	svc := newTestCatalogService(t, memory.NewStore())

	cases := map[string]func(*UpsertProductCommand){
		"missing name":     func(c *UpsertProductCommand) { c.Name = "" },
		"negative price":   func(c *UpsertProductCommand) { c.Price = priceOf("-5") },
		"missing price":    func(c *UpsertProductCommand) { c.Price = nil },
		"no variants":      func(c *UpsertProductCommand) { c.Variants = nil },
		"negative stock":   func(c *UpsertProductCommand) { c.Variants[0].Stock = -1 },
		"relative image":   func(c *UpsertProductCommand) { c.Variants[1].ImageURL = "/img/b.png" },
		"variant no color": func(c *UpsertProductCommand) { c.Variants[0].Color = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := validProductCommand()
			mutate(&cmd)
			_, err := svc.CreateProduct(context.Background(), cmd)
			assert.ErrorIs(t, err, ErrProductInvalidInput)
		})
	}
}

func TestUpdateProductKeepsKnownVariantIDs(t *testing.T) {
	store := memory.NewStore()
	svc := newTestCatalogService(t, store)

	created, err := svc.CreateProduct(context.Background(), validProductCommand())
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ProductID: created.ID,
		Variants: []ProductVariant{
			{ID: created.Variants[0].ID, Size: "42", Color: "black", Stock: 25, ImageURL: "https://cdn.example.com/a.png"},
			{ID: "unknown", Size: "44", Color: "red", Stock: 2, ImageURL: "https://cdn.example.com/c.png"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, created.Name, updated.Name)
	assert.True(t, created.Price.Equal(updated.Price))
	require.Len(t, updated.Variants, 2)
	assert.Equal(t, created.Variants[0].ID, updated.Variants[0].ID)
	assert.NotEqual(t, "unknown", updated.Variants[1].ID)

	stock, ok := store.StockOf(created.ID, created.Variants[0].ID)
	require.True(t, ok)
	assert.Equal(t, 25, stock)
}

func TestUpdateProductNotFound(t *testing.T) {
	svc := newTestCatalogService(t, memory.NewStore())
	_, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{ProductID: "prd_missing", Variants: validProductCommand().Variants})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.GetProduct(context.Background(), "prd_missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestUpdateProductPriceCanBeZeroed(t *testing.T) {
	svc := newTestCatalogService(t, memory.NewStore())
	created, err := svc.CreateProduct(context.Background(), validProductCommand())
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ProductID: created.ID,
		Price:     priceOf("0"),
		Variants:  created.Variants,
	})
	require.NoError(t, err)
	assert.True(t, updated.Price.IsZero(), "price = %s", updated.Price)

	stored, err := svc.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.IsZero())
}

func TestCreateProductDuplicateIDIsCatalogConflict(t *testing.T) {
	store := memory.NewStore()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    store.Products(),
		UnitOfWork:  store,
		IDGenerator: func() string { return "fixed" },
	})
	require.NoError(t, err)

	_, err = svc.CreateProduct(context.Background(), validProductCommand())
	require.NoError(t, err)
	_, err = svc.CreateProduct(context.Background(), validProductCommand())
	assert.ErrorIs(t, err, ErrProductConflict)
	assert.NotErrorIs(t, err, ErrOrderConflict)
}

func TestDeleteProduct(t *testing.T) {
	store := memory.NewStore()
	svc := newTestCatalogService(t, store)
	seedProduct(t, store, "prd_keep", "Air Zoom",
		ProductVariant{ID: "var_a", Size: "42", Color: "black", Stock: 5, ImageURL: "https://cdn.example.com/a.png"})
	order, err := newTestOrderService(t, store, nil).PlaceOrder(context.Background(), placeCmd(item("prd_keep", "var_a", 2)))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(context.Background(), " prd_keep "))

	_, err = svc.GetProduct(context.Background(), "prd_keep")
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, ok := store.StockOf("prd_keep", "var_a")
	assert.False(t, ok)

	stored, err := store.Orders().FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Air Zoom", stored.Items[0].Name)

	assert.ErrorIs(t, svc.DeleteProduct(context.Background(), "prd_keep"), ErrProductNotFound)
	assert.ErrorIs(t, svc.DeleteProduct(context.Background(), "  "), ErrProductInvalidInput)
}
