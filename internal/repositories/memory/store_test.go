package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

func sampleProduct() domain.Product {
	return domain.Product{
		ID:   "prd_1",
		Name: "Air Zoom",
		Variants: []domain.ProductVariant{
			{ID: "var_a", Size: "42", Color: "black", Stock: 5},
		},
	}
}

func TestRunInTxDiscardsWritesOnError(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Products().Insert(context.Background(), sampleProduct()))

	sentinel := errors.New("abort")
	err := store.RunInTx(context.Background(), func(ctx context.Context) error {
		product, err := store.Products().FindByID(ctx, "prd_1")
		require.NoError(t, err)
		product.Variants[0].Stock = 0
		require.NoError(t, store.Products().Save(ctx, product))

		staged, err := store.Products().FindByID(ctx, "prd_1")
		require.NoError(t, err)
		assert.Zero(t, staged.Variants[0].Stock)

		committed, _ := store.StockOf("prd_1", "var_a")
		assert.Equal(t, 5, committed)
		return sentinel
	})
	assert.Same(t, sentinel, err)

	stock, _ := store.StockOf("prd_1", "var_a")
	assert.Equal(t, 5, stock)
}

func TestReadsReturnCopies(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Products().Insert(context.Background(), sampleProduct()))

	product, err := store.Products().FindByID(context.Background(), "prd_1")
	require.NoError(t, err)
	product.Variants[0].Stock = 99

	stock, _ := store.StockOf("prd_1", "var_a")
	assert.Equal(t, 5, stock)
}

func TestInsertDuplicateIsConflict(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Products().Insert(context.Background(), sampleProduct()))

	err := store.Products().Insert(context.Background(), sampleProduct())
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	_, err = store.Orders().FindByID(context.Background(), "ord_missing")
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestOrderListPagination(t *testing.T) {
	store := NewStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"ord_a", "ord_b", "ord_c"} {
		require.NoError(t, store.Orders().Insert(context.Background(), domain.Order{
			ID:        id,
			UserID:    "user_1",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := store.Orders().List(context.Background(), repositories.OrderListFilter{Pagination: domain.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ord_c", page.Items[0].ID)
	assert.Equal(t, "ord_b", page.Items[1].ID)

	page, err = store.Orders().List(context.Background(), repositories.OrderListFilter{
		Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ord_a", page.Items[0].ID)
	assert.Empty(t, page.NextPageToken)

	_, err = store.Orders().List(context.Background(), repositories.OrderListFilter{Pagination: domain.Pagination{PageToken: "%%%"}})
	assert.Error(t, err)
}

func TestUpdateRole(t *testing.T) {
	store := NewStore()
	store.PutUser(domain.User{ID: "user_1", Email: "ada@example.com", Role: domain.UserRoleUser})

	user, err := store.Users().UpdateRole(context.Background(), "user_1", domain.UserRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, user.Role)

	_, err = store.Users().UpdateRole(context.Background(), "user_missing", domain.UserRoleAdmin)
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestProductDeleteStagesUntilCommit(t *testing.T) {
	store := NewStore()
	products := store.Products()
	require.NoError(t, products.Insert(context.Background(), sampleProduct()))

	sentinel := errors.New("abort")
	err := store.RunInTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, products.Delete(ctx, "prd_1"))
		_, err := products.FindByID(ctx, "prd_1")
		var repoErr repositories.RepositoryError
		require.ErrorAs(t, err, &repoErr)
		assert.True(t, repoErr.IsNotFound())

		_, committed := store.StockOf("prd_1", "var_a")
		assert.True(t, committed)
		return sentinel
	})
	assert.Same(t, sentinel, err)
	_, ok := store.StockOf("prd_1", "var_a")
	assert.True(t, ok, "aborted delete must not reach the store")

	require.NoError(t, products.Delete(context.Background(), "prd_1"))
	_, ok = store.StockOf("prd_1", "var_a")
	assert.False(t, ok)

	err = products.Delete(context.Background(), "prd_1")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())

	// Deleted then recreated in one transaction keeps the new product.
	require.NoError(t, products.Insert(context.Background(), sampleProduct()))
	require.NoError(t, store.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := products.Delete(ctx, "prd_1"); err != nil {
			return err
		}
		replacement := sampleProduct()
		replacement.Name = "Air Zoom 2"
		return products.Insert(ctx, replacement)
	}))
	product, err := products.FindByID(context.Background(), "prd_1")
	require.NoError(t, err)
	assert.Equal(t, "Air Zoom 2", product.Name)
}
