package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
	redisInfra "github.com/jeobran69367/Mspr4-produits/internal/infrastructure/redis"
)

func TestProducts_CreateComputesPriceAndStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.category(t, "ARAB")

	p, err := f.products.Create(ctx, CreateProductParams{
		SKU: "CAFE-001", Name: "Moka", CategoryID: c.ID, PriceExclTax: 10, TaxRate: ptr(20.0),
	})
	require.NoError(t, err)

	assert.Equal(t, 12.0, p.PriceInclTax)
	assert.Equal(t, product.StatusActive, p.Status)
	assert.Equal(t, product.DefaultUnit, p.Unit)

	s, err := f.stocks.GetByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Available)
	assert.True(t, s.LowStock)

	assert.Equal(t, []event.Type{event.ProductCreated}, f.notifier.types())
	assert.Equal(t, "CAFE-001", f.notifier.last().Data["sku"])
}

func TestProducts_PriceInclTaxRounding(t *testing.T) {
	tests := []struct {
		excl, rate, want float64
	}{
		{10, 20, 12},
		{12.99, 5.5, 13.7},
		{0.01, 20, 0.01},
		{7.35, 0, 7.35},
		{19.99, 20, 23.99},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, product.PriceInclTax(tt.excl, tt.rate), 1e-9, "%v @ %v%%", tt.excl, tt.rate)
	}
}

func TestProducts_DuplicateSKURejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.category(t, "ARAB")
	params := CreateProductParams{SKU: "CAFE-001", Name: "Moka", CategoryID: c.ID, PriceExclTax: 10}

	_, err := f.products.Create(ctx, params)
	require.NoError(t, err)
	_, err = f.products.Create(ctx, params)

	assert.True(t, domain.IsValidation(err))
	all, _ := f.products.List(ctx, product.Filter{})
	assert.Len(t, all, 1)
	assert.Len(t, f.notifier.types(), 1)
}

func TestProducts_UnknownCategoryRejected(t *testing.T) {
	f := newFixture()
	_, err := f.products.Create(context.Background(), CreateProductParams{
		SKU: "CAFE-001", Name: "Moka", CategoryID: uuid.New(), PriceExclTax: 10,
	})
	assert.True(t, domain.IsValidation(err))
}

func TestProducts_UpdateReprices(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.category(t, "ARAB")
	p, err := f.products.Create(ctx, CreateProductParams{SKU: "CAFE-001", Name: "Moka", CategoryID: c.ID, PriceExclTax: 10})
	require.NoError(t, err)

	updated, err := f.products.Update(ctx, p.ID, product.Patch{TaxRate: ptr(5.5)})
	require.NoError(t, err)
	assert.Equal(t, 10.55, updated.PriceInclTax)

	updated, err = f.products.Update(ctx, p.ID, product.Patch{Name: ptr("Moka Sidamo")})
	require.NoError(t, err)
	assert.Equal(t, 10.55, updated.PriceInclTax)
	assert.Equal(t, event.ProductUpdated, f.notifier.last().Type)
}

func TestProducts_UpdateSKUConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.category(t, "ARAB")
	a, err := f.products.Create(ctx, CreateProductParams{SKU: "A", Name: "A", CategoryID: c.ID, PriceExclTax: 1})
	require.NoError(t, err)
	_, err = f.products.Create(ctx, CreateProductParams{SKU: "B", Name: "B", CategoryID: c.ID, PriceExclTax: 1})
	require.NoError(t, err)

	_, err = f.products.Update(ctx, a.ID, product.Patch{SKU: ptr("B")})
	assert.True(t, domain.IsValidation(err))

	_, err = f.products.Update(ctx, uuid.New(), product.Patch{Name: ptr("x")})
	assert.True(t, domain.IsNotFound(err))
}

func TestProducts_DeletePublishesAndRemovesStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.category(t, "ARAB")
	p, err := f.products.Create(ctx, CreateProductParams{SKU: "CAFE-001", Name: "Moka", CategoryID: c.ID, PriceExclTax: 10})
	require.NoError(t, err)

	require.NoError(t, f.products.Delete(ctx, p.ID))

	last := f.notifier.last()
	assert.Equal(t, event.ProductDeleted, last.Type)
	assert.Equal(t, map[string]any{"product_id": p.ID.String(), "sku": "CAFE-001"}, last.Data)
	_, err = f.stocks.GetByProduct(ctx, p.ID)
	assert.True(t, domain.IsNotFound(err))

	assert.True(t, domain.IsNotFound(f.products.Delete(ctx, p.ID)))
}

func TestProducts_SearchIsCaseInsensitive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.category(t, "ARAB")
	for _, p := range []CreateProductParams{
		{SKU: "1", Name: "Arabica Brésil", PriceExclTax: 1},
		{SKU: "2", Name: "Robusta", Description: ptr("assemblage avec ARABICA"), PriceExclTax: 1},
		{SKU: "3", Name: "Thé vert", PriceExclTax: 1},
	} {
		p.CategoryID = c.ID
		_, err := f.products.Create(ctx, p)
		require.NoError(t, err)
	}

	got, err := f.products.List(ctx, product.Filter{Search: "arabica"})
	require.NoError(t, err)

	skus := []string{}
	for _, p := range got {
		skus = append(skus, p.SKU)
	}
	assert.ElementsMatch(t, []string{"1", "2"}, skus)
}

func TestProducts_ReadThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redisInfra.NewClient(context.Background(), redisInfra.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	f := newFixture(WithProductCache(redisInfra.NewCache(client, "product"), time.Minute))
	ctx := context.Background()
	c := f.category(t, "ARAB")
	p, err := f.products.Create(ctx, CreateProductParams{SKU: "CAFE-001", Name: "Moka", CategoryID: c.ID, PriceExclTax: 10})
	require.NoError(t, err)

	_, err = f.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("product:"+p.ID.String()))

	_, err = f.products.Update(ctx, p.ID, product.Patch{Name: ptr("Moka Sidamo")})
	require.NoError(t, err)
	assert.False(t, mr.Exists("product:"+p.ID.String()))

	got, err := f.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Moka Sidamo", got.Name)
}

func TestProducts_CacheOutageFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redisInfra.NewClient(context.Background(), redisInfra.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	f := newFixture(WithProductCache(redisInfra.NewCache(client, "product"), time.Minute))
	ctx := context.Background()
	c := f.category(t, "ARAB")
	p, err := f.products.Create(ctx, CreateProductParams{SKU: "CAFE-001", Name: "Moka", CategoryID: c.ID, PriceExclTax: 10})
	require.NoError(t, err)

	mr.Close()

	got, err := f.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestCategories_DeleteEvictsCascadedProducts(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redisInfra.NewClient(context.Background(), redisInfra.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	cache := redisInfra.NewCache(client, "product")
	f := newFixture(WithProductCache(cache, time.Minute))
	categories := NewCategories(f.store.Categories(), discardLogger(), WithCascadeEviction(f.store.Products(), cache))
	ctx := context.Background()

	c := f.category(t, "ARAB")
	other := f.category(t, "ROBU")
	gone, err := f.products.Create(ctx, CreateProductParams{SKU: "CAFE-001", Name: "Moka", CategoryID: c.ID, PriceExclTax: 10})
	require.NoError(t, err)
	kept, err := f.products.Create(ctx, CreateProductParams{SKU: "CAFE-002", Name: "Robusta", CategoryID: other.ID, PriceExclTax: 8})
	require.NoError(t, err)

	_, err = f.products.Get(ctx, gone.ID)
	require.NoError(t, err)
	_, err = f.products.Get(ctx, kept.ID)
	require.NoError(t, err)

	require.NoError(t, categories.Delete(ctx, c.ID))

	assert.False(t, mr.Exists("product:"+gone.ID.String()))
	assert.True(t, mr.Exists("product:"+kept.ID.String()))

	_, err = f.products.Get(ctx, gone.ID)
	assert.True(t, domain.IsNotFound(err))
}
