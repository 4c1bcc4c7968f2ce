package carts

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mvalderrama/shopflow-backend/internal/products"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
)

func setupCartsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock INTEGER,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, priceCents int, active bool) models.Product {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		Name:       "test product",
		PriceCents: priceCents,
		IsActive:   active,
	}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).Update("is_active", active).Error)
	return product
}

func newCartsService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), products.NewRepository(db))
	require.NoError(t, err)
	return svc
}

func TestAddItem_createsCartAndSnapshotsPrice(t *testing.T) {
	db := setupCartsTestDB(t)
	svc := newCartsService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	product := seedProduct(t, db, 2500, true)

	cart, err := svc.AddItem(ctx, userID, product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusActive, cart.Status)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Qty)
	assert.Equal(t, 2500, cart.Items[0].UnitPriceCents)

	// A later price change must not touch the captured line.
	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", product.ID).
		Update("price_cents", 9999).Error)

	reloaded, err := svc.GetOrCreateActive(ctx, userID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, 2500, reloaded.Items[0].UnitPriceCents)
}

func TestAddItem_reusesActiveCart(t *testing.T) {
	db := setupCartsTestDB(t)
	svc := newCartsService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	first := seedProduct(t, db, 1000, true)
	second := seedProduct(t, db, 500, true)

	cartA, err := svc.AddItem(ctx, userID, first.ID, 1)
	require.NoError(t, err)
	cartB, err := svc.AddItem(ctx, userID, second.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, cartA.ID, cartB.ID)
	assert.Len(t, cartB.Items, 2)
}

func TestAddItem_rejectsInactiveProduct(t *testing.T) {
	db := setupCartsTestDB(t)
	svc := newCartsService(t, db)
	ctx := context.Background()

	product := seedProduct(t, db, 1000, false)

	_, err := svc.AddItem(ctx, uuid.New(), product.ID, 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestAddItem_unknownProduct(t *testing.T) {
	db := setupCartsTestDB(t)
	svc := newCartsService(t, db)

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 1)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestRemoveItem(t *testing.T) {
	db := setupCartsTestDB(t)
	svc := newCartsService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	product := seedProduct(t, db, 1000, true)

	cart, err := svc.AddItem(ctx, userID, product.ID, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	cart, err = svc.RemoveItem(ctx, userID, cart.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestRemoveItem_noActiveCart(t *testing.T) {
	db := setupCartsTestDB(t)
	svc := newCartsService(t, db)

	_, err := svc.RemoveItem(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
