package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/carts"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedCart(t *testing.T, db *gorm.DB, status enums.CartStatus, updatedAt time.Time) *models.Cart {
	t.Helper()
	cart := &models.Cart{ID: uuid.New(), UserID: uuid.New(), Status: status}
	require.NoError(t, db.Create(cart).Error)
	require.NoError(t, db.Exec("UPDATE carts SET updated_at = ? WHERE id = ?", updatedAt, cart.ID).Error)
	return cart
}

func TestCartIdleJob_expiresStaleActiveCarts(t *testing.T) {
	db := setupCronTestDB(t)
	job, err := NewCartIdleJob(CartIdleJobParams{
		Logger:     testLogger(),
		Carts:      carts.NewRepository(db),
		IdleExpiry: 24 * time.Hour,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	stale := seedCart(t, db, enums.CartStatusActive, now.Add(-48*time.Hour))
	fresh := seedCart(t, db, enums.CartStatusActive, now.Add(-time.Hour))
	submitted := seedCart(t, db, enums.CartStatusSubmitted, now.Add(-48*time.Hour))

	require.NoError(t, job.Run(context.Background()))

	var reloaded models.Cart
	require.NoError(t, db.Where("id = ?", stale.ID).First(&reloaded).Error)
	assert.Equal(t, enums.CartStatusExpired, reloaded.Status)

	reloaded = models.Cart{}
	require.NoError(t, db.Where("id = ?", fresh.ID).First(&reloaded).Error)
	assert.Equal(t, enums.CartStatusActive, reloaded.Status)

	reloaded = models.Cart{}
	require.NoError(t, db.Where("id = ?", submitted.ID).First(&reloaded).Error)
	assert.Equal(t, enums.CartStatusSubmitted, reloaded.Status)
}
