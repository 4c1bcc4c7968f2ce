package settings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mvalderrama/shopflow-backend/pkg/config"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSettingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME
);`).Error)
	return db
}

func newSettingsService(t *testing.T, cfg config.PaymentsConfig) Service {
	t.Helper()
	svc, err := NewService(NewRepository(setupSettingsTestDB(t)), cfg)
	require.NoError(t, err)
	return svc
}

func TestServiceOverrideBeatsConfigDefault(t *testing.T) {
	svc := newSettingsService(t, config.PaymentsConfig{
		DefaultPaymentMethod: "channel",
		InviteExpiryMinutes:  60,
	})
	ctx := context.Background()

	method, err := svc.PaymentMethod(ctx)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodChannel, method)

	require.NoError(t, svc.Set(ctx, KeyPaymentMethod, "direct"))
	method, err = svc.PaymentMethod(ctx)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodDirect, method)

	require.NoError(t, svc.Set(ctx, KeyInviteExpiryMinutes, "15"))
	expiry, err := svc.InviteExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, expiry)
}

func TestServiceUnsetRestoresDefault(t *testing.T) {
	svc := newSettingsService(t, config.PaymentsConfig{
		DefaultPaymentMethod: "channel",
		InviteExpiryMinutes:  60,
	})
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, KeyPaymentMethod, "direct"))
	require.NoError(t, svc.Unset(ctx, KeyPaymentMethod))

	method, err := svc.PaymentMethod(ctx)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodChannel, method)

	// Unsetting a key that has no override row stays a no-op.
	require.NoError(t, svc.Unset(ctx, KeyPaymentMethod))
}

func TestServiceRejectsUnknownKeyAndBadValues(t *testing.T) {
	svc := newSettingsService(t, config.PaymentsConfig{DefaultPaymentMethod: "channel", InviteExpiryMinutes: 60})
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown key", key: "shipping_region", value: "eu"},
		{name: "bad payment method", key: KeyPaymentMethod, value: "cash"},
		{name: "non numeric expiry", key: KeyInviteExpiryMinutes, value: "soon"},
		{name: "zero expiry", key: KeyInviteExpiryMinutes, value: "0"},
		{name: "non numeric channel", key: KeyCheckoutChannelID, value: "main-channel"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Set(ctx, tc.key, tc.value)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}

func TestServiceCheckoutChannelID(t *testing.T) {
	svc := newSettingsService(t, config.PaymentsConfig{DefaultPaymentMethod: "channel", InviteExpiryMinutes: 60})
	ctx := context.Background()

	id, err := svc.CheckoutChannelID(ctx)
	require.NoError(t, err)
	assert.Zero(t, id)

	require.NoError(t, svc.Set(ctx, KeyCheckoutChannelID, "-100123456"))
	id, err = svc.CheckoutChannelID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-100123456), id)
}

func TestServiceListReturnsOverridesOnly(t *testing.T) {
	svc := newSettingsService(t, config.PaymentsConfig{DefaultPaymentMethod: "channel", InviteExpiryMinutes: 60})
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, KeyPaymentMethod, "direct"))
	require.NoError(t, svc.Set(ctx, KeyInviteExpiryMinutes, "30"))

	values, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		KeyPaymentMethod:       "direct",
		KeyInviteExpiryMinutes: "30",
	}, values)
}
