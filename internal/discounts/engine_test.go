package discounts

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubDiscountRepo struct {
	automatic  []models.Discount
	byCode     map[string]models.Discount
	usage      map[uuid.UUID]int64
	userUsage  map[uuid.UUID]int64
	userOrders int64
}

func (s *stubDiscountRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubDiscountRepo) FindActiveAutomatic(ctx context.Context, at time.Time) ([]models.Discount, error) {
	return s.automatic, nil
}

func (s *stubDiscountRepo) FindActiveByCode(ctx context.Context, code string, at time.Time) (*models.Discount, error) {
	if found, ok := s.byCode[code]; ok {
		return &found, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubDiscountRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Discount, error) {
	return nil, nil
}

func (s *stubDiscountRepo) CountUsage(ctx context.Context, discountID uuid.UUID) (int64, error) {
	return s.usage[discountID], nil
}

func (s *stubDiscountRepo) CountUserUsage(ctx context.Context, discountID, userID uuid.UUID) (int64, error) {
	return s.userUsage[discountID], nil
}

func (s *stubDiscountRepo) CountUserOrders(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.userOrders, nil
}

func (s *stubDiscountRepo) CreateUsages(ctx context.Context, usages []models.DiscountUsage) error {
	return nil
}

func newTestEngine(t *testing.T, repo Repository) Engine {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "discounts-test", Output: io.Discard})
	eng, err := NewEngine(repo, logg)
	require.NoError(t, err)
	return eng
}

func snapshotFor(qty, unitPrice int) CartSnapshot {
	return CartSnapshot{
		UserID: uuid.New(),
		Items:  []CartLine{{ProductID: uuid.New(), Qty: qty, UnitPriceCents: unitPrice}},
	}
}

func TestEngineCalculate_percentWithMinAmount(t *testing.T) {
	minAmount := 1000
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:             uuid.New(),
			Name:           "10% off",
			Type:           enums.DiscountTypePercent,
			Value:          10,
			MinAmountCents: &minAmount,
			IsActive:       true,
		}},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(3, 1000), nil)
	require.NoError(t, err)
	assert.Equal(t, 3000, quote.SubtotalCents)
	assert.Equal(t, 300, quote.DiscountCents)
	assert.Equal(t, 2700, quote.TotalCents)
	require.Len(t, quote.Applied, 1)
	assert.Equal(t, 300, quote.Applied[0].AmountCents)
}

func TestEngineCalculate_minAmountNotMet(t *testing.T) {
	minAmount := 5000
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:             uuid.New(),
			Name:           "10% off",
			Type:           enums.DiscountTypePercent,
			Value:          10,
			MinAmountCents: &minAmount,
			IsActive:       true,
		}},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(3, 1000), nil)
	require.NoError(t, err)
	assert.Equal(t, 3000, quote.SubtotalCents)
	assert.Zero(t, quote.DiscountCents)
	assert.Empty(t, quote.Applied)
}

func TestEngineCalculate_emptyCartReturnsZeroQuote(t *testing.T) {
	eng := newTestEngine(t, &stubDiscountRepo{})

	quote, err := eng.Calculate(context.Background(), CartSnapshot{UserID: uuid.New()}, nil)
	require.NoError(t, err)
	assert.Zero(t, quote.SubtotalCents)
	assert.Zero(t, quote.DiscountCents)
	assert.Zero(t, quote.TotalCents)
	assert.Empty(t, quote.Applied)
}

func TestEngineCalculate_nonStackableManualReplacesAutomatics(t *testing.T) {
	code := "SAVE500"
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:       uuid.New(),
			Name:     "10% off",
			Type:     enums.DiscountTypePercent,
			Value:    10,
			IsActive: true,
		}},
		byCode: map[string]models.Discount{
			code: {
				ID:        uuid.New(),
				Name:      "500 off",
				Type:      enums.DiscountTypeFixed,
				Value:     500,
				Code:      &code,
				Stackable: false,
				IsActive:  true,
			},
		},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(2, 1000), &code)
	require.NoError(t, err)
	require.Len(t, quote.Applied, 1)
	assert.Equal(t, "500 off", quote.Applied[0].Name)
	assert.Equal(t, 500, quote.DiscountCents)
	assert.Equal(t, 1500, quote.TotalCents)
}

func TestEngineCalculate_stackableManualCombines(t *testing.T) {
	code := "EXTRA"
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:       uuid.New(),
			Name:     "10% off",
			Type:     enums.DiscountTypePercent,
			Value:    10,
			IsActive: true,
		}},
		byCode: map[string]models.Discount{
			code: {
				ID:        uuid.New(),
				Name:      "200 off",
				Type:      enums.DiscountTypeFixed,
				Value:     200,
				Code:      &code,
				Stackable: true,
				IsActive:  true,
			},
		},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(2, 1000), &code)
	require.NoError(t, err)
	require.Len(t, quote.Applied, 2)
	assert.Equal(t, 400, quote.DiscountCents)
	assert.Equal(t, 1600, quote.TotalCents)
}

func TestEngineCalculate_discountCappedAtSubtotal(t *testing.T) {
	code := "HUGE"
	repo := &stubDiscountRepo{
		byCode: map[string]models.Discount{
			code: {
				ID:       uuid.New(),
				Name:     "5000 off",
				Type:     enums.DiscountTypeFixed,
				Value:    5000,
				Code:     &code,
				IsActive: true,
			},
		},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(1, 1000), &code)
	require.NoError(t, err)
	assert.Equal(t, 1000, quote.DiscountCents)
	assert.Zero(t, quote.TotalCents)
}

func TestEngineCalculate_perUserLimitBlocksReuse(t *testing.T) {
	limit := 1
	discountID := uuid.New()
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:           discountID,
			Name:         "once per user",
			Type:         enums.DiscountTypeFixed,
			Value:        100,
			PerUserLimit: &limit,
			IsActive:     true,
		}},
		userUsage: map[uuid.UUID]int64{discountID: 1},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(1, 1000), nil)
	require.NoError(t, err)
	assert.Empty(t, quote.Applied)
	assert.Zero(t, quote.DiscountCents)
}

func TestEngineCalculate_maxUsesExhausted(t *testing.T) {
	maxUses := 5
	discountID := uuid.New()
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:       discountID,
			Name:     "limited",
			Type:     enums.DiscountTypeFixed,
			Value:    100,
			MaxUses:  &maxUses,
			IsActive: true,
		}},
		usage: map[uuid.UUID]int64{discountID: 5},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(1, 1000), nil)
	require.NoError(t, err)
	assert.Empty(t, quote.Applied)
}

func TestEngineCalculate_firstOrderRule(t *testing.T) {
	rule := AutoRuleFirstOrder
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:       uuid.New(),
			Name:     "welcome",
			Type:     enums.DiscountTypePercent,
			Value:    15,
			AutoRule: &rule,
			IsActive: true,
		}},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(1, 2000), nil)
	require.NoError(t, err)
	require.Len(t, quote.Applied, 1)
	assert.Equal(t, 300, quote.DiscountCents)

	repo.userOrders = 1
	quote, err = eng.Calculate(context.Background(), snapshotFor(1, 2000), nil)
	require.NoError(t, err)
	assert.Empty(t, quote.Applied)
}

func TestEngineCalculate_unknownAutoRuleFailsClosed(t *testing.T) {
	rule := "mystery_rule"
	repo := &stubDiscountRepo{
		automatic: []models.Discount{{
			ID:       uuid.New(),
			Name:     "mystery",
			Type:     enums.DiscountTypePercent,
			Value:    50,
			AutoRule: &rule,
			IsActive: true,
		}},
	}
	eng := newTestEngine(t, repo)

	quote, err := eng.Calculate(context.Background(), snapshotFor(1, 1000), nil)
	require.NoError(t, err)
	assert.Empty(t, quote.Applied)
	assert.Zero(t, quote.DiscountCents)
}

func TestEngineCalculate_unknownCodeReturnsNotFound(t *testing.T) {
	eng := newTestEngine(t, &stubDiscountRepo{byCode: map[string]models.Discount{}})

	code := "NOPE"
	_, err := eng.Calculate(context.Background(), snapshotFor(1, 1000), &code)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
