package discounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"gorm.io/gorm"
)

// Auto-rule tags recognized by the engine. Tags outside this set never apply
// (unknown rules fail closed).
const AutoRuleFirstOrder = "first_order"

// CartLine is one product line in a quote request.
type CartLine struct {
	ProductID      uuid.UUID
	Qty            int
	UnitPriceCents int
}

// CartSnapshot is the engine's view of a cart at quote time.
type CartSnapshot struct {
	UserID uuid.UUID
	Items  []CartLine
}

// Applied records one discount that contributes to a quote.
type Applied struct {
	DiscountID  uuid.UUID          `json:"discount_id"`
	Name        string             `json:"name"`
	Type        enums.DiscountType `json:"type"`
	Value       int                `json:"value"`
	AmountCents int                `json:"amount_cents"`
}

// Quote is the result of a discount calculation. It carries no side effects;
// usage rows are persisted only when an order is created.
type Quote struct {
	SubtotalCents int
	DiscountCents int
	TotalCents    int
	Applied       []Applied
}

// Engine computes which discounts apply to a cart snapshot.
type Engine interface {
	Calculate(ctx context.Context, snapshot CartSnapshot, manualCode *string) (Quote, error)
}

type engine struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewEngine builds the discount engine with the required dependencies.
func NewEngine(repo Repository, logg *logger.Logger) (Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("discounts repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &engine{repo: repo, logg: logg, now: time.Now}, nil
}

func (e *engine) Calculate(ctx context.Context, snapshot CartSnapshot, manualCode *string) (Quote, error) {
	subtotal := 0
	totalQty := 0
	for _, line := range snapshot.Items {
		subtotal += line.Qty * line.UnitPriceCents
		totalQty += line.Qty
	}
	if subtotal <= 0 || totalQty <= 0 {
		return Quote{}, nil
	}

	at := e.now().UTC()

	var manual *models.Discount
	if manualCode != nil && *manualCode != "" {
		found, err := e.repo.FindActiveByCode(ctx, *manualCode, at)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Quote{}, pkgerrors.New(pkgerrors.CodeNotFound, "discount code not found or inactive")
			}
			return Quote{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load manual discount")
		}
		applicable, err := e.isApplicable(ctx, *found, snapshot.UserID, subtotal, totalQty)
		if err != nil {
			return Quote{}, err
		}
		if !applicable {
			return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "discount code conditions not met")
		}
		manual = found
	}

	// A non-stackable manual code replaces every automatic discount.
	if manual != nil && !manual.Stackable {
		applied := buildApplied(*manual, subtotal)
		return finalizeQuote(subtotal, []Applied{applied}), nil
	}

	automatic, err := e.repo.FindActiveAutomatic(ctx, at)
	if err != nil {
		return Quote{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load automatic discounts")
	}

	var applied []Applied
	for _, discount := range automatic {
		ok, err := e.isApplicable(ctx, discount, snapshot.UserID, subtotal, totalQty)
		if err != nil {
			return Quote{}, err
		}
		if !ok {
			continue
		}
		applied = append(applied, buildApplied(discount, subtotal))
	}
	if manual != nil {
		applied = append(applied, buildApplied(*manual, subtotal))
	}

	return finalizeQuote(subtotal, applied), nil
}

func (e *engine) isApplicable(ctx context.Context, discount models.Discount, userID uuid.UUID, subtotal, totalQty int) (bool, error) {
	if discount.MinQty != nil && totalQty < *discount.MinQty {
		return false, nil
	}
	if discount.MinAmountCents != nil && subtotal < *discount.MinAmountCents {
		return false, nil
	}
	if discount.MaxUses != nil {
		used, err := e.repo.CountUsage(ctx, discount.ID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count discount usage")
		}
		if used >= int64(*discount.MaxUses) {
			return false, nil
		}
	}
	if discount.PerUserLimit != nil {
		used, err := e.repo.CountUserUsage(ctx, discount.ID, userID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count user discount usage")
		}
		if used >= int64(*discount.PerUserLimit) {
			return false, nil
		}
	}
	if discount.AutoRule != nil && *discount.AutoRule != "" {
		return e.autoRuleApplies(ctx, discount, userID)
	}
	return true, nil
}

func (e *engine) autoRuleApplies(ctx context.Context, discount models.Discount, userID uuid.UUID) (bool, error) {
	switch *discount.AutoRule {
	case AutoRuleFirstOrder:
		orders, err := e.repo.CountUserOrders(ctx, userID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count user orders")
		}
		return orders == 0, nil
	default:
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"discount_id": discount.ID.String(),
			"auto_rule":   *discount.AutoRule,
		})
		e.logg.Warn(logCtx, "unknown discount auto rule; not applying")
		return false, nil
	}
}

func buildApplied(discount models.Discount, subtotal int) Applied {
	amount := 0
	switch discount.Type {
	case enums.DiscountTypePercent:
		amount = subtotal * discount.Value / 100
	case enums.DiscountTypeFixed:
		amount = discount.Value
	}
	if amount < 0 {
		amount = 0
	}
	return Applied{
		DiscountID:  discount.ID,
		Name:        discount.Name,
		Type:        discount.Type,
		Value:       discount.Value,
		AmountCents: amount,
	}
}

func finalizeQuote(subtotal int, applied []Applied) Quote {
	total := 0
	for _, entry := range applied {
		total += entry.AmountCents
	}
	if total > subtotal {
		total = subtotal
	}
	if total < 0 {
		total = 0
	}
	return Quote{
		SubtotalCents: subtotal,
		DiscountCents: total,
		TotalCents:    subtotal - total,
		Applied:       applied,
	}
}
