package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/carts"
	"github.com/mvalderrama/shopflow-backend/internal/discounts"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/products"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateOrderInput carries everything needed to convert a cart into an order.
// Applied is the discount quote computed beforehand; usage rows are persisted
// here, not at quote time.
type CreateOrderInput struct {
	UserID  uuid.UUID
	CartID  uuid.UUID
	Applied []discounts.Applied
}

// CreateOrderResult reports the money breakdown of the created order.
type CreateOrderResult struct {
	OrderID       uuid.UUID
	OrderNumber   int64
	SubtotalCents int
	DiscountCents int
	TotalCents    int
}

// StockShortage describes one product that blocked checkout.
type StockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Service converts active carts into orders atomically.
type Service interface {
	CreateOrderFromCart(ctx context.Context, input CreateOrderInput) (CreateOrderResult, error)
}

type service struct {
	tx        txRunner
	carts     carts.Repository
	products  products.Repository
	orders    orders.Repository
	discounts discounts.Repository
	now       func() time.Time
}

// Params configure the ledger service.
type Params struct {
	Tx        txRunner
	Carts     carts.Repository
	Products  products.Repository
	Orders    orders.Repository
	Discounts discounts.Repository
}

// NewService builds the ledger service with the required dependencies.
func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discounts repository required")
	}
	return &service{
		tx:        params.Tx,
		carts:     params.Carts,
		products:  params.Products,
		orders:    params.Orders,
		discounts: params.Discounts,
		now:       time.Now,
	}, nil
}

// CreateOrderFromCart runs the whole conversion in one transaction: stock is
// validated for every line before any line decrements it, the cart flips
// ACTIVE to SUBMITTED exactly once, and a failed validation leaves stock and
// cart untouched.
func (s *service) CreateOrderFromCart(ctx context.Context, input CreateOrderInput) (CreateOrderResult, error) {
	if input.UserID == uuid.Nil {
		return CreateOrderResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.CartID == uuid.Nil {
		return CreateOrderResult{}, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}

	var result CreateOrderResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		productRepo := s.products.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)
		discountRepo := s.discounts.WithTx(tx)

		cart, err := cartRepo.FindForUser(ctx, input.CartID, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if cart.Status != enums.CartStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not active")
		}
		if len(cart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		productIDs := make([]uuid.UUID, 0, len(cart.Items))
		for _, item := range cart.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		loaded, err := productRepo.FindByIDs(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		byID := make(map[uuid.UUID]models.Product, len(loaded))
		for _, product := range loaded {
			byID[product.ID] = product
		}

		// Validate every line before touching any stock.
		var shortages []StockShortage
		for _, item := range cart.Items {
			product, ok := byID[item.ProductID]
			if !ok || !product.IsActive {
				shortages = append(shortages, StockShortage{ProductID: item.ProductID, Requested: item.Qty})
				continue
			}
			if product.Stock != nil && *product.Stock < item.Qty {
				shortages = append(shortages, StockShortage{
					ProductID: item.ProductID,
					Requested: item.Qty,
					Available: *product.Stock,
				})
			}
		}
		if len(shortages) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "items unavailable, please adjust cart").
				WithDetails(shortages)
		}

		for _, item := range cart.Items {
			product := byID[item.ProductID]
			if product.Stock == nil {
				continue
			}
			decremented, err := productRepo.DecrementStock(ctx, product.ID, item.Qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			if !decremented {
				// A concurrent checkout won the race since validation.
				return pkgerrors.New(pkgerrors.CodeConflict, "items unavailable, please adjust cart").
					WithDetails([]StockShortage{{ProductID: product.ID, Requested: item.Qty}})
			}
		}

		// Subtotal comes from the cart's own price snapshots, not a live
		// quote, so the order reflects exactly what was validated.
		subtotal := 0
		for _, item := range cart.Items {
			subtotal += item.Qty * item.UnitPriceCents
		}
		discountTotal := 0
		for _, applied := range input.Applied {
			discountTotal += applied.AmountCents
		}
		if discountTotal > subtotal {
			discountTotal = subtotal
		}
		if discountTotal < 0 {
			discountTotal = 0
		}

		// The quote was computed outside this transaction, so usage caps
		// are re-checked here. Two checkouts can both quote under the
		// limit; the recount against committed usage rows lets only one
		// of them persist.
		if err := checkDiscountLimits(ctx, discountRepo, input.UserID, input.Applied); err != nil {
			return err
		}

		cartID := cart.ID
		order := &models.Order{
			ID:            uuid.New(),
			UserID:        input.UserID,
			CartID:        &cartID,
			SubtotalCents: subtotal,
			DiscountCents: discountTotal,
			TotalCents:    subtotal - discountTotal,
			Status:        enums.OrderStatusAwaitingApproval,
		}
		if err := orderRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderItem, 0, len(cart.Items))
		for _, item := range cart.Items {
			items = append(items, models.OrderItem{
				ID:             uuid.New(),
				OrderID:        order.ID,
				ProductID:      item.ProductID,
				Qty:            item.Qty,
				UnitPriceCents: item.UnitPriceCents,
				TotalCents:     item.Qty * item.UnitPriceCents,
			})
		}
		if err := orderRepo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		payload := orders.OrderCreatedPayload{
			SubtotalCents: subtotal,
			DiscountCents: discountTotal,
			TotalCents:    subtotal - discountTotal,
		}
		usages := make([]models.DiscountUsage, 0, len(input.Applied))
		for _, applied := range input.Applied {
			payload.Discounts = append(payload.Discounts, orders.AppliedDiscount{
				DiscountID:  applied.DiscountID,
				Name:        applied.Name,
				AmountCents: applied.AmountCents,
			})
			usages = append(usages, models.DiscountUsage{
				ID:          uuid.New(),
				DiscountID:  applied.DiscountID,
				UserID:      input.UserID,
				OrderID:     order.ID,
				AmountCents: applied.AmountCents,
			})
		}
		event, err := orders.NewEvent(order.ID, orders.BuyerActor(input.UserID), enums.EventOrderCreated, payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order created event")
		}
		if err := orderRepo.CreateEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order created event")
		}
		if err := discountRepo.CreateUsages(ctx, usages); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record discount usage")
		}

		flipped, err := cartRepo.UpdateStatusGuarded(ctx, cart.ID, enums.CartStatusActive, enums.CartStatusSubmitted)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit cart")
		}
		if !flipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart was submitted concurrently")
		}

		result = CreateOrderResult{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			SubtotalCents: subtotal,
			DiscountCents: discountTotal,
			TotalCents:    subtotal - discountTotal,
		}
		return nil
	})
	if err != nil {
		return CreateOrderResult{}, err
	}
	return result, nil
}

func checkDiscountLimits(ctx context.Context, repo discounts.Repository, userID uuid.UUID, applied []discounts.Applied) error {
	if len(applied) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(applied))
	for _, entry := range applied {
		ids = append(ids, entry.DiscountID)
	}
	rows, err := repo.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discounts")
	}
	byID := make(map[uuid.UUID]models.Discount, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	for _, entry := range applied {
		// A quoted discount may have been deleted since; with no row
		// there is no limit left to enforce.
		discount, ok := byID[entry.DiscountID]
		if !ok {
			continue
		}
		if discount.MaxUses != nil {
			used, err := repo.CountUsage(ctx, discount.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count discount usage")
			}
			if used >= int64(*discount.MaxUses) {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("discount %q is no longer available", discount.Name))
			}
		}
		if discount.PerUserLimit != nil {
			used, err := repo.CountUserUsage(ctx, discount.ID, userID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count discount usage")
			}
			if used >= int64(*discount.PerUserLimit) {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("discount %q is no longer available", discount.Name))
			}
		}
	}
	return nil
}
