package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mvalderrama/shopflow-backend/internal/carts"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultCartIdleExpiry = 24 * time.Hour

// CartIdleJobParams configure the idle cart sweep.
type CartIdleJobParams struct {
	Logger     *logger.Logger
	Carts      carts.Repository
	Metrics    *metrics.WorkerJobMetrics
	IdleExpiry time.Duration
}

// NewCartIdleJob builds the sweep that expires carts left untouched past the
// idle window. Stock is never held by a cart, so expiry is a pure status flip.
func NewCartIdleJob(params CartIdleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	idleExpiry := params.IdleExpiry
	if idleExpiry <= 0 {
		idleExpiry = defaultCartIdleExpiry
	}
	return &cartIdleJob{
		logg:       params.Logger,
		carts:      params.Carts,
		metrics:    params.Metrics,
		idleExpiry: idleExpiry,
		now:        time.Now,
	}, nil
}

type cartIdleJob struct {
	logg       *logger.Logger
	carts      carts.Repository
	metrics    *metrics.WorkerJobMetrics
	idleExpiry time.Duration
	now        func() time.Time
}

func (j *cartIdleJob) Name() string { return "cart-idle" }

func (j *cartIdleJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.idleExpiry)
	idle, err := j.carts.FindIdleActive(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query idle carts: %w", err)
	}

	var errs []error
	expired := 0
	for _, cart := range idle {
		moved, err := j.carts.UpdateStatusGuarded(ctx, cart.ID, enums.CartStatusActive, enums.CartStatusExpired)
		if err != nil {
			errs = append(errs, fmt.Errorf("cart %s: %w", cart.ID, err))
			continue
		}
		if moved {
			expired++
		}
	}
	j.metrics.AddProcessed(j.Name(), expired)

	logCtx := j.logg.WithFields(ctx, map[string]any{"idle": len(idle), "expired": expired})
	j.logg.Info(logCtx, "idle cart sweep complete")
	return multierr.Combine(errs...)
}
