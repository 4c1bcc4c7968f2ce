package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/payments"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultRetryAfter = 5 * time.Minute

type inviteRetrier interface {
	RetryInvite(ctx context.Context, orderID uuid.UUID) (payments.ApproveResult, error)
}

// InviteRetryJobParams configure the stuck-approval retry sweep.
type InviteRetryJobParams struct {
	Logger     *logger.Logger
	Orders     orders.Repository
	Payments   inviteRetrier
	Metrics    *metrics.WorkerJobMetrics
	RetryAfter time.Duration
}

// NewInviteRetryJob builds the sweep that retries instruction delivery for
// orders stuck in APPROVED after a failed invite creation.
func NewInviteRetryJob(params InviteRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	retryAfter := params.RetryAfter
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	return &inviteRetryJob{
		logg:       params.Logger,
		orders:     params.Orders,
		payments:   params.Payments,
		metrics:    params.Metrics,
		retryAfter: retryAfter,
		now:        time.Now,
	}, nil
}

type inviteRetryJob struct {
	logg       *logger.Logger
	orders     orders.Repository
	payments   inviteRetrier
	metrics    *metrics.WorkerJobMetrics
	retryAfter time.Duration
	now        func() time.Time
}

func (j *inviteRetryJob) Name() string { return "invite-retry" }

func (j *inviteRetryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retryAfter)
	stuck, err := j.orders.FindStuckApproved(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stuck approvals: %w", err)
	}

	var errs []error
	advanced := 0
	for _, order := range stuck {
		result, err := j.payments.RetryInvite(ctx, order.ID)
		if err != nil {
			// Another writer may have moved the order since the query.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				continue
			}
			errs = append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if result.Advanced {
			advanced++
		}
	}
	j.metrics.AddProcessed(j.Name(), advanced)

	logCtx := j.logg.WithFields(ctx, map[string]any{"stuck": len(stuck), "advanced": advanced})
	j.logg.Info(logCtx, "invite retry sweep complete")
	return multierr.Combine(errs...)
}
