package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const (
	OrderExpiryJobName     = "pending-order-expiry"
	defaultExpiryBatchSize = 100
)

type orderExpirer interface {
	ExpirableOrders(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type OrderExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    orderExpirer
	TTL       time.Duration
	BatchSize int
}

// orderExpiryJob cancels orders left pending and unpaid longer than the TTL,
// restocking their items through the orders service.
type orderExpiryJob struct {
	logg      *logger.Logger
	orders    orderExpirer
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("pending order ttl must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &orderExpiryJob{
		logg:      params.Logger,
		orders:    params.Orders,
		ttl:       params.TTL,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

func (j *orderExpiryJob) Name() string { return OrderExpiryJobName }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.orders.ExpirableOrders(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list expirable orders: %w", err)
	}

	var (
		expired, skipped int
		errs             error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		ok, err := j.orders.ExpirePending(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if ok {
			expired++
		} else {
			skipped++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(ids),
		"expired":    expired,
		"skipped":    skipped,
		"failed":     len(multierr.Errors(errs)),
	}), "pending order expiry complete")
	return errs
}
