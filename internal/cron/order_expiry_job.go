package cron

import (
	"context"
	"fmt"

	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

// OrderExpiryJobParams configure the abandoned checkout sweep.
type OrderExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    batchExpirer
	BatchSize int
}

// NewOrderExpiryJob builds the job that cancels pending orders whose
// checkout window lapsed without payment.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		batch:  batch,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders batchExpirer
	batch  int
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		cancelled, err := j.orders.ExpireBatch(ctx, j.batch)
		total += cancelled
		if err != nil {
			return fmt.Errorf("expire orders: %w", err)
		}
		if cancelled < j.batch {
			break
		}
	}
	if total > 0 {
		j.logg.Info(j.logg.WithField(ctx, "cancelled", total), "abandoned checkouts cancelled")
	}
	return nil
}
