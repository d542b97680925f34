package cron

import (
	"context"
	"fmt"

	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

// batchExpirer is the slice of a domain service the sweep jobs need.
type batchExpirer interface {
	ExpireBatch(ctx context.Context, limit int) (int, error)
}

// HoldExpiryJobParams configure the hold expiry sweep.
type HoldExpiryJobParams struct {
	Logger    *logger.Logger
	Holds     batchExpirer
	BatchSize int
}

// NewHoldExpiryJob builds the job that reclaims seats from expired holds.
// Releasing a hold also re-offers the freed seats to the waitlist inside
// the same transaction.
func NewHoldExpiryJob(params HoldExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Holds == nil {
		return nil, fmt.Errorf("hold service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &holdExpiryJob{
		logg:  params.Logger,
		holds: params.Holds,
		batch: batch,
	}, nil
}

type holdExpiryJob struct {
	logg  *logger.Logger
	holds batchExpirer
	batch int
}

func (j *holdExpiryJob) Name() string { return "hold-expiry" }

func (j *holdExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		released, err := j.holds.ExpireBatch(ctx, j.batch)
		total += released
		if err != nil {
			return fmt.Errorf("expire holds: %w", err)
		}
		if released < j.batch {
			break
		}
	}
	if total > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", total), "expired holds reclaimed")
	}
	return nil
}
