package cron

import (
	"context"
	"fmt"

	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

type offerExpirer interface {
	ExpireOffers(ctx context.Context, limit int) (int, error)
}

// WaitlistExpiryJobParams configure the lapsed offer sweep.
type WaitlistExpiryJobParams struct {
	Logger    *logger.Logger
	Waitlist  offerExpirer
	BatchSize int
}

// NewWaitlistExpiryJob builds the job that retires unanswered waitlist
// offers and moves the capacity down the queue.
func NewWaitlistExpiryJob(params WaitlistExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Waitlist == nil {
		return nil, fmt.Errorf("waitlist service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &waitlistExpiryJob{
		logg:     params.Logger,
		waitlist: params.Waitlist,
		batch:    batch,
	}, nil
}

type waitlistExpiryJob struct {
	logg     *logger.Logger
	waitlist offerExpirer
	batch    int
}

func (j *waitlistExpiryJob) Name() string { return "waitlist-expiry" }

func (j *waitlistExpiryJob) Run(ctx context.Context) error {
	total := 0
	for {
		lapsed, err := j.waitlist.ExpireOffers(ctx, j.batch)
		total += lapsed
		if err != nil {
			return fmt.Errorf("expire waitlist offers: %w", err)
		}
		if lapsed < j.batch {
			break
		}
	}
	if total > 0 {
		j.logg.Info(j.logg.WithField(ctx, "lapsed", total), "lapsed waitlist offers retired")
	}
	return nil
}
