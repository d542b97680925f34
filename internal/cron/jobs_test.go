package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/ticketloom/ticketloom-backend/pkg/logger"
)

type fakeExpirer struct {
	// one return per call, repeats the last element when exhausted
	counts []int
	err    error
	calls  int
}

func (f *fakeExpirer) next() int {
	idx := f.calls
	f.calls++
	if idx >= len(f.counts) {
		return 0
	}
	return f.counts[idx]
}

func (f *fakeExpirer) ExpireBatch(context.Context, int) (int, error) {
	return f.next(), f.err
}

func (f *fakeExpirer) ExpireOffers(context.Context, int) (int, error) {
	return f.next(), f.err
}

func TestHoldExpiryJobDrainsFullBatches(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	expirer := &fakeExpirer{counts: []int{5, 5, 2}}
	job, err := NewHoldExpiryJob(HoldExpiryJobParams{
		Logger:    logg,
		Holds:     expirer,
		BatchSize: 5,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expirer.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", expirer.calls)
	}
}

func TestOrderExpiryJobStopsOnShortBatch(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	expirer := &fakeExpirer{counts: []int{3}}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:    logg,
		Orders:    expirer,
		BatchSize: 100,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected 1 batch, got %d", expirer.calls)
	}
}

func TestWaitlistExpiryJobPropagatesErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	expirer := &fakeExpirer{err: errors.New("boom")}
	job, err := NewWaitlistExpiryJob(WaitlistExpiryJobParams{
		Logger:   logg,
		Waitlist: expirer,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
