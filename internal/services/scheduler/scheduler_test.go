package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

func pastAutomation(id string) domain.ScheduledAutomation {
	next := time.Now().Add(-time.Minute)
	return domain.ScheduledAutomation{
		ID:            id,
		Active:        true,
		NextExecuteAt: &next,
		Frequency:     domain.FrequencyWeekly,
	}
}

func TestScheduler_ImmediateFirstSweep(t *testing.T) {
	s := New(zap.NewNop(), time.Hour) // interval long enough to never tick in-test

	received := make(chan []domain.ScheduledAutomation, 1)
	get := func() []domain.ScheduledAutomation {
		return []domain.ScheduledAutomation{pastAutomation("pay-1")}
	}
	onDue := func(_ context.Context, due []domain.ScheduledAutomation) {
		received <- due
	}

	require.NoError(t, s.Start(context.Background(), get, onDue))
	defer s.Stop()

	select {
	case due := <-received:
		require.Len(t, due, 1)
		assert.Equal(t, "pay-1", due[0].ID)
	case <-time.After(time.Second):
		t.Fatal("due automation was not delivered on the first sweep")
	}
}

func TestScheduler_NotDueNotDelivered(t *testing.T) {
	s := New(zap.NewNop(), 10*time.Millisecond)

	received := make(chan []domain.ScheduledAutomation, 8)
	future := time.Now().Add(time.Hour)
	get := func() []domain.ScheduledAutomation {
		return []domain.ScheduledAutomation{
			{ID: "future", Active: true, NextExecuteAt: &future, Frequency: domain.FrequencyWeekly},
			{ID: "inactive", Active: false, NextExecuteAt: &future, Frequency: domain.FrequencyWeekly},
			{ID: "no-deadline", Active: true, Frequency: domain.FrequencyOnce},
		}
	}
	onDue := func(_ context.Context, due []domain.ScheduledAutomation) {
		received <- due
	}

	require.NoError(t, s.Start(context.Background(), get, onDue))
	defer s.Stop()

	select {
	case due := <-received:
		t.Fatalf("unexpected delivery: %+v", due)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	s := New(zap.NewNop(), time.Hour)
	get := func() []domain.ScheduledAutomation { return nil }
	onDue := func(context.Context, []domain.ScheduledAutomation) {}

	require.NoError(t, s.Start(context.Background(), get, onDue))
	defer s.Stop()

	assert.ErrorIs(t, s.Start(context.Background(), get, onDue), ErrAlreadyStarted)
}

func TestScheduler_StopIdempotent(t *testing.T) {
	s := New(zap.NewNop(), time.Hour)
	s.Stop() // safe before start

	require.NoError(t, s.Start(context.Background(),
		func() []domain.ScheduledAutomation { return nil },
		func(context.Context, []domain.ScheduledAutomation) {}))
	s.Stop()
	s.Stop()
}
