package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinkOnMeAPI/internal/storage"
	"drinkOnMeAPI/internal/types/drink"
)

func testPolicy() AdmissionPolicy {
	return AdmissionPolicy{
		HourlyCap:          3,
		DailyCap:           5,
		HourlyWindow:       time.Hour,
		DailyWindow:        24 * time.Hour,
		ViolationWindow:    7 * 24 * time.Hour,
		ViolationThreshold: 5,
		SuspensionDuration: 24 * time.Hour,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAdmissionHarness returns the service pinned to a controllable clock.
func newAdmissionHarness(t *testing.T) (*AdmissionService, *storage.Memory, *time.Time) {
	t.Helper()
	store := storage.NewMemory()
	svc := NewAdmissionService(store, store, testPolicy(), quietLogger())
	now := time.Date(2026, 6, 13, 22, 0, 0, 0, time.UTC)
	clock := &now
	svc.now = func() time.Time { return *clock }
	return svc, store, clock
}

func receiveDrink(t *testing.T, svc *AdmissionService, userID, offerID string) {
	t.Helper()
	require.NoError(t, svc.RecordDrink(context.Background(), userID, offerID, drink.DirectionReceived))
}

func TestEligibleWithNoHistory(t *testing.T) {
	svc, _, _ := newAdmissionHarness(t)

	elig, err := svc.CheckEligibility(context.Background(), "user_r", drink.DirectionReceived)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)
	assert.Empty(t, elig.Reason)
}

func TestHourlyCapDeniesAndFreesUp(t *testing.T) {
	svc, _, clock := newAdmissionHarness(t)
	ctx := context.Background()
	start := *clock

	// Three drinks at t+0, t+1m, t+2m hit the 3/hour cap.
	for i, offset := range []time.Duration{0, time.Minute, 2 * time.Minute} {
		*clock = start.Add(offset)
		receiveDrink(t, svc, "user_r", []string{"offer_a", "offer_b", "offer_c"}[i])
	}

	*clock = start.Add(5 * time.Minute)
	elig, err := svc.CheckEligibility(ctx, "user_r", drink.DirectionReceived)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
	assert.Equal(t, drink.ReasonHourlyLimit, elig.Reason)
	require.NotNil(t, elig.RetryAt)
	// The cap frees when the oldest entry slides out of the hour window.
	assert.True(t, elig.RetryAt.Equal(start.Add(time.Hour)))

	// 61 minutes after the first drink only two remain inside the window.
	*clock = start.Add(61 * time.Minute)
	elig, err = svc.CheckEligibility(ctx, "user_r", drink.DirectionReceived)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)
}

func TestDailyCapDenies(t *testing.T) {
	svc, _, clock := newAdmissionHarness(t)
	ctx := context.Background()
	start := *clock

	// Five drinks spread over hours: each hourly window holds at most two,
	// but the day holds five.
	offers := []string{"offer_a", "offer_b", "offer_c", "offer_d", "offer_e"}
	for i, offset := range []time.Duration{0, 2 * time.Hour, 4 * time.Hour, 6 * time.Hour, 8 * time.Hour} {
		*clock = start.Add(offset)
		receiveDrink(t, svc, "user_r", offers[i])
	}

	*clock = start.Add(9 * time.Hour)
	elig, err := svc.CheckEligibility(ctx, "user_r", drink.DirectionReceived)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
	assert.Equal(t, drink.ReasonDailyLimit, elig.Reason)
	require.NotNil(t, elig.RetryAt)
	assert.True(t, elig.RetryAt.Equal(start.Add(24*time.Hour)))
}

func TestSendingIsNotCapped(t *testing.T) {
	svc, _, clock := newAdmissionHarness(t)
	ctx := context.Background()
	start := *clock

	for i, offer := range []string{"offer_a", "offer_b", "offer_c"} {
		*clock = start.Add(time.Duration(i) * time.Minute)
		receiveDrink(t, svc, "user_r", offer)
	}

	elig, err := svc.CheckEligibility(ctx, "user_r", drink.DirectionSent)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)
}

func TestRepeatedDenialsSuspend(t *testing.T) {
	svc, _, clock := newAdmissionHarness(t)
	ctx := context.Background()
	start := *clock

	for i, offer := range []string{"offer_a", "offer_b", "offer_c"} {
		*clock = start.Add(time.Duration(i) * time.Minute)
		receiveDrink(t, svc, "user_r", offer)
	}

	// Five denials inside the violation window trip the suspension.
	*clock = start.Add(10 * time.Minute)
	for i := 0; i < 5; i++ {
		elig, err := svc.CheckEligibility(ctx, "user_r", drink.DirectionReceived)
		require.NoError(t, err)
		assert.False(t, elig.Eligible)
		assert.Equal(t, drink.ReasonHourlyLimit, elig.Reason)
	}

	elig, err := svc.CheckEligibility(ctx, "user_r", drink.DirectionReceived)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
	assert.Equal(t, drink.ReasonSuspended, elig.Reason)
	require.NotNil(t, elig.RetryAt)
	assert.True(t, elig.RetryAt.Equal(start.Add(10*time.Minute).Add(24*time.Hour)))

	// Suspension blocks sending too.
	elig, err = svc.CheckEligibility(ctx, "user_r", drink.DirectionSent)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
	assert.Equal(t, drink.ReasonSuspended, elig.Reason)
}

func TestSuspensionLifts(t *testing.T) {
	svc, _, clock := newAdmissionHarness(t)
	ctx := context.Background()
	start := *clock

	for i, offer := range []string{"offer_a", "offer_b", "offer_c"} {
		*clock = start.Add(time.Duration(i) * time.Minute)
		receiveDrink(t, svc, "user_r", offer)
	}
	*clock = start.Add(10 * time.Minute)
	for i := 0; i < 5; i++ {
		_, err := svc.CheckEligibility(ctx, "user_r", drink.DirectionReceived)
		require.NoError(t, err)
	}

	// Past the suspension and past both cap windows.
	*clock = start.Add(26 * time.Hour)
	elig, err := svc.CheckEligibility(ctx, "user_r", drink.DirectionReceived)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)
}

func TestRecordDrinkIdempotent(t *testing.T) {
	svc, store, _ := newAdmissionHarness(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordDrink(ctx, "user_r", "offer_a", drink.DirectionReceived))
	require.NoError(t, svc.RecordDrink(ctx, "user_r", "offer_a", drink.DirectionReceived))

	count, err := store.CountSince(ctx, "user_r", drink.DirectionReceived, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLimitsSnapshot(t *testing.T) {
	svc, _, clock := newAdmissionHarness(t)
	ctx := context.Background()
	start := *clock

	receiveDrink(t, svc, "user_r", "offer_a")
	*clock = start.Add(2 * time.Hour)
	receiveDrink(t, svc, "user_r", "offer_b")

	*clock = start.Add(2*time.Hour + time.Minute)
	state, err := svc.LimitsSnapshot(ctx, "user_r")
	require.NoError(t, err)
	assert.Equal(t, 1, state.HourlyCount)
	assert.Equal(t, 2, state.DailyCount)
	assert.Equal(t, 0, state.ViolationCount)
	assert.Nil(t, state.SuspendedUntil)
	require.NotNil(t, state.LastDrinkAt)
	assert.True(t, state.LastDrinkAt.Equal(start.Add(2*time.Hour)))
}
