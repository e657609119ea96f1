package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/internal/types/drink"
	"drinkOnMeAPI/internal/types/presence"
	"drinkOnMeAPI/internal/types/redemption"
)

func pendingToken(code, offerID string, expiresAt time.Time) redemption.Token {
	return redemption.Token{
		ID:          "tok_" + code,
		Code:        code,
		OfferID:     offerID,
		VenueID:     "venue_1",
		RecipientID: "user_r",
		Status:      redemption.StatusPending,
		IssuedAt:    expiresAt.Add(-24 * time.Hour),
		ExpiresAt:   expiresAt,
	}
}

func TestCheckInClosesPreviousRecord(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	_, err := m.CheckIn(ctx, "user_1", "venue_a", presence.Intent{WantsToBuy: true}, now)
	require.NoError(t, err)

	_, err = m.CheckIn(ctx, "user_1", "venue_b", presence.Intent{}, now.Add(time.Minute))
	require.NoError(t, err)

	active, err := m.ActiveRecord(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "venue_b", active.VenueID)

	occA, _ := m.VenueOccupancy(ctx, "venue_a")
	occB, _ := m.VenueOccupancy(ctx, "venue_b")
	assert.Equal(t, 0, occA.Total)
	assert.Equal(t, 1, occB.Total)
}

func TestCheckInSameVenueRefreshes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	first, err := m.CheckIn(ctx, "user_1", "venue_a", presence.Intent{}, now)
	require.NoError(t, err)

	second, err := m.CheckIn(ctx, "user_1", "venue_a", presence.Intent{WantsToReceive: true}, now.Add(time.Minute))
	require.NoError(t, err)

	// Same record, refreshed intent and last-seen; no duplicate.
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Intent.WantsToReceive)

	occ, _ := m.VenueOccupancy(ctx, "venue_a")
	assert.Equal(t, 1, occ.Total)
	assert.Equal(t, 1, occ.WantsToReceive)
}

func TestCheckOutIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	_, err := m.CheckIn(ctx, "user_1", "venue_a", presence.Intent{}, now)
	require.NoError(t, err)

	require.NoError(t, m.CheckOut(ctx, "user_1", now.Add(time.Minute)))
	require.NoError(t, m.CheckOut(ctx, "user_1", now.Add(2*time.Minute)))

	active, err := m.ActiveRecord(ctx, "user_1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestLedgerAppendIdempotentPerOfferAndDirection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	added, err := m.Append(ctx, drink.LedgerEntry{UserID: "user_r", OfferID: "offer_1", Direction: drink.DirectionReceived, Timestamp: now})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = m.Append(ctx, drink.LedgerEntry{UserID: "user_r", OfferID: "offer_1", Direction: drink.DirectionReceived, Timestamp: now})
	require.NoError(t, err)
	assert.False(t, added)

	// The sender's side of the same offer is a separate entry.
	added, err = m.Append(ctx, drink.LedgerEntry{UserID: "user_s", OfferID: "offer_1", Direction: drink.DirectionSent, Timestamp: now})
	require.NoError(t, err)
	assert.True(t, added)

	count, err := m.CountSince(ctx, "user_r", drink.DirectionReceived, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCountSinceWindowBoundaries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	for i, offset := range []time.Duration{0, time.Minute, 2 * time.Minute, 5 * time.Minute} {
		_, err := m.Append(ctx, drink.LedgerEntry{
			UserID:    "user_r",
			OfferID:   string(rune('a' + i)),
			Direction: drink.DirectionReceived,
			Timestamp: base.Add(offset),
		})
		require.NoError(t, err)
	}

	count, err := m.CountSince(ctx, "user_r", drink.DirectionReceived, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	oldest, err := m.OldestInWindow(ctx, "user_r", drink.DirectionReceived, base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.True(t, oldest.Equal(base.Add(time.Minute)))

	last, err := m.LastEntryAt(ctx, "user_r", drink.DirectionReceived)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(base.Add(5*time.Minute)))
}

func TestInsertTokenRejectsLiveCodeCollision(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.InsertToken(ctx, pendingToken("ABC234", "offer_1", now.Add(time.Hour))))

	err := m.InsertToken(ctx, pendingToken("abc234", "offer_2", now.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestInsertTokenReusesCodeAfterTerminalState(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	// Expired holder frees the code for a new token.
	require.NoError(t, m.InsertToken(ctx, pendingToken("ABC234", "offer_1", now.Add(-time.Hour))))
	require.NoError(t, m.InsertToken(ctx, pendingToken("ABC234", "offer_2", now.Add(time.Hour))))

	tok, err := m.GetByCode(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, "offer_2", tok.OfferID)
}

func TestRedeemExactlyOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.InsertToken(ctx, pendingToken("ABC234", "offer_1", now.Add(time.Hour))))

	tok, err := m.Redeem(ctx, "abc234", "bartender_1", now)
	require.NoError(t, err)
	assert.Equal(t, redemption.StatusRedeemed, tok.Status)
	require.NotNil(t, tok.RedeemedBy)
	assert.Equal(t, "bartender_1", *tok.RedeemedBy)
	require.NotNil(t, tok.RedeemedAt)

	_, err = m.Redeem(ctx, "ABC234", "bartender_2", now)
	assert.ErrorIs(t, err, apperr.ErrAlreadyRedeemed)
}

func TestRedeemUnknownCode(t *testing.T) {
	m := NewMemory()
	_, err := m.Redeem(context.Background(), "NOPE42", "bartender_1", time.Now())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRedeemExpiredBeatsAlreadyRedeemed(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	// Overdue but not yet swept: the caller must see Expired, never a
	// misleading AlreadyRedeemed.
	require.NoError(t, m.InsertToken(ctx, pendingToken("ABC234", "offer_1", now.Add(-time.Minute))))

	_, err := m.Redeem(ctx, "ABC234", "bartender_1", now)
	assert.ErrorIs(t, err, apperr.ErrExpired)

	// And it stays Expired on retry after the lazy sweep above.
	_, err = m.Redeem(ctx, "ABC234", "bartender_1", now)
	assert.ErrorIs(t, err, apperr.ErrExpired)
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.InsertToken(ctx, pendingToken("ABC234", "offer_1", now.Add(time.Hour))))

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	conflicts := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Redeem(ctx, "ABC234", "bartender_1", now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, apperr.ErrAlreadyRedeemed):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
}

func TestExpireOverdue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.InsertToken(ctx, pendingToken("AAA234", "offer_1", now.Add(-time.Hour))))
	require.NoError(t, m.InsertToken(ctx, pendingToken("BBB234", "offer_2", now.Add(time.Hour))))

	n, err := m.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tok, err := m.GetByCode(ctx, "AAA234")
	require.NoError(t, err)
	assert.Equal(t, redemption.StatusExpired, tok.Status)

	tok, err = m.GetByCode(ctx, "BBB234")
	require.NoError(t, err)
	assert.Equal(t, redemption.StatusPending, tok.Status)

	// Sweeping again finds nothing new.
	n, err = m.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestViolationsWindowAndSuspension(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.AddViolation(ctx, "user_1", now.Add(time.Duration(i)*time.Hour)))
	}
	require.NoError(t, m.AddViolation(ctx, "user_1", now.Add(-8*24*time.Hour)))

	count, oldest, err := m.ViolationsSince(ctx, "user_1", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NotNil(t, oldest)
	assert.True(t, oldest.Equal(now))

	until := now.Add(24 * time.Hour)
	require.NoError(t, m.Suspend(ctx, "user_1", until))

	got, err := m.SuspendedUntil(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(until))

	none, err := m.SuspendedUntil(ctx, "user_2")
	require.NoError(t, err)
	assert.Nil(t, none)
}
