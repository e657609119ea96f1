package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/internal/storage"
	"drinkOnMeAPI/internal/types/redemption"
)

type recordingNotifier struct {
	offers []string
}

func (n *recordingNotifier) NotifyRedeemed(ctx context.Context, offerID string) error {
	n.offers = append(n.offers, offerID)
	return nil
}

func newRedemptionHarness(t *testing.T) (*RedemptionService, *recordingNotifier, *time.Time) {
	t.Helper()
	store := storage.NewMemory()
	notifier := &recordingNotifier{}
	svc := NewRedemptionService(store, nil, notifier, 24*time.Hour, 6, 8, quietLogger())
	now := time.Date(2026, 6, 13, 22, 0, 0, 0, time.UTC)
	clock := &now
	svc.now = func() time.Time { return *clock }
	return svc, notifier, clock
}

func TestIssueToken(t *testing.T) {
	svc, _, clock := newRedemptionHarness(t)

	tok, err := svc.Issue(context.Background(), "offer_1", "venue_1", "user_r", "Old Fashioned")
	require.NoError(t, err)

	assert.Equal(t, redemption.StatusPending, tok.Status)
	assert.Equal(t, "offer_1", tok.OfferID)
	assert.GreaterOrEqual(t, len(tok.Code), 6)
	assert.LessOrEqual(t, len(tok.Code), 8)
	assert.True(t, tok.ExpiresAt.Equal(clock.Add(24*time.Hour)))
}

func TestIssueIsIdempotentPerOffer(t *testing.T) {
	svc, _, _ := newRedemptionHarness(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)

	second, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.ID, second.ID)
}

func TestIssueAgainAfterExpiry(t *testing.T) {
	svc, _, clock := newRedemptionHarness(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)

	*clock = clock.Add(25 * time.Hour)
	second, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, redemption.StatusPending, second.Status)
}

func TestRedeemHappyPath(t *testing.T) {
	svc, notifier, _ := newRedemptionHarness(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)

	// Codes are matched case-insensitively and whitespace-tolerantly.
	redeemed, err := svc.Redeem(ctx, "  "+strings.ToLower(tok.Code)+" ", "bartender_1")
	require.NoError(t, err)
	assert.Equal(t, redemption.StatusRedeemed, redeemed.Status)
	require.NotNil(t, redeemed.RedeemedBy)
	assert.Equal(t, "bartender_1", *redeemed.RedeemedBy)

	assert.Equal(t, []string{"offer_1"}, notifier.offers)
}

func TestRedeemSecondAttemptConflicts(t *testing.T) {
	svc, notifier, _ := newRedemptionHarness(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, tok.Code, "bartender_1")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, tok.Code, "bartender_2")
	assert.ErrorIs(t, err, apperr.ErrAlreadyRedeemed)
	// The order service hears about it exactly once.
	assert.Len(t, notifier.offers, 1)
}

func TestRedeemUnknownCode(t *testing.T) {
	svc, _, _ := newRedemptionHarness(t)

	_, err := svc.Redeem(context.Background(), "ZZZZ99", "bartender_1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Redeem(context.Background(), "   ", "bartender_1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRedeemExpiredCode(t *testing.T) {
	svc, notifier, clock := newRedemptionHarness(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)

	*clock = clock.Add(25 * time.Hour)
	_, err = svc.Redeem(ctx, tok.Code, "bartender_1")
	assert.ErrorIs(t, err, apperr.ErrExpired)
	assert.Empty(t, notifier.offers)
}

func TestExpireSweep(t *testing.T) {
	svc, _, clock := newRedemptionHarness(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "offer_1", "venue_1", "user_r", "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "offer_2", "venue_1", "user_r", "")
	require.NoError(t, err)

	n, err := svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	*clock = clock.Add(25 * time.Hour)
	n, err = svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
