package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/internal/observability"
	"drinkOnMeAPI/internal/storage"
	"drinkOnMeAPI/internal/types/redemption"
	"drinkOnMeAPI/utils"
)

// maxCodeAttempts bounds code regeneration on insert conflicts. With a
// 32-character alphabet at 6+ characters a single collision is already
// rare; hitting the bound means something is broken upstream.
const maxCodeAttempts = 5

// OrderNotifier propagates redemption to the external order/offer service,
// which flips the owning order to "redeemed".
type OrderNotifier interface {
	NotifyRedeemed(ctx context.Context, offerID string) error
}

// LogOrderNotifier is the default collaborator when no order service is
// wired; it only records that the callback would have fired.
type LogOrderNotifier struct {
	Logger *slog.Logger
}

func (n *LogOrderNotifier) NotifyRedeemed(ctx context.Context, offerID string) error {
	n.Logger.Info("order redeemed", "offer_id", offerID)
	return nil
}

// RedemptionService issues codes for accepted drink offers and consumes
// them exactly once.
type RedemptionService struct {
	tokens   storage.TokenStore
	presence *PresenceService
	orders   OrderNotifier
	logger   *slog.Logger

	ttl           time.Duration
	codeMinLength int
	codeMaxLength int

	now func() time.Time
}

func NewRedemptionService(tokens storage.TokenStore, presence *PresenceService, orders OrderNotifier, ttl time.Duration, codeMin, codeMax int, logger *slog.Logger) *RedemptionService {
	return &RedemptionService{
		tokens:        tokens,
		presence:      presence,
		orders:        orders,
		logger:        logger,
		ttl:           ttl,
		codeMinLength: codeMin,
		codeMaxLength: codeMax,
		now:           time.Now,
	}
}

// Issue creates a pending token for an accepted offer. Re-issuing for an
// offer that already holds a live pending token returns that token, so the
// accept path can be retried safely. Code allocation is insert-if-absent
// with bounded regeneration; no global lock.
func (s *RedemptionService) Issue(ctx context.Context, offerID, venueID, recipientID, drinkItem string) (*redemption.Token, error) {
	now := s.now()

	if existing, err := s.tokens.GetByOffer(ctx, offerID); err == nil {
		if existing.Status == redemption.StatusPending && !existing.Expired(now) {
			return existing, nil
		}
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up offer token: %w", err)
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := utils.GenerateRedemptionCode(s.codeMinLength, s.codeMaxLength)
		if err != nil {
			return nil, err
		}
		t := redemption.Token{
			ID:          uuid.NewString(),
			Code:        code,
			OfferID:     offerID,
			VenueID:     venueID,
			RecipientID: recipientID,
			DrinkItem:   drinkItem,
			Status:      redemption.StatusPending,
			IssuedAt:    now,
			ExpiresAt:   now.Add(s.ttl),
		}
		err = s.tokens.InsertToken(ctx, t)
		if err == nil {
			observability.TokensIssued.Inc()
			s.logger.Info("token issued", "offer_id", offerID, "venue_id", venueID, "expires_at", t.ExpiresAt)
			return &t, nil
		}
		if errors.Is(err, storage.ErrCodeTaken) {
			continue
		}
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return nil, fmt.Errorf("could not allocate a unique code after %d attempts", maxCodeAttempts)
}

// Redeem consumes a code on behalf of venue staff. The pending->redeemed
// transition happens exactly once per code; expiry is checked here rather
// than trusting the sweep. Business-rule failures surface verbatim, never
// masked by retries.
func (s *RedemptionService) Redeem(ctx context.Context, code, bartenderID string) (*redemption.Token, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("empty code: %w", apperr.ErrNotFound)
	}

	t, err := s.tokens.Redeem(ctx, code, bartenderID, s.now())
	if err != nil {
		observability.RedemptionsTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}
	observability.RedemptionsTotal.WithLabelValues("redeemed").Inc()

	// Presence is advisory for redemption: indoor GPS is unreliable, so a
	// mismatch is logged for fraud review rather than blocking the drink.
	if s.presence != nil {
		if present, err := s.presence.IsPresentAt(ctx, t.RecipientID, t.VenueID); err == nil && !present {
			s.logger.Warn("recipient not checked in at redemption venue", "recipient_id", t.RecipientID, "venue_id", t.VenueID, "code", t.Code)
		}
	}

	if err := s.orders.NotifyRedeemed(ctx, t.OfferID); err != nil {
		// The token is already consumed; the order service reconciles on
		// its side. Do not fail the redemption.
		s.logger.Warn("failed to propagate redemption to order service", "offer_id", t.OfferID, "error", err)
	}
	return t, nil
}

// ExpireSweep marks overdue pending tokens expired. Purely cleanup: the
// redeem path rejects expired tokens on its own.
func (s *RedemptionService) ExpireSweep(ctx context.Context) (int, error) {
	n, err := s.tokens.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire sweep failed: %w", err)
	}
	if n > 0 {
		observability.TokensExpired.Add(float64(n))
		s.logger.Info("expired overdue tokens", "count", n)
	}
	return n, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, apperr.ErrExpired):
		return "expired"
	case errors.Is(err, apperr.ErrAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	}
	return "error"
}
