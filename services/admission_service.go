package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"drinkOnMeAPI/internal/ingest"
	"drinkOnMeAPI/internal/observability"
	"drinkOnMeAPI/internal/storage"
	"drinkOnMeAPI/internal/types/drink"
)

// AdmissionPolicy holds the thresholds the controller enforces. They are
// configuration, not constants: every value comes from config.Load.
type AdmissionPolicy struct {
	HourlyCap          int
	DailyCap           int
	HourlyWindow       time.Duration
	DailyWindow        time.Duration
	ViolationWindow    time.Duration
	ViolationThreshold int
	SuspensionDuration time.Duration
}

// AdmissionService decides, synchronously, whether a user may take part in
// a new drink transaction. Caps use sliding windows measured back from now,
// never calendar buckets, so the boundary cannot be gamed.
type AdmissionService struct {
	ledger     storage.LedgerStore
	violations storage.ViolationStore
	policy     AdmissionPolicy

	// producer is the optional Kafka ledger feed.
	producer *ingest.LedgerProducer
	logger   *slog.Logger
	now      func() time.Time
}

func NewAdmissionService(ledger storage.LedgerStore, violations storage.ViolationStore, policy AdmissionPolicy, logger *slog.Logger) *AdmissionService {
	return &AdmissionService{
		ledger:     ledger,
		violations: violations,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// SetLedgerProducer wires the optional accepted-drink event feed.
func (s *AdmissionService) SetLedgerProducer(p *ingest.LedgerProducer) {
	s.producer = p
}

// CheckEligibility gates a new drink for the user. Receiving is capped by
// the rolling hourly and daily windows; sending is not capped but is still
// blocked while suspended. A cap denial counts as a violation, and enough
// violations inside the violation window suspend the account.
func (s *AdmissionService) CheckEligibility(ctx context.Context, userID string, dir drink.Direction) (drink.Eligibility, error) {
	now := s.now()

	until, err := s.violations.SuspendedUntil(ctx, userID)
	if err != nil {
		return drink.Eligibility{}, fmt.Errorf("failed to load suspension: %w", err)
	}
	if until != nil && now.Before(*until) {
		observability.EligibilityDenied.WithLabelValues(drink.ReasonSuspended).Inc()
		return drink.Eligibility{Eligible: false, Reason: drink.ReasonSuspended, RetryAt: until}, nil
	}

	if dir != drink.DirectionReceived {
		return drink.Eligibility{Eligible: true}, nil
	}

	if denied, elig, err := s.checkCap(ctx, userID, now, s.policy.HourlyWindow, s.policy.HourlyCap, drink.ReasonHourlyLimit); denied || err != nil {
		return elig, err
	}
	if denied, elig, err := s.checkCap(ctx, userID, now, s.policy.DailyWindow, s.policy.DailyCap, drink.ReasonDailyLimit); denied || err != nil {
		return elig, err
	}

	return drink.Eligibility{Eligible: true}, nil
}

func (s *AdmissionService) checkCap(ctx context.Context, userID string, now time.Time, window time.Duration, limit int, reason string) (bool, drink.Eligibility, error) {
	since := now.Add(-window)
	count, err := s.ledger.CountSince(ctx, userID, drink.DirectionReceived, since)
	if err != nil {
		return false, drink.Eligibility{}, fmt.Errorf("failed to count ledger window: %w", err)
	}
	if count < limit {
		return false, drink.Eligibility{}, nil
	}

	// The cap frees up when the oldest entry slides out of the window.
	var retryAt *time.Time
	if oldest, err := s.ledger.OldestInWindow(ctx, userID, drink.DirectionReceived, since); err == nil && oldest != nil {
		t := oldest.Add(window)
		retryAt = &t
	}

	observability.EligibilityDenied.WithLabelValues(reason).Inc()
	if err := s.recordViolation(ctx, userID, now); err != nil {
		s.logger.Warn("failed to record violation", "user_id", userID, "error", err)
	}
	return true, drink.Eligibility{Eligible: false, Reason: reason, RetryAt: retryAt}, nil
}

func (s *AdmissionService) recordViolation(ctx context.Context, userID string, now time.Time) error {
	if err := s.violations.AddViolation(ctx, userID, now); err != nil {
		return err
	}
	count, _, err := s.violations.ViolationsSince(ctx, userID, now.Add(-s.policy.ViolationWindow))
	if err != nil {
		return err
	}
	if count >= s.policy.ViolationThreshold {
		until := now.Add(s.policy.SuspensionDuration)
		if err := s.violations.Suspend(ctx, userID, until); err != nil {
			return err
		}
		s.logger.Warn("user suspended", "user_id", userID, "violations", count, "until", until)
	}
	return nil
}

// RecordDrink appends a ledger entry once a drink is actually accepted, not
// merely offered. It is idempotent per (offer, direction) so retries never
// double-count.
func (s *AdmissionService) RecordDrink(ctx context.Context, userID, offerID string, dir drink.Direction) error {
	entry := drink.LedgerEntry{
		UserID:    userID,
		OfferID:   offerID,
		Direction: dir,
		Timestamp: s.now(),
	}
	added, err := s.ledger.Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to record drink: %w", err)
	}
	if !added {
		return nil
	}
	observability.DrinksRecorded.WithLabelValues(string(dir)).Inc()
	if s.producer != nil {
		if err := s.producer.PublishEntry(entry); err != nil {
			s.logger.Warn("failed to publish ledger entry", "offer_id", offerID, "error", err)
		}
	}
	return nil
}

// LimitsSnapshot builds the derived limit view the client renders: window
// counts, violations, suspension and last accepted drink.
func (s *AdmissionService) LimitsSnapshot(ctx context.Context, userID string) (*drink.LimitState, error) {
	now := s.now()
	state := &drink.LimitState{UserID: userID}

	var err error
	state.HourlyCount, err = s.ledger.CountSince(ctx, userID, drink.DirectionReceived, now.Add(-s.policy.HourlyWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count hourly window: %w", err)
	}
	state.DailyCount, err = s.ledger.CountSince(ctx, userID, drink.DirectionReceived, now.Add(-s.policy.DailyWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count daily window: %w", err)
	}

	count, oldest, err := s.violations.ViolationsSince(ctx, userID, now.Add(-s.policy.ViolationWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}
	state.ViolationCount = count
	state.ViolationWindowStart = oldest

	until, err := s.violations.SuspendedUntil(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load suspension: %w", err)
	}
	if until != nil && now.Before(*until) {
		state.SuspendedUntil = until
	}

	state.LastDrinkAt, err = s.ledger.LastEntryAt(ctx, userID, drink.DirectionReceived)
	if err != nil {
		return nil, fmt.Errorf("failed to load last drink: %w", err)
	}
	return state, nil
}
