package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"drinkOnMeAPI/internal/dispatch"
	"drinkOnMeAPI/internal/observability"
	"drinkOnMeAPI/internal/storage"
	"drinkOnMeAPI/internal/types/presence"
)

// CheckInOrigin distinguishes user-initiated check-ins from confirmed
// geofence detections, for metrics only.
type CheckInOrigin string

const (
	OriginManual   CheckInOrigin = "manual"
	OriginGeofence CheckInOrigin = "geofence"
)

// PresenceService owns the "who is checked in where" record. All mutation
// goes through CheckIn/CheckOut so the one-active-record invariant holds.
type PresenceService struct {
	store  storage.PresenceStore
	venues storage.VenueStore

	// cache is an optional seconds-scale occupancy cache; occupancy is
	// read far more often than written.
	cache    *redis.Client
	cacheTTL time.Duration

	feed   *dispatch.OccupancyFeed
	logger *slog.Logger
	now    func() time.Time
}

func NewPresenceService(store storage.PresenceStore, venues storage.VenueStore, logger *slog.Logger) *PresenceService {
	return &PresenceService{
		store:  store,
		venues: venues,
		logger: logger,
		now:    time.Now,
	}
}

// SetOccupancyCache wires the optional Redis read-through cache.
func (s *PresenceService) SetOccupancyCache(client *redis.Client, ttl time.Duration) {
	s.cache = client
	s.cacheTTL = ttl
}

// SetFeed wires the optional live occupancy broadcast.
func (s *PresenceService) SetFeed(feed *dispatch.OccupancyFeed) {
	s.feed = feed
}

// CheckIn opens a presence record at the venue, implicitly closing any
// record the user had elsewhere. Re-checking in at the same venue just
// refreshes intent and last-seen.
func (s *PresenceService) CheckIn(ctx context.Context, userID, venueID string, intent presence.Intent, origin CheckInOrigin) (*presence.Record, error) {
	if _, err := s.venues.GetVenue(ctx, venueID); err != nil {
		return nil, err
	}

	prev, err := s.store.ActiveRecord(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active presence: %w", err)
	}

	rec, err := s.store.CheckIn(ctx, userID, venueID, intent, s.now())
	if err != nil {
		return nil, fmt.Errorf("check-in failed: %w", err)
	}

	observability.CheckinsTotal.WithLabelValues(string(origin)).Inc()
	s.invalidateAndBroadcast(ctx, venueID)
	if prev != nil && prev.VenueID != venueID {
		s.invalidateAndBroadcast(ctx, prev.VenueID)
	}
	s.logger.Info("checked in", "user_id", userID, "venue_id", venueID, "origin", string(origin))
	return rec, nil
}

// CheckOut closes the user's active record. Checking out while not checked
// in is a no-op, not an error.
func (s *PresenceService) CheckOut(ctx context.Context, userID string) error {
	prev, err := s.store.ActiveRecord(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load active presence: %w", err)
	}
	if err := s.store.CheckOut(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("check-out failed: %w", err)
	}
	if prev != nil {
		observability.CheckoutsTotal.Inc()
		s.invalidateAndBroadcast(ctx, prev.VenueID)
		s.logger.Info("checked out", "user_id", userID, "venue_id", prev.VenueID)
	}
	return nil
}

// VenueOccupancy returns the active-record counts for a venue, served from
// the cache when fresh.
func (s *PresenceService) VenueOccupancy(ctx context.Context, venueID string) (*presence.Occupancy, error) {
	if _, err := s.venues.GetVenue(ctx, venueID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, occupancyKey(venueID)).Result(); err == nil {
			var occ presence.Occupancy
			if err := json.Unmarshal([]byte(cached), &occ); err == nil {
				return &occ, nil
			}
		}
	}

	occ, err := s.store.VenueOccupancy(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute occupancy: %w", err)
	}
	observability.VenueOccupancy.WithLabelValues(venueID).Set(float64(occ.Total))

	if s.cache != nil {
		if b, err := json.Marshal(occ); err == nil {
			_ = s.cache.Set(ctx, occupancyKey(venueID), b, s.cacheTTL).Err()
		}
	}
	return occ, nil
}

// IsPresentAt confirms physical plausibility before sensitive actions.
// Callers treat a false as a warning, not a hard block: indoor GPS is
// unreliable.
func (s *PresenceService) IsPresentAt(ctx context.Context, userID, venueID string) (bool, error) {
	rec, err := s.store.ActiveRecord(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load active presence: %w", err)
	}
	return rec != nil && rec.VenueID == venueID, nil
}

func (s *PresenceService) invalidateAndBroadcast(ctx context.Context, venueID string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, occupancyKey(venueID)).Err()
	}
	occ, err := s.store.VenueOccupancy(ctx, venueID)
	if err != nil {
		s.logger.Warn("failed to refresh occupancy", "venue_id", venueID, "error", err)
		return
	}
	observability.VenueOccupancy.WithLabelValues(venueID).Set(float64(occ.Total))
	if s.feed != nil {
		s.feed.Broadcast(*occ)
	}
}

func occupancyKey(venueID string) string {
	return "occupancy:" + venueID
}
