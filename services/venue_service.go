package services

import (
	"context"
	"fmt"

	"drinkOnMeAPI/internal/storage"
	"drinkOnMeAPI/internal/types/venue"
)

// VenueService is a thin read layer over the venue reference data. Venue
// management itself lives outside the core.
type VenueService struct {
	store storage.VenueStore
}

func NewVenueService(store storage.VenueStore) *VenueService {
	return &VenueService{store: store}
}

func (s *VenueService) GetAllVenues(ctx context.Context) ([]venue.Venue, error) {
	venues, err := s.store.ListVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	return venues, nil
}

func (s *VenueService) GetVenue(ctx context.Context, id string) (*venue.Venue, error) {
	return s.store.GetVenue(ctx, id)
}

// Seed loads venue reference data at startup, typically from a fixture in
// development. Production venue data arrives through venue management.
func (s *VenueService) Seed(ctx context.Context, venues []venue.Venue) error {
	for _, v := range venues {
		if err := s.store.UpsertVenue(ctx, v); err != nil {
			return fmt.Errorf("failed to seed venue %s: %w", v.ID, err)
		}
	}
	return nil
}
