package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/services"
)

type VenueHandler struct {
	venueService    *services.VenueService
	presenceService *services.PresenceService
}

func NewVenueHandler(venueService *services.VenueService, presenceService *services.PresenceService) *VenueHandler {
	return &VenueHandler{
		venueService:    venueService,
		presenceService: presenceService,
	}
}

// GET /venues
func (h *VenueHandler) GetVenues(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	venues, err := h.venueService.GetAllVenues(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch venues")
		return
	}

	respondWithJSON(w, http.StatusOK, venues)
}

// GET /venues/{id}/occupancy
func (h *VenueHandler) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	venueID := mux.Vars(r)["id"]

	occ, err := h.presenceService.VenueOccupancy(ctx, venueID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Venue not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch occupancy")
		return
	}

	respondWithJSON(w, http.StatusOK, occ)
}
