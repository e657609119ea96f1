package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/internal/types/presence"
	"drinkOnMeAPI/middleware"
	"drinkOnMeAPI/services"
)

type PresenceHandler struct {
	presenceService *services.PresenceService
}

func NewPresenceHandler(presenceService *services.PresenceService) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
	}
}

// POST /presence/checkin
func (h *PresenceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		VenueID        string `json:"venue_id"`
		WantsToBuy     bool   `json:"wants_to_buy"`
		WantsToReceive bool   `json:"wants_to_receive"`
		Origin         string `json:"origin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.VenueID == "" {
		respondWithError(w, http.StatusBadRequest, "venue_id is required")
		return
	}

	origin := services.OriginManual
	if req.Origin == string(services.OriginGeofence) {
		origin = services.OriginGeofence
	}

	rec, err := h.presenceService.CheckIn(ctx, userID, req.VenueID, presence.Intent{
		WantsToBuy:     req.WantsToBuy,
		WantsToReceive: req.WantsToReceive,
	}, origin)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Venue not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to check in")
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

// POST /presence/checkout
func (h *PresenceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.presenceService.CheckOut(ctx, userID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to check out")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "checked_out"})
}
