package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"drinkOnMeAPI/internal/types/drink"
	"drinkOnMeAPI/middleware"
	"drinkOnMeAPI/services"
)

type DrinkHandler struct {
	admissionService *services.AdmissionService
}

func NewDrinkHandler(admissionService *services.AdmissionService) *DrinkHandler {
	return &DrinkHandler{
		admissionService: admissionService,
	}
}

// GET /drinks/eligibility/{recipientId}
//
// Called by the sender's client before an offer is even shown, so the
// recipient id comes from the path, not the token. A denial is a 429 with
// the reason and the time the cap frees up.
func (h *DrinkHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetUserID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	recipientID := mux.Vars(r)["recipientId"]
	if recipientID == "" {
		respondWithError(w, http.StatusBadRequest, "recipientId is required")
		return
	}

	dir := drink.DirectionReceived
	if q := r.URL.Query().Get("direction"); q != "" {
		dir = drink.Direction(q)
		if dir != drink.DirectionSent && dir != drink.DirectionReceived {
			respondWithError(w, http.StatusBadRequest, "direction must be 'sent' or 'received'")
			return
		}
	}

	elig, err := h.admissionService.CheckEligibility(ctx, recipientID, dir)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to check eligibility")
		return
	}

	if !elig.Eligible {
		respondWithJSON(w, http.StatusTooManyRequests, elig)
		return
	}
	respondWithJSON(w, http.StatusOK, elig)
}

// POST /drinks/record
func (h *DrinkHandler) RecordDrink(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		OfferID   string `json:"offer_id"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OfferID == "" {
		respondWithError(w, http.StatusBadRequest, "offer_id is required")
		return
	}

	dir := drink.Direction(req.Direction)
	if dir != drink.DirectionSent && dir != drink.DirectionReceived {
		respondWithError(w, http.StatusBadRequest, "direction must be 'sent' or 'received'")
		return
	}

	if err := h.admissionService.RecordDrink(ctx, userID, req.OfferID, dir); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to record drink")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// GET /drinks/limits
func (h *DrinkHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	state, err := h.admissionService.LimitsSnapshot(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch limits")
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}
