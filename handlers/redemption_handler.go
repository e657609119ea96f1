package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/middleware"
	"drinkOnMeAPI/services"
)

type RedemptionHandler struct {
	redemptionService *services.RedemptionService
}

func NewRedemptionHandler(redemptionService *services.RedemptionService) *RedemptionHandler {
	return &RedemptionHandler{
		redemptionService: redemptionService,
	}
}

// POST /redemptions/issue
//
// Issuing twice for the same offer returns the existing live token, so the
// accept flow can retry without minting duplicates.
func (h *RedemptionHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetUserID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		OfferID     string `json:"offer_id"`
		VenueID     string `json:"venue_id"`
		RecipientID string `json:"recipient_id"`
		DrinkItem   string `json:"drink_item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OfferID == "" || req.VenueID == "" || req.RecipientID == "" {
		respondWithError(w, http.StatusBadRequest, "offer_id, venue_id and recipient_id are required")
		return
	}

	token, err := h.redemptionService.Issue(ctx, req.OfferID, req.VenueID, req.RecipientID, req.DrinkItem)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusCreated, token)
}

// POST /drinks/redeem
func (h *RedemptionHandler) RedeemCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	bartenderID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "code is required")
		return
	}

	token, err := h.redemptionService.Redeem(ctx, req.Code, bartenderID)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "Code not found")
		case errors.Is(err, apperr.ErrAlreadyRedeemed):
			respondWithError(w, http.StatusConflict, "Code already redeemed")
		case errors.Is(err, apperr.ErrExpired):
			respondWithError(w, http.StatusGone, "Code expired")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to redeem code")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, token)
}
