package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/internal/dispatch"
	"drinkOnMeAPI/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are mobile apps, not browsers; origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type RealtimeHandler struct {
	feed            *dispatch.OccupancyFeed
	presenceService *services.PresenceService
}

func NewRealtimeHandler(feed *dispatch.OccupancyFeed, presenceService *services.PresenceService) *RealtimeHandler {
	return &RealtimeHandler{
		feed:            feed,
		presenceService: presenceService,
	}
}

// GET /venues/ws/{id}
//
// Streams occupancy snapshots for one venue. The current snapshot is sent
// on connect, then one message per presence mutation at the venue.
func (h *RealtimeHandler) VenueOccupancyStream(w http.ResponseWriter, r *http.Request) {
	venueID := mux.Vars(r)["id"]

	occ, err := h.presenceService.VenueOccupancy(r.Context(), venueID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Venue not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch occupancy")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	detach := h.feed.Subscribe(venueID, conn)
	defer detach()

	if err := conn.WriteJSON(occ); err != nil {
		return
	}

	// Reads are discarded; the loop only notices the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
