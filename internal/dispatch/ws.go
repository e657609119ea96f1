// Package dispatch pushes live occupancy snapshots to subscribed clients.
// The notification/UI layer decides presentation; this feed only carries
// fact.
package dispatch

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"drinkOnMeAPI/internal/types/presence"
)

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(occ presence.Occupancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(occ)
}

// OccupancyFeed holds websocket subscribers per venue and broadcasts the
// fresh occupancy snapshot after every presence mutation.
type OccupancyFeed struct {
	mu   sync.RWMutex
	subs map[string]map[*session]struct{}
}

func NewOccupancyFeed() *OccupancyFeed {
	return &OccupancyFeed{subs: make(map[string]map[*session]struct{})}
}

// Subscribe registers a connection for a venue and returns the detach
// function the handler defers.
func (f *OccupancyFeed) Subscribe(venueID string, conn *websocket.Conn) func() {
	s := &session{conn: conn}
	f.mu.Lock()
	if f.subs[venueID] == nil {
		f.subs[venueID] = make(map[*session]struct{})
	}
	f.subs[venueID][s] = struct{}{}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs[venueID], s)
		f.mu.Unlock()
	}
}

// Broadcast sends the snapshot to every subscriber of its venue. Dead
// connections are dropped on write failure.
func (f *OccupancyFeed) Broadcast(occ presence.Occupancy) {
	f.mu.RLock()
	sessions := make([]*session, 0, len(f.subs[occ.VenueID]))
	for s := range f.subs[occ.VenueID] {
		sessions = append(sessions, s)
	}
	f.mu.RUnlock()

	for _, s := range sessions {
		if err := s.send(occ); err != nil {
			log.Printf("ws send error: %v", err)
			f.mu.Lock()
			delete(f.subs[occ.VenueID], s)
			f.mu.Unlock()
		}
	}
}
