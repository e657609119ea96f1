package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/internal/types/drink"
	"drinkOnMeAPI/internal/types/presence"
	"drinkOnMeAPI/internal/types/redemption"
	"drinkOnMeAPI/internal/types/venue"
)

// Memory is the in-process implementation of every store. It backs the
// binary when no DATABASE_URL is configured and carries the unit tests.
// A single mutex per store is enough: operations are short and keyed to
// one entity.
type Memory struct {
	mu sync.Mutex

	venues  map[string]venue.Venue
	records []*presence.Record
	ledger  []drink.LedgerEntry
	offers  map[string]bool // (offerID|direction) already appended
	tokens  map[string]*redemption.Token
	byOffer map[string]string // offerID -> code

	violations  map[string][]time.Time
	suspensions map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		venues:      make(map[string]venue.Venue),
		offers:      make(map[string]bool),
		tokens:      make(map[string]*redemption.Token),
		byOffer:     make(map[string]string),
		violations:  make(map[string][]time.Time),
		suspensions: make(map[string]time.Time),
	}
}

// ---------------------------------------------------------------------------
// VenueStore

func (m *Memory) ListVenues(ctx context.Context) ([]venue.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]venue.Venue, 0, len(m.venues))
	for _, v := range m.venues {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetVenue(ctx context.Context, id string) (*venue.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.venues[id]
	if !ok {
		return nil, fmt.Errorf("venue %s: %w", id, apperr.ErrNotFound)
	}
	return &v, nil
}

func (m *Memory) UpsertVenue(ctx context.Context, v venue.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venues[v.ID] = v
	return nil
}

// ---------------------------------------------------------------------------
// PresenceStore

func (m *Memory) CheckIn(ctx context.Context, userID, venueID string, intent presence.Intent, now time.Time) (*presence.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active := m.activeLocked(userID); active != nil {
		if active.VenueID == venueID {
			active.Intent = intent
			active.LastSeen = now
			rec := *active
			return &rec, nil
		}
		// Implicit check-out, stamped with the same timestamp as the new
		// check-in.
		t := now
		active.CheckedOutAt = &t
	}

	rec := &presence.Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		VenueID:     venueID,
		CheckedInAt: now,
		LastSeen:    now,
		Intent:      intent,
	}
	m.records = append(m.records, rec)
	out := *rec
	return &out, nil
}

func (m *Memory) CheckOut(ctx context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active := m.activeLocked(userID); active != nil {
		t := now
		active.CheckedOutAt = &t
	}
	return nil
}

func (m *Memory) ActiveRecord(ctx context.Context, userID string) (*presence.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active := m.activeLocked(userID); active != nil {
		rec := *active
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) VenueOccupancy(ctx context.Context, venueID string) (*presence.Occupancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	occ := &presence.Occupancy{VenueID: venueID}
	for _, r := range m.records {
		if r.VenueID != venueID || !r.Active() {
			continue
		}
		occ.Total++
		if r.Intent.WantsToBuy {
			occ.WantsToBuy++
		}
		if r.Intent.WantsToReceive {
			occ.WantsToReceive++
		}
	}
	return occ, nil
}

func (m *Memory) activeLocked(userID string) *presence.Record {
	for _, r := range m.records {
		if r.UserID == userID && r.Active() {
			return r
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// LedgerStore

func (m *Memory) Append(ctx context.Context, e drink.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := e.OfferID + "|" + string(e.Direction)
	if m.offers[key] {
		return false, nil
	}
	m.offers[key] = true
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.ledger = append(m.ledger, e)
	return true, nil
}

func (m *Memory) CountSince(ctx context.Context, userID string, dir drink.Direction, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.ledger {
		if e.UserID == userID && e.Direction == dir && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) LastEntryAt(ctx context.Context, userID string, dir drink.Direction) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, e := range m.ledger {
		if e.UserID != userID || e.Direction != dir {
			continue
		}
		t := e.Timestamp
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last, nil
}

func (m *Memory) OldestInWindow(ctx context.Context, userID string, dir drink.Direction, since time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *time.Time
	for _, e := range m.ledger {
		if e.UserID != userID || e.Direction != dir || e.Timestamp.Before(since) {
			continue
		}
		t := e.Timestamp
		if oldest == nil || t.Before(*oldest) {
			oldest = &t
		}
	}
	return oldest, nil
}

// ---------------------------------------------------------------------------
// ViolationStore

func (m *Memory) AddViolation(ctx context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations[userID] = append(m.violations[userID], at)
	return nil
}

func (m *Memory) ViolationsSince(ctx context.Context, userID string, since time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *time.Time
	n := 0
	for _, at := range m.violations[userID] {
		if at.Before(since) {
			continue
		}
		n++
		t := at
		if oldest == nil || t.Before(*oldest) {
			oldest = &t
		}
	}
	return n, oldest, nil
}

func (m *Memory) SuspendedUntil(ctx context.Context, userID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.suspensions[userID]
	if !ok {
		return nil, nil
	}
	t := until
	return &t, nil
}

func (m *Memory) Suspend(ctx context.Context, userID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspensions[userID] = until
	return nil
}

// ---------------------------------------------------------------------------
// TokenStore

func (m *Memory) InsertToken(ctx context.Context, t redemption.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := normalizeCode(t.Code)
	if existing, ok := m.tokens[code]; ok {
		// A code frees up only once its previous holder is terminal.
		if existing.Status == redemption.StatusPending && !existing.Expired(time.Now()) {
			return ErrCodeTaken
		}
	}
	t.Code = code
	m.tokens[code] = &t
	m.byOffer[t.OfferID] = code
	return nil
}

func (m *Memory) GetByCode(ctx context.Context, code string) (*redemption.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[normalizeCode(code)]
	if !ok {
		return nil, fmt.Errorf("code %s: %w", code, apperr.ErrNotFound)
	}
	out := *t
	return &out, nil
}

func (m *Memory) GetByOffer(ctx context.Context, offerID string) (*redemption.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.byOffer[offerID]
	if !ok {
		return nil, fmt.Errorf("offer %s: %w", offerID, apperr.ErrNotFound)
	}
	out := *m.tokens[code]
	return &out, nil
}

func (m *Memory) Redeem(ctx context.Context, code, bartenderID string, now time.Time) (*redemption.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[normalizeCode(code)]
	if !ok {
		return nil, fmt.Errorf("code %s: %w", code, apperr.ErrNotFound)
	}
	// Expiry wins over the redeemed state: an expired-but-unswept token
	// must report Expired, never AlreadyRedeemed.
	if t.Status != redemption.StatusRedeemed && t.Expired(now) {
		t.Status = redemption.StatusExpired
		return nil, fmt.Errorf("code %s: %w", code, apperr.ErrExpired)
	}
	if t.Status == redemption.StatusRedeemed {
		return nil, fmt.Errorf("code %s: %w", code, apperr.ErrAlreadyRedeemed)
	}
	if t.Status == redemption.StatusExpired {
		return nil, fmt.Errorf("code %s: %w", code, apperr.ErrExpired)
	}

	t.Status = redemption.StatusRedeemed
	at := now
	t.RedeemedAt = &at
	by := bartenderID
	t.RedeemedBy = &by
	out := *t
	return &out, nil
}

func (m *Memory) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.Status == redemption.StatusPending && t.Expired(now) {
			t.Status = redemption.StatusExpired
			n++
		}
	}
	return n, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
