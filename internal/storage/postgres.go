package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"drinkOnMeAPI/internal/apperr"
	"drinkOnMeAPI/internal/types/drink"
	"drinkOnMeAPI/internal/types/presence"
	"drinkOnMeAPI/internal/types/redemption"
	"drinkOnMeAPI/internal/types/venue"
)

// Postgres implements every store on a pgx connection pool. The redeem path
// is a conditional UPDATE keyed by code, so the exactly-once transition is
// enforced by the database row lock rather than application state.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables when they are missing so a fresh database
// works without a separate migration step.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS venues (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			geofence_radius_meters DOUBLE PRECISION NOT NULL DEFAULT 100
		);

		CREATE TABLE IF NOT EXISTS presence_records (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			venue_id TEXT NOT NULL REFERENCES venues(id),
			checked_in_at TIMESTAMPTZ NOT NULL,
			checked_out_at TIMESTAMPTZ,
			last_seen TIMESTAMPTZ NOT NULL,
			wants_to_buy BOOLEAN NOT NULL DEFAULT FALSE,
			wants_to_receive BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE UNIQUE INDEX IF NOT EXISTS presence_one_active
			ON presence_records (user_id) WHERE checked_out_at IS NULL;
		CREATE INDEX IF NOT EXISTS presence_by_venue
			ON presence_records (venue_id) WHERE checked_out_at IS NULL;

		CREATE TABLE IF NOT EXISTS drink_ledger (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			UNIQUE (offer_id, direction)
		);
		CREATE INDEX IF NOT EXISTS ledger_by_user ON drink_ledger (user_id, direction, ts);

		CREATE TABLE IF NOT EXISTS drink_violations (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS violations_by_user ON drink_violations (user_id, ts);

		CREATE TABLE IF NOT EXISTS drink_suspensions (
			user_id TEXT PRIMARY KEY,
			suspended_until TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS redemption_tokens (
			id UUID PRIMARY KEY,
			code TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			venue_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			drink_item TEXT NOT NULL,
			status TEXT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			redeemed_at TIMESTAMPTZ,
			redeemed_by TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS tokens_live_code
			ON redemption_tokens (code) WHERE status = 'pending';
		CREATE INDEX IF NOT EXISTS tokens_by_offer ON redemption_tokens (offer_id);
	`
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// VenueStore

func (p *Postgres) ListVenues(ctx context.Context) ([]venue.Venue, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, name, latitude, longitude, geofence_radius_meters
		FROM venues
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query venues: %w", err)
	}
	defer rows.Close()

	var venues []venue.Venue
	for rows.Next() {
		var v venue.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Coordinate.Latitude, &v.Coordinate.Longitude, &v.GeofenceRadiusMeters); err != nil {
			return nil, fmt.Errorf("failed to scan venue row: %w", err)
		}
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return venues, nil
}

func (p *Postgres) GetVenue(ctx context.Context, id string) (*venue.Venue, error) {
	var v venue.Venue
	err := p.db.QueryRow(ctx, `
		SELECT id, name, latitude, longitude, geofence_radius_meters
		FROM venues WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &v.Coordinate.Latitude, &v.Coordinate.Longitude, &v.GeofenceRadiusMeters)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("venue %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return &v, nil
}

func (p *Postgres) UpsertVenue(ctx context.Context, v venue.Venue) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO venues (id, name, latitude, longitude, geofence_radius_meters)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			geofence_radius_meters = EXCLUDED.geofence_radius_meters
	`, v.ID, v.Name, v.Coordinate.Latitude, v.Coordinate.Longitude, v.GeofenceRadiusMeters)
	if err != nil {
		return fmt.Errorf("failed to upsert venue: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// PresenceStore

func (p *Postgres) CheckIn(ctx context.Context, userID, venueID string, intent presence.Intent, now time.Time) (*presence.Record, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Idempotent re-check-in at the same venue refreshes intent/last-seen.
	var rec presence.Record
	err = tx.QueryRow(ctx, `
		UPDATE presence_records
		SET wants_to_buy = $3, wants_to_receive = $4, last_seen = $5
		WHERE user_id = $1 AND venue_id = $2 AND checked_out_at IS NULL
		RETURNING id, user_id, venue_id, checked_in_at, checked_out_at, last_seen, wants_to_buy, wants_to_receive
	`, userID, venueID, intent.WantsToBuy, intent.WantsToReceive, now).Scan(
		&rec.ID, &rec.UserID, &rec.VenueID, &rec.CheckedInAt, &rec.CheckedOutAt,
		&rec.LastSeen, &rec.Intent.WantsToBuy, &rec.Intent.WantsToReceive,
	)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("transaction commit failed: %w", err)
		}
		return &rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to refresh presence: %w", err)
	}

	// Implicit check-out of any other active record, same timestamp as
	// the new check-in.
	if _, err := tx.Exec(ctx, `
		UPDATE presence_records SET checked_out_at = $2
		WHERE user_id = $1 AND checked_out_at IS NULL
	`, userID, now); err != nil {
		return nil, fmt.Errorf("failed to close previous presence: %w", err)
	}

	rec = presence.Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		VenueID:     venueID,
		CheckedInAt: now,
		LastSeen:    now,
		Intent:      intent,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO presence_records (id, user_id, venue_id, checked_in_at, last_seen, wants_to_buy, wants_to_receive)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, rec.VenueID, rec.CheckedInAt, rec.LastSeen, rec.Intent.WantsToBuy, rec.Intent.WantsToReceive); err != nil {
		return nil, fmt.Errorf("failed to insert presence record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("transaction commit failed: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) CheckOut(ctx context.Context, userID string, now time.Time) error {
	// No rows affected just means the user was not checked in; that is
	// not an error.
	if _, err := p.db.Exec(ctx, `
		UPDATE presence_records SET checked_out_at = $2
		WHERE user_id = $1 AND checked_out_at IS NULL
	`, userID, now); err != nil {
		return fmt.Errorf("failed to check out: %w", err)
	}
	return nil
}

func (p *Postgres) ActiveRecord(ctx context.Context, userID string) (*presence.Record, error) {
	var rec presence.Record
	err := p.db.QueryRow(ctx, `
		SELECT id, user_id, venue_id, checked_in_at, checked_out_at, last_seen, wants_to_buy, wants_to_receive
		FROM presence_records
		WHERE user_id = $1 AND checked_out_at IS NULL
	`, userID).Scan(
		&rec.ID, &rec.UserID, &rec.VenueID, &rec.CheckedInAt, &rec.CheckedOutAt,
		&rec.LastSeen, &rec.Intent.WantsToBuy, &rec.Intent.WantsToReceive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active presence: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) VenueOccupancy(ctx context.Context, venueID string) (*presence.Occupancy, error) {
	occ := presence.Occupancy{VenueID: venueID}
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE wants_to_buy),
		       COUNT(*) FILTER (WHERE wants_to_receive)
		FROM presence_records
		WHERE venue_id = $1 AND checked_out_at IS NULL
	`, venueID).Scan(&occ.Total, &occ.WantsToBuy, &occ.WantsToReceive)
	if err != nil {
		return nil, fmt.Errorf("failed to count occupancy: %w", err)
	}
	return &occ, nil
}

// ---------------------------------------------------------------------------
// LedgerStore

func (p *Postgres) Append(ctx context.Context, e drink.LedgerEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tag, err := p.db.Exec(ctx, `
		INSERT INTO drink_ledger (id, user_id, offer_id, direction, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (offer_id, direction) DO NOTHING
	`, e.ID, e.UserID, e.OfferID, e.Direction, e.Timestamp)
	if err != nil {
		return false, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) CountSince(ctx context.Context, userID string, dir drink.Direction, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM drink_ledger
		WHERE user_id = $1 AND direction = $2 AND ts >= $3
	`, userID, dir, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

func (p *Postgres) LastEntryAt(ctx context.Context, userID string, dir drink.Direction) (*time.Time, error) {
	var last *time.Time
	err := p.db.QueryRow(ctx, `
		SELECT MAX(ts) FROM drink_ledger
		WHERE user_id = $1 AND direction = $2
	`, userID, dir).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get last ledger entry: %w", err)
	}
	return last, nil
}

func (p *Postgres) OldestInWindow(ctx context.Context, userID string, dir drink.Direction, since time.Time) (*time.Time, error) {
	var oldest *time.Time
	err := p.db.QueryRow(ctx, `
		SELECT MIN(ts) FROM drink_ledger
		WHERE user_id = $1 AND direction = $2 AND ts >= $3
	`, userID, dir, since).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest ledger entry: %w", err)
	}
	return oldest, nil
}

// ---------------------------------------------------------------------------
// ViolationStore

func (p *Postgres) AddViolation(ctx context.Context, userID string, at time.Time) error {
	if _, err := p.db.Exec(ctx, `
		INSERT INTO drink_violations (id, user_id, ts) VALUES ($1, $2, $3)
	`, uuid.NewString(), userID, at); err != nil {
		return fmt.Errorf("failed to record violation: %w", err)
	}
	return nil
}

func (p *Postgres) ViolationsSince(ctx context.Context, userID string, since time.Time) (int, *time.Time, error) {
	var n int
	var oldest *time.Time
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*), MIN(ts) FROM drink_violations
		WHERE user_id = $1 AND ts >= $2
	`, userID, since).Scan(&n, &oldest)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count violations: %w", err)
	}
	return n, oldest, nil
}

func (p *Postgres) SuspendedUntil(ctx context.Context, userID string) (*time.Time, error) {
	var until time.Time
	err := p.db.QueryRow(ctx, `
		SELECT suspended_until FROM drink_suspensions WHERE user_id = $1
	`, userID).Scan(&until)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get suspension: %w", err)
	}
	return &until, nil
}

func (p *Postgres) Suspend(ctx context.Context, userID string, until time.Time) error {
	if _, err := p.db.Exec(ctx, `
		INSERT INTO drink_suspensions (user_id, suspended_until)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET suspended_until = EXCLUDED.suspended_until
	`, userID, until); err != nil {
		return fmt.Errorf("failed to suspend user: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// TokenStore

func (p *Postgres) InsertToken(ctx context.Context, t redemption.Token) error {
	tag, err := p.db.Exec(ctx, `
		INSERT INTO redemption_tokens
			(id, code, offer_id, venue_id, recipient_id, drink_item, status, issued_at, expires_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM redemption_tokens
			WHERE code = $2 AND status = 'pending' AND expires_at > $8
		)
	`, t.ID, t.Code, t.OfferID, t.VenueID, t.RecipientID, t.DrinkItem, t.Status, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCodeTaken
		}
		return fmt.Errorf("failed to insert token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (p *Postgres) GetByCode(ctx context.Context, code string) (*redemption.Token, error) {
	t, err := p.scanToken(p.db.QueryRow(ctx, `
		SELECT id, code, offer_id, venue_id, recipient_id, drink_item, status, issued_at, expires_at, redeemed_at, redeemed_by
		FROM redemption_tokens
		WHERE code = $1
		ORDER BY issued_at DESC
		LIMIT 1
	`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("code %s: %w", code, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

func (p *Postgres) GetByOffer(ctx context.Context, offerID string) (*redemption.Token, error) {
	t, err := p.scanToken(p.db.QueryRow(ctx, `
		SELECT id, code, offer_id, venue_id, recipient_id, drink_item, status, issued_at, expires_at, redeemed_at, redeemed_by
		FROM redemption_tokens
		WHERE offer_id = $1
		ORDER BY issued_at DESC
		LIMIT 1
	`, offerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("offer %s: %w", offerID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get token by offer: %w", err)
	}
	return t, nil
}

func (p *Postgres) Redeem(ctx context.Context, code, bartenderID string, now time.Time) (*redemption.Token, error) {
	// Single conditional UPDATE: the row transitions at most once no
	// matter how many redeemers race on the same code.
	t, err := p.scanToken(p.db.QueryRow(ctx, `
		UPDATE redemption_tokens
		SET status = 'redeemed', redeemed_at = $2, redeemed_by = $3
		WHERE code = $1 AND status = 'pending' AND expires_at > $2
		RETURNING id, code, offer_id, venue_id, recipient_id, drink_item, status, issued_at, expires_at, redeemed_at, redeemed_by
	`, code, now, bartenderID))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to redeem token: %w", err)
	}

	// The CAS found nothing to transition; classify the failure.
	existing, err := p.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing.Status != redemption.StatusRedeemed && existing.Expired(now) {
		// Lazily sweep the row we just looked at.
		_, _ = p.db.Exec(ctx, `
			UPDATE redemption_tokens SET status = 'expired'
			WHERE code = $1 AND status = 'pending'
		`, code)
		return nil, fmt.Errorf("code %s: %w", code, apperr.ErrExpired)
	}
	if existing.Status == redemption.StatusExpired {
		return nil, fmt.Errorf("code %s: %w", code, apperr.ErrExpired)
	}
	return nil, fmt.Errorf("code %s: %w", code, apperr.ErrAlreadyRedeemed)
}

func (p *Postgres) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE redemption_tokens SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) scanToken(row pgx.Row) (*redemption.Token, error) {
	var t redemption.Token
	err := row.Scan(
		&t.ID, &t.Code, &t.OfferID, &t.VenueID, &t.RecipientID, &t.DrinkItem,
		&t.Status, &t.IssuedAt, &t.ExpiresAt, &t.RedeemedAt, &t.RedeemedBy,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
