package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SetupTestDB creates a test database connection. Tests that need Postgres
// skip when no database is configured, so the suite still runs unit-only.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set, skipping database test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	return pool
}

// CleanupTestDB removes rows created by the integration tests.
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()
	for _, stmt := range []string{
		"DELETE FROM redemption_tokens WHERE recipient_id LIKE 'itest_%'",
		"DELETE FROM drink_ledger WHERE user_id LIKE 'itest_%'",
		"DELETE FROM drink_violations WHERE user_id LIKE 'itest_%'",
		"DELETE FROM drink_suspensions WHERE user_id LIKE 'itest_%'",
		"DELETE FROM presence_records WHERE user_id LIKE 'itest_%'",
		"DELETE FROM venues WHERE id LIKE 'itest_%'",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Logf("Warning: failed to cleanup test data: %v", err)
		}
	}
	pool.Close()
}

// GenerateTestJWT signs a token the auth middleware accepts when
// JWT_SIGNING_SECRET is set to TestSigningSecret.
const TestSigningSecret = "test-secret-key-for-testing-only"

func GenerateTestJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": "https://auth.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(TestSigningSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}
