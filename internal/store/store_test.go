package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alfielabs/alfie-voice/internal/store"
)

// newTestStore connects to the database named by ALFIEVOICE_TEST_POSTGRES_DSN
// and skips the test if it is not set.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("ALFIEVOICE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ALFIEVOICE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSaveAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := "test-" + time.Now().Format("150405.000000000")

	if err := s.Save(ctx, userID, "user", "find me quotes"); err != nil {
		t.Fatalf("Save user: %v", err)
	}
	if err := s.Save(ctx, userID, "assistant", "Sure, one moment."); err != nil {
		t.Fatalf("Save assistant: %v", err)
	}

	lines, err := s.Recent(ctx, userID, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	if lines[0].Role != "user" || lines[1].Role != "assistant" {
		t.Fatalf("wrong order: %+v", lines)
	}
}

func TestPaymentProfile_MissingUserIsAnError(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.PaymentProfile(context.Background(), "nobody-here")
	if err == nil {
		t.Fatal("want an error for a user without a payment profile")
	}
}

func TestPolicyContext_MissingUserIsZeroValued(t *testing.T) {
	s := newTestStore(t)

	pc, err := s.PolicyContext(context.Background(), "nobody-here")
	if err != nil {
		t.Fatalf("PolicyContext: %v", err)
	}
	if pc.VehicleReg != "" || pc.Summary != "" {
		t.Fatalf("want zero-valued context, got %+v", pc)
	}
}
