package id

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDGenerator_NewID(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	first, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID error: %v", err)
	}
	second, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ids, got %s twice", first)
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected v7 uuid, got v%d", parsed.Version())
	}
}
