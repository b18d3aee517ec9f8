package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassifiers(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	serialization := &pgconn.PgError{Code: "40001"}

	if !isUniqueViolation(unique) {
		t.Fatalf("23505 should classify as unique violation")
	}
	if isUniqueViolation(serialization) || isUniqueViolation(errors.New("boom")) || isUniqueViolation(nil) {
		t.Fatalf("only 23505 should classify as unique violation")
	}

	if !isSerializationFailure(serialization) {
		t.Fatalf("40001 should classify as serialization failure")
	}
	if isSerializationFailure(unique) || isSerializationFailure(errors.New("boom")) || isSerializationFailure(nil) {
		t.Fatalf("only 40001 should classify as serialization failure")
	}

	// Classification must survive wrapping, since tx helpers wrap errors.
	wrapped := fmt.Errorf("insert invoice: %w", serialization)
	if !isSerializationFailure(wrapped) {
		t.Fatalf("wrapped 40001 should still classify as serialization failure")
	}
}
