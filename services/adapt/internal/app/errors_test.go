package app

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("submit: %w", newError(KindOracleUnavailable, "rewrite oracle unavailable", cause))
	if KindOf(err) != KindOracleUnavailable {
		t.Fatalf("kind = %s, want oracle_unavailable", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through errors.Is")
	}
	if PublicMessage(err) != "rewrite oracle unavailable" {
		t.Fatalf("public message leaked cause: %q", PublicMessage(err))
	}
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	if KindOf(err) != KindInternal {
		t.Fatalf("kind = %s, want internal", KindOf(err))
	}
	if PublicMessage(err) != "internal error" {
		t.Fatalf("unexpected public message %q", PublicMessage(err))
	}
}
