package sqldb

import (
	"strings"
	"testing"
)

func TestNormaliseDSNForcesParseTimeAndUTC(t *testing.T) {
	dsn, err := normaliseDSN("app:secret@tcp(127.0.0.1:3306)/matjary")
	if err != nil {
		t.Fatalf("normaliseDSN: %v", err)
	}
	for _, want := range []string{"parseTime=true", "charset=utf8mb4", "tcp(127.0.0.1:3306)/matjary"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %q in %s", want, dsn)
		}
	}
}

func TestNormaliseDSNKeepsExplicitCharset(t *testing.T) {
	dsn, err := normaliseDSN("app:secret@tcp(db:3306)/matjary?charset=latin1")
	if err != nil {
		t.Fatalf("normaliseDSN: %v", err)
	}
	if !strings.Contains(dsn, "charset=latin1") || strings.Contains(dsn, "utf8mb4") {
		t.Fatalf("expected explicit charset to win, got %s", dsn)
	}
}

func TestNormaliseDSNRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a dsn"} {
		if _, err := normaliseDSN(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
