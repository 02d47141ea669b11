package i18n

import (
	"strings"
	"testing"
)

func TestInitAndTranslate(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	got := T("LogoutSuccess")
	if got != "Logged out." {
		t.Errorf("unexpected translation: %q", got)
	}

	got = Td("ResultSummary", map[string]any{"Correct": 2, "Total": 3})
	if got != "You got 2 out of 3 questions correct." {
		t.Errorf("unexpected templated translation: %q", got)
	}
}

func TestRussianLocale(t *testing.T) {
	if err := Init("ru"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	got := T("LogoutSuccess")
	if !strings.Contains(got, "вышли") {
		t.Errorf("expected Russian translation, got %q", got)
	}
}

func TestMissingMessageFallsBackToID(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := T("NoSuchMessage"); got != "NoSuchMessage" {
		t.Errorf("expected message ID fallback, got %q", got)
	}
}

func TestInitRejectsBadLanguage(t *testing.T) {
	if err := Init("???"); err == nil {
		t.Error("expected error for malformed language tag")
	}
}
