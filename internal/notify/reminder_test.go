package notify

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"daftar/internal/core"
)

func TestPaymentReminder(t *testing.T) {
	link, err := PaymentReminder("+992 90 123-45-67", core.Money{Cents: 15050})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(link, "https://wa.me/992901234567?text=") {
		t.Fatalf("unexpected link prefix: %s", link)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link does not parse: %v", err)
	}
	text := parsed.Query().Get("text")
	if !strings.Contains(text, "150.50") {
		t.Fatalf("reminder text missing balance: %q", text)
	}
}

func TestPaymentReminderNoPhone(t *testing.T) {
	_, err := PaymentReminder("   ", core.Money{Cents: 100})
	if !errors.Is(err, ErrNoPhone) {
		t.Fatalf("expected ErrNoPhone, got %v", err)
	}
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("ErrNoPhone should fold into ErrValidation, got %v", err)
	}
}

func TestProfileShare(t *testing.T) {
	link, err := ProfileShare("https://daftar.tj/", "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link does not parse: %v", err)
	}
	if parsed.Host != "t.me" {
		t.Fatalf("expected t.me host, got %s", parsed.Host)
	}
	shared := parsed.Query().Get("url")
	if !strings.HasPrefix(shared, "https://daftar.tj/share/view/d-1?t=") {
		t.Fatalf("unexpected shared url: %s", shared)
	}

	// Tokens must differ between calls.
	second, err := ProfileShare("https://daftar.tj", "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link == second {
		t.Fatal("expected distinct share tokens")
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+992901234567":    "992901234567",
		"+992 (90) 123-45": "9929012345",
		"abc":              "",
		"":                 "",
	}
	for in, want := range cases {
		if got := normalizePhone(in); got != want {
			t.Errorf("normalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
