// Package notify composes pre-filled message links for external messaging
// services. It depends only on a debtor's phone number and current balance,
// never on the rest of the ledger state.
package notify

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"daftar/internal/core"
)

// ErrNoPhone is returned when a reminder is requested for a debtor without
// a phone number on file.
var ErrNoPhone = fmt.Errorf("%w: debtor has no phone number", core.ErrValidation)

// PaymentReminder builds a wa.me link opening a chat with the debtor,
// pre-filled with a payment request for the current balance.
func PaymentReminder(phone string, balance core.Money) (string, error) {
	digits := normalizePhone(phone)
	if digits == "" {
		return "", ErrNoPhone
	}
	text := fmt.Sprintf("Hello! Please settle your outstanding balance of %s. Thank you!", balance)
	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(text), nil
}

// ProfileShare builds a t.me share link pointing at a one-time view of the
// debtor's account. The token is random server-side state, not guessable.
func ProfileShare(baseURL, debtorID string) (string, error) {
	token, err := shareToken()
	if err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	view := fmt.Sprintf("%s/share/view/%s?t=%s", strings.TrimRight(baseURL, "/"), url.PathEscape(debtorID), token)
	text := "Hello! A one-time link to view your account: " + view
	return "https://t.me/share/url?url=" + url.QueryEscape(view) + "&text=" + url.QueryEscape(text), nil
}

// normalizePhone strips everything but digits so the number fits the wa.me
// path form (country code without the leading plus).
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func shareToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
