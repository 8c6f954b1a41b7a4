package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// GenerateCardNumber generates a card number with the specified prefix and length
func GenerateCardNumber(prefix string, length int) (string, error) {
	if length < len(prefix) || length > 19 {
		return "", fmt.Errorf("invalid card number length: %d", length)
	}

	// Generate random digits
	digits := make([]byte, length-len(prefix))
	_, err := rand.Read(digits)
	if err != nil {
		return "", fmt.Errorf("failed to generate random digits: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	for _, b := range digits {
		digit := b%10 + '0' // Convert to ASCII digit
		builder.WriteByte(digit)
	}

	return builder.String(), nil
}

// GenerateCVV generates a 3-digit CVV code
func GenerateCVV() string {
	b := make([]byte, 3)
	rand.Read(b)
	return fmt.Sprintf("%03d", (int(b[0])%10)*100+(int(b[1])%10)*10+int(b[2])%10)
}

// GenerateExpirationDate returns the card expiration date: three years
// out, clamped to the last day of that month.
func GenerateExpirationDate(now time.Time) time.Time {
	target := now.AddDate(3, 0, 0)
	firstOfNext := time.Date(target.Year(), target.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// LastFour returns the last four digits of a card number.
func LastFour(cardNumber string) (string, error) {
	if len(cardNumber) < 4 {
		return "", fmt.Errorf("card number must contain at least 4 digits")
	}
	return cardNumber[len(cardNumber)-4:], nil
}

// FormatExpiry renders an expiration date as MM/YYYY for display.
func FormatExpiry(t time.Time) string {
	return fmt.Sprintf("%02d/%d", int(t.Month()), t.Year())
}
