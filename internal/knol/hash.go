// Package knol derives content fingerprints for cards so the same card
// imported twice is recognised as one.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Normalize joins the card's subject and text fields after lowercasing,
// trimming and unifying line endings in each.
func Normalize(card domain.Card) string {
	clean := func(part string) string {
		p := strings.ReplaceAll(part, "\r\n", "\n")
		return strings.TrimSpace(strings.ToLower(p))
	}

	// Newline separators keep "ab"+"c" distinct from "a"+"bc".
	return strings.Join([]string{
		clean(card.Question),
		clean(card.Answer),
		clean(card.Explanation),
		clean(card.Subject),
	}, "\n")
}

// Fingerprint returns the hex SHA-256 of the normalized card.
func Fingerprint(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
