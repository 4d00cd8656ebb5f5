package recipient

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone strips everything except digits after a mandatory leading
// "+". Input without a leading "+" or without digits is rejected.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "+") {
		return "", ErrInvalidPhone
	}

	var b strings.Builder
	b.WriteByte('+')
	for _, r := range s[1:] {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 {
		return "", ErrInvalidPhone
	}
	return b.String(), nil
}
