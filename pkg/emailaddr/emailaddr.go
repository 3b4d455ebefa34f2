// Package emailaddr validates bare email addresses ("a@b.c", no display name).
package emailaddr

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalid = errors.New("invalid email address")

// MaxLen is the longest address SMTP accepts (RFC 5321).
const MaxLen = 254

// Normalize trims and lower-cases a valid address.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > MaxLen {
		return "", ErrInvalid
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return "", ErrInvalid
	}
	return strings.ToLower(addr.Address), nil
}
