package util

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalidPhone = errors.New("phone number format is invalid")

// NormalizePhone parses a raw phone number and returns its E.164 form.
// Region is the ISO 3166-1 country code used when the number has no leading
// "+"; pass "" for numbers already in international form.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func IsValidPhone(raw, region string) bool {
	_, err := NormalizePhone(raw, region)
	return err == nil
}
