// Package qrcode encodes partner payment QR payloads.
//
// A payload is "CB1:" followed by the numeric partner id and a Luhn check
// digit, so a mistyped or damaged code is rejected before any money moves.
package qrcode

import (
	"errors"
	"strconv"
	"strings"

	"github.com/theplant/luhn"
)

const prefix = "CB1:"

// максимальная длина id партнера, чтобы число помещалось в int
const maxIDLen = 17

var (
	ErrFormat   = errors.New("qr payload format is incorrect")
	ErrChecksum = errors.New("qr payload check digit mismatch")
)

// Encode builds the payload for a numeric partner id.
func Encode(partnerID string) (string, error) {
	n, err := parseID(partnerID)
	if err != nil {
		return "", err
	}
	return prefix + strconv.Itoa(n) + strconv.Itoa(checkDigit(n)), nil
}

// Decode validates the payload and returns the partner id.
func Decode(payload string) (string, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(payload), prefix)
	if !ok || len(body) < 2 || len(body) > maxIDLen+1 {
		return "", ErrFormat
	}
	number, err := strconv.Atoi(body)
	if err != nil || number < 0 || body[0] == '0' {
		return "", ErrFormat
	}
	if !luhn.Valid(number) {
		return "", ErrChecksum
	}
	return body[:len(body)-1], nil
}

func parseID(partnerID string) (int, error) {
	if partnerID == "" || len(partnerID) > maxIDLen || partnerID[0] == '0' {
		return 0, ErrFormat
	}
	n, err := strconv.Atoi(partnerID)
	if err != nil || n <= 0 {
		return 0, ErrFormat
	}
	return n, nil
}

// checkDigit - цифра, с которой n становится валидным по Луну
func checkDigit(n int) int {
	for d := 0; d < 9; d++ {
		if luhn.Valid(n*10 + d) {
			return d
		}
	}
	return 9
}
