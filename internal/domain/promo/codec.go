package promo

import (
	"errors"
	"strings"

	qr "github.com/skip2/go-qrcode"
)

const (
	promoPrefix    = "PROMO:"
	minPhoneDigits = 10
)

var (
	ErrInvalidField  = errors.New("promo field must be non-empty and must not contain ':'")
	ErrNotRecognized = errors.New("qr payload not recognized")
)

// Decode classifies a scanned QR string. It never fails loudly: an unrecognized
// payload yields ok == false.
func Decode(raw string) (Payload, bool) {
	if strings.HasPrefix(raw, promoPrefix) {
		parts := strings.Split(raw, ":")
		if len(parts) >= 3 {
			return Payload{
				Kind:        KindPromo,
				CampaignID:  parts[1],
				PhoneNumber: parts[2],
				Raw:         raw,
			}, true
		}
		// PROMO:<x> with a single field falls through to the phone rule,
		// which only matches if the remainder carries enough digits.
	}

	digits := DigitsOnly(raw)
	if len(digits) >= minPhoneDigits {
		return Payload{Kind: KindPhone, PhoneNumber: digits, Raw: raw}, true
	}
	return Payload{}, false
}

// Encode builds the promo redemption string read back by Decode.
func Encode(campaignID, phone string) (string, error) {
	if !validField(campaignID) || !validField(phone) {
		return "", ErrInvalidField
	}
	return promoPrefix + campaignID + ":" + phone, nil
}

// RenderPNG encodes content as a PNG QR image of size×size pixels.
func RenderPNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qr.Encode(content, qr.Medium, size)
}

// DigitsOnly strips every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validField(s string) bool {
	return s != "" && !strings.Contains(s, ":")
}
