package sequence

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

const (
	sequenceWidth  = 6
	suffixLength   = 4
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// BrandSlug uppercases the brand name and keeps only ASCII letters and digits.
func BrandSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "QR"
	}
	return b.String()
}

// FormatCode renders {BRAND}-{sequence}-{orderNumber}-{suffix}.
func FormatCode(brandSlug string, seq int64, orderNumber, suffix string) string {
	return fmt.Sprintf("%s-%0*d-%s-%s", brandSlug, sequenceWidth, seq, orderNumber, suffix)
}

// RandomSuffix returns a short uppercase alphanumeric tag.
func RandomSuffix() (string, error) {
	max := big.NewInt(int64(len(suffixAlphabet)))
	buf := make([]byte, suffixLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate suffix: %w", err)
		}
		buf[i] = suffixAlphabet[n.Int64()]
	}
	return string(buf), nil
}
