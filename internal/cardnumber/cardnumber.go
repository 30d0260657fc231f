package cardnumber

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// Length is the number of digits in an issued card number.
	Length = 16
	// DefaultPrefix is the issuer prefix used when none is configured.
	DefaultPrefix = "3985"
)

var (
	// ErrInvalidNumber is returned for malformed card numbers.
	ErrInvalidNumber = errors.New("invalid card number")
	// ErrInvalidPrefix is returned when the issuer prefix cannot produce a number.
	ErrInvalidPrefix = errors.New("invalid card number prefix")
)

// Generate returns a random Luhn-valid card number starting with prefix.
func Generate(prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !isDigits(prefix) || len(prefix) >= Length-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	body, err := randomDigits(Length - 1 - len(prefix))
	if err != nil {
		return "", fmt.Errorf("random digits: %w", err)
	}
	partial := prefix + body
	return partial + checkDigit(partial), nil
}

// Validate checks length, digits and the Luhn checksum. Spaces are ignored.
func Validate(number string) error {
	digits := Normalize(number)
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("%w: must be between 12 and 19 digits", ErrInvalidNumber)
	}
	if !isDigits(digits) {
		return fmt.Errorf("%w: must be numeric", ErrInvalidNumber)
	}
	if checkDigit(digits[:len(digits)-1]) != digits[len(digits)-1:] {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidNumber)
	}
	return nil
}

// Normalize strips spaces and dashes.
func Normalize(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// Last4 returns the trailing four digits used for display.
func Last4(number string) string {
	digits := Normalize(number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

// Mask renders the display form of a card from its last four digits.
func Mask(last4 string) string {
	return "**** **** **** " + last4
}

// Tokenizer derives the opaque stored token of a card number. Equal numbers
// always produce equal tokens under the same key, which is what the
// uniqueness check relies on.
type Tokenizer struct {
	key []byte
}

// NewTokenizer builds a tokenizer with the given secret key.
func NewTokenizer(key []byte) *Tokenizer {
	k := make([]byte, len(key))
	copy(k, key)
	return &Tokenizer{key: k}
}

// Token returns the hex HMAC-SHA256 of the normalized number.
func (t *Tokenizer) Token(number string) string {
	mac := hmac.New(sha256.New, t.key)
	mac.Write([]byte(Normalize(number)))
	return hex.EncodeToString(mac.Sum(nil))
}

func checkDigit(partial string) string {
	sum := 0
	double := true
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return string(rune('0' + (10-sum%10)%10))
}

// randomDigits draws uniformly distributed digits, rejecting bytes >= 250 to
// avoid modulo bias.
func randomDigits(n int) (string, error) {
	const threshold = 250
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, 32)
	for sb.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if sb.Len() == n {
				break
			}
			if b < threshold {
				sb.WriteByte('0' + b%10)
			}
		}
	}
	return sb.String(), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Issued is a freshly generated number in its stored form. The plain number
// is only kept long enough to show it once at issuance.
type Issued struct {
	Number string
	Token  string
	Last4  string
}

// Issuer generates numbers under one prefix and tokenizes them.
type Issuer struct {
	prefix    string
	tokenizer *Tokenizer
}

// NewIssuer validates prefix up front so misconfiguration fails at startup.
func NewIssuer(prefix string, key []byte) (*Issuer, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !isDigits(prefix) || len(prefix) >= Length-1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return &Issuer{prefix: prefix, tokenizer: NewTokenizer(key)}, nil
}

// Issue draws a new number.
func (i *Issuer) Issue() (Issued, error) {
	number, err := Generate(i.prefix)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Number: number, Token: i.tokenizer.Token(number), Last4: Last4(number)}, nil
}
