// Package pix classifies and validates PIX payout keys.
//
// A key is one of: a CPF (11-digit individual tax id), a CNPJ (14-digit
// company tax id), an e-mail address, a Brazilian mobile phone number, or a
// random key (UUID). Checks run in a fixed order and the first match wins.
package pix

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
)

// Kind identifies which kind of key an input was recognised as.
type Kind int

const (
	Invalid Kind = iota
	NationalID11
	NationalID14
	Email
	Phone
	RandomKey
)

const (
	// ReasonRequired is the reason given for empty input.
	ReasonRequired = "required"
	// ReasonUnrecognized is the reason given when no key kind matched.
	ReasonUnrecognized = "must be a CPF, CNPJ, email, phone or random key"
)

// maxEmailLength is the longest e-mail key accepted by the PIX directory,
// counted in UTF-16 code units as browsers count it.
const maxEmailLength = 77

var (
	nonDigits     = regexp.MustCompile(`\D`)
	emailPattern  = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	mobilePattern = regexp.MustCompile(`^[1-9]{2}9[0-9]{8}$`)
	intlPattern   = regexp.MustCompile(`^55[1-9]{2}9[0-9]{8}$`)
	uuidPattern   = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

var kindNames = map[Kind]string{
	Invalid:      "invalid",
	NationalID11: "cpf",
	NationalID14: "cnpj",
	Email:        "email",
	Phone:        "phone",
	RandomKey:    "random",
}

var kindLabels = map[Kind]string{
	Invalid:      "Inválida",
	NationalID11: "CPF",
	NationalID14: "CNPJ",
	Email:        "Email",
	Phone:        "Telefone",
	RandomKey:    "Chave Aleatória",
}

// String returns the stable wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[Invalid]
}

// Label returns the display label shown next to the key field.
func (k Kind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return kindLabels[Invalid]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode as Invalid.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	*k = Invalid
	return nil
}

// Classification is the result of classifying a key.
type Classification struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// Valid reports whether the key matched one of the accepted kinds.
func (c Classification) Valid() bool {
	return c.Kind != Invalid
}

// Classify recognises input as one of the accepted key kinds. Malformed input
// is never an error; it classifies as Invalid with a reason.
func Classify(input string) Classification {
	key := strings.TrimFunc(input, isSpace)
	if key == "" {
		return Classification{Kind: Invalid, Reason: ReasonRequired}
	}

	switch {
	case IsCPF(key):
		return Classification{Kind: NationalID11}
	case IsCNPJ(key):
		return Classification{Kind: NationalID14}
	case isEmail(key):
		return Classification{Kind: Email}
	case isPhone(key):
		return Classification{Kind: Phone}
	case isRandomKey(key):
		return Classification{Kind: RandomKey}
	}
	return Classification{Kind: Invalid, Reason: ReasonUnrecognized}
}

// IsCPF validates an individual tax id. Punctuation is ignored.
func IsCPF(s string) bool {
	d := digits(s)
	if len(d) != 11 || allSame(d) {
		return false
	}
	return cpfCheckDigit(d[:9]) == d[9] && cpfCheckDigit(d[:10]) == d[10]
}

// IsCNPJ validates a company tax id. Punctuation is ignored.
func IsCNPJ(s string) bool {
	d := digits(s)
	if len(d) != 14 || allSame(d) {
		return false
	}
	return cnpjCheckDigit(d[:12]) == d[12] && cnpjCheckDigit(d[:13]) == d[13]
}

// cpfCheckDigit weights the digits from len+1 down to 2.
func cpfCheckDigit(d []int) int {
	sum := 0
	for i, v := range d {
		sum += v * (len(d) + 1 - i)
	}
	r := sum * 10 % 11
	if r == 10 {
		return 0
	}
	return r
}

var cnpjWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

// cnpjCheckDigit uses the trailing len(d) weights of cnpjWeights.
func cnpjCheckDigit(d []int) int {
	weights := cnpjWeights[len(cnpjWeights)-len(d):]
	sum := 0
	for i, v := range d {
		sum += v * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func isEmail(s string) bool {
	return !strings.ContainsFunc(s, isSpace) &&
		emailPattern.MatchString(s) &&
		utf16Len(s) <= maxEmailLength
}

// isSpace matches the whitespace browsers trim and match with \s: Unicode
// White_Space without NEL, plus the byte order mark.
func isSpace(r rune) bool {
	if r == '\uFEFF' {
		return true
	}
	return r != '\u0085' && unicode.IsSpace(r)
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func isPhone(s string) bool {
	n := onlyDigits(s)
	switch len(n) {
	case 11:
		return mobilePattern.MatchString(n)
	case 13:
		return intlPattern.MatchString(n)
	}
	return false
}

func isRandomKey(s string) bool {
	return uuidPattern.MatchString(s)
}

func onlyDigits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

func digits(s string) []int {
	n := onlyDigits(s)
	out := make([]int, len(n))
	for i := 0; i < len(n); i++ {
		out[i] = int(n[i] - '0')
	}
	return out
}

func allSame(d []int) bool {
	for _, v := range d[1:] {
		if v != d[0] {
			return false
		}
	}
	return true
}
