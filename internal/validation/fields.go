package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mcare/mcare/pkg/civil"
)

var (
	nameRE          = regexp.MustCompile(`^[A-Za-z][A-Za-z \-'.]*[A-Za-z]$`)
	emailLocalRE    = regexp.MustCompile("^[A-Za-z0-9!#$%&'*+/=?^_`{|}~-]+(\\.[A-Za-z0-9!#$%&'*+/=?^_`{|}~-]+)*$")
	emailLabelRE    = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
	phoneRE         = regexp.MustCompile(`^\+?\d{7,15}$`)
	phoneStripRE    = regexp.MustCompile(`[^\d+]`)
	whitespaceRE    = regexp.MustCompile(`\s+`)
	vaccineNameRE   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 \-()/.]*$`)
	batchNumberRE   = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	bloodPressureRE = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)
)

// SanitizeString trims s and collapses internal runs of whitespace.
func SanitizeString(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// IsValidName reports whether s is a person name of min..max characters made
// of letters, spaces, hyphens, apostrophes and periods.
func IsValidName(s string, min, max int) bool {
	s = strings.TrimSpace(s)
	if n := len(s); n < min || n > max {
		return false
	}
	return nameRE.MatchString(s)
}

// IsValidEmail checks local@domain where the domain has at least one dot and
// neither part has leading or consecutive dots.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 || len(s) > 254 {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if len(local) > 64 || !emailLocalRE.MatchString(local) {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !emailLabelRE.MatchString(l) {
			return false
		}
	}
	return true
}

// NormalizePhone strips everything but digits and a single leading '+' and
// returns the result if it looks like an E.164 number. It is idempotent.
func NormalizePhone(raw string) (string, bool) {
	cleaned := phoneStripRE.ReplaceAllString(raw, "")
	if strings.Count(cleaned, "+") > 1 {
		return "", false
	}
	if i := strings.IndexByte(cleaned, '+'); i > 0 {
		return "", false
	}
	if !phoneRE.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}

// IsStrongPassword requires at least 8 characters including lower case,
// upper case, a digit and a symbol.
func IsStrongPassword(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

// ParseDate parses YYYY-MM-DD, falling back to ISO datetimes.
func ParseDate(s string) (civil.Date, bool) {
	d, err := civil.Parse(s)
	if err != nil {
		return civil.Date{}, false
	}
	return d, true
}

// IsOneOf reports whether s is a member of allowed.
func IsOneOf(s string, allowed []string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
