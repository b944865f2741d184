package matcher

import (
	"strings"
)

// PhoneConfig drives phone-number normalization. OEM dialers write numbers
// into filenames in wildly inconsistent formats, so matching works against a
// set of variants instead of a single canonical form.
type PhoneConfig struct {
	// CountryCode without the +, e.g. "60".
	CountryCode string
	// TrunkPrefix is the local dialing prefix that replaces the country
	// code, e.g. "0".
	TrunkPrefix string
}

// Normalize reduces a raw phone number to digits with the country code
// prepended where it can be inferred.
func (c PhoneConfig) Normalize(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	hasPlus := strings.HasPrefix(number, "+")
	digits := keepDigits(number)
	if digits == "" {
		return ""
	}

	if hasPlus {
		// Already carries its country code.
		return digits
	}
	if c.TrunkPrefix != "" && strings.HasPrefix(digits, c.TrunkPrefix) {
		return c.CountryCode + digits[len(c.TrunkPrefix):]
	}
	if strings.HasPrefix(digits, c.CountryCode) {
		return digits
	}
	if len(digits) >= 9 && len(digits) <= 11 {
		// Likely a local number without the trunk prefix.
		return c.CountryCode + digits
	}
	return digits
}

// Variants returns the normalized number plus the alternate spellings a
// recorder might have used, in stable order and without duplicates.
func (c PhoneConfig) Variants(number string) []string {
	digits := keepDigits(number)
	if digits == "" {
		return nil
	}

	var variants []string
	seen := map[string]struct{}{}
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	add(c.Normalize(number))
	add(digits)
	if !strings.HasPrefix(digits, c.TrunkPrefix) && len(digits) >= 9 {
		add(c.TrunkPrefix + strings.TrimPrefix(digits, c.CountryCode))
	}
	if strings.HasPrefix(digits, c.CountryCode) {
		withoutCC := digits[len(c.CountryCode):]
		add(withoutCC)
		add(c.TrunkPrefix + withoutCC)
	}
	if len(digits) >= 9 {
		add(digits[len(digits)-9:])
	}
	if len(digits) >= 10 {
		add(digits[len(digits)-10:])
	}
	return variants
}

// FilenameContainsNumber reports whether any variant of the number appears
// in the filename.
func (c PhoneConfig) FilenameContainsNumber(filename, number string) bool {
	if filename == "" || number == "" {
		return false
	}
	lower := strings.ToLower(filename)
	for _, variant := range c.Variants(number) {
		if strings.Contains(lower, variant) {
			return true
		}
	}
	return false
}

// NumbersEqual fuzzily compares two numbers, falling back to the last nine
// digits to bridge differing country-code formats.
func (c PhoneConfig) NumbersEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	na, nb := c.Normalize(a), c.Normalize(b)
	if na == nb {
		return true
	}
	if len(na) >= 9 && len(nb) >= 9 {
		return na[len(na)-9:] == nb[len(nb)-9:]
	}
	return false
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
