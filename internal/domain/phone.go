package domain

import "regexp"

var (
	phoneJunk  = regexp.MustCompile(`[\s\-()+]`)
	kenyaPhone = regexp.MustCompile(`^254[0-9]\d{8}$`)
)

// NormalizePhone converts a Kenyan subscriber number to canonical 254XXXXXXXXX
// form. Accepts 07XXXXXXXX, +2547XXXXXXXX, 2547XXXXXXXX and bare 9-digit
// forms; spaces, hyphens, parentheses and a leading plus are stripped.
func NormalizePhone(phone string) string {
	cleaned := phoneJunk.ReplaceAllString(phone, "")

	switch {
	case len(cleaned) > 0 && cleaned[0] == '0':
		return "254" + cleaned[1:]
	case len(cleaned) >= 3 && cleaned[:3] == "254":
		return cleaned
	case len(cleaned) == 9:
		return "254" + cleaned
	}
	return cleaned
}

// ValidPhone reports whether phone is a normalized Kenyan mobile number.
// All networks are accepted, not just Safaricom prefixes.
func ValidPhone(phone string) bool {
	return kenyaPhone.MatchString(phoneJunk.ReplaceAllString(phone, ""))
}
