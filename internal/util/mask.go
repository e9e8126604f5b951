package util

import "strings"

// MaskPhone hides all but the last four digits of a phone number.
func MaskPhone(phone string) string {
	if len(phone) > 4 {
		return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
	}
	return phone
}

// MaskEmail hides the middle of the local part, keeping the domain intact.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	var masked string
	if len(local) > 2 {
		masked = local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:]
	} else {
		masked = strings.Repeat("*", len(local))
	}
	return masked + "@" + domain
}

// NormalizePhone strips spaces, dashes and parentheses from a phone number.
func NormalizePhone(phone string) string {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	return r.Replace(phone)
}
