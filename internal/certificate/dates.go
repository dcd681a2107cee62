package certificate

import "time"

// DateLayout is how dates are printed on certificates.
const DateLayout = "January 2, 2006"

// expirationBackDays is subtracted from expiration dates before printing.
// TODO: confirm with the certificate owners whether the two-day offset is
// intended; it has been kept as printed on existing certificates.
const expirationBackDays = 2

// FormatDate prints t after moving it back by backDays days.
// The zero time prints as an empty string.
func FormatDate(t time.Time, backDays int) string {
	if t.IsZero() {
		return ""
	}
	return t.AddDate(0, 0, -backDays).Format(DateLayout)
}

// FormatExpiration prints an optional expiration date with the back-dating
// applied.
func FormatExpiration(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t, expirationBackDays)
}
