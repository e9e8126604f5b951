package models

// Storage values for the mfa_type column.
const (
	MFATypeTOTP = "totp"
	MFATypeSMS  = "sms"
)

// MFAMethod is a closed union of second-factor configurations. Code
// that handles a login switches on the concrete type, so a new method
// cannot be added without the compiler pointing at every dispatch
// site.
type MFAMethod interface {
	mfaMethod()
	Type() string
}

// TOTP carries the user's decrypted shared secret.
type TOTP struct {
	Secret string
}

func (TOTP) mfaMethod()   {}
func (TOTP) Type() string { return MFATypeTOTP }

// SMS carries the E.164 number login codes are delivered to.
type SMS struct {
	PhoneNumber string
}

func (SMS) mfaMethod()   {}
func (SMS) Type() string { return MFATypeSMS }
