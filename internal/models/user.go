package models

import (
	"time"

	"mfa-service/internal/util"
)

// ProfileStatus tracks a user through the enrollment pipeline.
type ProfileStatus string

const (
	// StatusPending means signup completed but at least one of email
	// or phone is unverified.
	StatusPending ProfileStatus = "pending"
	// StatusComplete means both verifications are done and the
	// profile awaits administrator approval.
	StatusComplete ProfileStatus = "complete"
	// StatusActive means an administrator approved the profile and a
	// directory account exists.
	StatusActive ProfileStatus = "active"
	// StatusRejected means an administrator declined the profile.
	StatusRejected ProfileStatus = "rejected"
)

type User struct {
	UserBucket    int    `db:"user_bucket"`
	UserID        string `db:"user_id"`
	Username      string `db:"username"`
	Email         string `db:"email"`
	FirstName     string `db:"first_name"`
	LastName      string `db:"last_name"`
	CountryCode   string `db:"country_code"`
	PhoneNumber   string `db:"phone_number"`
	PasswordHash  string `db:"password_hash"`
	EmailVerified bool   `db:"email_verified"`
	PhoneVerified bool   `db:"phone_verified"`

	Status ProfileStatus `db:"status"`

	MFAType          string `db:"mfa_type"`
	TOTPSecretCipher []byte `db:"totp_secret_cipher"`
	TOTPSecretKeyID  string `db:"totp_secret_key_id"`
	SMSLoginPhone    string `db:"sms_login_phone"`

	ActivatedBy string     `db:"activated_by"`
	ActivatedAt *time.Time `db:"activated_at"`
	RejectedBy  string     `db:"rejected_by"`
	RejectedAt  *time.Time `db:"rejected_at"`

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
	LastLogin *time.Time `db:"last_login"`
}

// FullPhone joins country code and number into the E.164 form used for
// delivery.
func (u *User) FullPhone() string {
	return u.CountryCode + u.PhoneNumber
}

func (u *User) MaskedEmail() string {
	return util.MaskEmail(u.Email)
}

func (u *User) MaskedPhone() string {
	return util.MaskPhone(u.FullPhone())
}

// MissingVerifications lists what still blocks the pending → complete
// transition.
func (u *User) MissingVerifications() []string {
	var missing []string
	if !u.EmailVerified {
		missing = append(missing, "email")
	}
	if !u.PhoneVerified {
		missing = append(missing, "phone")
	}
	return missing
}
