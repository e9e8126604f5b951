package models

import "time"

// Auth event types recorded to the audit trail and published to the
// event stream.
const (
	EventSignup        = "signup"
	EventEmailVerified = "email_verified"
	EventPhoneVerified = "phone_verified"
	EventResend        = "verification_resent"
	EventLoginSuccess  = "login_success"
	EventLoginFailure  = "login_failure"
	EventSMSCodeSent   = "sms_code_sent"
	EventEnrolled      = "mfa_enrolled"
	EventAdminLogin    = "admin_login"
	EventUserActivated = "user_activated"
	EventUserRejected  = "user_rejected"
)

type AuthEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Username  string    `json:"username"`
	UserID    string    `json:"user_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
