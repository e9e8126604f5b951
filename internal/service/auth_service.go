package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mfa-service/internal/client"
	"mfa-service/internal/config"
	"mfa-service/internal/models"
	"mfa-service/internal/otpcode"
	"mfa-service/internal/repository/scylla"
	"mfa-service/internal/totp"
	"mfa-service/internal/util"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrAwaitingApproval   = errors.New("profile is awaiting admin approval")
	ErrNotActive          = errors.New("only active users may perform this action")
	ErrSMSDisabled        = errors.New("sms second factor is not enabled")
	ErrNotEnrolledSMS     = errors.New("user not enrolled for sms second factor")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrMFANotConfigured   = errors.New("second factor not configured")
	ErrDeliveryFailed     = errors.New("failed to deliver verification code")
	ErrStorageUnavailable = errors.New("verification storage unavailable")
)

// ProfileIncompleteError lists the verifications still blocking login.
type ProfileIncompleteError struct {
	Missing []string
}

func (e *ProfileIncompleteError) Error() string {
	return fmt.Sprintf("profile incomplete, please verify your: %s", strings.Join(e.Missing, ", "))
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)

// UserStore is the profile persistence surface the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetEmailVerified(ctx context.Context, user *models.User, status models.ProfileStatus) error
	SetPhoneVerified(ctx context.Context, user *models.User, status models.ProfileStatus) error
	UpdateMFA(ctx context.Context, user *models.User) error
	Activate(ctx context.Context, user *models.User, adminUsername, passwordHash string) error
	Reject(ctx context.Context, user *models.User, adminUsername string) error
	UpdateLastLogin(ctx context.Context, user *models.User) error
}

// Directory is the LDAP surface: primary credentials and group checks.
type Directory interface {
	Authenticate(username, password string) error
	IsAdmin(username string) (bool, error)
	UserExists(username string) (bool, error)
	CreateUser(username, password, firstName, lastName, email string) error
}

// CodeManager is the one-time-code lifecycle.
type CodeManager interface {
	Issue(ctx context.Context, identity string, purpose otpcode.Purpose, ttl time.Duration) (string, error)
	Verify(ctx context.Context, identity string, purpose otpcode.Purpose, candidate string) error
	Invalidate(ctx context.Context, identity string, purpose otpcode.Purpose) error
}

type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) (string, error)
}

type EmailSender interface {
	SendVerificationEmail(to, token, username, firstName string) error
	SendWelcomeEmail(to, username, firstName string) error
}

// SecretCipher protects TOTP secrets at rest.
type SecretCipher interface {
	SealSecret(ctx context.Context, secret string) ([]byte, string, error)
	OpenSecret(ctx context.Context, blob []byte) (string, error)
}

type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) error
}

// UserIndexer mirrors profiles into the admin search directory.
type UserIndexer interface {
	IndexUser(ctx context.Context, user *models.User)
}

type EventRecorder interface {
	Record(event models.AuthEvent)
}

// AuthService implements signup, verification, enrollment and login.
type AuthService struct {
	users    UserStore
	ldap     Directory
	codes    CodeManager
	sms      SMSSender
	email    EmailSender
	cipher   SecretCipher
	hasher   PasswordHasher
	index    UserIndexer
	audit    EventRecorder
	config   *config.Config
	validate *validator.Validate
}

func NewAuthService(
	users UserStore,
	ldap Directory,
	codes CodeManager,
	sms SMSSender,
	email EmailSender,
	cipher SecretCipher,
	hasher PasswordHasher,
	index UserIndexer,
	audit EventRecorder,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		users:    users,
		ldap:     ldap,
		codes:    codes,
		sms:      sms,
		email:    email,
		cipher:   cipher,
		hasher:   hasher,
		index:    index,
		audit:    audit,
		config:   cfg,
		validate: validator.New(),
	}
}

type SignupRequest struct {
	Username         string `json:"username" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8,max=128"`
	FirstName        string `json:"first_name" validate:"required,max=64"`
	LastName         string `json:"last_name" validate:"required,max=64"`
	PhoneCountryCode string `json:"phone_country_code" validate:"required,startswith=+,max=5"`
	PhoneNumber      string `json:"phone_number" validate:"required,numeric,min=4,max=14"`
	MFAMethod        string `json:"mfa_method" validate:"required,oneof=totp sms"`
}

type SignupResult struct {
	UserID                string `json:"user_id"`
	EmailVerificationSent bool   `json:"email_verification_sent"`
	PhoneVerificationSent bool   `json:"phone_verification_sent"`
}

// Signup creates a pending profile and fires both verification
// deliveries. Delivery failure never rolls back the account or the
// issued codes; the response flags tell the client what went out.
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) (*SignupResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !usernamePattern.MatchString(req.Username) {
		return nil, fmt.Errorf("%w: username must be 3-32 characters of letters, digits, underscore or dash", ErrInvalidInput)
	}

	username := strings.ToLower(req.Username)
	emailAddr := strings.ToLower(req.Email)

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already taken", ErrUserExists)
	} else if !errors.Is(err, scylla.ErrUserNotFound) && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrUserExists)
	} else if !errors.Is(err, scylla.ErrUserNotFound) && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if req.MFAMethod == models.MFATypeSMS && !s.config.SMS.Enabled {
		return nil, ErrSMSDisabled
	}

	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        emailAddr,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CountryCode:  req.PhoneCountryCode,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: passwordHash,
		Status:       models.StatusPending,
		MFAType:      req.MFAMethod,
	}

	if req.MFAMethod == models.MFATypeTOTP {
		secret, err := totp.GenerateSecret()
		if err != nil {
			return nil, err
		}
		blob, keyID, err := s.cipher.SealSecret(ctx, secret)
		if err != nil {
			return nil, err
		}
		user.TOTPSecretCipher = blob
		user.TOTPSecretKeyID = keyID
	} else {
		user.SMSLoginPhone = user.FullPhone()
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.index.IndexUser(ctx, user)

	result := &SignupResult{UserID: user.UserID}

	// Deliveries run concurrently and only flip the sent flags; the
	// profile and issued codes survive either failing.
	g, gctx := errgroup.WithContext(ctx)
	if s.config.Email.Enabled {
		g.Go(func() error {
			token, err := s.codes.Issue(gctx, user.UserID, otpcode.PurposeEmailVerify, s.config.Email.VerificationExpiry)
			if err != nil {
				util.Error("failed to issue email verification token", zap.Error(err))
				return nil
			}
			if err := s.email.SendVerificationEmail(user.Email, token, user.Username, user.FirstName); err != nil {
				util.Error("failed to send verification email", zap.Error(err))
				return nil
			}
			result.EmailVerificationSent = true
			return nil
		})
	}
	g.Go(func() error {
		code, err := s.codes.Issue(gctx, user.UserID, otpcode.PurposePhoneVerify, time.Hour)
		if err != nil {
			util.Error("failed to issue phone verification code", zap.Error(err))
			return nil
		}
		if _, err := s.sms.SendCode(gctx, user.FullPhone(), code); err != nil {
			util.Error("failed to send verification sms", zap.Error(err))
			return nil
		}
		result.PhoneVerificationSent = true
		return nil
	})
	_ = g.Wait()

	s.audit.Record(models.AuthEvent{
		EventType: models.EventSignup,
		Username:  user.Username,
		UserID:    user.UserID,
		Success:   true,
	})

	util.Info("user signed up",
		zap.String("username", user.Username),
		zap.String("mfa_method", user.MFAType))
	return result, nil
}

func (s *AuthService) getUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.ToLower(username))
	if err != nil {
		if errors.Is(err, scylla.ErrUserNotFound) || errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// statusAfterVerification computes the pending → complete transition.
func statusAfterVerification(user *models.User, emailVerified, phoneVerified bool) models.ProfileStatus {
	if user.Status == models.StatusPending && emailVerified && phoneVerified {
		return models.StatusComplete
	}
	return user.Status
}

func mapCodeError(err error) error {
	switch {
	case errors.Is(err, otpcode.ErrExpired):
		return ErrCodeExpired
	case errors.Is(err, otpcode.ErrNotFound),
		errors.Is(err, otpcode.ErrMismatch),
		errors.Is(err, otpcode.ErrAlreadyUsed),
		errors.Is(err, otpcode.ErrInvalidInput):
		return ErrInvalidCode
	case errors.Is(err, otpcode.ErrStorage):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	default:
		return err
	}
}

// VerifyEmail consumes the email token and advances the profile.
func (s *AuthService) VerifyEmail(ctx context.Context, username, token string) (models.ProfileStatus, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return "", err
	}
	if user.EmailVerified {
		return user.Status, nil
	}

	if err := s.codes.Verify(ctx, user.UserID, otpcode.PurposeEmailVerify, token); err != nil {
		return "", mapCodeError(err)
	}

	status := statusAfterVerification(user, true, user.PhoneVerified)
	if err := s.users.SetEmailVerified(ctx, user, status); err != nil {
		return "", err
	}
	s.index.IndexUser(ctx, user)
	s.audit.Record(models.AuthEvent{
		EventType: models.EventEmailVerified,
		Username:  user.Username,
		UserID:    user.UserID,
		Success:   true,
	})

	util.Info("email verified", zap.String("username", user.Username))
	return user.Status, nil
}

// VerifyPhone consumes the phone code and advances the profile.
func (s *AuthService) VerifyPhone(ctx context.Context, username, code string) (models.ProfileStatus, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return "", err
	}
	if user.PhoneVerified {
		return user.Status, nil
	}

	if err := s.codes.Verify(ctx, user.UserID, otpcode.PurposePhoneVerify, code); err != nil {
		return "", mapCodeError(err)
	}

	status := statusAfterVerification(user, user.EmailVerified, true)
	if err := s.users.SetPhoneVerified(ctx, user, status); err != nil {
		return "", err
	}
	s.index.IndexUser(ctx, user)
	s.audit.Record(models.AuthEvent{
		EventType: models.EventPhoneVerified,
		Username:  user.Username,
		UserID:    user.UserID,
		Success:   true,
	})

	util.Info("phone verified", zap.String("username", user.Username))
	return user.Status, nil
}

// ResendVerification re-issues the code, invalidating the previous
// one, and delivers it. Unlike signup, delivery failure is an error
// here since delivery is the whole point; the stored code stays valid.
func (s *AuthService) ResendVerification(ctx context.Context, username, verificationType string) (models.ProfileStatus, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return "", err
	}

	switch verificationType {
	case "email":
		if user.EmailVerified {
			return user.Status, nil
		}
		token, err := s.codes.Issue(ctx, user.UserID, otpcode.PurposeEmailVerify, s.config.Email.VerificationExpiry)
		if err != nil {
			return "", mapCodeError(err)
		}
		if err := s.email.SendVerificationEmail(user.Email, token, user.Username, user.FirstName); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
	case "phone":
		if user.PhoneVerified {
			return user.Status, nil
		}
		code, err := s.codes.Issue(ctx, user.UserID, otpcode.PurposePhoneVerify, time.Hour)
		if err != nil {
			return "", mapCodeError(err)
		}
		if _, err := s.sms.SendCode(ctx, user.FullPhone(), code); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
	default:
		return "", fmt.Errorf("%w: verification type must be email or phone", ErrInvalidInput)
	}

	s.audit.Record(models.AuthEvent{
		EventType: models.EventResend,
		Username:  user.Username,
		UserID:    user.UserID,
		Success:   true,
		Detail:    verificationType,
	})
	return user.Status, nil
}

type ProfileStatusInfo struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Status        string `json:"status"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
	MFAMethod     string `json:"mfa_method"`
	CreatedAt     string `json:"created_at"`
}

func (s *AuthService) ProfileStatus(ctx context.Context, username string) (*ProfileStatusInfo, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return &ProfileStatusInfo{
		Username:      user.Username,
		Email:         user.MaskedEmail(),
		Phone:         user.MaskedPhone(),
		Status:        string(user.Status),
		EmailVerified: user.EmailVerified,
		PhoneVerified: user.PhoneVerified,
		MFAMethod:     user.MFAType,
		CreatedAt:     user.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// MFAMethods lists the methods the deployment offers.
func (s *AuthService) MFAMethods() ([]string, bool) {
	methods := []string{models.MFATypeTOTP}
	if s.config.SMS.Enabled {
		methods = append(methods, models.MFATypeSMS)
	}
	return methods, s.config.SMS.Enabled
}

type MFAStatusInfo struct {
	Enrolled    bool   `json:"enrolled"`
	MFAMethod   string `json:"mfa_method,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func (s *AuthService) MFAStatus(ctx context.Context, username string) (*MFAStatusInfo, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return &MFAStatusInfo{Enrolled: false}, nil
		}
		return nil, err
	}

	info := &MFAStatusInfo{
		Enrolled:  len(user.TOTPSecretCipher) > 0 || user.MFAType == models.MFATypeSMS,
		MFAMethod: user.MFAType,
	}
	if user.MFAType == models.MFATypeSMS {
		info.PhoneNumber = user.MaskedPhone()
	}
	return info, nil
}

// mfaMethod resolves the stored configuration into the closed union
// the login path switches on.
func (s *AuthService) mfaMethod(ctx context.Context, user *models.User) (models.MFAMethod, error) {
	switch user.MFAType {
	case models.MFATypeTOTP:
		if len(user.TOTPSecretCipher) == 0 {
			return nil, ErrMFANotConfigured
		}
		secret, err := s.cipher.OpenSecret(ctx, user.TOTPSecretCipher)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMFANotConfigured, err)
		}
		return models.TOTP{Secret: secret}, nil
	case models.MFATypeSMS:
		phone := user.SMSLoginPhone
		if phone == "" {
			phone = user.FullPhone()
		}
		return models.SMS{PhoneNumber: phone}, nil
	default:
		return nil, ErrMFANotConfigured
	}
}

type LoginResult struct {
	IsAdmin bool `json:"is_admin"`
}

// Login authenticates primary credentials against the directory and
// then the second factor, dispatching on the enrolled method.
func (s *AuthService) Login(ctx context.Context, username, password, verificationCode string) (*LoginResult, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}

	switch user.Status {
	case models.StatusPending:
		return nil, &ProfileIncompleteError{Missing: user.MissingVerifications()}
	case models.StatusComplete:
		return nil, ErrAwaitingApproval
	case models.StatusRejected:
		return nil, ErrPermissionDenied
	}

	if err := s.ldap.Authenticate(user.Username, password); err != nil {
		s.recordLoginFailure(user, "primary credentials rejected")
		if errors.Is(err, client.ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	method, err := s.mfaMethod(ctx, user)
	if err != nil {
		return nil, err
	}

	switch m := method.(type) {
	case models.TOTP:
		ok, err := totp.Validate(m.Secret, verificationCode, s.config.TOTP.Window, totp.Options{
			Algorithm: totp.Algorithm(s.config.TOTP.Algorithm),
			Digits:    s.config.TOTP.Digits,
			Period:    s.config.TOTP.Period,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMFANotConfigured, err)
		}
		if !ok {
			s.recordLoginFailure(user, "totp code rejected")
			return nil, ErrInvalidCode
		}
	case models.SMS:
		if err := s.codes.Verify(ctx, user.Username, otpcode.PurposeSMSLogin, verificationCode); err != nil {
			s.recordLoginFailure(user, "sms code rejected")
			return nil, mapCodeError(err)
		}
	}

	isAdmin, err := s.ldap.IsAdmin(user.Username)
	if err != nil {
		util.Warn("admin group check failed", zap.String("username", user.Username), zap.Error(err))
		isAdmin = false
	}

	if err := s.users.UpdateLastLogin(ctx, user); err != nil {
		util.Warn("failed to update last login", zap.Error(err))
	}
	s.audit.Record(models.AuthEvent{
		EventType: models.EventLoginSuccess,
		Username:  user.Username,
		UserID:    user.UserID,
		Success:   true,
	})

	util.Info("login successful", zap.String("username", user.Username), zap.Bool("is_admin", isAdmin))
	return &LoginResult{IsAdmin: isAdmin}, nil
}

func (s *AuthService) recordLoginFailure(user *models.User, detail string) {
	s.audit.Record(models.AuthEvent{
		EventType: models.EventLoginFailure,
		Username:  user.Username,
		UserID:    user.UserID,
		Success:   false,
		Detail:    detail,
	})
}

type EnrollRequest struct {
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required"`
	MFAMethod   string `json:"mfa_method" validate:"required,oneof=totp sms"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type EnrollResult struct {
	MFAMethod   string `json:"mfa_method"`
	OtpauthURI  string `json:"otpauth_uri,omitempty"`
	Secret      string `json:"secret,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Enroll re-enrolls an active user. This and signup are the only
// places a shared secret is ever generated.
func (s *AuthService) Enroll(ctx context.Context, req *EnrollRequest) (*EnrollResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := s.getUser(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if err := s.hasher.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != models.StatusActive {
		return nil, ErrNotActive
	}

	switch req.MFAMethod {
	case models.MFATypeTOTP:
		secret, err := totp.GenerateSecret()
		if err != nil {
			return nil, err
		}
		uri, err := totp.ProvisioningURI(secret, user.Username, s.config.TOTP.Issuer, totp.Options{
			Algorithm: totp.Algorithm(s.config.TOTP.Algorithm),
			Digits:    s.config.TOTP.Digits,
			Period:    s.config.TOTP.Period,
		})
		if err != nil {
			return nil, err
		}
		blob, keyID, err := s.cipher.SealSecret(ctx, secret)
		if err != nil {
			return nil, err
		}

		user.MFAType = models.MFATypeTOTP
		user.TOTPSecretCipher = blob
		user.TOTPSecretKeyID = keyID
		user.SMSLoginPhone = ""
		if err := s.users.UpdateMFA(ctx, user); err != nil {
			return nil, err
		}
		s.index.IndexUser(ctx, user)
		s.audit.Record(models.AuthEvent{
			EventType: models.EventEnrolled,
			Username:  user.Username,
			UserID:    user.UserID,
			Success:   true,
			Detail:    models.MFATypeTOTP,
		})

		util.Info("user re-enrolled for totp", zap.String("username", user.Username))
		return &EnrollResult{
			MFAMethod:  models.MFATypeTOTP,
			OtpauthURI: uri,
			Secret:     secret,
		}, nil

	case models.MFATypeSMS:
		if !s.config.SMS.Enabled {
			return nil, ErrSMSDisabled
		}
		phone := util.NormalizePhone(req.PhoneNumber)
		if phone == "" {
			phone = user.FullPhone()
		}
		if err := client.ValidatePhoneNumber(phone); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}

		user.MFAType = models.MFATypeSMS
		user.SMSLoginPhone = phone
		user.TOTPSecretCipher = nil
		user.TOTPSecretKeyID = ""
		if err := s.users.UpdateMFA(ctx, user); err != nil {
			return nil, err
		}
		s.index.IndexUser(ctx, user)
		s.audit.Record(models.AuthEvent{
			EventType: models.EventEnrolled,
			Username:  user.Username,
			UserID:    user.UserID,
			Success:   true,
			Detail:    models.MFATypeSMS,
		})

		util.Info("user re-enrolled for sms", zap.String("username", user.Username))
		return &EnrollResult{
			MFAMethod:   models.MFATypeSMS,
			PhoneNumber: util.MaskPhone(phone),
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown mfa method", ErrInvalidInput)
}

type SMSCodeResult struct {
	PhoneNumber      string `json:"phone_number"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// SendSMSCode checks credentials, stores a login code, then delivers
// it. Storage comes first: if the code cannot be stored there is
// nothing to claim as sent.
func (s *AuthService) SendSMSCode(ctx context.Context, username, password string) (*SMSCodeResult, error) {
	if !s.config.SMS.Enabled {
		return nil, ErrSMSDisabled
	}

	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}

	// Active users authenticate against the directory; everyone else
	// against the stored profile password.
	if user.Status == models.StatusActive {
		if err := s.ldap.Authenticate(user.Username, password); err != nil {
			if errors.Is(err, client.ErrInvalidCredentials) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
	} else {
		if err := s.hasher.VerifyPassword(password, user.PasswordHash); err != nil {
			return nil, ErrInvalidCredentials
		}
	}

	if user.MFAType != models.MFATypeSMS {
		return nil, ErrNotEnrolledSMS
	}

	method, err := s.mfaMethod(ctx, user)
	if err != nil {
		return nil, err
	}
	phone := method.(models.SMS).PhoneNumber

	code, err := s.codes.Issue(ctx, user.Username, otpcode.PurposeSMSLogin, s.config.SMS.CodeExpiry)
	if err != nil {
		return nil, mapCodeError(err)
	}
	if _, err := s.sms.SendCode(ctx, phone, code); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.audit.Record(models.AuthEvent{
		EventType: models.EventSMSCodeSent,
		Username:  user.Username,
		UserID:    user.UserID,
		Success:   true,
	})

	util.Info("sms login code sent", zap.String("username", user.Username))
	return &SMSCodeResult{
		PhoneNumber:      util.MaskPhone(phone),
		ExpiresInSeconds: int(s.config.SMS.CodeExpiry.Seconds()),
	}, nil
}
