package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mfa-service/internal/client"
	"mfa-service/internal/hashing"
	"mfa-service/internal/models"
	"mfa-service/internal/repository/es"
	"mfa-service/internal/util"
)

// UserSearcher lists profiles from the admin search directory.
type UserSearcher interface {
	SearchUsers(ctx context.Context, status, query string, limit int) ([]es.UserDoc, int, error)
}

// AdminService wraps the auth service with the operations reserved for
// members of the directory admin group.
type AdminService struct {
	auth   *AuthService
	users  UserStore
	ldap   Directory
	email  EmailSender
	hasher PasswordHasher
	search UserSearcher
	index  UserIndexer
	audit  EventRecorder
}

func NewAdminService(
	auth *AuthService,
	users UserStore,
	ldap Directory,
	email EmailSender,
	hasher PasswordHasher,
	search UserSearcher,
	index UserIndexer,
	audit EventRecorder,
) *AdminService {
	return &AdminService{
		auth:   auth,
		users:  users,
		ldap:   ldap,
		email:  email,
		hasher: hasher,
		search: search,
		index:  index,
		audit:  audit,
	}
}

// Login is the full login flow plus the admin group gate. A valid
// non-admin login still comes back as permission denied.
func (s *AdminService) Login(ctx context.Context, username, password, verificationCode string) (*LoginResult, error) {
	result, err := s.auth.Login(ctx, username, password, verificationCode)
	if err != nil {
		return nil, err
	}
	if !result.IsAdmin {
		s.audit.Record(models.AuthEvent{
			EventType: models.EventLoginFailure,
			Username:  username,
			Success:   false,
			Detail:    "admin login without group membership",
		})
		return nil, ErrPermissionDenied
	}

	s.audit.Record(models.AuthEvent{
		EventType: models.EventAdminLogin,
		Username:  username,
		Success:   true,
	})
	return result, nil
}

// checkAdmin verifies the acting admin's directory credentials and
// group membership. Every admin operation re-checks; there is no
// session to inherit trust from.
func (s *AdminService) checkAdmin(adminUsername, adminPassword string) error {
	if err := s.ldap.Authenticate(adminUsername, adminPassword); err != nil {
		if errors.Is(err, client.ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return err
	}
	isAdmin, err := s.ldap.IsAdmin(adminUsername)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrPermissionDenied
	}
	return nil
}

type ListUsersResult struct {
	Users []es.UserDoc `json:"users"`
	Total int          `json:"total"`
}

// ListUsers lists profiles from the search directory, optionally
// filtered by status and a free-text query.
func (s *AdminService) ListUsers(ctx context.Context, adminUsername, adminPassword, status, query string, limit int) (*ListUsersResult, error) {
	if err := s.checkAdmin(adminUsername, adminPassword); err != nil {
		return nil, err
	}

	docs, total, err := s.search.SearchUsers(ctx, status, query, limit)
	if err != nil {
		return nil, err
	}
	return &ListUsersResult{Users: docs, Total: total}, nil
}

type ActivateResult struct {
	Username     string `json:"username"`
	TempPassword string `json:"temp_password"`
	WelcomeSent  bool   `json:"welcome_email_sent"`
}

// Activate approves a complete profile: creates the directory account
// with a temporary password and marks the profile active. The welcome
// email is best-effort; the admin gets the temp password either way.
func (s *AdminService) Activate(ctx context.Context, adminUsername, adminPassword, targetUsername string) (*ActivateResult, error) {
	if err := s.checkAdmin(adminUsername, adminPassword); err != nil {
		return nil, err
	}

	user, err := s.auth.getUser(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if user.Status != models.StatusComplete {
		return nil, fmt.Errorf("%w: only complete profiles can be activated, current status is %s",
			ErrInvalidInput, user.Status)
	}

	// The directory may already hold the name, left over from a
	// previous life of the account or taken by something outside this
	// service. Adding over it would silently rebind that entry.
	exists, err := s.ldap.UserExists(user.Username)
	if err != nil {
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: directory account %s already exists", ErrUserExists, user.Username)
	}

	tempPassword, err := hashing.GenerateTempPassword()
	if err != nil {
		return nil, err
	}
	if err := s.ldap.CreateUser(user.Username, tempPassword, user.FirstName, user.LastName, user.Email); err != nil {
		return nil, fmt.Errorf("failed to create directory account: %w", err)
	}

	tempHash, err := s.hasher.HashPassword(tempPassword)
	if err != nil {
		return nil, err
	}
	if err := s.users.Activate(ctx, user, adminUsername, tempHash); err != nil {
		return nil, err
	}
	s.index.IndexUser(ctx, user)

	result := &ActivateResult{
		Username:     user.Username,
		TempPassword: tempPassword,
	}
	if err := s.email.SendWelcomeEmail(user.Email, user.Username, user.FirstName); err != nil {
		util.Warn("failed to send welcome email",
			zap.String("username", user.Username), zap.Error(err))
	} else {
		result.WelcomeSent = true
	}

	s.audit.Record(models.AuthEvent{
		EventType: models.EventUserActivated,
		Username:  user.Username,
		UserID:    user.UserID,
		Actor:     adminUsername,
		Success:   true,
	})

	util.Info("user activated",
		zap.String("username", user.Username),
		zap.String("activated_by", adminUsername))
	return result, nil
}

// Reject marks a profile rejected. The row is kept so the username and
// email stay reserved and the decision is auditable.
func (s *AdminService) Reject(ctx context.Context, adminUsername, adminPassword, targetUsername string) error {
	if err := s.checkAdmin(adminUsername, adminPassword); err != nil {
		return err
	}

	user, err := s.auth.getUser(ctx, targetUsername)
	if err != nil {
		return err
	}
	if user.Status == models.StatusActive {
		return fmt.Errorf("%w: active users cannot be rejected", ErrInvalidInput)
	}

	if err := s.users.Reject(ctx, user, adminUsername); err != nil {
		return err
	}
	s.index.IndexUser(ctx, user)

	s.audit.Record(models.AuthEvent{
		EventType: models.EventUserRejected,
		Username:  user.Username,
		UserID:    user.UserID,
		Actor:     adminUsername,
		Success:   true,
	})

	util.Info("user rejected",
		zap.String("username", user.Username),
		zap.String("rejected_by", adminUsername))
	return nil
}
