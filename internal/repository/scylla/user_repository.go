package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mfa-service/internal/bucketing"
	"mfa-service/internal/models"
	"mfa-service/internal/util"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserRepository persists profiles in the users table plus two lookup
// tables keyed by username and email.
type UserRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.Manager) *UserRepository {
	return &UserRepository{
		client:  client,
		buckets: buckets,
	}
}

// CreateUser writes the profile and its lookup rows in one logged
// batch. Uniqueness of username and email is the caller's check; the
// lookup insert is last-writer-wins.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.UserBucket = r.buckets.UserBucket(user.UserID)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = &now

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateUser.Statement(),
		user.UserBucket, user.UserID, user.Username, user.Email,
		user.FirstName, user.LastName, user.CountryCode, user.PhoneNumber,
		user.PasswordHash, user.EmailVerified, user.PhoneVerified,
		string(user.Status), user.MFAType, user.TOTPSecretCipher,
		user.TOTPSecretKeyID, user.SMSLoginPhone,
		user.ActivatedBy, user.ActivatedAt, user.RejectedBy, user.RejectedAt,
		user.CreatedAt, user.UpdatedAt, user.LastLogin)

	batch.Query(r.client.Prepared.CreateUsernameIndex.Statement(),
		user.Username, user.UserBucket, user.UserID, user.CreatedAt)

	batch.Query(r.client.Prepared.CreateEmailIndex.Statement(),
		user.Email, user.UserBucket, user.UserID, user.CreatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("failed to create user",
			zap.String("username", user.Username),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("user created",
		zap.String("username", user.Username),
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))
	return nil
}

func (r *UserRepository) scanUser(q *gocql.Query) (*models.User, error) {
	user := &models.User{}
	var status string
	err := q.Scan(
		&user.UserBucket, &user.UserID, &user.Username, &user.Email,
		&user.FirstName, &user.LastName, &user.CountryCode, &user.PhoneNumber,
		&user.PasswordHash, &user.EmailVerified, &user.PhoneVerified,
		&status, &user.MFAType, &user.TOTPSecretCipher,
		&user.TOTPSecretKeyID, &user.SMSLoginPhone,
		&user.ActivatedBy, &user.ActivatedAt, &user.RejectedBy, &user.RejectedAt,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLogin)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Status = models.ProfileStatus(status)
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	bucket := r.buckets.UserBucket(userID)
	return r.scanUser(r.client.Prepared.GetUser.WithContext(ctx).Bind(bucket, userID))
}

func (r *UserRepository) lookup(ctx context.Context, q *gocql.Query) (*models.User, error) {
	var bucket int
	var userID string
	if err := q.Scan(&bucket, &userID); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return r.scanUser(r.client.Prepared.GetUser.WithContext(ctx).Bind(bucket, userID))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.lookup(ctx, r.client.Prepared.GetUserByUsername.WithContext(ctx).Bind(username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.lookup(ctx, r.client.Prepared.GetUserByEmail.WithContext(ctx).Bind(email))
}

// SetEmailVerified flips the flag and records the status the caller
// computed from both flags.
func (r *UserRepository) SetEmailVerified(ctx context.Context, user *models.User, status models.ProfileStatus) error {
	now := time.Now().UTC()
	q := r.client.Prepared.SetEmailVerified.WithContext(ctx).Bind(
		true, string(status), now, user.UserBucket, user.UserID)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to set email verified: %w", err)
	}
	user.EmailVerified = true
	user.Status = status
	user.UpdatedAt = &now
	return nil
}

func (r *UserRepository) SetPhoneVerified(ctx context.Context, user *models.User, status models.ProfileStatus) error {
	now := time.Now().UTC()
	q := r.client.Prepared.SetPhoneVerified.WithContext(ctx).Bind(
		true, string(status), now, user.UserBucket, user.UserID)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to set phone verified: %w", err)
	}
	user.PhoneVerified = true
	user.Status = status
	user.UpdatedAt = &now
	return nil
}

// UpdateMFA overwrites the whole MFA column group so a method switch
// leaves no stale secret behind.
func (r *UserRepository) UpdateMFA(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	q := r.client.Prepared.UpdateMFA.WithContext(ctx).Bind(
		user.MFAType, user.TOTPSecretCipher, user.TOTPSecretKeyID,
		user.SMSLoginPhone, now, user.UserBucket, user.UserID)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to update mfa: %w", err)
	}
	user.UpdatedAt = &now
	return nil
}

func (r *UserRepository) Activate(ctx context.Context, user *models.User, adminUsername, passwordHash string) error {
	now := time.Now().UTC()
	q := r.client.Prepared.ActivateUser.WithContext(ctx).Bind(
		string(models.StatusActive), adminUsername, now, passwordHash,
		now, user.UserBucket, user.UserID)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	user.Status = models.StatusActive
	user.ActivatedBy = adminUsername
	user.ActivatedAt = &now
	user.PasswordHash = passwordHash
	user.UpdatedAt = &now
	return nil
}

func (r *UserRepository) Reject(ctx context.Context, user *models.User, adminUsername string) error {
	now := time.Now().UTC()
	q := r.client.Prepared.RejectUser.WithContext(ctx).Bind(
		string(models.StatusRejected), adminUsername, now, now,
		user.UserBucket, user.UserID)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to reject user: %w", err)
	}
	user.Status = models.StatusRejected
	user.RejectedBy = adminUsername
	user.RejectedAt = &now
	user.UpdatedAt = &now
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	q := r.client.Prepared.UpdateLastLogin.WithContext(ctx).Bind(
		now, user.UserBucket, user.UserID)
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now
	return nil
}
