package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"mfa-service/internal/config"
	"mfa-service/internal/util"
)

// PreparedStatements holds every statement the repositories execute.
type PreparedStatements struct {
	CreateUser          *gocql.Query
	CreateUsernameIndex *gocql.Query
	CreateEmailIndex    *gocql.Query
	GetUser             *gocql.Query
	GetUserByUsername   *gocql.Query
	GetUserByEmail      *gocql.Query
	SetEmailVerified    *gocql.Query
	SetPhoneVerified    *gocql.Query
	UpdateStatus        *gocql.Query
	UpdateMFA           *gocql.Query
	ActivateUser        *gocql.Query
	RejectUser          *gocql.Query
	UpdateLastLogin     *gocql.Query

	InsertCode    *gocql.Query
	GetLatestCode *gocql.Query
	ConsumeCode   *gocql.Query
	DeleteCodes   *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, username, email, first_name, last_name,
            country_code, phone_number, password_hash, email_verified, phone_verified,
            status, mfa_type, totp_secret_cipher, totp_secret_key_id, sms_login_phone,
            activated_by, activated_at, rejected_by, rejected_at,
            created_at, updated_at, last_login
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateUsernameIndex = s.Session.Query(`
        INSERT INTO username_to_user (username, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.CreateEmailIndex = s.Session.Query(`
        INSERT INTO email_to_user (email, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetUser = s.Session.Query(`
        SELECT user_bucket, user_id, username, email, first_name, last_name,
            country_code, phone_number, password_hash, email_verified, phone_verified,
            status, mfa_type, totp_secret_cipher, totp_secret_key_id, sms_login_phone,
            activated_by, activated_at, rejected_by, rejected_at,
            created_at, updated_at, last_login
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetUserByUsername = s.Session.Query(`
        SELECT user_bucket, user_id FROM username_to_user WHERE username = ?`)

	prepared.GetUserByEmail = s.Session.Query(`
        SELECT user_bucket, user_id FROM email_to_user WHERE email = ?`)

	prepared.SetEmailVerified = s.Session.Query(`
        UPDATE users SET email_verified = ?, status = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.SetPhoneVerified = s.Session.Query(`
        UPDATE users SET phone_verified = ?, status = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateStatus = s.Session.Query(`
        UPDATE users SET status = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateMFA = s.Session.Query(`
        UPDATE users SET mfa_type = ?, totp_secret_cipher = ?, totp_secret_key_id = ?,
            sms_login_phone = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.ActivateUser = s.Session.Query(`
        UPDATE users SET status = ?, activated_by = ?, activated_at = ?,
            password_hash = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.RejectUser = s.Session.Query(`
        UPDATE users SET status = ?, rejected_by = ?, rejected_at = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE users SET last_login = ? WHERE user_bucket = ? AND user_id = ?`)

	prepared.InsertCode = s.Session.Query(`
        INSERT INTO verification_codes (
            identity, purpose, created_at, code_id, code_hash, expires_at, used
        ) VALUES (?, ?, ?, ?, ?, ?, false)`)

	prepared.GetLatestCode = s.Session.Query(`
        SELECT identity, purpose, created_at, code_id, code_hash, expires_at, used
        FROM verification_codes WHERE identity = ? AND purpose = ? LIMIT 1`)

	prepared.ConsumeCode = s.Session.Query(`
        UPDATE verification_codes SET used = true
        WHERE identity = ? AND purpose = ? AND created_at = ? AND code_id = ?
        IF used = false`)

	prepared.DeleteCodes = s.Session.Query(`
        DELETE FROM verification_codes WHERE identity = ? AND purpose = ?`)

	s.Prepared = prepared
	s.isPrepared = true
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}
