package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mfa-service/internal/otpcode"
	"mfa-service/internal/util"
)

// CodeRepository is the durable store behind email and phone
// verification codes. Rows cluster newest-first under the
// (identity, purpose) partition, so the latest issuance is the only
// one GetActive can see; consumption is a lightweight transaction.
type CodeRepository struct {
	client *ScyllaClient
}

func NewCodeRepository(client *ScyllaClient) *CodeRepository {
	return &CodeRepository{client: client}
}

var _ otpcode.DurableStore = (*CodeRepository)(nil)

func (r *CodeRepository) Put(ctx context.Context, e otpcode.Entry) error {
	q := r.client.Prepared.InsertCode.WithContext(ctx).Bind(
		e.Identity, string(e.Purpose), e.CreatedAt.UTC(),
		gocql.UUID(e.ID), e.CodeHash, e.ExpiresAt.UTC())
	if err := q.Exec(); err != nil {
		util.Error("failed to store verification code",
			zap.String("purpose", string(e.Purpose)),
			zap.Error(err))
		return fmt.Errorf("failed to store verification code: %w", err)
	}
	return nil
}

func (r *CodeRepository) GetActive(ctx context.Context, identity string, purpose otpcode.Purpose) (otpcode.Entry, error) {
	var (
		e         otpcode.Entry
		purposeDB string
		codeID    gocql.UUID
		createdAt time.Time
		expiresAt time.Time
	)
	q := r.client.Prepared.GetLatestCode.WithContext(ctx).Bind(identity, string(purpose))
	err := q.Scan(&e.Identity, &purposeDB, &createdAt, &codeID, &e.CodeHash, &expiresAt, &e.Used)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return otpcode.Entry{}, otpcode.ErrNotFound
		}
		return otpcode.Entry{}, fmt.Errorf("failed to load verification code: %w", err)
	}
	e.Purpose = otpcode.Purpose(purposeDB)
	e.ID = uuid.UUID(codeID)
	e.CreatedAt = createdAt
	e.ExpiresAt = expiresAt
	return e, nil
}

// Consume marks the entry used with IF used = false. The paxos round
// guarantees a single winner under concurrent verification.
func (r *CodeRepository) Consume(ctx context.Context, e otpcode.Entry) (bool, error) {
	q := r.client.Prepared.ConsumeCode.WithContext(ctx).Bind(
		e.Identity, string(e.Purpose), e.CreatedAt.UTC(), gocql.UUID(e.ID))
	applied, err := q.MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to consume verification code: %w", err)
	}
	return applied, nil
}

func (r *CodeRepository) Invalidate(ctx context.Context, identity string, purpose otpcode.Purpose) error {
	q := r.client.Prepared.DeleteCodes.WithContext(ctx).Bind(identity, string(purpose))
	if err := q.Exec(); err != nil {
		return fmt.Errorf("failed to invalidate verification codes: %w", err)
	}
	return nil
}
