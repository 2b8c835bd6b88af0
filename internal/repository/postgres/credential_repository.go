package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybridge/bookingd/internal/domain/credential"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
)

// CredentialRepository implements credential.Store using PostgreSQL. Grace
// periods are stored in seconds; secrets live in the active/candidate
// columns and never appear in logs or events.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

func (r *CredentialRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *CredentialRepository) Get(ctx context.Context, service string) (*credential.Set, error) {
	set := &credential.Set{}
	var graceSeconds int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT service, active_credential, candidate_credential, rotation_started_at, grace_period_seconds, updated_at
		 FROM credential_sets WHERE service = $1`, service,
	).Scan(&set.Service, &set.Active, &set.Candidate, &set.RotationStartedAt, &graceSeconds, &set.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential set: %w", err)
	}
	set.GracePeriod = time.Duration(graceSeconds) * time.Second
	return set, nil
}

func (r *CredentialRepository) Put(ctx context.Context, set *credential.Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO credential_sets (service, active_credential, candidate_credential, rotation_started_at, grace_period_seconds, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (service) DO UPDATE SET
		   active_credential = EXCLUDED.active_credential,
		   candidate_credential = EXCLUDED.candidate_credential,
		   rotation_started_at = EXCLUDED.rotation_started_at,
		   grace_period_seconds = EXCLUDED.grace_period_seconds,
		   updated_at = EXCLUDED.updated_at`,
		set.Service, set.Active, set.Candidate, set.RotationStartedAt,
		int64(set.GracePeriod/time.Second), set.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert credential set: %w", err)
	}
	return nil
}

func (r *CredentialRepository) List(ctx context.Context) ([]*credential.Set, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT service, active_credential, candidate_credential, rotation_started_at, grace_period_seconds, updated_at
		 FROM credential_sets ORDER BY service ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list credential sets: %w", err)
	}
	defer rows.Close()

	var sets []*credential.Set
	for rows.Next() {
		set := &credential.Set{}
		var graceSeconds int64
		if err := rows.Scan(&set.Service, &set.Active, &set.Candidate, &set.RotationStartedAt, &graceSeconds, &set.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential set: %w", err)
		}
		set.GracePeriod = time.Duration(graceSeconds) * time.Second
		sets = append(sets, set)
	}
	return sets, rows.Err()
}
