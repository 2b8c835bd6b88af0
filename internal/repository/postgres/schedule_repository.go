package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybridge/bookingd/internal/domain/credential"
	domainErrors "github.com/skybridge/bookingd/internal/domain/errors"
)

// ScheduleRepository implements credential.ScheduleRepository using PostgreSQL.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *ScheduleRepository) Get(ctx context.Context, service string) (*credential.Schedule, error) {
	s := &credential.Schedule{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT service, frequency_days, auto_rotate, max_retries, retry_count, next_rotation_at, last_rotation_at, updated_at
		 FROM rotation_schedules WHERE service = $1`, service,
	).Scan(&s.Service, &s.FrequencyDays, &s.AutoRotate, &s.MaxRetries, &s.RetryCount, &s.NextRotationAt, &s.LastRotationAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get rotation schedule: %w", err)
	}
	return s, nil
}

func (r *ScheduleRepository) Put(ctx context.Context, s *credential.Schedule) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO rotation_schedules (service, frequency_days, auto_rotate, max_retries, retry_count, next_rotation_at, last_rotation_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (service) DO UPDATE SET
		   frequency_days = EXCLUDED.frequency_days,
		   auto_rotate = EXCLUDED.auto_rotate,
		   max_retries = EXCLUDED.max_retries,
		   retry_count = EXCLUDED.retry_count,
		   next_rotation_at = EXCLUDED.next_rotation_at,
		   last_rotation_at = EXCLUDED.last_rotation_at,
		   updated_at = EXCLUDED.updated_at`,
		s.Service, s.FrequencyDays, s.AutoRotate, s.MaxRetries, s.RetryCount,
		s.NextRotationAt, s.LastRotationAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert rotation schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) List(ctx context.Context) ([]*credential.Schedule, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT service, frequency_days, auto_rotate, max_retries, retry_count, next_rotation_at, last_rotation_at, updated_at
		 FROM rotation_schedules ORDER BY next_rotation_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list rotation schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*credential.Schedule
	for rows.Next() {
		s := &credential.Schedule{}
		if err := rows.Scan(&s.Service, &s.FrequencyDays, &s.AutoRotate, &s.MaxRetries, &s.RetryCount, &s.NextRotationAt, &s.LastRotationAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rotation schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}
