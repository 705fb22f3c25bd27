package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/spool"
)

// SpoolRepository stores envelopes whose direct publish failed until the
// relay worker re-sends them.
type SpoolRepository struct {
	pool *pgxpool.Pool
}

func NewSpoolRepository(pool *pgxpool.Pool) *SpoolRepository {
	return &SpoolRepository{pool: pool}
}

func (r *SpoolRepository) Create(ctx context.Context, e *spool.Event) error {
	const sql = `
		INSERT INTO event_spool (id, event_type, routing_target, payload, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := conn(ctx, r.pool).Exec(ctx, sql,
		e.ID, e.EventType, nullIfEmpty(e.RoutingTarget), e.Payload, e.Status, e.Attempts, nullIfEmpty(e.LastError), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert spool event: %w", err)
	}
	return nil
}

// FetchBatch claims up to limit new rows, oldest first, and flips them to
// processing. Concurrent relays skip each other's claimed rows.
func (r *SpoolRepository) FetchBatch(ctx context.Context, limit int) ([]*spool.Event, error) {
	const sql = `
		WITH claimed AS (
			SELECT id
			FROM event_spool
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE event_spool
		SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed)
		RETURNING
			id::text,
			event_type,
			COALESCE(routing_target, ''),
			payload,
			status,
			attempts,
			COALESCE(last_error, ''),
			created_at,
			updated_at
	`
	rows, err := r.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query spool: %w", err)
	}
	defer rows.Close()

	var events []*spool.Event
	for rows.Next() {
		e := &spool.Event{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.RoutingTarget, &e.Payload, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan spool event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SpoolRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE event_spool
		SET status = 'processed', last_error = NULL, updated_at = NOW()
		WHERE id::text = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailed returns rows to the queue so the next poll retries them.
func (r *SpoolRepository) MarkFailed(ctx context.Context, ids []string, reason string) error {
	const sql = `
		UPDATE event_spool
		SET status = 'new', last_error = $2, updated_at = NOW()
		WHERE id::text = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, ids, nullIfEmpty(reason)); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ReleaseStuck resets rows left in processing by a crashed relay.
func (r *SpoolRepository) ReleaseStuck(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE event_spool SET status = 'new', updated_at = NOW() WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("release stuck spool rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus reports how many rows sit in each status.
func (r *SpoolRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM event_spool GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count spool: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan spool count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
