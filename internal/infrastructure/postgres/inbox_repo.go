package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/inbox"
)

type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

// SaveIfNotExists joins the caller's transaction when ctx carries one, so
// the inbox row commits or rolls back with the handler's writes.
func (r *InboxRepository) SaveIfNotExists(ctx context.Context, e *inbox.Event) (bool, error) {
	const sql = `
		INSERT INTO inbox_events (consumer, event_id, event_type, source, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (consumer, event_id) DO NOTHING
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, sql, e.Consumer, e.EventID, e.EventType, nullIfEmpty(e.Source))
	if err != nil {
		return false, fmt.Errorf("insert inbox event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
