package associate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no associate row exists for the provided identifier.
	ErrNotFound = errors.New("associate: not found")
	// ErrDuplicate signals a unique constraint violation on insert.
	ErrDuplicate = errors.New("associate: already exists")
)

const selectColumns = `id, name, identification_code, stage, contribution_paid, last_updated`

// Repository provides pgx-backed access to associates, their timeline and the outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches an associate by its identifier.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + selectColumns + ` FROM associates WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("associate: get: %w", err)
	}
	return rec, nil
}

// List returns one page of associates ordered by name, optionally restricted
// to a single stage value, together with the total number of matches.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Record, int, error) {
	where := ""
	args := []any{}
	if filters.Stage != "" {
		where = ` WHERE stage = $1`
		args = append(args, filters.Stage)
	}

	query := `SELECT ` + selectColumns + ` FROM associates` + where + ` ORDER BY name ASC, id ASC`
	pageArgs := append([]any{}, args...)
	if filters.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(pageArgs)+1, len(pageArgs)+2)
		pageArgs = append(pageArgs, filters.Limit, max(filters.Offset, 0))
	} else if filters.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, len(pageArgs)+1)
		pageArgs = append(pageArgs, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("associate: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("associate: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("associate: iterate: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM associates`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("associate: count list: %w", err)
	}
	return out, total, nil
}

// Upsert inserts rec or overwrites the stored associate with the same identifier.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("associate: missing id")
	}

	const upsertSQL = `
INSERT INTO associates (id, name, identification_code, stage, contribution_paid, last_updated)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    identification_code = EXCLUDED.identification_code,
    stage = EXCLUDED.stage,
    contribution_paid = EXCLUDED.contribution_paid,
    last_updated = EXCLUDED.last_updated;
`
	if _, err := r.pool.Exec(ctx, upsertSQL, rec.ID, rec.Name, rec.IdentificationCode, rec.Stage, rec.ContributionPaid, rec.LastUpdated); err != nil {
		return fmt.Errorf("associate: upsert: %w", err)
	}
	return nil
}

// Create inserts rec, failing with ErrDuplicate when the identifier is taken.
func (r *Repository) Create(ctx context.Context, rec Record) error {
	const insertSQL = `
INSERT INTO associates (id, name, identification_code, stage, contribution_paid, last_updated)
VALUES ($1, $2, $3, $4, $5, $6);
`
	if _, err := r.pool.Exec(ctx, insertSQL, rec.ID, rec.Name, rec.IdentificationCode, rec.Stage, rec.ContributionPaid, rec.LastUpdated); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("associate: create: %w", err)
	}
	return nil
}

// LockForUpdate reads the associate inside tx and holds a row lock until the
// transaction ends, serialising concurrent transitions on the same identifier.
func (r *Repository) LockForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	query := `SELECT ` + selectColumns + ` FROM associates WHERE id = $1 FOR UPDATE`

	rec, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("associate: lock for update: %w", err)
	}
	return rec, nil
}

// UpdateStage persists the stage and timestamp of an accepted record.
func (r *Repository) UpdateStage(ctx context.Context, tx pgx.Tx, rec Record) error {
	tag, err := tx.Exec(ctx, `
UPDATE associates
SET stage = $1,
    last_updated = $2
WHERE id = $3
`, rec.Stage, rec.LastUpdated, rec.ID)
	if err != nil {
		return fmt.Errorf("associate: update stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTimeline writes the next timeline event for the associate.
func (r *Repository) AppendTimeline(ctx context.Context, tx pgx.Tx, associateID, eventType string, actorID *string, payload map[string]any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("associate: marshal timeline payload: %w", err)
	}

	var actor any
	if actorID != nil {
		actor = *actorID
	}

	const insertSQL = `
INSERT INTO associate_timeline_events (associate_id, seq, type, payload, actor_id)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
FROM associate_timeline_events
WHERE associate_id = $1;
`
	if _, err := tx.Exec(ctx, insertSQL, associateID, eventType, payloadBytes, actor); err != nil {
		return fmt.Errorf("associate: insert timeline event: %w", err)
	}
	return nil
}

// EnqueueOutbox writes an outbox message in the same transaction as the state change.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("associate: marshal outbox payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (id, topic, payload)
VALUES ($1, $2, $3);
`
	if _, err := tx.Exec(ctx, insertSQL, uuid.NewString(), topic, payloadBytes); err != nil {
		return fmt.Errorf("associate: insert outbox message: %w", err)
	}
	return nil
}

// Timeline returns the stage history of an associate ordered by sequence.
func (r *Repository) Timeline(ctx context.Context, associateID string) ([]TimelineEvent, error) {
	const query = `
SELECT id, associate_id, seq, type, actor_id, created_at, payload
FROM associate_timeline_events
WHERE associate_id = $1
ORDER BY seq ASC
`
	rows, err := r.pool.Query(ctx, query, associateID)
	if err != nil {
		return nil, fmt.Errorf("associate: timeline: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineEvent, 0, 8)
	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.ID, &ev.AssociateID, &ev.Seq, &ev.Type, &ev.ActorID, &ev.CreatedAt, &ev.Payload); err != nil {
			return nil, fmt.Errorf("associate: scan timeline event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("associate: iterate timeline: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec         Record
		lastUpdated *time.Time
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.IdentificationCode, &rec.Stage, &rec.ContributionPaid, &lastUpdated); err != nil {
		return Record{}, err
	}
	rec.LastUpdated = lastUpdated
	return rec, nil
}
