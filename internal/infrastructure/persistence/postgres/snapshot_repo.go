package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

// DefaultKeepSnapshots is how many snapshots survive a Save. Only the newest one
// is ever read back; the previous one is kept for manual inspection of the last change.
const DefaultKeepSnapshots = 2

// SnapshotRepository implements document.Repository for PostgreSQL.
type SnapshotRepository struct {
	conn *Connection
	keep int
}

// NewSnapshotRepository creates a new SnapshotRepository keeping the newest keep
// snapshots (DefaultKeepSnapshots when keep <= 0).
func NewSnapshotRepository(conn *Connection, keep int) *SnapshotRepository {
	if keep <= 0 {
		keep = DefaultKeepSnapshots
	}
	return &SnapshotRepository{conn: conn, keep: keep}
}

// Save stores the snapshot and prunes older ones in the same transaction.
func (r *SnapshotRepository) Save(ctx context.Context, snap *document.Snapshot) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO document_snapshots (id, version, fingerprint, source_url, page_count, body, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			snap.ID,
			snap.Version,
			snap.Fingerprint,
			snap.SourceURL,
			snap.PageCount,
			snap.Text,
			snap.FetchedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.WrapError("document", "Save", shared.ErrAlreadyExists,
					fmt.Sprintf("snapshot version %d already stored", snap.Version), err)
			}
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM document_snapshots
			WHERE version <= (SELECT max(version) FROM document_snapshots) - $1
		`, r.keep)
		if err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
		return nil
	})
}

// Latest returns the snapshot with the highest version.
func (r *SnapshotRepository) Latest(ctx context.Context) (*document.Snapshot, error) {
	var (
		id          uuid.UUID
		version     int64
		fingerprint string
		sourceURL   string
		pageCount   int
		body        string
		fetchedAt   time.Time
	)

	err := r.conn.QueryRow(ctx, `
		SELECT id, version, fingerprint, source_url, page_count, body, fetched_at
		FROM document_snapshots
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&id, &version, &fingerprint, &sourceURL, &pageCount, &body, &fetchedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	return document.Restore(id, version, fingerprint, sourceURL, pageCount, body, fetchedAt), nil
}
