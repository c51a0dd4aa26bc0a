package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

type KnowledgeRepository struct {
	db *sql.DB
}

func NewKnowledgeRepository(db *sql.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *KnowledgeRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	section TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	version TEXT NOT NULL,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_entries_status ON knowledge_entries(status);
CREATE INDEX IF NOT EXISTS idx_knowledge_entries_version ON knowledge_entries(version);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *KnowledgeRepository) Create(ctx context.Context, entry *domain.KnowledgeEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO knowledge_entries (
	id, title, section, body, version, source, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		entry.ID, entry.Title, entry.Section, entry.Body, entry.Version, entry.Source,
		string(entry.Status), entry.Error, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge entry: %w", err)
	}
	return nil
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, section, body, version, source, status, error_message, created_at, updated_at
FROM knowledge_entries
WHERE id = $1
`, id)

	entry, err := scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEntryNotFound, "get entry", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan knowledge entry: %w", err)
	}
	return entry, nil
}

func (r *KnowledgeRepository) UpdateStatus(ctx context.Context, id string, status domain.EntryStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE knowledge_entries
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrEntryNotFound, "update entry status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *KnowledgeRepository) ListByStatus(ctx context.Context, status domain.EntryStatus) ([]domain.KnowledgeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, section, body, version, source, status, error_message, created_at, updated_at
FROM knowledge_entries
WHERE status = $1
ORDER BY created_at
`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list entries by status: %w", err)
	}
	defer rows.Close()

	var out []domain.KnowledgeEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge entries: %w", err)
	}
	return out, nil
}

func scanEntry(scan func(dest ...any) error) (*domain.KnowledgeEntry, error) {
	var entry domain.KnowledgeEntry
	var status string
	var errMessage sql.NullString

	err := scan(
		&entry.ID, &entry.Title, &entry.Section, &entry.Body, &entry.Version, &entry.Source,
		&status, &errMessage, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Status = domain.EntryStatus(status)
	entry.Error = errMessage.String
	return &entry, nil
}
