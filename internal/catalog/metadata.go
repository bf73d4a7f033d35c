package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteMetadataStore implements MetadataStore over database/sql with
// the mattn/go-sqlite3 driver, the same begin/prepare-once/exec-per-row
// write path the telemetry store uses, applied to tool documents,
// runtime state, and usage counters.
type SQLiteMetadataStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tool_documents (
	id TEXT PRIMARY KEY,
	skill TEXT NOT NULL,
	instance TEXT NOT NULL,
	tool TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parameter_text TEXT NOT NULL DEFAULT '',
	examples TEXT NOT NULL DEFAULT '[]',
	action_verbs TEXT NOT NULL DEFAULT '[]',
	content_hash TEXT NOT NULL DEFAULT '',
	succeeded_count INTEGER NOT NULL DEFAULT 0,
	failed_count INTEGER NOT NULL DEFAULT 0,
	last_used_at TIMESTAMP,
	indexed_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_documents_skill ON tool_documents(skill);

CREATE TABLE IF NOT EXISTS runtime_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteMetadataStore opens (creating if absent) the metadata database
// at path and ensures its schema exists. An empty path opens an in-memory
// database, used by tests.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteMetadataStore{db: db}, nil
}

func (s *SQLiteMetadataStore) SaveDocuments(ctx context.Context, docs []*ToolDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tool_documents (
			id, skill, instance, tool, description, parameter_text,
			examples, action_verbs, content_hash,
			succeeded_count, failed_count, last_used_at, indexed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			skill = excluded.skill,
			instance = excluded.instance,
			tool = excluded.tool,
			description = excluded.description,
			parameter_text = excluded.parameter_text,
			examples = excluded.examples,
			action_verbs = excluded.action_verbs,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		examplesJSON, err := json.Marshal(d.Examples)
		if err != nil {
			return fmt.Errorf("marshal examples for %s: %w", d.ID, err)
		}
		verbsJSON, err := json.Marshal(d.ActionVerbs)
		if err != nil {
			return fmt.Errorf("marshal action verbs for %s: %w", d.ID, err)
		}
		lastUsed := nullTime(d.LastUsedAt)
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Skill, d.Instance, d.Tool, d.Description, d.ParameterText,
			string(examplesJSON), string(verbsJSON), d.ContentHash,
			d.SucceededCount, d.FailedCount, lastUsed, d.IndexedAt, d.UpdatedAt,
		); err != nil {
			return fmt.Errorf("save document %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteMetadataStore) GetDocument(ctx context.Context, id string) (*ToolDocument, error) {
	row := s.db.QueryRowContext(ctx, documentSelectQuery+" WHERE id = ?", id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

func (s *SQLiteMetadataStore) GetDocuments(ctx context.Context, ids []string) ([]*ToolDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := documentSelectQuery + " WHERE id IN (" + strings.Join(placeholders, ",") + ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*ToolDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteMetadataStore) AllDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM tool_documents")
	if err != nil {
		return nil, fmt.Errorf("query document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteMetadataStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM tool_documents WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteMetadataStore) RecordUsage(ctx context.Context, id string, succeeded bool, at time.Time) error {
	column := "failed_count"
	if succeeded {
		column = "succeeded_count"
	}
	query := fmt.Sprintf(`
		UPDATE tool_documents
		SET %s = %s + 1, last_used_at = ?
		WHERE id = ?
	`, column, column)
	_, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM runtime_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

const documentSelectQuery = `
	SELECT id, skill, instance, tool, description, parameter_text,
		examples, action_verbs, content_hash,
		succeeded_count, failed_count, last_used_at, indexed_at, updated_at
	FROM tool_documents
`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*ToolDocument, error) {
	var d ToolDocument
	var examplesJSON, verbsJSON string
	var lastUsed sql.NullTime

	if err := row.Scan(
		&d.ID, &d.Skill, &d.Instance, &d.Tool, &d.Description, &d.ParameterText,
		&examplesJSON, &verbsJSON, &d.ContentHash,
		&d.SucceededCount, &d.FailedCount, &lastUsed, &d.IndexedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(examplesJSON), &d.Examples); err != nil {
		return nil, fmt.Errorf("unmarshal examples: %w", err)
	}
	if err := json.Unmarshal([]byte(verbsJSON), &d.ActionVerbs); err != nil {
		return nil, fmt.Errorf("unmarshal action verbs: %w", err)
	}
	if lastUsed.Valid {
		d.LastUsedAt = lastUsed.Time
	}

	return &d, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
