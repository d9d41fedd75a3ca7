// Package storage persists extracted documents, their chunks, and
// completed analyses in SQLite. The job store stays in memory; this
// archive is what survives a restart and what the query engine reads
// chunk text from.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/chunk"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a document or analysis doesn't exist.
var ErrNotFound = errors.New("not found")

// Document is an archived upload.
type Document struct {
	ID        string
	Filename  string
	Text      string
	Pages     int
	Words     int
	CreatedAt time.Time
}

// Store wraps a SQLite database holding documents, chunks, and analyses.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "clauselens.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that
// haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// SaveDocument upserts the document and replaces its chunk set in one
// transaction.
func (s *Store) SaveDocument(ctx context.Context, documentID, filename, text string, pages, words int, chunks []chunk.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning document transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, filename, text, pages, words, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename, text = excluded.text,
			pages = excluded.pages, words = excluded.words`,
		documentID, filename, text, pages, words,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (document_id, idx, text, start_offset, end_offset)
			VALUES (?, ?, ?, ?, ?)`,
			documentID, c.Index, c.Text, c.Start, c.End,
		); err != nil {
			return fmt.Errorf("saving chunk %d: %w", c.Index, err)
		}
	}
	return tx.Commit()
}

// SaveAnalysis upserts the result JSON for a document.
func (s *Store) SaveAnalysis(ctx context.Context, result *analysis.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (document_id, result, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET result = excluded.result, updated_at = excluded.updated_at`,
		result.DocumentID, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetDocument returns one archived document.
func (s *Store) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var d Document
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, text, pages, words, created_at FROM documents WHERE id = ?`, documentID,
	).Scan(&d.ID, &d.Filename, &d.Text, &d.Pages, &d.Words, &createdAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return d, nil
}

// GetChunks returns a document's chunks in order. ErrNotFound when the
// document was never archived.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]chunk.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, text, start_offset, end_offset
		FROM chunks WHERE document_id = ? ORDER BY idx ASC`, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []chunk.Chunk
	for rows.Next() {
		var c chunk.Chunk
		if err := rows.Scan(&c.Index, &c.Text, &c.Start, &c.End); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		if _, err := s.GetDocument(ctx, documentID); err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// GetAnalysis returns the archived result for a document.
func (s *Store) GetAnalysis(ctx context.Context, documentID string) (*analysis.Result, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM analyses WHERE document_id = ?`, documentID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result analysis.Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return &result, nil
}

// ListDocuments returns archived documents, most recent first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, text, pages, words, created_at
		FROM documents ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Filename, &d.Text, &d.Pages, &d.Words, &createdAt); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// rehydrateLimit caps how many archived documents are restored at
// startup, most recent first.
const rehydrateLimit = 1000

// RestoreTarget receives archived analyses during rehydration. Satisfied
// by jobs.Store.
type RestoreTarget interface {
	Restore(documentID, filename string, result *analysis.Result) error
}

// Rehydrate loads archived analyses into target as completed jobs so
// /analysis and /query keep answering for documents processed before the
// last restart. Documents whose analysis was never archived are skipped.
// Returns the number restored.
func (s *Store) Rehydrate(ctx context.Context, target RestoreTarget, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	docs, err := s.ListDocuments(ctx, rehydrateLimit)
	if err != nil {
		return 0, fmt.Errorf("listing archived documents: %w", err)
	}

	restored := 0
	for _, d := range docs {
		result, err := s.GetAnalysis(ctx, d.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			logger.Warn("skipping archived analysis", "id", d.ID, "error", err)
			continue
		}
		if err := target.Restore(d.ID, d.Filename, result); err != nil {
			logger.Warn("could not restore archived analysis", "id", d.ID, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}
