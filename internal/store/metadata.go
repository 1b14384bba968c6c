package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/shebe-search/shebe/internal/chunk"
	sherr "github.com/shebe-search/shebe/internal/errors"
)

// FileStatus is the indexing state of a file in the inventory.
type FileStatus string

const (
	// FileIndexed means the file's chunks are in the index.
	FileIndexed FileStatus = "indexed"
	// FileExcluded means the scanner skipped the file; Reason says why.
	FileExcluded FileStatus = "excluded"
	// FileStale means the file changed or vanished since last reindex.
	FileStale FileStatus = "stale"
)

// FileRecord is one row of the session's file inventory.
type FileRecord struct {
	Path     string // Relative to repository root
	Size     int64
	Language string
	SHA256   string // Content hash at index time
	MTime    int64  // Unix seconds
	Status   FileStatus
	Reason   string // Populated for excluded and stale files
}

// Metadata is the per-session SQLite database holding the file
// inventory and the chunk table. WAL mode allows a reader to proceed
// while a mutator writes.
type Metadata struct {
	db   *sql.DB
	path string
}

// OpenMetadata opens (or creates) the metadata database. An empty path
// opens an in-memory database for tests.
func OpenMetadata(path string) (*Metadata, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, sherr.IOFailure("failed to open metadata database", err)
	}

	// Single writer prevents lock contention under modernc.org/sqlite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != "" {
		// Pragmas must be set via statements; modernc ignores DSN params.
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA temp_store = MEMORY",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, sherr.IOFailure("failed to set pragma", err)
			}
		}
	}

	m := &Metadata{db: db, path: path}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Metadata) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		path     TEXT PRIMARY KEY,
		size     INTEGER NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		sha256   TEXT NOT NULL DEFAULT '',
		mtime    INTEGER NOT NULL DEFAULT 0,
		status   TEXT NOT NULL,
		reason   TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id         TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		end_line   INTEGER NOT NULL,
		start_byte INTEGER NOT NULL,
		end_byte   INTEGER NOT NULL,
		content    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path, seq);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return sherr.IOFailure("failed to initialize metadata schema", err)
	}
	return nil
}

// UpsertFile inserts or replaces a file inventory row.
func (m *Metadata) UpsertFile(ctx context.Context, rec *FileRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO files (path, size, language, sha256, mtime, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size, language = excluded.language,
			sha256 = excluded.sha256, mtime = excluded.mtime,
			status = excluded.status, reason = excluded.reason`,
		rec.Path, rec.Size, rec.Language, rec.SHA256, rec.MTime, string(rec.Status), rec.Reason)
	if err != nil {
		return sherr.IOFailure("failed to upsert file record", err)
	}
	return nil
}

// GetFile returns the inventory row for a path.
func (m *Metadata) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT path, size, language, sha256, mtime, status, reason
		FROM files WHERE path = ?`, path)
	rec, err := scanFileRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sherr.Newf(sherr.ErrCodeFileNotFound, "%s is not in the session inventory", path)
	}
	return rec, err
}

// ListFiles returns the full inventory ordered by path.
func (m *Metadata) ListFiles(ctx context.Context) ([]*FileRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT path, size, language, sha256, mtime, status, reason
		FROM files ORDER BY path`)
	if err != nil {
		return nil, sherr.IOFailure("failed to list file records", err)
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sherr.IOFailure("failed to iterate file records", err)
	}
	return records, nil
}

// ReplaceChunks atomically swaps a file's chunk rows for a new set.
func (m *Metadata) ReplaceChunks(ctx context.Context, path string, chunks []*chunk.Chunk) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return sherr.IOFailure("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return sherr.IOFailure("failed to evict old chunks", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, path, seq, start_line, end_line, start_byte, end_byte, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return sherr.IOFailure("failed to prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		_, err := stmt.ExecContext(ctx, c.ID, c.FilePath, c.Seq, c.StartLine, c.EndLine, c.StartByte, c.EndByte, c.Content)
		if err != nil {
			return sherr.IOFailure("failed to insert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return sherr.IOFailure("failed to commit chunk replacement", err)
	}
	return nil
}

// GetChunk returns a chunk row by ID.
func (m *Metadata) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, path, seq, start_line, end_line, start_byte, end_byte, content
		FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sherr.Newf(sherr.ErrCodeFileNotFound, "chunk %s is not in the session", id)
	}
	return c, err
}

// ChunkAt returns the chunk containing the given line of a file. When
// overlapping chunks both contain the line, the earlier one wins.
func (m *Metadata) ChunkAt(ctx context.Context, path string, line int) (*chunk.Chunk, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, path, seq, start_line, end_line, start_byte, end_byte, content
		FROM chunks WHERE path = ? AND start_line <= ? AND end_line >= ?
		ORDER BY seq LIMIT 1`, path, line, line)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sherr.Newf(sherr.ErrCodeFileNotFound, "no chunk covers %s:%d", path, line)
	}
	return c, err
}

// ChunksForFile returns a file's chunk sequence in order.
func (m *Metadata) ChunksForFile(ctx context.Context, path string) ([]*chunk.Chunk, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, path, seq, start_line, end_line, start_byte, end_byte, content
		FROM chunks WHERE path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, sherr.IOFailure("failed to query chunks", err)
	}
	defer rows.Close()

	var chunks []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Counts returns the number of indexed files and stored chunks.
func (m *Metadata) Counts(ctx context.Context) (files, chunks int, err error) {
	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE status = ?`, string(FileIndexed)).Scan(&files)
	if err != nil {
		return 0, 0, sherr.IOFailure("failed to count files", err)
	}
	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks)
	if err != nil {
		return 0, 0, sherr.IOFailure("failed to count chunks", err)
	}
	return files, chunks, nil
}

// Close closes the database.
func (m *Metadata) Close() error {
	return m.db.Close()
}

// MetadataPath returns the metadata database path inside a session dir.
func MetadataPath(sessionDir string) string {
	return filepath.Join(sessionDir, "metadata.db")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(row rowScanner) (*FileRecord, error) {
	var rec FileRecord
	var status string
	err := row.Scan(&rec.Path, &rec.Size, &rec.Language, &rec.SHA256, &rec.MTime, &status, &rec.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, sherr.IOFailure("failed to scan file record", err)
	}
	rec.Status = FileStatus(status)
	return &rec, nil
}

func scanChunk(row rowScanner) (*chunk.Chunk, error) {
	var c chunk.Chunk
	err := row.Scan(&c.ID, &c.FilePath, &c.Seq, &c.StartLine, &c.EndLine, &c.StartByte, &c.EndByte, &c.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, sherr.IOFailure("failed to scan chunk", err)
	}
	return &c, nil
}
