package session

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/store"
)

// migration brings a session directory from version-1 to version. Each
// step must be idempotent: re-running a completed step is harmless, so
// an upgrade interrupted before the version bump can be retried.
type migration func(ctx context.Context, dir string) error

// migrations is keyed by target version and applied in order.
var migrations = map[int]migration{
	2: migrateFilesReasonColumn,
}

// Upgrade applies the ordered migration steps needed to bring a session
// to the current schema version. Upgrading an already-current session
// is a no-op returning the unchanged metadata.
func (m *Manager) Upgrade(ctx context.Context, name string) (*Session, error) {
	dir := SessionDir(m.root, name)
	sess, err := loadSession(dir)
	if err != nil {
		return nil, err
	}
	switch schemaStatus(sess) {
	case SchemaCurrent:
		return sess, nil
	case SchemaIncompatible:
		return nil, schemaError(name, SchemaIncompatible)
	}

	lock, err := acquireLock(dir, name)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	// Reload under the lock; another process may have upgraded already.
	sess, err = loadSession(dir)
	if err != nil {
		return nil, err
	}
	if schemaStatus(sess) == SchemaCurrent {
		return sess, nil
	}

	for v := sess.SchemaVersion + 1; v <= CurrentSchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return nil, sherr.Newf(sherr.ErrCodeInternal, "no migration to schema version %d", v)
		}
		if err := step(ctx, dir); err != nil {
			return nil, err
		}
		sess.SchemaVersion = v
		if err := saveSession(dir, sess); err != nil {
			return nil, err
		}
		m.logger.Info("session_upgraded", "session", name, "schema_version", v)
	}
	return sess, nil
}

// migrateFilesReasonColumn adds the files.reason column introduced in
// schema version 2. Earlier layouts recorded exclusions without a
// reason.
func migrateFilesReasonColumn(ctx context.Context, dir string) error {
	db, err := sql.Open("sqlite", store.MetadataPath(dir))
	if err != nil {
		return sherr.IOFailure("failed to open metadata database", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pragma_table_info('files') WHERE name = 'reason'`).Scan(&count)
	if err != nil {
		return sherr.IOFailure("failed to inspect files table", err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.ExecContext(ctx, `ALTER TABLE files ADD COLUMN reason TEXT NOT NULL DEFAULT ''`)
	if err != nil {
		return sherr.IOFailure("failed to add reason column", err)
	}
	return nil
}
