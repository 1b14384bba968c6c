// Package session manages the lifecycle of persisted search sessions:
// creation, reindexing, schema validation and upgrade. A session is a
// directory under the storage root holding session.json, metadata.db
// and one published bleve index generation named by the CURRENT file.
//
// The store is shared by independent serving processes. Mutators take a
// session-scoped advisory lock and fail fast when it is held; readers
// never take the lock and always open the last published generation.
package session

import (
	"fmt"
	"regexp"
	"time"
)

// CurrentSchemaVersion is the on-disk layout version written by this
// build. Sessions at older versions need an upgrade; newer versions are
// refused, never downgraded.
const CurrentSchemaVersion = 2

const (
	sessionFileName = "session.json"
	currentFileName = "CURRENT"
	lockFileName    = ".lock"

	maxSessionNameLength = 64
)

// Session is the persisted metadata for one indexed repository.
type Session struct {
	Name          string    `json:"name"`
	RepoPath      string    `json:"repo_path"`
	SchemaVersion int       `json:"schema_version"`
	Generation    int       `json:"generation"`
	CreatedAt     time.Time `json:"created_at"`
	LastReindexed time.Time `json:"last_reindexed"`
	FileCount     int       `json:"file_count"`
	ChunkCount    int       `json:"chunk_count"`
}

// ReindexReport summarizes the per-file deltas of one reindex call.
type ReindexReport struct {
	Session string `json:"session"`
	Added   int    `json:"added"`
	Changed int    `json:"changed"`
	Removed int    `json:"removed"`
}

// Zero reports whether the reindex found no filesystem change.
func (r *ReindexReport) Zero() bool {
	return r.Added == 0 && r.Changed == 0 && r.Removed == 0
}

// SchemaStatus is the result of validating a session's schema version
// against the version this build supports.
type SchemaStatus string

const (
	// SchemaCurrent means the session is usable as-is.
	SchemaCurrent SchemaStatus = "current"
	// SchemaUpgradeRequired means the session predates this build.
	SchemaUpgradeRequired SchemaStatus = "upgrade_required"
	// SchemaIncompatible means the session was written by a newer build.
	SchemaIncompatible SchemaStatus = "incompatible"
)

var validSessionName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateName checks a session name. Valid names contain only
// letters, numbers, hyphens and underscores.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if len(name) > maxSessionNameLength {
		return fmt.Errorf("session name too long (max %d chars)", maxSessionNameLength)
	}
	if !validSessionName.MatchString(name) {
		return fmt.Errorf("session name can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

// generationDir names the index artifact directory for a generation.
func generationDir(gen int) string {
	return fmt.Sprintf("index-%06d.bleve", gen)
}
