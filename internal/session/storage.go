package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"

	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/store"
)

// SessionDir returns the directory for a named session under root.
func SessionDir(root, name string) string {
	return filepath.Join(root, name)
}

// loadSession reads session.json from a session directory.
func loadSession(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, sessionFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sherr.SessionNotFound(filepath.Base(dir))
		}
		return nil, sherr.IOFailure("failed to read session metadata", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, sherr.Wrap(sherr.ErrCodeCorruptIndex, err)
	}
	return &sess, nil
}

// saveSession atomically writes session.json. A crash mid-write leaves
// the previous file intact.
func saveSession(dir string, sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return sherr.Wrap(sherr.ErrCodeInternal, err)
	}
	path := filepath.Join(dir, sessionFileName)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return sherr.IOFailure("failed to write session metadata", err)
	}
	return nil
}

// readCurrent returns the published generation directory name.
func readCurrent(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFileName))
	if err != nil {
		return "", sherr.Wrap(sherr.ErrCodeCorruptIndex, err)
	}
	gen := strings.TrimSpace(string(data))
	if gen == "" {
		return "", sherr.Newf(sherr.ErrCodeCorruptIndex, "CURRENT pointer is empty")
	}
	return gen, nil
}

// publishCurrent atomically repoints CURRENT at a generation directory.
// Readers opening the artifact concurrently see either the old or the
// new pointer, never a torn write.
func publishCurrent(dir, genDir string) error {
	path := filepath.Join(dir, currentFileName)
	if err := renameio.WriteFile(path, []byte(genDir+"\n"), 0o644); err != nil {
		return sherr.IOFailure("failed to publish index generation", err)
	}
	return nil
}

// OpenSessionMetadata opens only a session's metadata database, for
// operations that never touch the index artifact.
func OpenSessionMetadata(root, name string) (*store.Metadata, error) {
	return store.OpenMetadata(store.MetadataPath(SessionDir(root, name)))
}

// OpenArtifact opens the published index generation of a session for
// reading along with its metadata database.
func OpenArtifact(root, name string) (*store.Index, *store.Metadata, error) {
	dir := SessionDir(root, name)
	genDir, err := readCurrent(dir)
	if err != nil {
		return nil, nil, err
	}
	idx, err := store.OpenIndex(filepath.Join(dir, genDir))
	if err != nil {
		return nil, nil, err
	}
	meta, err := store.OpenMetadata(store.MetadataPath(dir))
	if err != nil {
		_ = idx.Close()
		return nil, nil, err
	}
	return idx, meta, nil
}
