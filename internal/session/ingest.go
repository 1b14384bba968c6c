package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/shebe-search/shebe/internal/chunk"
	sherr "github.com/shebe-search/shebe/internal/errors"
	"github.com/shebe-search/shebe/internal/scanner"
	"github.com/shebe-search/shebe/internal/store"
)

// ingestedFile is one repository file after scanning, hashing and
// chunking. Excluded files carry no chunks, only a reason.
type ingestedFile struct {
	rec    *store.FileRecord
	chunks []*chunk.Chunk
}

// ingestRepo walks repoPath and feeds every file through chunking,
// calling emit serially in walk-independent order. Per-file failures
// (encoding, binary, unreadable) are recovered locally: the file is
// emitted as excluded with a reason and ingestion continues. A
// cancelled context aborts between files.
func (m *Manager) ingestRepo(ctx context.Context, repoPath string, emit func(*ingestedFile) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := m.scanner.Scan(ctx, &scanner.Options{
		Root:            repoPath,
		MaxFileSize:     m.cfg.Index.MaxFileSize,
		ExcludePatterns: m.cfg.Index.Exclude,
	})
	if err != nil {
		return err
	}

	workers := m.cfg.Index.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	out := make(chan *ingestedFile, 64)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for r := range results {
				if err := gctx.Err(); err != nil {
					return err
				}
				if r.Err != nil {
					return r.Err
				}
				f := m.prepareFile(r)
				select {
				case out <- f:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(out)
	}()

	var emitErr error
	for f := range out {
		if emitErr != nil {
			continue // Drain after failure so workers unblock
		}
		if err := emit(f); err != nil {
			emitErr = err
			cancel()
		}
	}
	if emitErr != nil {
		<-done
		return emitErr
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// prepareFile turns one scan result into an ingestedFile, applying the
// per-file recovery policy.
func (m *Manager) prepareFile(r scanner.Result) *ingestedFile {
	rec := &store.FileRecord{
		Path:     r.File.Path,
		Size:     r.File.Size,
		Language: r.File.Language,
		MTime:    r.File.ModTime.Unix(),
	}
	if r.Excluded {
		rec.Status = store.FileExcluded
		rec.Reason = r.Reason
		return &ingestedFile{rec: rec}
	}

	content, err := os.ReadFile(r.File.AbsPath)
	if err != nil {
		rec.Status = store.FileExcluded
		rec.Reason = "unreadable: " + err.Error()
		return &ingestedFile{rec: rec}
	}

	sum := sha256.Sum256(content)
	rec.SHA256 = hex.EncodeToString(sum[:])

	chunks, err := chunk.Split(r.File.Path, string(content), m.cfg.Index.ChunkSize, m.cfg.Index.ChunkOverlap)
	if err != nil {
		m.logger.Warn("file_excluded",
			"path", r.File.Path,
			"code", sherr.GetCode(err))
		rec.Status = store.FileExcluded
		rec.Reason = err.Error()
		return &ingestedFile{rec: rec}
	}

	rec.Status = store.FileIndexed
	return &ingestedFile{rec: rec, chunks: chunks}
}
