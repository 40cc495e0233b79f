package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// FileBackend stores snapshots on the local filesystem, one subdirectory
// per content type, one file per content id.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates the base directory and per-type subdirectories.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	for _, ct := range []interfaces.ContentType{interfaces.TokenListType, interfaces.AuditLogType} {
		if err := os.MkdirAll(filepath.Join(baseDir, ct.String()), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", ct, err)
		}
	}
	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	path := b.path(id, contentType)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	b.log.Debug("Fetched snapshot from file", "path", path, "size", len(data))
	return data, nil
}

func (b *FileBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	path := b.path(id, contentType)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return id, fmt.Errorf("write snapshot: %w", err)
	}
	b.log.Debug("Stored snapshot in file", "path", path, "content_id", id.String())
	return id, nil
}

func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	return err == nil
}

func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) path(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return filepath.Join(b.baseDir, contentType.String(), id.String())
}
