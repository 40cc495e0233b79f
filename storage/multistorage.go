package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// MultiBackend replicates snapshots across several backends: Store writes
// everywhere it can, Fetch returns the first hit. Content addressing makes
// partial replication safe: every replica of an id holds identical bytes.
type MultiBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiBackend wraps the given backends.
func NewMultiBackend(backends []interfaces.StorageBackend, log *slog.Logger) *MultiBackend {
	if log == nil {
		log = slog.Default()
	}
	return &MultiBackend{backends: backends, log: log}
}

func (m *MultiBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", "backend", backend.Name())
			continue
		}
		data, err := backend.Fetch(ctx, id, contentType)
		if err == nil {
			return data, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
	}
	return nil, fmt.Errorf("all backends failed to fetch %s: %v", id.String(), errs)
}

func (m *MultiBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	var (
		result  interfaces.ContentID
		success bool
		errs    []error
	)
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", "backend", backend.Name())
			continue
		}
		id, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store snapshot", "backend", backend.Name(), "err", err)
			continue
		}
		if !success {
			result = id
			success = true
		}
	}
	if !success {
		return result, fmt.Errorf("all backends failed to store snapshot: %v", errs)
	}
	return result, nil
}

// Available reports whether at least one backend is reachable.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiBackend) Name() string {
	return "multi-storage"
}

func (m *MultiBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
