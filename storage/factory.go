// Package storage implements content-addressed snapshot storage behind the
// interfaces.StorageBackend contract. Backends are created from location
// URIs; the multi-backend replicates across several of them.
package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// Factory creates storage backends from location URIs.
type Factory struct {
	log *slog.Logger
}

// NewFactory returns a backend factory.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// StorageBackendFor creates a backend for one location URI.
//
// Supported schemes:
//   - file:// local filesystem
//   - s3://   Amazon S3 or compatible object storage
//   - ipfs:// IPFS node API
//   - vault:// HashiCorp Vault KV v2
func (f *Factory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	u, err := url.Parse(string(location))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.createFileBackend(u)
	case "s3":
		return f.createS3Backend(u)
	case "ipfs":
		return f.createIPFSBackend(u)
	case "vault":
		return f.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiBackend combines several locations into one replicated
// backend. Locations that fail to construct are skipped with a warning; at
// least one must succeed.
func (f *Factory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))
	for _, location := range locations {
		backend, err := f.StorageBackendFor(location)
		if err != nil {
			f.log.Warn("Skipping storage backend", "location", string(location), "err", err)
			continue
		}
		backends = append(backends, backend)
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no usable storage backends among %d locations", len(locations))
	}
	return NewMultiBackend(backends, f.log), nil
}

// file:///var/lib/registry or file://./relative/path
func (f *Factory) createFileBackend(u *url.URL) (interfaces.StorageBackend, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", interfaces.ErrInvalidLocationURI)
	}
	return NewFileBackend(path, f.log)
}

// s3://[ACCESS:SECRET@]bucket/prefix?region=us-east-1&endpoint=minio:9000
func (f *Factory) createS3Backend(u *url.URL) (interfaces.StorageBackend, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: missing s3 bucket", interfaces.ErrInvalidLocationURI)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}
	return NewS3Backend(bucket, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// ipfs://127.0.0.1:5001/?timeout=30s
func (f *Factory) createIPFSBackend(u *url.URL) (interfaces.StorageBackend, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001"
	}
	timeout := u.Query().Get("timeout")
	if timeout == "" {
		timeout = "30s"
	}
	return NewIPFSBackend(host, port, timeout, f.log)
}

// vault://host:8200/mount/path?token=...&insecure=true
func (f *Factory) createVaultBackend(u *url.URL) (interfaces.StorageBackend, error) {
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: vault URI needs /mount/path", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	scheme := "https"
	if query.Get("insecure") == "true" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)
	return NewVaultBackend(address, parts[0], parts[1], query.Get("token"), f.log)
}
