package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentID is the 32-byte SHA-256 hash addressing a stored snapshot.
type ContentID [32]byte

// ComputeID calculates the content ID of data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// NewContentIDFromHex parses a 64-character hex content ID, with or without
// a 0x prefix.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var id ContentID
	copy(id[:], raw)
	return id, nil
}

// String returns the hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte hash.
func (id ContentID) Bytes() []byte {
	return id[:]
}

// ContentType namespaces stored snapshots within a backend.
type ContentType int

const (
	// TokenListType for published token-list documents.
	TokenListType ContentType = iota

	// AuditLogType for serialized event history snapshots.
	AuditLogType
)

// String returns the namespace name.
func (ct ContentType) String() string {
	switch ct {
	case TokenListType:
		return "tokenlist"
	case AuditLogType:
		return "auditlog"
	default:
		return fmt.Sprintf("unknown(%d)", int(ct))
	}
}

// StorageBackendLocation is a URI identifying a storage backend, e.g.
// file:///var/lib/registry, s3://bucket/prefix?region=us-east-1,
// ipfs://127.0.0.1:5001, vault://host:8200/secret/registry.
type StorageBackendLocation string

// Storage failures.
var (
	ErrContentNotFound    = errors.New("content not found")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend provides content-addressed snapshot storage.
type StorageBackend interface {
	// Fetch retrieves content by id and type. Returns ErrContentNotFound
	// when the backend has no such content.
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store persists data and returns its content id.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	// Available reports whether the backend is currently reachable.
	Available(ctx context.Context) bool

	// Name returns a short backend identifier for logs.
	Name() string

	// LocationURI returns the URI this backend was created from.
	LocationURI() string
}

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory interface {
	// StorageBackendFor creates a backend for a single location URI.
	StorageBackendFor(location StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend combines several locations into one replicated
	// backend (store to all, fetch from the first that succeeds).
	CreateMultiBackend(locations []StorageBackendLocation) (StorageBackend, error)
}
