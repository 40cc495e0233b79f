package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// IPFSBackend pins snapshots on an IPFS node. IPFS addresses content by its
// own CID scheme, so the backend keeps a local index from our SHA-256
// content ids to the node's CIDs; fetches of ids stored elsewhere miss.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string

	mu   sync.RWMutex
	cids map[interfaces.ContentID]string
}

// NewIPFSBackend connects to the IPFS node API at host:port.
func NewIPFSBackend(host, port, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
		cids:        make(map[interfaces.ContentID]string),
	}, nil
}

func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	b.mu.RLock()
	cid, ok := b.cids[id]
	b.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}
	if !b.shell.IsUp() {
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.Cat("/ipfs/" + cid)
	if err != nil {
		return nil, fmt.Errorf("cat %s from ipfs: %w", cid, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s from ipfs: %w", cid, err)
	}
	b.log.Debug("Fetched snapshot from IPFS", "cid", cid, "content_id", id.String(), "size", len(data))
	return data, nil
}

func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data))
	if err != nil {
		return id, fmt.Errorf("add to ipfs: %w", err)
	}

	b.mu.Lock()
	b.cids[id] = cid
	b.mu.Unlock()

	b.log.Debug("Stored snapshot in IPFS", "cid", cid, "content_id", id.String(), "content_type", contentType.String())
	return id, nil
}

func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
