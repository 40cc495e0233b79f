package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// VaultBackend stores snapshots in a HashiCorp Vault KV v2 mount,
// authenticated by token. Useful when snapshot distribution must stay
// inside private infrastructure.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault backend. An empty token falls back to the
// client's ambient configuration (VAULT_TOKEN).
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(address, "https://"), mountPath, dataPath),
	}, nil
}

func (b *VaultBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	path := b.secretPath(id, contentType)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	// KV v2 wraps the payload in a "data" envelope.
	envelope, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("malformed vault response at %s", path)
	}
	content, ok := envelope["content"].(string)
	if !ok {
		return nil, fmt.Errorf("missing content key at %s", path)
	}

	b.log.Debug("Fetched snapshot from Vault", "path", path, "content_id", id.String())
	return []byte(content), nil
}

func (b *VaultBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	path := b.secretPath(id, contentType)

	_, err := b.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": map[string]interface{}{
			"content": string(data),
		},
	})
	if err != nil {
		return id, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored snapshot in Vault", "path", path, "content_id", id.String())
	return id, nil
}

func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}
	return health.Initialized && !health.Sealed
}

func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return fmt.Sprintf("%s/data/%s/%s/%s", b.mountPath, b.dataPath, contentType.String(), id.String())
}
