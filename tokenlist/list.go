// Package tokenlist builds and publishes token-list snapshots of the
// registry's approved set. The document layout follows the widely consumed
// token-list convention so published snapshots work with existing tooling.
package tokenlist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/metadata"
	"github.com/builtbymom/tokenregistry/registry"
)

// logoURIField is the metadata field used for entry logos when present.
const logoURIField = "logoURI"

// Version is a token-list document version.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Entry is one approved token in a list.
type Entry struct {
	ChainID  uint32         `json:"chainId"`
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	LogoURI  string         `json:"logoURI,omitempty"`
}

// List is a published token-list document.
type List struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Version   Version   `json:"version"`
	Tokens    []Entry   `json:"tokens"`
}

// Builder assembles lists from the registry's approved tokens.
type Builder struct {
	name    string
	chainID uint32
	reg     *registry.Registry
	meta    *metadata.Store
}

// NewBuilder creates a list builder for one chain's registry.
func NewBuilder(name string, chainID uint32, reg *registry.Registry, meta *metadata.Store) *Builder {
	return &Builder{name: name, chainID: chainID, reg: reg, meta: meta}
}

// Build produces a list of every approved token at the given version.
// Tokens keep their registry insertion order.
func (b *Builder) Build(version Version) *List {
	approved := b.reg.ListTokens(0, 0, interfaces.StatusApproved)

	entries := make([]Entry, 0, len(approved))
	for _, info := range approved {
		entry := Entry{
			ChainID:  b.chainID,
			Address:  info.Address,
			Name:     info.Name,
			Symbol:   info.Symbol,
			Decimals: info.Decimals,
		}
		if logo, ok := b.meta.Value(info.Address, logoURIField); ok {
			entry.LogoURI = logo
		}
		entries = append(entries, entry)
	}

	return &List{
		Name:      b.name,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Tokens:    entries,
	}
}

// Publisher stores list and audit snapshots through a storage backend.
type Publisher struct {
	log     *slog.Logger
	backend interfaces.StorageBackend
}

// NewPublisher wraps a storage backend, typically a multi-backend.
func NewPublisher(backend interfaces.StorageBackend, log *slog.Logger) *Publisher {
	return &Publisher{log: log, backend: backend}
}

// PublishList serializes and stores a list snapshot, returning its content
// id.
func (p *Publisher) PublishList(ctx context.Context, list *List) (interfaces.ContentID, error) {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("marshal token list: %w", err)
	}
	id, err := p.backend.Store(ctx, data, interfaces.TokenListType)
	if err != nil {
		return id, fmt.Errorf("store token list: %w", err)
	}
	p.log.Info("Token list published", "name", list.Name, "tokens", len(list.Tokens), "content_id", id.String())
	return id, nil
}

// FetchList retrieves and decodes a previously published list.
func (p *Publisher) FetchList(ctx context.Context, id interfaces.ContentID) (*List, error) {
	data, err := p.backend.Fetch(ctx, id, interfaces.TokenListType)
	if err != nil {
		return nil, err
	}
	var list List
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode token list: %w", err)
	}
	return &list, nil
}

// auditEntry is one serialized event in an audit snapshot.
type auditEntry struct {
	Name  string         `json:"name"`
	Attrs map[string]any `json:"attrs"`
}

// PublishAuditLog serializes the recorder's event history and stores it as
// an audit snapshot.
func (p *Publisher) PublishAuditLog(ctx context.Context, recorder *events.Recorder) (interfaces.ContentID, error) {
	history := recorder.Events()
	entries := make([]auditEntry, 0, len(history))
	for _, ev := range history {
		attrs := ev.Attrs()
		kv := make(map[string]any, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			key, ok := attrs[i].(string)
			if !ok {
				continue
			}
			kv[key] = fmt.Sprint(attrs[i+1])
		}
		entries = append(entries, auditEntry{Name: ev.Name(), Attrs: kv})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("marshal audit log: %w", err)
	}
	id, err := p.backend.Store(ctx, data, interfaces.AuditLogType)
	if err != nil {
		return id, fmt.Errorf("store audit log: %w", err)
	}
	p.log.Info("Audit log published", "events", len(entries), "content_id", id.String())
	return id, nil
}
