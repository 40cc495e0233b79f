// Package tokentroller implements the governance controller that owns the
// token registry, the metadata store and the edit proposal ledger.
//
// The controller is the sole constructor of the three stores and the only
// identity allowed to swap their controller pointer. Root/leaf behavior is a
// construction-time choice of authority policy, not a subclass: New wires
// the owner-based root policy, NewLeaf wires the policy that only admits
// administrative mutations from inside a cross-chain execution context.
package tokentroller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builtbymom/tokenregistry/edits"
	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/metadata"
	"github.com/builtbymom/tokenregistry/registry"
)

// Config configures a controller.
type Config struct {
	// Owner is the governance owner address. On a leaf chain the owner has
	// no direct authority; administrative calls arrive via cross-chain
	// messages only.
	Owner common.Address

	// Address optionally fixes the controller identity. Derived from the
	// owner and domain when zero.
	Address common.Address

	// Domain is the local chain's domain id, used for identity derivation
	// and logging.
	Domain uint32

	Log    *slog.Logger
	Events events.Sink
}

// Controller owns the stores and funnels every governance mutation through
// the authority policy.
type Controller struct {
	mu    sync.RWMutex
	owner common.Address

	addr   common.Address
	domain uint32
	log    *slog.Logger
	events events.Sink
	policy interfaces.AuthorityPolicy

	registry *registry.Registry
	metadata *metadata.Store
	edits    *edits.Ledger
}

// New creates a root-chain controller with the owner-based default policy.
func New(cfg *Config) *Controller {
	c := newController(cfg)
	c.policy = &rootPolicy{c: c}
	c.buildStores()
	return c
}

// NewLeaf creates a leaf-chain controller. Administrative mutations are only
// reachable through an authenticated inbound cross-chain message, never by a
// direct local call, even from the owner.
func NewLeaf(cfg *Config) *Controller {
	c := newController(cfg)
	c.policy = &leafPolicy{c: c}
	c.buildStores()
	return c
}

func newController(cfg *Config) *Controller {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	sink := cfg.Events
	if sink == nil {
		sink = events.Discard{}
	}

	addr := cfg.Address
	if addr == (common.Address{}) {
		seed := append([]byte("tokentroller"), cfg.Owner.Bytes()...)
		seed = append(seed, byte(cfg.Domain>>24), byte(cfg.Domain>>16), byte(cfg.Domain>>8), byte(cfg.Domain))
		addr = common.BytesToAddress(crypto.Keccak256(seed)[12:])
	}

	return &Controller{
		owner:  cfg.Owner,
		addr:   addr,
		domain: cfg.Domain,
		log:    log.With("component", "tokentroller", "domain", cfg.Domain),
		events: sink,
	}
}

func (c *Controller) buildStores() {
	c.metadata = metadata.NewStore(c, c.log, c.events)
	c.registry = registry.New(c, c.metadata, c.log, c.events)
	c.edits = edits.NewLedger(c, c.metadata, c.log, c.events)
}

// Address returns the controller identity.
func (c *Controller) Address() common.Address {
	return c.addr
}

// Policy returns the authority policy selected at construction.
func (c *Controller) Policy() interfaces.AuthorityPolicy {
	return c.policy
}

// Owner returns the current governance owner.
func (c *Controller) Owner() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

// Domain returns the local chain's domain id.
func (c *Controller) Domain() uint32 {
	return c.domain
}

// Registry returns the token registry.
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// Metadata returns the metadata store.
func (c *Controller) Metadata() *metadata.Store {
	return c.metadata
}

// Edits returns the edit proposal ledger.
func (c *Controller) Edits() *edits.Ledger {
	return c.edits
}

// SubmitToken forwards an open token submission to the registry.
func (c *Controller) SubmitToken(ctx context.Context, actor common.Address, sub interfaces.TokenSubmission) error {
	return c.registry.AddToken(ctx, actor, sub)
}

// ApproveToken approves a pending token.
func (c *Controller) ApproveToken(ctx context.Context, actor, token common.Address) error {
	return c.registry.ApproveToken(ctx, actor, token)
}

// RejectToken rejects a pending token with a reason.
func (c *Controller) RejectToken(ctx context.Context, actor, token common.Address, reason string) error {
	return c.registry.RejectToken(ctx, actor, token, reason)
}

// UpdateToken updates an approved token's details.
func (c *Controller) UpdateToken(ctx context.Context, actor, token common.Address, name, symbol string, decimals uint8) error {
	return c.registry.UpdateToken(ctx, actor, token, name, symbol, decimals)
}

// ProposeEdit records a metadata edit proposal against an approved token.
func (c *Controller) ProposeEdit(ctx context.Context, actor, token common.Address, updates []interfaces.FieldUpdate) (uint64, error) {
	return c.edits.ProposeEdit(ctx, actor, token, updates)
}

// AcceptEdit applies and accepts a pending edit proposal.
func (c *Controller) AcceptEdit(ctx context.Context, actor, token common.Address, editID uint64) error {
	return c.edits.AcceptEdit(ctx, actor, token, editID)
}

// RejectEdit rejects a pending edit proposal with a reason.
func (c *Controller) RejectEdit(ctx context.Context, actor, token common.Address, editID uint64, reason string) error {
	return c.edits.RejectEdit(ctx, actor, token, editID, reason)
}

// AddMetadataField adds a schema field.
func (c *Controller) AddMetadataField(ctx context.Context, actor common.Address, name string, isRequired bool) error {
	return c.metadata.AddField(ctx, actor, name, isRequired)
}

// UpdateMetadataField updates a schema field's flags.
func (c *Controller) UpdateMetadataField(ctx context.Context, actor common.Address, name string, isActive, isRequired bool) error {
	return c.metadata.UpdateField(ctx, actor, name, isActive, isRequired)
}

// UpdateOwner hands governance over to a new owner address.
func (c *Controller) UpdateOwner(ctx context.Context, actor, newOwner common.Address) error {
	if !c.policy.CanUpdateOwner(ctx, actor) {
		return fmt.Errorf("update owner: %w", interfaces.ErrNotAuthorized)
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("update owner: zero address")
	}

	c.mu.Lock()
	old := c.owner
	c.owner = newOwner
	c.mu.Unlock()

	c.log.Info("Owner updated", "old", old.Hex(), "new", newOwner.Hex())
	c.events.Emit(ctx, events.OwnerUpdated{Old: old, New: newOwner})
	return nil
}

// UpdateRegistryController migrates the token registry to a new controller.
// Used during governance migrations; the registry itself additionally
// verifies that this controller is its current one.
func (c *Controller) UpdateRegistryController(ctx context.Context, actor common.Address, next interfaces.Controller) error {
	if !c.policy.CanUpdateController(ctx, actor) {
		return fmt.Errorf("update registry controller: %w", interfaces.ErrNotAuthorized)
	}
	return c.registry.SwapController(c.addr, next)
}

// UpdateEditsController migrates the edit ledger to a new controller.
func (c *Controller) UpdateEditsController(ctx context.Context, actor common.Address, next interfaces.Controller) error {
	if !c.policy.CanUpdateController(ctx, actor) {
		return fmt.Errorf("update edits controller: %w", interfaces.ErrNotAuthorized)
	}
	return c.edits.SwapController(c.addr, next)
}

// AdoptStores re-points this controller at another controller's stores.
// Counterpart of the controller migration commands: the new controller
// adopts first, then the old controller swaps the store pointers over.
func (c *Controller) AdoptStores(old *Controller) {
	c.registry = old.registry
	c.metadata = old.metadata
	c.edits = old.edits
}
