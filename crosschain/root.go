package crosschain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/tokentroller"
)

// RootAgent mirrors root-chain governance actions onto registered leaf
// chains. Each action is encoded as a command payload, fee-quoted against
// the current gas budget and dispatched through the mailbox. Dispatch is
// fire-and-forget: there is no cancellation and no delivery timeout.
type RootAgent struct {
	mu     sync.RWMutex
	log    *slog.Logger
	events events.Sink

	ctrl    *tokentroller.Controller
	mailbox interfaces.Mailbox
	table   *CommandTable
	leaves  map[uint32]common.Address
}

// NewRootAgent wraps a root-chain controller with cross-chain dispatch.
func NewRootAgent(ctrl *tokentroller.Controller, mailbox interfaces.Mailbox, table *CommandTable, log *slog.Logger, sink events.Sink) *RootAgent {
	if table == nil {
		table = NewCommandTable()
	}
	if sink == nil {
		sink = events.Discard{}
	}
	return &RootAgent{
		log:     log.With("component", "crosschain-root"),
		events:  sink,
		ctrl:    ctrl,
		mailbox: mailbox,
		table:   table,
		leaves:  make(map[uint32]common.Address),
	}
}

// Controller returns the wrapped governance controller.
func (a *RootAgent) Controller() *tokentroller.Controller {
	return a.ctrl
}

// CommandTable returns the gas budget table.
func (a *RootAgent) CommandTable() *CommandTable {
	return a.table
}

// RegisterLeaf records the leaf agent endpoint for a destination domain.
// Owner only.
func (a *RootAgent) RegisterLeaf(ctx context.Context, actor common.Address, domain uint32, recipient common.Address) error {
	if actor != a.ctrl.Owner() {
		return fmt.Errorf("register leaf for domain %d: %w", domain, interfaces.ErrNotAuthorized)
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("register leaf for domain %d: zero recipient", domain)
	}

	a.mu.Lock()
	a.leaves[domain] = recipient
	a.mu.Unlock()

	a.log.Info("Leaf registered", "domain", domain, "recipient", recipient.Hex())
	a.events.Emit(ctx, events.LeafRegistered{Domain: domain, Recipient: recipient})
	return nil
}

// Leaf returns the registered endpoint for a domain.
func (a *RootAgent) Leaf(domain uint32) (common.Address, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	recipient, ok := a.leaves[domain]
	return recipient, ok
}

// QuoteAction returns the fee currently required to mirror a command to a
// leaf. Quotes are per-send; destination gas prices move.
func (a *RootAgent) QuoteAction(domain uint32, cmd Command, payload []byte, gasOverride uint64) (*big.Int, error) {
	recipient, ok := a.Leaf(domain)
	if !ok {
		return nil, fmt.Errorf("%w: domain %d", interfaces.ErrUnknownLeaf, domain)
	}
	gasLimit, err := a.table.GasLimit(cmd, gasOverride)
	if err != nil {
		return nil, err
	}
	return a.mailbox.QuoteDispatch(domain, recipient, payload, gasLimit)
}

// sendAction quotes and dispatches one command payload to a registered
// leaf. The attached fee must cover the quote or the send aborts before
// dispatch.
func (a *RootAgent) sendAction(ctx context.Context, actor common.Address, domain uint32, cmd Command, payload []byte, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	if actor != a.ctrl.Owner() {
		return common.Hash{}, fmt.Errorf("send %s to domain %d: %w", cmd, domain, interfaces.ErrNotAuthorized)
	}
	recipient, ok := a.Leaf(domain)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: domain %d", interfaces.ErrUnknownLeaf, domain)
	}

	gasLimit, err := a.table.GasLimit(cmd, gasOverride)
	if err != nil {
		return common.Hash{}, err
	}
	quote, err := a.mailbox.QuoteDispatch(domain, recipient, payload, gasLimit)
	if err != nil {
		return common.Hash{}, fmt.Errorf("quote %s to domain %d: %w", cmd, domain, err)
	}
	if fee == nil || fee.Cmp(quote) < 0 {
		return common.Hash{}, fmt.Errorf("%w: need %s, got %s", interfaces.ErrInsufficientFee, quote, fee)
	}

	messageID, err := a.mailbox.Dispatch(ctx, domain, recipient, payload, gasLimit, fee)
	if err != nil {
		return common.Hash{}, fmt.Errorf("dispatch %s to domain %d: %w", cmd, domain, err)
	}

	a.log.Info("Cross-chain command sent",
		"command", cmd.String(),
		"domain", domain,
		"recipient", recipient.Hex(),
		"message_id", messageID.Hex(),
		"gas_limit", gasLimit)
	a.events.Emit(ctx, events.MessageSent{MessageID: messageID, Destination: domain, Recipient: recipient, Payload: payload})
	return messageID, nil
}

// ApproveTokenOnLeaf mirrors a token approval to a leaf chain.
func (a *RootAgent) ApproveTokenOnLeaf(ctx context.Context, actor common.Address, domain uint32, token common.Address, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	return a.sendAction(ctx, actor, domain, CommandApproveToken, EncodeApproveToken(token), fee, gasOverride)
}

// RejectTokenOnLeaf mirrors a token rejection to a leaf chain.
func (a *RootAgent) RejectTokenOnLeaf(ctx context.Context, actor common.Address, domain uint32, token common.Address, reason string, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	if reason == "" {
		return common.Hash{}, fmt.Errorf("reject token on domain %d: %w", domain, interfaces.ErrEmptyReason)
	}
	return a.sendAction(ctx, actor, domain, CommandRejectToken, EncodeRejectToken(token, reason), fee, gasOverride)
}

// AcceptTokenEditOnLeaf mirrors an edit acceptance to a leaf chain.
func (a *RootAgent) AcceptTokenEditOnLeaf(ctx context.Context, actor common.Address, domain uint32, token common.Address, editID uint64, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	return a.sendAction(ctx, actor, domain, CommandAcceptTokenEdit, EncodeAcceptTokenEdit(token, editID), fee, gasOverride)
}

// RejectTokenEditOnLeaf mirrors an edit rejection to a leaf chain.
func (a *RootAgent) RejectTokenEditOnLeaf(ctx context.Context, actor common.Address, domain uint32, token common.Address, editID uint64, reason string, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	if reason == "" {
		return common.Hash{}, fmt.Errorf("reject edit on domain %d: %w", domain, interfaces.ErrEmptyReason)
	}
	return a.sendAction(ctx, actor, domain, CommandRejectTokenEdit, EncodeRejectTokenEdit(token, editID, reason), fee, gasOverride)
}

// AddMetadataFieldOnLeaf mirrors a schema addition to a leaf chain.
func (a *RootAgent) AddMetadataFieldOnLeaf(ctx context.Context, actor common.Address, domain uint32, name string, required bool, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	return a.sendAction(ctx, actor, domain, CommandAddMetadataField, EncodeAddMetadataField(name, required), fee, gasOverride)
}

// UpdateMetadataFieldOnLeaf mirrors a schema flag change to a leaf chain.
func (a *RootAgent) UpdateMetadataFieldOnLeaf(ctx context.Context, actor common.Address, domain uint32, name string, active, required bool, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	return a.sendAction(ctx, actor, domain, CommandUpdateMetadataField, EncodeUpdateMetadataField(name, active, required), fee, gasOverride)
}

// UpdateRegistryControllerOnLeaf migrates a leaf registry to a new
// controller.
func (a *RootAgent) UpdateRegistryControllerOnLeaf(ctx context.Context, actor common.Address, domain uint32, next common.Address, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	return a.sendAction(ctx, actor, domain, CommandUpdateRegistryController, EncodeUpdateRegistryController(next), fee, gasOverride)
}

// UpdateTokenEditsOnLeaf migrates a leaf edit ledger to a new controller.
func (a *RootAgent) UpdateTokenEditsOnLeaf(ctx context.Context, actor common.Address, domain uint32, next common.Address, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	return a.sendAction(ctx, actor, domain, CommandUpdateTokenEdits, EncodeUpdateTokenEdits(next), fee, gasOverride)
}

// UpdateOwnerOnLeaf hands a leaf controller's ownership to a new address.
func (a *RootAgent) UpdateOwnerOnLeaf(ctx context.Context, actor common.Address, domain uint32, newOwner common.Address, fee *big.Int, gasOverride uint64) (common.Hash, error) {
	return a.sendAction(ctx, actor, domain, CommandUpdateOwner, EncodeUpdateOwner(newOwner), fee, gasOverride)
}
