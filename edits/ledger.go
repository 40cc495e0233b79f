// Package edits implements the edit proposal ledger: per-token, sequentially
// numbered bundles of metadata changes and their accept/reject lifecycle.
//
// Proposal ids start at 0 per token and are never reused, even after
// rejection. Accepting a proposal applies all of its field updates to the
// metadata store atomically with the status flip; both terminal states are
// final.
package edits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/metadata"
)

// Ledger holds all edit proposals keyed by token.
type Ledger struct {
	mu     sync.RWMutex
	log    *slog.Logger
	events events.Sink
	ctrl   interfaces.Controller
	addr   common.Address
	meta   *metadata.Store

	proposals map[common.Address][]*interfaces.EditProposal
}

// NewLedger creates an empty ledger owned by the given controller. Accepted
// edits are applied to the metadata store under the ledger's component
// identity.
func NewLedger(ctrl interfaces.Controller, meta *metadata.Store, log *slog.Logger, sink events.Sink) *Ledger {
	addr := common.BytesToAddress(crypto.Keccak256([]byte("edit-ledger"), ctrl.Address().Bytes())[12:])
	return &Ledger{
		log:       log.With("component", "edits"),
		events:    sink,
		ctrl:      ctrl,
		addr:      addr,
		meta:      meta,
		proposals: make(map[common.Address][]*interfaces.EditProposal),
	}
}

// Address returns the ledger's component identity.
func (l *Ledger) Address() common.Address {
	return l.addr
}

func (l *Ledger) controller() interfaces.Controller {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ctrl
}

// ProposeEdit records a new proposal against an approved token and returns
// its id. Every referenced field must exist and be active at proposal time.
func (l *Ledger) ProposeEdit(ctx context.Context, actor, token common.Address, updates []interfaces.FieldUpdate) (uint64, error) {
	if len(updates) == 0 {
		return 0, fmt.Errorf("propose edit for %s: %w", token.Hex(), interfaces.ErrEmptyEdit)
	}
	if !l.controller().Policy().CanProposeTokenEdit(ctx, actor, token) {
		return 0, fmt.Errorf("propose edit for %s: %w", token.Hex(), interfaces.ErrNotAuthorized)
	}
	for _, u := range updates {
		field, exists := l.meta.Field(u.Field)
		if !exists {
			return 0, fmt.Errorf("propose edit for %s: %w: %q", token.Hex(), interfaces.ErrUnknownField, u.Field)
		}
		if !field.IsActive {
			return 0, fmt.Errorf("propose edit for %s: %w: %q", token.Hex(), interfaces.ErrInactiveField, u.Field)
		}
	}

	copied := make([]interfaces.FieldUpdate, len(updates))
	copy(copied, updates)

	l.mu.Lock()
	id := uint64(len(l.proposals[token]))
	proposal := &interfaces.EditProposal{
		Token:     token,
		ID:        id,
		Submitter: actor,
		Updates:   copied,
		CreatedAt: time.Now().UTC(),
		Status:    interfaces.EditPending,
	}
	l.proposals[token] = append(l.proposals[token], proposal)
	l.mu.Unlock()

	l.log.Info("Edit proposed", "token", token.Hex(), "edit_id", id, "submitter", actor.Hex(), "updates", len(copied))
	l.events.Emit(ctx, events.MetadataEditProposed{Token: token, EditID: id, Submitter: actor})
	return id, nil
}

// AcceptEdit applies a pending proposal to the metadata store and flips it
// to ACCEPTED. Application is all-or-nothing: if any update cannot be
// applied, no value changes and the proposal stays pending.
func (l *Ledger) AcceptEdit(ctx context.Context, actor, token common.Address, editID uint64) error {
	if !l.controller().Policy().CanAcceptTokenEdit(ctx, actor, token, editID) {
		return fmt.Errorf("accept edit %d for %s: %w", editID, token.Hex(), interfaces.ErrNotAuthorized)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	proposal, err := l.pending(token, editID)
	if err != nil {
		return fmt.Errorf("accept edit %d for %s: %w", editID, token.Hex(), err)
	}

	// The metadata store validates and applies the whole batch under its
	// own lock, so the status flip below only happens after a full apply.
	if err := l.meta.ApplyValues(ctx, l.addr, token, proposal.Updates); err != nil {
		return fmt.Errorf("accept edit %d for %s: %w", editID, token.Hex(), err)
	}
	proposal.Status = interfaces.EditAccepted

	l.log.Info("Edit accepted", "token", token.Hex(), "edit_id", editID)
	l.events.Emit(ctx, events.MetadataEditAccepted{Token: token, EditID: editID})
	return nil
}

// RejectEdit flips a pending proposal to REJECTED and records the reason.
func (l *Ledger) RejectEdit(ctx context.Context, actor, token common.Address, editID uint64, reason string) error {
	if reason == "" {
		return fmt.Errorf("reject edit %d for %s: %w", editID, token.Hex(), interfaces.ErrEmptyReason)
	}
	if !l.controller().Policy().CanRejectTokenEdit(ctx, actor, token, editID) {
		return fmt.Errorf("reject edit %d for %s: %w", editID, token.Hex(), interfaces.ErrNotAuthorized)
	}

	l.mu.Lock()
	proposal, err := l.pending(token, editID)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("reject edit %d for %s: %w", editID, token.Hex(), err)
	}
	proposal.Status = interfaces.EditRejected
	proposal.Reason = reason
	l.mu.Unlock()

	l.log.Info("Edit rejected", "token", token.Hex(), "edit_id", editID, "reason", reason)
	l.events.Emit(ctx, events.MetadataEditRejected{Token: token, EditID: editID, Reason: reason})
	return nil
}

// pending returns the proposal if it exists and is unresolved. Callers hold
// the lock.
func (l *Ledger) pending(token common.Address, editID uint64) (*interfaces.EditProposal, error) {
	list := l.proposals[token]
	if editID >= uint64(len(list)) {
		return nil, interfaces.ErrUnknownEdit
	}
	proposal := list[editID]
	if proposal.Status != interfaces.EditPending {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrEditResolved, proposal.Status)
	}
	return proposal, nil
}

// Edit returns one proposal.
func (l *Ledger) Edit(token common.Address, editID uint64) (interfaces.EditProposal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := l.proposals[token]
	if editID >= uint64(len(list)) {
		return interfaces.EditProposal{}, false
	}
	return *list[editID], true
}

// ListEdits returns a page of a token's proposals in id order, optionally
// filtered by status (EditAny disables the filter).
func (l *Ledger) ListEdits(token common.Address, offset, limit int, filter interfaces.EditStatus) []interfaces.EditProposal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []interfaces.EditProposal
	for _, proposal := range l.proposals[token] {
		if filter != interfaces.EditAny && proposal.Status != filter {
			continue
		}
		matched = append(matched, *proposal)
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// Count returns the number of proposals recorded for a token.
func (l *Ledger) Count(token common.Address) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.proposals[token])
}

// SwapController migrates the ledger to a new controller. Only the current
// controller may perform the swap.
func (l *Ledger) SwapController(caller common.Address, next interfaces.Controller) error {
	l.mu.Lock()
	old := l.ctrl.Address()
	if caller != old {
		l.mu.Unlock()
		return fmt.Errorf("swap edit ledger controller: %w", interfaces.ErrNotController)
	}
	l.ctrl = next
	l.mu.Unlock()

	l.log.Info("Edit ledger controller updated", "old", old.Hex(), "new", next.Address().Hex())
	l.events.Emit(context.Background(), events.ControllerUpdated{Component: "edits", Old: old, New: next.Address()})
	return nil
}
