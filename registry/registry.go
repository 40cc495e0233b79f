// Package registry implements the canonical token list and its status state
// machine.
//
// Statuses move forward only: NONE -> PENDING -> {APPROVED, REJECTED}. Both
// terminal states are final; later metadata edits never change status.
// Tokens are never deleted, the status is the terminal marker. Every
// mutation consults the controller's authority policy first and emits the
// matching domain event.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/metadata"
)

// Registry holds all submitted tokens in insertion order.
type Registry struct {
	mu     sync.RWMutex
	log    *slog.Logger
	events events.Sink
	ctrl   interfaces.Controller
	addr   common.Address
	meta   *metadata.Store

	tokens map[common.Address]*interfaces.TokenInfo
	order  []common.Address
}

// New creates an empty registry owned by the given controller. Initial
// submission metadata is forwarded to the metadata store under the
// registry's component identity.
func New(ctrl interfaces.Controller, meta *metadata.Store, log *slog.Logger, sink events.Sink) *Registry {
	addr := common.BytesToAddress(crypto.Keccak256([]byte("token-registry"), ctrl.Address().Bytes())[12:])
	return &Registry{
		log:    log.With("component", "registry"),
		events: sink,
		ctrl:   ctrl,
		addr:   addr,
		meta:   meta,
		tokens: make(map[common.Address]*interfaces.TokenInfo),
	}
}

// Address returns the registry's component identity.
func (r *Registry) Address() common.Address {
	return r.addr
}

func (r *Registry) controller() interfaces.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctrl
}

// AddToken submits a new token and moves it NONE -> PENDING. Submission is
// open to any actor under the default policy. All referenced metadata fields
// must exist and be active, and all required active fields must be present.
func (r *Registry) AddToken(ctx context.Context, actor common.Address, sub interfaces.TokenSubmission) error {
	if !r.controller().Policy().CanAddToken(ctx, actor, sub.Address) {
		return fmt.Errorf("add token %s: %w", sub.Address.Hex(), interfaces.ErrNotAuthorized)
	}
	if err := r.meta.CheckRequired(sub.Metadata); err != nil {
		return fmt.Errorf("add token %s: %w", sub.Address.Hex(), err)
	}

	r.mu.Lock()
	if _, exists := r.tokens[sub.Address]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", interfaces.ErrTokenExists, sub.Address.Hex())
	}
	info := &interfaces.TokenInfo{
		Address:  sub.Address,
		Name:     sub.Name,
		Symbol:   sub.Symbol,
		Decimals: sub.Decimals,
		Status:   interfaces.StatusPending,
		Index:    uint64(len(r.order)),
	}
	r.tokens[sub.Address] = info
	r.order = append(r.order, sub.Address)
	r.mu.Unlock()

	// Metadata writes happen outside the registry lock: the metadata
	// policy reads this token's status back through the registry.
	if len(sub.Metadata) > 0 {
		updates := make([]interfaces.FieldUpdate, 0, len(sub.Metadata))
		for _, key := range metadata.SortedKeys(sub.Metadata) {
			updates = append(updates, interfaces.FieldUpdate{Field: key, Value: sub.Metadata[key]})
		}
		if err := r.meta.ApplyValues(ctx, r.addr, sub.Address, updates); err != nil {
			// Another submission may have appended since the insert, so
			// remove this token's own entry and reindex what follows.
			r.mu.Lock()
			delete(r.tokens, sub.Address)
			for i, addr := range r.order {
				if addr != sub.Address {
					continue
				}
				r.order = append(r.order[:i], r.order[i+1:]...)
				for _, later := range r.order[i:] {
					r.tokens[later].Index--
				}
				break
			}
			r.mu.Unlock()
			return fmt.Errorf("add token %s: %w", sub.Address.Hex(), err)
		}
	}

	r.log.Info("Token submitted", "token", sub.Address.Hex(), "symbol", sub.Symbol, "submitter", actor.Hex())
	r.events.Emit(ctx, events.TokenSubmitted{Token: sub.Address, Submitter: actor})
	return nil
}

// ApproveToken moves a PENDING token to APPROVED.
func (r *Registry) ApproveToken(ctx context.Context, actor, token common.Address) error {
	if !r.controller().Policy().CanApproveToken(ctx, actor, token) {
		return fmt.Errorf("approve token %s: %w", token.Hex(), interfaces.ErrNotAuthorized)
	}

	r.mu.Lock()
	info, exists := r.tokens[token]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", interfaces.ErrUnknownToken, token.Hex())
	}
	if info.Status != interfaces.StatusPending {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", interfaces.ErrNotPending, token.Hex(), info.Status)
	}
	info.Status = interfaces.StatusApproved
	r.mu.Unlock()

	r.log.Info("Token approved", "token", token.Hex())
	r.events.Emit(ctx, events.TokenApproved{Token: token})
	return nil
}

// RejectToken moves a PENDING token to REJECTED. The reason must be a
// non-empty human-readable string; it is recorded and emitted.
func (r *Registry) RejectToken(ctx context.Context, actor, token common.Address, reason string) error {
	if reason == "" {
		return fmt.Errorf("reject token %s: %w", token.Hex(), interfaces.ErrEmptyReason)
	}
	if !r.controller().Policy().CanRejectToken(ctx, actor, token) {
		return fmt.Errorf("reject token %s: %w", token.Hex(), interfaces.ErrNotAuthorized)
	}

	r.mu.Lock()
	info, exists := r.tokens[token]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", interfaces.ErrUnknownToken, token.Hex())
	}
	if info.Status != interfaces.StatusPending {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", interfaces.ErrNotPending, token.Hex(), info.Status)
	}
	info.Status = interfaces.StatusRejected
	info.Reason = reason
	r.mu.Unlock()

	r.log.Info("Token rejected", "token", token.Hex(), "reason", reason)
	r.events.Emit(ctx, events.TokenRejected{Token: token, Reason: reason})
	return nil
}

// UpdateToken changes an approved token's display details. Status is not
// affected.
func (r *Registry) UpdateToken(ctx context.Context, actor, token common.Address, name, symbol string, decimals uint8) error {
	if !r.controller().Policy().CanUpdateToken(ctx, actor, token) {
		return fmt.Errorf("update token %s: %w", token.Hex(), interfaces.ErrNotAuthorized)
	}

	r.mu.Lock()
	info, exists := r.tokens[token]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", interfaces.ErrUnknownToken, token.Hex())
	}
	info.Name = name
	info.Symbol = symbol
	info.Decimals = decimals
	r.mu.Unlock()

	r.events.Emit(ctx, events.TokenUpdated{Token: token})
	return nil
}

// Status returns a token's current status; unknown tokens are NONE.
func (r *Registry) Status(token common.Address) interfaces.TokenStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.tokens[token]
	if !exists {
		return interfaces.StatusNone
	}
	return info.Status
}

// Token returns a token's record.
func (r *Registry) Token(token common.Address) (interfaces.TokenInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.tokens[token]
	if !exists {
		return interfaces.TokenInfo{}, false
	}
	return *info, true
}

// ListTokens returns a page of tokens in insertion order, optionally
// filtered by status (StatusAny disables the filter).
func (r *Registry) ListTokens(offset, limit int, filter interfaces.TokenStatus) []interfaces.TokenInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []interfaces.TokenInfo
	for _, addr := range r.order {
		info := r.tokens[addr]
		if filter != interfaces.StatusAny && info.Status != filter {
			continue
		}
		matched = append(matched, *info)
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

// Count returns the total number of submitted tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// SwapController migrates the registry to a new controller. Only the
// current controller may perform the swap.
func (r *Registry) SwapController(caller common.Address, next interfaces.Controller) error {
	r.mu.Lock()
	old := r.ctrl.Address()
	if caller != old {
		r.mu.Unlock()
		return fmt.Errorf("swap registry controller: %w", interfaces.ErrNotController)
	}
	r.ctrl = next
	r.mu.Unlock()

	r.log.Info("Registry controller updated", "old", old.Hex(), "new", next.Address().Hex())
	r.events.Emit(context.Background(), events.ControllerUpdated{Component: "registry", Old: old, New: next.Address()})
	return nil
}
