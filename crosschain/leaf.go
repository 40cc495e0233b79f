package crosschain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/tokentroller"
)

// LeafAgent receives command payloads on a leaf chain and replays them
// against the local controller. It is the only path to administrative
// mutations on a leaf: the leaf authority policy admits admin calls solely
// from inside the cross-chain execution context this agent establishes.
//
// Authentication is two layered. The transport caller must be the local
// mailbox, and the message sender must be the configured root agent on the
// configured root domain. Anything else is dropped before it can touch
// state.
type LeafAgent struct {
	mu     sync.RWMutex
	log    *slog.Logger
	events events.Sink

	ctrl        *tokentroller.Controller
	mailboxAddr common.Address
	rootDomain  uint32
	rootAddr    [32]byte

	// executing rejects reentrant delivery while a command runs.
	executing atomic.Bool

	// candidates are controllers eligible as swap targets for the
	// controller migration commands, keyed by their identity address.
	candidates map[common.Address]*tokentroller.Controller
}

// NewLeafAgent wires a leaf controller to its local mailbox and root agent.
func NewLeafAgent(ctrl *tokentroller.Controller, mailboxAddr common.Address, rootDomain uint32, rootAddr common.Address, log *slog.Logger, sink events.Sink) *LeafAgent {
	if sink == nil {
		sink = events.Discard{}
	}
	return &LeafAgent{
		log:         log.With("component", "crosschain-leaf", "root_domain", rootDomain),
		events:      sink,
		ctrl:        ctrl,
		mailboxAddr: mailboxAddr,
		rootDomain:  rootDomain,
		rootAddr:    interfaces.AddressToBytes32(rootAddr),
		candidates:  make(map[common.Address]*tokentroller.Controller),
	}
}

// Controller returns the wrapped leaf controller.
func (a *LeafAgent) Controller() *tokentroller.Controller {
	return a.ctrl
}

// RegisterCandidate makes a controller eligible as a migration target for
// the controller swap commands. Swap payloads carry only an address; the
// agent resolves it against this set.
func (a *LeafAgent) RegisterCandidate(ctrl *tokentroller.Controller) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidates[ctrl.Address()] = ctrl
}

func (a *LeafAgent) candidate(addr common.Address) (*tokentroller.Controller, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ctrl, ok := a.candidates[addr]
	return ctrl, ok
}

// Handle implements interfaces.MessageHandler. A failed command emits
// CrossChainMessageFailed and returns the error; it never partially
// applies.
func (a *LeafAgent) Handle(ctx context.Context, caller common.Address, origin uint32, sender [32]byte, payload []byte) error {
	if caller != a.mailboxAddr {
		return fmt.Errorf("handle from %s: %w", caller.Hex(), interfaces.ErrNotMailbox)
	}

	messageID := MessageID(payload)
	ctx = interfaces.WithCrossChainContext(ctx, interfaces.CrossChainContext{
		Origin:    origin,
		Sender:    interfaces.Bytes32ToAddress(sender),
		MessageID: messageID,
	})

	if err := a.execute(ctx, origin, sender, payload); err != nil {
		a.log.Warn("Cross-chain command failed", "message_id", messageID.Hex(), "err", err)
		a.events.Emit(ctx, events.CrossChainMessageFailed{MessageID: messageID, Reason: err.Error()})
		return err
	}

	a.log.Info("Cross-chain command executed", "message_id", messageID.Hex())
	a.events.Emit(ctx, events.CrossChainMessageExecuted{MessageID: messageID, Payload: payload})
	return nil
}

func (a *LeafAgent) execute(ctx context.Context, origin uint32, sender [32]byte, payload []byte) error {
	if sender != a.rootAddr {
		return fmt.Errorf("sender %s: %w", interfaces.Bytes32ToAddress(sender).Hex(), interfaces.ErrNotRoot)
	}
	if origin != a.rootDomain {
		return fmt.Errorf("origin %d: %w", origin, interfaces.ErrNotRoot)
	}
	if !a.executing.CompareAndSwap(false, true) {
		return interfaces.ErrAlreadyExecuting
	}
	defer a.executing.Store(false)

	action, err := DecodeAction(payload)
	if err != nil {
		return err
	}

	cc := interfaces.CrossChainFromContext(ctx)
	if cc == nil {
		return fmt.Errorf("no execution context: %w", interfaces.ErrNotMailbox)
	}
	actor := cc.Sender

	switch action.Command {
	case CommandApproveToken:
		return a.ctrl.ApproveToken(ctx, actor, action.Token)
	case CommandRejectToken:
		return a.ctrl.RejectToken(ctx, actor, action.Token, action.Reason)
	case CommandAcceptTokenEdit:
		return a.ctrl.AcceptEdit(ctx, actor, action.Token, action.EditID)
	case CommandRejectTokenEdit:
		return a.ctrl.RejectEdit(ctx, actor, action.Token, action.EditID, action.Reason)
	case CommandAddMetadataField:
		return a.ctrl.AddMetadataField(ctx, actor, action.Field, action.Required)
	case CommandUpdateMetadataField:
		return a.ctrl.UpdateMetadataField(ctx, actor, action.Field, action.Active, action.Required)
	case CommandUpdateRegistryController:
		next, ok := a.candidate(action.NewAddress)
		if !ok {
			return fmt.Errorf("registry controller %s: %w", action.NewAddress.Hex(), interfaces.ErrNotController)
		}
		return a.ctrl.UpdateRegistryController(ctx, actor, next)
	case CommandUpdateTokenEdits:
		next, ok := a.candidate(action.NewAddress)
		if !ok {
			return fmt.Errorf("edits controller %s: %w", action.NewAddress.Hex(), interfaces.ErrNotController)
		}
		return a.ctrl.UpdateEditsController(ctx, actor, next)
	case CommandUpdateOwner:
		return a.ctrl.UpdateOwner(ctx, actor, action.NewAddress)
	default:
		return fmt.Errorf("%w: 0x%02x", interfaces.ErrUnknownCommand, uint8(action.Command))
	}
}
