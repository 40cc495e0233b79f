package tokentroller

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// rootPolicy is the default root-chain policy: administrative actions
// require the configured owner, submissions are open, and metadata value
// writes are restricted to the registry and edit ledger components.
type rootPolicy struct {
	c *Controller
}

func (p *rootPolicy) isOwner(actor common.Address) bool {
	return actor == p.c.Owner()
}

func (p *rootPolicy) CanAddToken(ctx context.Context, actor, token common.Address) bool {
	return true
}

func (p *rootPolicy) CanApproveToken(ctx context.Context, actor, token common.Address) bool {
	return p.isOwner(actor)
}

func (p *rootPolicy) CanRejectToken(ctx context.Context, actor, token common.Address) bool {
	return p.isOwner(actor)
}

func (p *rootPolicy) CanUpdateToken(ctx context.Context, actor, token common.Address) bool {
	return p.c.registry.Status(token) == interfaces.StatusApproved
}

func (p *rootPolicy) CanProposeTokenEdit(ctx context.Context, actor, token common.Address) bool {
	return p.c.registry.Status(token) == interfaces.StatusApproved
}

func (p *rootPolicy) CanAcceptTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool {
	return p.isOwner(actor)
}

func (p *rootPolicy) CanRejectTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool {
	return p.isOwner(actor)
}

func (p *rootPolicy) CanAddMetadataField(ctx context.Context, actor common.Address, field string) bool {
	return p.isOwner(actor)
}

func (p *rootPolicy) CanUpdateMetadataField(ctx context.Context, actor common.Address, field string) bool {
	return p.isOwner(actor)
}

func (p *rootPolicy) CanUpdateMetadata(ctx context.Context, caller, token common.Address, field string) bool {
	return canComponentWrite(p.c, caller, token)
}

func (p *rootPolicy) CanUpdateOwner(ctx context.Context, actor common.Address) bool {
	return p.isOwner(actor)
}

func (p *rootPolicy) CanUpdateController(ctx context.Context, actor common.Address) bool {
	return p.isOwner(actor)
}

// leafPolicy is the leaf-chain specialization: every administrative
// predicate requires an active cross-chain execution context, so governance
// actions are only reachable via an authenticated inbound message. Direct
// local calls fail authorization even for the configured owner.
type leafPolicy struct {
	c *Controller
}

func executing(ctx context.Context) bool {
	return interfaces.CrossChainFromContext(ctx) != nil
}

func (p *leafPolicy) CanAddToken(ctx context.Context, actor, token common.Address) bool {
	return true
}

func (p *leafPolicy) CanApproveToken(ctx context.Context, actor, token common.Address) bool {
	return executing(ctx)
}

func (p *leafPolicy) CanRejectToken(ctx context.Context, actor, token common.Address) bool {
	return executing(ctx)
}

func (p *leafPolicy) CanUpdateToken(ctx context.Context, actor, token common.Address) bool {
	return p.c.registry.Status(token) == interfaces.StatusApproved
}

func (p *leafPolicy) CanProposeTokenEdit(ctx context.Context, actor, token common.Address) bool {
	return p.c.registry.Status(token) == interfaces.StatusApproved
}

func (p *leafPolicy) CanAcceptTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool {
	return executing(ctx)
}

func (p *leafPolicy) CanRejectTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool {
	return executing(ctx)
}

func (p *leafPolicy) CanAddMetadataField(ctx context.Context, actor common.Address, field string) bool {
	return executing(ctx)
}

func (p *leafPolicy) CanUpdateMetadataField(ctx context.Context, actor common.Address, field string) bool {
	return executing(ctx)
}

func (p *leafPolicy) CanUpdateMetadata(ctx context.Context, caller, token common.Address, field string) bool {
	return canComponentWrite(p.c, caller, token)
}

func (p *leafPolicy) CanUpdateOwner(ctx context.Context, actor common.Address) bool {
	return executing(ctx)
}

func (p *leafPolicy) CanUpdateController(ctx context.Context, actor common.Address) bool {
	return executing(ctx)
}

// canComponentWrite gates metadata value writes. The registry may write
// while the token has not been resolved yet (its submission window); the
// edit ledger writes when applying accepted edits to approved tokens.
func canComponentWrite(c *Controller, caller, token common.Address) bool {
	switch caller {
	case c.registry.Address():
		status := c.registry.Status(token)
		return status == interfaces.StatusNone || status == interfaces.StatusPending
	case c.edits.Address():
		return c.registry.Status(token) == interfaces.StatusApproved
	default:
		return false
	}
}
