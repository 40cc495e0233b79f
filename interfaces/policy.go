package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AuthorityPolicy answers whether an actor may perform a mutation. Predicates
// are pure reads: they never mutate state and never fail, they only return
// false. Callers re-evaluate the relevant predicate at the point of each
// mutation and convert a false answer into a descriptive error.
//
// The context carries the cross-chain execution scope (if any); leaf-chain
// policies require it for every administrative predicate.
type AuthorityPolicy interface {
	// CanAddToken gates new token submissions.
	CanAddToken(ctx context.Context, actor, token common.Address) bool

	// CanApproveToken gates the PENDING -> APPROVED transition.
	CanApproveToken(ctx context.Context, actor, token common.Address) bool

	// CanRejectToken gates the PENDING -> REJECTED transition.
	CanRejectToken(ctx context.Context, actor, token common.Address) bool

	// CanUpdateToken gates direct token detail updates.
	CanUpdateToken(ctx context.Context, actor, token common.Address) bool

	// CanProposeTokenEdit gates new edit proposals.
	CanProposeTokenEdit(ctx context.Context, actor, token common.Address) bool

	// CanAcceptTokenEdit gates edit acceptance.
	CanAcceptTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool

	// CanRejectTokenEdit gates edit rejection.
	CanRejectTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool

	// CanAddMetadataField gates schema additions.
	CanAddMetadataField(ctx context.Context, actor common.Address, field string) bool

	// CanUpdateMetadataField gates schema flag changes.
	CanUpdateMetadataField(ctx context.Context, actor common.Address, field string) bool

	// CanUpdateMetadata gates metadata value writes. The caller is a
	// component identity (registry or edit ledger), never an end user.
	CanUpdateMetadata(ctx context.Context, caller, token common.Address, field string) bool

	// CanUpdateOwner gates governance owner handover.
	CanUpdateOwner(ctx context.Context, actor common.Address) bool

	// CanUpdateController gates store controller pointer migrations.
	CanUpdateController(ctx context.Context, actor common.Address) bool
}
