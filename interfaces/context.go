package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// CrossChainContext is the short-lived scope established while processing one
// inbound cross-chain message. It is carried as a request-scoped context
// value through the call chain, never as ambient state, so nothing leaks
// between messages and concurrent test execution stays safe.
type CrossChainContext struct {
	// Origin is the domain id of the chain the message was sent from.
	Origin uint32

	// Sender is the address that dispatched the message on the origin chain.
	Sender common.Address

	// MessageID is the keccak hash of the raw command payload.
	MessageID common.Hash
}

type crossChainContextKey struct{}

// WithCrossChainContext returns a context carrying the execution scope of one
// inbound message.
func WithCrossChainContext(ctx context.Context, cc CrossChainContext) context.Context {
	return context.WithValue(ctx, crossChainContextKey{}, &cc)
}

// CrossChainFromContext returns the execution scope, or nil when the call is
// not processing an inbound cross-chain message.
func CrossChainFromContext(ctx context.Context) *CrossChainContext {
	cc, _ := ctx.Value(crossChainContextKey{}).(*CrossChainContext)
	return cc
}
