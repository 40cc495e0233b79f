// Package crosschain implements the command protocol that mirrors root-chain
// governance decisions onto leaf chains.
//
// Commands are ABI-encoded payloads identified by a 4-byte selector. The
// RootAgent encodes, fee-quotes and dispatches them through a mailbox; the
// LeafAgent authenticates the delivery, decodes the command and replays it
// against the local controller inside a cross-chain execution context. The
// CommandTable carries per-command gas budgets with per-send overrides.
package crosschain
