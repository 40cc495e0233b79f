// Package interfaces defines the contracts between the token registry
// components without implementation details.
//
// # Governance
//
// AuthorityPolicy is the capability layer: a table of pure "can actor do X"
// predicates consulted by every mutating entry point of the registry, the
// metadata store and the edit ledger. Controller is the governance object
// owning those stores; stores only accept a controller-pointer swap from the
// current controller.
//
// # Cross-chain transport
//
// Mailbox is the external interchain-messaging transport (dispatch and fee
// quoting); MessageHandler is the receiving side's callback contract.
// CrossChainContext is the request-scoped execution scope threaded through
// the call chain while one inbound message is processed.
//
// # Storage
//
// StorageBackend provides content-addressed snapshot storage used to publish
// token-list documents and audit-log snapshots across file, S3, IPFS and
// Vault backends.
package interfaces
