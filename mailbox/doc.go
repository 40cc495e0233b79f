// Package mailbox provides the cross-domain message transports. The
// in-process Network fabric backs tests and single-process simulations; the
// HTTPMailbox relays dispatches between separate root and leaf processes.
// Both derive the same per-domain mailbox identity and message ids, so the
// agents behave identically on either transport.
package mailbox
