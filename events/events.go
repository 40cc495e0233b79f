// Package events defines the typed domain and cross-chain events emitted by
// the registry. Events are the system's sole externally observable audit
// trail; sinks fan them out to structured logs and in-memory recorders.
package events

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Event is one audit record. Attrs returns slog-style key/value pairs.
type Event interface {
	Name() string
	Attrs() []any
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// TokenSubmitted is emitted when a token enters PENDING.
type TokenSubmitted struct {
	Token     common.Address
	Submitter common.Address
}

func (e TokenSubmitted) Name() string { return "TokenSubmitted" }
func (e TokenSubmitted) Attrs() []any {
	return []any{"token", e.Token.Hex(), "submitter", e.Submitter.Hex()}
}

// TokenApproved is emitted on the PENDING -> APPROVED transition.
type TokenApproved struct {
	Token common.Address
}

func (e TokenApproved) Name() string { return "TokenApproved" }
func (e TokenApproved) Attrs() []any { return []any{"token", e.Token.Hex()} }

// TokenRejected is emitted on the PENDING -> REJECTED transition.
type TokenRejected struct {
	Token  common.Address
	Reason string
}

func (e TokenRejected) Name() string { return "TokenRejected" }
func (e TokenRejected) Attrs() []any {
	return []any{"token", e.Token.Hex(), "reason", e.Reason}
}

// TokenUpdated is emitted when an approved token's details change.
type TokenUpdated struct {
	Token common.Address
}

func (e TokenUpdated) Name() string { return "TokenUpdated" }
func (e TokenUpdated) Attrs() []any { return []any{"token", e.Token.Hex()} }

// MetadataFieldAdded is emitted when a schema field is created.
type MetadataFieldAdded struct {
	Field    string
	Required bool
}

func (e MetadataFieldAdded) Name() string { return "MetadataFieldAdded" }
func (e MetadataFieldAdded) Attrs() []any {
	return []any{"field", e.Field, "required", e.Required}
}

// MetadataFieldUpdated is emitted when a schema field's flags change.
type MetadataFieldUpdated struct {
	Field    string
	Active   bool
	Required bool
}

func (e MetadataFieldUpdated) Name() string { return "MetadataFieldUpdated" }
func (e MetadataFieldUpdated) Attrs() []any {
	return []any{"field", e.Field, "active", e.Active, "required", e.Required}
}

// MetadataEditProposed is emitted when an edit proposal is created.
type MetadataEditProposed struct {
	Token     common.Address
	EditID    uint64
	Submitter common.Address
}

func (e MetadataEditProposed) Name() string { return "MetadataEditProposed" }
func (e MetadataEditProposed) Attrs() []any {
	return []any{"token", e.Token.Hex(), "edit_id", e.EditID, "submitter", e.Submitter.Hex()}
}

// MetadataEditAccepted is emitted after an edit is applied and flipped.
type MetadataEditAccepted struct {
	Token  common.Address
	EditID uint64
}

func (e MetadataEditAccepted) Name() string { return "MetadataEditAccepted" }
func (e MetadataEditAccepted) Attrs() []any {
	return []any{"token", e.Token.Hex(), "edit_id", e.EditID}
}

// MetadataEditRejected is emitted when an edit is rejected.
type MetadataEditRejected struct {
	Token  common.Address
	EditID uint64
	Reason string
}

func (e MetadataEditRejected) Name() string { return "MetadataEditRejected" }
func (e MetadataEditRejected) Attrs() []any {
	return []any{"token", e.Token.Hex(), "edit_id", e.EditID, "reason", e.Reason}
}

// ControllerUpdated is emitted when a store's controller pointer is swapped.
type ControllerUpdated struct {
	Component string
	Old       common.Address
	New       common.Address
}

func (e ControllerUpdated) Name() string { return "ControllerUpdated" }
func (e ControllerUpdated) Attrs() []any {
	return []any{"component", e.Component, "old", e.Old.Hex(), "new", e.New.Hex()}
}

// OwnerUpdated is emitted on governance owner handover.
type OwnerUpdated struct {
	Old common.Address
	New common.Address
}

func (e OwnerUpdated) Name() string { return "OwnerUpdated" }
func (e OwnerUpdated) Attrs() []any {
	return []any{"old", e.Old.Hex(), "new", e.New.Hex()}
}

// LeafRegistered is emitted when a leaf endpoint is registered on the root.
type LeafRegistered struct {
	Domain    uint32
	Recipient common.Address
}

func (e LeafRegistered) Name() string { return "LeafRegistered" }
func (e LeafRegistered) Attrs() []any {
	return []any{"domain", e.Domain, "recipient", e.Recipient.Hex()}
}

// MessageSent is emitted after a cross-chain command is dispatched.
type MessageSent struct {
	MessageID   common.Hash
	Destination uint32
	Recipient   common.Address
	Payload     []byte
}

func (e MessageSent) Name() string { return "MessageSent" }
func (e MessageSent) Attrs() []any {
	return []any{
		"message_id", e.MessageID.Hex(),
		"destination", e.Destination,
		"recipient", e.Recipient.Hex(),
		"payload", hex.EncodeToString(e.Payload),
	}
}

// CrossChainMessageExecuted is emitted after an inbound command succeeds.
type CrossChainMessageExecuted struct {
	MessageID common.Hash
	Payload   []byte
}

func (e CrossChainMessageExecuted) Name() string { return "CrossChainMessageExecuted" }
func (e CrossChainMessageExecuted) Attrs() []any {
	return []any{"message_id", e.MessageID.Hex(), "payload", hex.EncodeToString(e.Payload)}
}

// CrossChainMessageFailed is emitted before an inbound command failure is
// propagated, so observers can react to failed remote commands.
type CrossChainMessageFailed struct {
	MessageID common.Hash
	Reason    string
}

func (e CrossChainMessageFailed) Name() string { return "CrossChainMessageFailed" }
func (e CrossChainMessageFailed) Attrs() []any {
	return []any{"message_id", e.MessageID.Hex(), "reason", e.Reason}
}

// SlogSink writes events to a structured logger at info level.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink logging each event under its name.
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

func (s *SlogSink) Emit(ctx context.Context, ev Event) {
	s.log.Info(ev.Name(), ev.Attrs()...)
}

// Recorder keeps emitted events in memory, in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByName returns recorded events with the given name.
func (r *Recorder) ByName(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type multiSink struct {
	sinks []Sink
}

// Multi fans emitted events out to all given sinks.
func Multi(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m.sinks {
		s.Emit(ctx, ev)
	}
}

// Discard ignores all events.
type Discard struct{}

func (Discard) Emit(ctx context.Context, ev Event) {}
