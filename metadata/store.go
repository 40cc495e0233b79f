// Package metadata implements the metadata schema and per-token field values.
//
// The schema is a list of named fields with active/required flags. Fields are
// created by governance, updated by governance, and never deleted. Values can
// only be written through the registry (while a token is pending) or the edit
// ledger (when an accepted edit is applied); the authority policy enforces
// the caller restriction.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
)

// Store holds the metadata schema and per-token values.
type Store struct {
	mu     sync.RWMutex
	log    *slog.Logger
	events events.Sink
	ctrl   interfaces.Controller
	addr   common.Address

	fields map[string]*interfaces.MetadataField
	order  []string
	values map[common.Address]map[string]string
}

// NewStore creates an empty metadata store owned by the given controller.
func NewStore(ctrl interfaces.Controller, log *slog.Logger, sink events.Sink) *Store {
	addr := common.BytesToAddress(crypto.Keccak256([]byte("metadata-store"), ctrl.Address().Bytes())[12:])
	return &Store{
		log:    log.With("component", "metadata"),
		events: sink,
		ctrl:   ctrl,
		addr:   addr,
		fields: make(map[string]*interfaces.MetadataField),
		values: make(map[common.Address]map[string]string),
	}
}

// Address returns the store's component identity.
func (s *Store) Address() common.Address {
	return s.addr
}

func (s *Store) controller() interfaces.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// AddField creates a new schema field with isActive=true.
func (s *Store) AddField(ctx context.Context, actor common.Address, name string, isRequired bool) error {
	if name == "" {
		return fmt.Errorf("%w: empty field name", interfaces.ErrUnknownField)
	}
	if !s.controller().Policy().CanAddMetadataField(ctx, actor, name) {
		return fmt.Errorf("add metadata field %q: %w", name, interfaces.ErrNotAuthorized)
	}

	s.mu.Lock()
	if _, exists := s.fields[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", interfaces.ErrFieldExists, name)
	}
	s.fields[name] = &interfaces.MetadataField{Name: name, IsActive: true, IsRequired: isRequired}
	s.order = append(s.order, name)
	s.mu.Unlock()

	s.log.Info("Metadata field added", "field", name, "required", isRequired)
	s.events.Emit(ctx, events.MetadataFieldAdded{Field: name, Required: isRequired})
	return nil
}

// UpdateField changes an existing field's flags. Deactivation is the only
// way to retire a field.
func (s *Store) UpdateField(ctx context.Context, actor common.Address, name string, isActive, isRequired bool) error {
	if !s.controller().Policy().CanUpdateMetadataField(ctx, actor, name) {
		return fmt.Errorf("update metadata field %q: %w", name, interfaces.ErrNotAuthorized)
	}

	s.mu.Lock()
	field, exists := s.fields[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", interfaces.ErrUnknownField, name)
	}
	field.IsActive = isActive
	field.IsRequired = isRequired
	s.mu.Unlock()

	s.log.Info("Metadata field updated", "field", name, "active", isActive, "required", isRequired)
	s.events.Emit(ctx, events.MetadataFieldUpdated{Field: name, Active: isActive, Required: isRequired})
	return nil
}

// Field returns a schema field by name.
func (s *Store) Field(name string) (interfaces.MetadataField, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	field, exists := s.fields[name]
	if !exists {
		return interfaces.MetadataField{}, false
	}
	return *field, true
}

// Fields returns the schema in creation order.
func (s *Store) Fields() []interfaces.MetadataField {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]interfaces.MetadataField, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.fields[name])
	}
	return out
}

// CheckRequired verifies that all required active fields are present in the
// given submission metadata, and that every referenced field exists and is
// active. Enforced at the submission boundary only, never retroactively.
func (s *Store) CheckRequired(md map[string]string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name := range md {
		field, exists := s.fields[name]
		if !exists {
			return fmt.Errorf("%w: %q", interfaces.ErrUnknownField, name)
		}
		if !field.IsActive {
			return fmt.Errorf("%w: %q", interfaces.ErrInactiveField, name)
		}
	}

	for _, name := range s.order {
		field := s.fields[name]
		if !field.IsActive || !field.IsRequired {
			continue
		}
		if _, present := md[name]; !present {
			return fmt.Errorf("%w: %q", interfaces.ErrMissingRequiredField, name)
		}
	}
	return nil
}

// SetValue writes one field value for a token. Component callers only.
func (s *Store) SetValue(ctx context.Context, caller, token common.Address, field, value string) error {
	return s.ApplyValues(ctx, caller, token, []interfaces.FieldUpdate{{Field: field, Value: value}})
}

// ApplyValues writes a batch of field values for a token atomically: all
// updates are validated under the lock before the first write, so either
// every value is applied or none is.
func (s *Store) ApplyValues(ctx context.Context, caller, token common.Address, updates []interfaces.FieldUpdate) error {
	policy := s.controller().Policy()
	for _, u := range updates {
		if !policy.CanUpdateMetadata(ctx, caller, token, u.Field) {
			return fmt.Errorf("set metadata %q for %s: %w", u.Field, token.Hex(), interfaces.ErrNotAuthorized)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		field, exists := s.fields[u.Field]
		if !exists {
			return fmt.Errorf("%w: %q", interfaces.ErrUnknownField, u.Field)
		}
		if !field.IsActive {
			return fmt.Errorf("%w: %q", interfaces.ErrInactiveField, u.Field)
		}
	}

	vals, exists := s.values[token]
	if !exists {
		vals = make(map[string]string)
		s.values[token] = vals
	}
	for _, u := range updates {
		vals[u.Field] = u.Value
	}
	return nil
}

// Value returns one field value for a token.
func (s *Store) Value(token common.Address, field string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[token][field]
	return value, exists
}

// Values returns a copy of all field values recorded for a token.
func (s *Store) Values(token common.Address) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.values[token]))
	for k, v := range s.values[token] {
		out[k] = v
	}
	return out
}

// SortedKeys returns the keys of a metadata map in deterministic order.
func SortedKeys(md map[string]string) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SwapController migrates the store to a new controller. Only the current
// controller may perform the swap.
func (s *Store) SwapController(caller common.Address, next interfaces.Controller) error {
	s.mu.Lock()
	old := s.ctrl.Address()
	if caller != old {
		s.mu.Unlock()
		return fmt.Errorf("swap metadata controller: %w", interfaces.ErrNotController)
	}
	s.ctrl = next
	s.mu.Unlock()

	s.log.Info("Metadata store controller updated", "old", old.Hex(), "new", next.Address().Hex())
	s.events.Emit(context.Background(), events.ControllerUpdated{Component: "metadata", Old: old, New: next.Address()})
	return nil
}
