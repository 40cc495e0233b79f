// Package interfaces defines the core types and interfaces shared by the
// token registry components, separating contracts from implementations.
package interfaces

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenStatus tracks a token through its review lifecycle. Transitions are
// monotone: NONE -> PENDING -> {APPROVED, REJECTED}, terminal states final.
type TokenStatus uint8

const (
	StatusNone TokenStatus = iota
	StatusPending
	StatusApproved
	StatusRejected

	// StatusAny is a listing filter wildcard, never a stored status.
	StatusAny TokenStatus = 0xff
)

// String returns the status name.
func (s TokenStatus) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusAny:
		return "any"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseTokenStatus parses a status name as used in listing filters.
func ParseTokenStatus(s string) (TokenStatus, error) {
	switch strings.ToLower(s) {
	case "none":
		return StatusNone, nil
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	case "", "any", "all":
		return StatusAny, nil
	default:
		return StatusNone, fmt.Errorf("unknown token status %q", s)
	}
}

// EditStatus tracks an edit proposal: PENDING -> {ACCEPTED, REJECTED}.
type EditStatus uint8

const (
	EditPending EditStatus = iota
	EditAccepted
	EditRejected

	// EditAny is a listing filter wildcard.
	EditAny EditStatus = 0xff
)

// String returns the status name.
func (s EditStatus) String() string {
	switch s {
	case EditPending:
		return "pending"
	case EditAccepted:
		return "accepted"
	case EditRejected:
		return "rejected"
	case EditAny:
		return "any"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseEditStatus parses an edit status name as used in listing filters.
func ParseEditStatus(s string) (EditStatus, error) {
	switch strings.ToLower(s) {
	case "pending":
		return EditPending, nil
	case "accepted":
		return EditAccepted, nil
	case "rejected":
		return EditRejected, nil
	case "", "any", "all":
		return EditAny, nil
	default:
		return EditPending, fmt.Errorf("unknown edit status %q", s)
	}
}

// TokenSubmission is the payload of an addToken call. Metadata keys must
// reference active schema fields; all required active fields must be present.
type TokenSubmission struct {
	Address  common.Address    `json:"address"`
	Name     string            `json:"name"`
	Symbol   string            `json:"symbol"`
	Decimals uint8             `json:"decimals"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TokenInfo is the registry's record of a token. Index is the insertion
// order position used for deterministic listing.
type TokenInfo struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Status   TokenStatus    `json:"status"`
	Index    uint64         `json:"index"`

	// Reason holds the rejection reason for REJECTED tokens.
	Reason string `json:"reason,omitempty"`
}

// MetadataField describes one entry of the metadata schema. Fields are never
// deleted; deactivation retires them.
type MetadataField struct {
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	IsRequired bool   `json:"is_required"`
}

// FieldUpdate is one (field, value) pair of an edit proposal.
type FieldUpdate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// EditProposal is a bundle of metadata changes proposed against an approved
// token. IDs are per-token, strictly increasing from 0, never reused.
type EditProposal struct {
	Token     common.Address `json:"token"`
	ID        uint64         `json:"id"`
	Submitter common.Address `json:"submitter"`
	Updates   []FieldUpdate  `json:"updates"`
	CreatedAt time.Time      `json:"created_at"`
	Status    EditStatus     `json:"status"`

	// Reason holds the rejection reason for REJECTED proposals.
	Reason string `json:"reason,omitempty"`
}

// Controller is the governance object that owns the registry stores. Stores
// keep a controller pointer and consult its policy on every mutation; the
// pointer may only be swapped by the current controller.
type Controller interface {
	// Address is the controller's identity used for caller checks.
	Address() common.Address

	// Policy returns the authority policy gating every mutation.
	Policy() AuthorityPolicy
}

// Authorization and state-invariant failures.
var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrTokenExists   = errors.New("token already submitted")
	ErrUnknownToken  = errors.New("unknown token")
	ErrNotPending    = errors.New("token is not pending")
	ErrEmptyReason   = errors.New("rejection reason must not be empty")

	ErrFieldExists          = errors.New("metadata field already exists")
	ErrUnknownField         = errors.New("unknown metadata field")
	ErrInactiveField        = errors.New("metadata field is not active")
	ErrMissingRequiredField = errors.New("missing required metadata field")

	ErrEmptyEdit    = errors.New("edit proposal has no updates")
	ErrUnknownEdit  = errors.New("unknown edit proposal")
	ErrEditResolved = errors.New("edit proposal already resolved")

	ErrNotController = errors.New("caller is not the current controller")
)

// Cross-chain protocol failures.
var (
	ErrUnknownLeaf      = errors.New("no leaf registered for destination domain")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInsufficientFee  = errors.New("insufficient dispatch fee")
	ErrNotMailbox       = errors.New("caller is not the configured mailbox")
	ErrNotRoot          = errors.New("message sender is not the configured root")
	ErrAlreadyExecuting = errors.New("already executing a cross-chain message")
)
