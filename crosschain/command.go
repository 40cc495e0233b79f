package crosschain

import (
	"fmt"
	"sync"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// Command identifies which privileged action a cross-chain message carries.
// Identifiers are stable across deployments and address-independent; they key
// both the gas budget table and payload construction.
type Command uint8

const (
	CommandApproveToken             Command = 0x00
	CommandRejectToken              Command = 0x01
	CommandAcceptTokenEdit          Command = 0x02
	CommandRejectTokenEdit          Command = 0x03
	CommandAddMetadataField         Command = 0x04
	CommandUpdateMetadataField      Command = 0x05
	CommandUpdateRegistryController Command = 0x06
	CommandUpdateTokenEdits         Command = 0x07
	CommandUpdateOwner              Command = 0x08
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CommandApproveToken:
		return "APPROVE_TOKEN"
	case CommandRejectToken:
		return "REJECT_TOKEN"
	case CommandAcceptTokenEdit:
		return "ACCEPT_TOKEN_EDIT"
	case CommandRejectTokenEdit:
		return "REJECT_TOKEN_EDIT"
	case CommandAddMetadataField:
		return "ADD_METADATA_FIELD"
	case CommandUpdateMetadataField:
		return "UPDATE_METADATA_FIELD"
	case CommandUpdateRegistryController:
		return "UPDATE_REGISTRY_CONTROLLER"
	case CommandUpdateTokenEdits:
		return "UPDATE_TOKEN_EDITS"
	case CommandUpdateOwner:
		return "UPDATE_OWNER"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(c))
	}
}

// ParseCommand maps a command name back to its identifier.
func ParseCommand(name string) (Command, error) {
	for cmd := CommandApproveToken; cmd <= CommandUpdateOwner; cmd++ {
		if cmd.String() == name {
			return cmd, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", interfaces.ErrUnknownCommand, name)
}

// defaultGasLimits estimates each command's leaf-side execution cost, used
// for root-side fee quoting.
var defaultGasLimits = map[Command]uint64{
	CommandApproveToken:             202_000,
	CommandRejectToken:              209_000,
	CommandAcceptTokenEdit:          213_000,
	CommandRejectTokenEdit:          97_000,
	CommandAddMetadataField:         190_000,
	CommandUpdateMetadataField:      113_000,
	CommandUpdateRegistryController: 130_000,
	CommandUpdateTokenEdits:         93_000,
	CommandUpdateOwner:              93_000,
}

// CommandTable maps commands to gas budgets. Defaults can be tuned at
// runtime; a per-call override always wins.
type CommandTable struct {
	mu     sync.RWMutex
	limits map[Command]uint64
}

// NewCommandTable creates a table preloaded with the default gas budgets.
func NewCommandTable() *CommandTable {
	limits := make(map[Command]uint64, len(defaultGasLimits))
	for cmd, limit := range defaultGasLimits {
		limits[cmd] = limit
	}
	return &CommandTable{limits: limits}
}

// GasLimit returns the gas budget for a command. A nonzero override
// replaces the table entry exactly; zero falls through to the default.
func (t *CommandTable) GasLimit(cmd Command, override uint64) (uint64, error) {
	if override > 0 {
		return override, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	limit, ok := t.limits[cmd]
	if !ok {
		return 0, fmt.Errorf("%w: %s", interfaces.ErrUnknownCommand, cmd)
	}
	return limit, nil
}

// SetGasLimit tunes a command's default budget.
func (t *CommandTable) SetGasLimit(cmd Command, limit uint64) error {
	if limit == 0 {
		return fmt.Errorf("gas limit for %s must be nonzero", cmd)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.limits[cmd]; !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrUnknownCommand, cmd)
	}
	t.limits[cmd] = limit
	return nil
}
