package crosschain

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// The wire format is a 4-byte function selector followed by the ABI-encoded
// argument tuple of the matching leaf execution function, so a payload is
// exactly the call a leaf routes to its executor.

var (
	typeAddress = mustNewType("address")
	typeUint256 = mustNewType("uint256")
	typeString  = mustNewType("string")
	typeBool    = mustNewType("bool")
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %q: %v", t, err))
	}
	return typ
}

type commandABI struct {
	signature string
	selector  [4]byte
	args      abi.Arguments
}

func newCommandABI(signature string, types ...abi.Type) commandABI {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}
	var selector [4]byte
	copy(selector[:], crypto.Keccak256([]byte(signature))[:4])
	return commandABI{signature: signature, selector: selector, args: args}
}

var commandABIs = map[Command]commandABI{
	CommandApproveToken:             newCommandABI("executeApproveToken(address)", typeAddress),
	CommandRejectToken:              newCommandABI("executeRejectToken(address,string)", typeAddress, typeString),
	CommandAcceptTokenEdit:          newCommandABI("executeAcceptTokenEdit(address,uint256)", typeAddress, typeUint256),
	CommandRejectTokenEdit:          newCommandABI("executeRejectTokenEdit(address,uint256,string)", typeAddress, typeUint256, typeString),
	CommandAddMetadataField:         newCommandABI("executeAddMetadataField(string,bool)", typeString, typeBool),
	CommandUpdateMetadataField:      newCommandABI("executeUpdateMetadataField(string,bool,bool)", typeString, typeBool, typeBool),
	CommandUpdateRegistryController: newCommandABI("executeUpdateRegistryController(address)", typeAddress),
	CommandUpdateTokenEdits:         newCommandABI("executeUpdateTokenEdits(address)", typeAddress),
	CommandUpdateOwner:              newCommandABI("executeUpdateOwner(address)", typeAddress),
}

var selectorToCommand = func() map[[4]byte]Command {
	m := make(map[[4]byte]Command, len(commandABIs))
	for cmd, ca := range commandABIs {
		m[ca.selector] = cmd
	}
	return m
}()

// Action is a decoded command payload. Only the fields relevant to the
// command are populated.
type Action struct {
	Command Command

	Token      common.Address
	EditID     uint64
	Reason     string
	Field      string
	Active     bool
	Required   bool
	NewAddress common.Address
}

func encode(cmd Command, values ...interface{}) []byte {
	ca := commandABIs[cmd]
	packed, err := ca.args.Pack(values...)
	if err != nil {
		// Args are produced by typed encoders below; a pack failure is a
		// programming error.
		panic(fmt.Sprintf("pack %s: %v", cmd, err))
	}
	return append(bytes.Clone(ca.selector[:]), packed...)
}

// EncodeApproveToken builds the APPROVE_TOKEN payload.
func EncodeApproveToken(token common.Address) []byte {
	return encode(CommandApproveToken, token)
}

// EncodeRejectToken builds the REJECT_TOKEN payload.
func EncodeRejectToken(token common.Address, reason string) []byte {
	return encode(CommandRejectToken, token, reason)
}

// EncodeAcceptTokenEdit builds the ACCEPT_TOKEN_EDIT payload.
func EncodeAcceptTokenEdit(token common.Address, editID uint64) []byte {
	return encode(CommandAcceptTokenEdit, token, new(big.Int).SetUint64(editID))
}

// EncodeRejectTokenEdit builds the REJECT_TOKEN_EDIT payload.
func EncodeRejectTokenEdit(token common.Address, editID uint64, reason string) []byte {
	return encode(CommandRejectTokenEdit, token, new(big.Int).SetUint64(editID), reason)
}

// EncodeAddMetadataField builds the ADD_METADATA_FIELD payload.
func EncodeAddMetadataField(name string, required bool) []byte {
	return encode(CommandAddMetadataField, name, required)
}

// EncodeUpdateMetadataField builds the UPDATE_METADATA_FIELD payload.
func EncodeUpdateMetadataField(name string, active, required bool) []byte {
	return encode(CommandUpdateMetadataField, name, active, required)
}

// EncodeUpdateRegistryController builds the UPDATE_REGISTRY_CONTROLLER payload.
func EncodeUpdateRegistryController(next common.Address) []byte {
	return encode(CommandUpdateRegistryController, next)
}

// EncodeUpdateTokenEdits builds the UPDATE_TOKEN_EDITS payload.
func EncodeUpdateTokenEdits(next common.Address) []byte {
	return encode(CommandUpdateTokenEdits, next)
}

// EncodeUpdateOwner builds the UPDATE_OWNER payload.
func EncodeUpdateOwner(newOwner common.Address) []byte {
	return encode(CommandUpdateOwner, newOwner)
}

// DecodeAction parses a payload into its typed command. Unknown selectors
// and malformed argument tuples fail.
func DecodeAction(payload []byte) (Action, error) {
	if len(payload) < 4 {
		return Action{}, fmt.Errorf("%w: payload too short", interfaces.ErrUnknownCommand)
	}

	var selector [4]byte
	copy(selector[:], payload[:4])
	cmd, ok := selectorToCommand[selector]
	if !ok {
		return Action{}, fmt.Errorf("%w: selector %x", interfaces.ErrUnknownCommand, selector)
	}

	values, err := commandABIs[cmd].args.Unpack(payload[4:])
	if err != nil {
		return Action{}, fmt.Errorf("decode %s payload: %w", cmd, err)
	}

	action := Action{Command: cmd}
	switch cmd {
	case CommandApproveToken:
		action.Token = values[0].(common.Address)
	case CommandRejectToken:
		action.Token = values[0].(common.Address)
		action.Reason = values[1].(string)
	case CommandAcceptTokenEdit:
		action.Token = values[0].(common.Address)
		if err := setEditID(&action, values[1]); err != nil {
			return Action{}, err
		}
	case CommandRejectTokenEdit:
		action.Token = values[0].(common.Address)
		if err := setEditID(&action, values[1]); err != nil {
			return Action{}, err
		}
		action.Reason = values[2].(string)
	case CommandAddMetadataField:
		action.Field = values[0].(string)
		action.Required = values[1].(bool)
		action.Active = true
	case CommandUpdateMetadataField:
		action.Field = values[0].(string)
		action.Active = values[1].(bool)
		action.Required = values[2].(bool)
	case CommandUpdateRegistryController, CommandUpdateTokenEdits, CommandUpdateOwner:
		action.NewAddress = values[0].(common.Address)
	}
	return action, nil
}

func setEditID(action *Action, value interface{}) error {
	id := value.(*big.Int)
	if !id.IsUint64() {
		return fmt.Errorf("decode %s payload: edit id out of range", action.Command)
	}
	action.EditID = id.Uint64()
	return nil
}

// MessageID returns the content hash identifying a payload on the receiving
// side.
func MessageID(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}
