package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Mailbox is the external interchain-messaging transport. Delivery is
// asynchronous, at-least-once and unordered; the transport authenticates the
// origin and sender before invoking the recipient's Handle callback.
type Mailbox interface {
	// QuoteDispatch returns the fee required to deliver payload to the
	// recipient on the destination domain with the given gas limit. Fees
	// vary with destination gas prices and must be re-quoted per send.
	QuoteDispatch(destination uint32, recipient common.Address, payload []byte, gasLimit uint64) (*big.Int, error)

	// Dispatch submits a message for delivery and returns its id. The fee
	// must cover the current quote or the dispatch aborts.
	Dispatch(ctx context.Context, destination uint32, recipient common.Address, payload []byte, gasLimit uint64, fee *big.Int) (common.Hash, error)
}

// MessageHandler is the recipient-side callback contract. The transport
// invokes Handle with its own caller address; recipients must verify it
// against their configured mailbox before touching any state.
type MessageHandler interface {
	Handle(ctx context.Context, caller common.Address, origin uint32, sender [32]byte, payload []byte) error
}

// AddressToBytes32 left-pads a 20-byte address into the transport's 32-byte
// sender/recipient representation.
func AddressToBytes32(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], addr[:])
	return out
}

// Bytes32ToAddress truncates a 32-byte transport address to its low 20 bytes.
func Bytes32ToAddress(b [32]byte) common.Address {
	return common.BytesToAddress(b[12:])
}
