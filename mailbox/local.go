package mailbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// messageVersion is the framing version baked into message ids.
const messageVersion uint8 = 3

// Message is one queued cross-domain delivery.
type Message struct {
	ID          common.Hash
	Nonce       uint32
	Origin      uint32
	Sender      [32]byte
	Destination uint32
	Recipient   [32]byte
	Payload     []byte
}

// frame serializes the fields the message id commits to.
func (m *Message) frame() []byte {
	buf := make([]byte, 0, 77+len(m.Payload))
	buf = append(buf, messageVersion)
	buf = binary.BigEndian.AppendUint32(buf, m.Nonce)
	buf = binary.BigEndian.AppendUint32(buf, m.Origin)
	buf = append(buf, m.Sender[:]...)
	buf = binary.BigEndian.AppendUint32(buf, m.Destination)
	buf = append(buf, m.Recipient[:]...)
	buf = append(buf, m.Payload...)
	return buf
}

// Network is an in-process mailbox fabric connecting several domains. It is
// used by tests and by the single-process simulation topology: every domain
// joins the same network and deliveries move between them via Flush or the
// Run loop.
type Network struct {
	mu        sync.RWMutex
	log       *slog.Logger
	mailboxes map[uint32]*LocalMailbox
	gasPrices map[uint32]*big.Int
}

// NewNetwork creates an empty fabric. Destination gas price defaults to
// 1 wei per gas until SetGasPrice overrides it.
func NewNetwork(log *slog.Logger) *Network {
	return &Network{
		log:       log.With("component", "mailbox-network"),
		mailboxes: make(map[uint32]*LocalMailbox),
		gasPrices: make(map[uint32]*big.Int),
	}
}

// SetGasPrice fixes the per-gas price quoted for sends into a domain.
func (n *Network) SetGasPrice(domain uint32, price *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gasPrices[domain] = new(big.Int).Set(price)
}

func (n *Network) gasPrice(domain uint32) *big.Int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if price, ok := n.gasPrices[domain]; ok {
		return new(big.Int).Set(price)
	}
	return big.NewInt(1)
}

// Join creates (or returns) the mailbox for a domain.
func (n *Network) Join(domain uint32) *LocalMailbox {
	n.mu.Lock()
	defer n.mu.Unlock()
	if mb, ok := n.mailboxes[domain]; ok {
		return mb
	}
	mb := &LocalMailbox{
		network:    n,
		domain:     domain,
		addr:       DeriveMailboxAddress(domain),
		recipients: make(map[common.Address]interfaces.MessageHandler),
	}
	n.mailboxes[domain] = mb
	return mb
}

func (n *Network) mailbox(domain uint32) (*LocalMailbox, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	mb, ok := n.mailboxes[domain]
	return mb, ok
}

// Flush delivers every queued message across all domains. Delivery errors
// are collected, not fatal: a failed handler does not block the queue.
func (n *Network) Flush(ctx context.Context) error {
	n.mu.RLock()
	mailboxes := make([]*LocalMailbox, 0, len(n.mailboxes))
	for _, mb := range n.mailboxes {
		mailboxes = append(mailboxes, mb)
	}
	n.mu.RUnlock()

	var errs []error
	for _, mb := range mailboxes {
		errs = append(errs, mb.deliverAll(ctx)...)
	}
	return errors.Join(errs...)
}

// Run flushes the fabric on an interval until the context is canceled.
func (n *Network) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.Flush(ctx); err != nil {
				n.log.Warn("Mailbox delivery errors", "err", err)
			}
		}
	}
}

// LocalMailbox is one domain's endpoint on the fabric. Inbound messages
// queue here until the network flushes them into registered recipients.
type LocalMailbox struct {
	network *Network
	domain  uint32
	addr    common.Address

	mu         sync.Mutex
	nonce      uint32
	inbound    []*Message
	recipients map[common.Address]interfaces.MessageHandler
}

// Domain returns the mailbox's domain id.
func (mb *LocalMailbox) Domain() uint32 { return mb.domain }

// Address returns the mailbox identity, the caller recipients see on
// delivery.
func (mb *LocalMailbox) Address() common.Address { return mb.addr }

// RegisterRecipient routes deliveries addressed to addr into handler.
func (mb *LocalMailbox) RegisterRecipient(addr common.Address, handler interfaces.MessageHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.recipients[addr] = handler
}

// Dispatcher binds a sender identity to this mailbox. The returned value is
// what agents hold: quotes and dispatches carry the bound sender.
func (mb *LocalMailbox) Dispatcher(sender common.Address) interfaces.Mailbox {
	return &dispatcher{mailbox: mb, sender: interfaces.AddressToBytes32(sender)}
}

func (mb *LocalMailbox) enqueue(msg *Message) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.inbound = append(mb.inbound, msg)
}

func (mb *LocalMailbox) nextNonce() uint32 {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	nonce := mb.nonce
	mb.nonce++
	return nonce
}

// deliverAll drains the inbound queue into registered recipients.
func (mb *LocalMailbox) deliverAll(ctx context.Context) []error {
	mb.mu.Lock()
	queue := mb.inbound
	mb.inbound = nil
	mb.mu.Unlock()

	var errs []error
	for _, msg := range queue {
		recipient := interfaces.Bytes32ToAddress(msg.Recipient)
		mb.mu.Lock()
		handler, ok := mb.recipients[recipient]
		mb.mu.Unlock()
		if !ok {
			errs = append(errs, fmt.Errorf("message %s: no recipient %s on domain %d", msg.ID.Hex(), recipient.Hex(), mb.domain))
			continue
		}
		if err := handler.Handle(ctx, mb.addr, msg.Origin, msg.Sender, msg.Payload); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.ID.Hex(), err))
		}
	}
	return errs
}

type dispatcher struct {
	mailbox *LocalMailbox
	sender  [32]byte
}

func (d *dispatcher) QuoteDispatch(destination uint32, _ common.Address, _ []byte, gasLimit uint64) (*big.Int, error) {
	price := d.mailbox.network.gasPrice(destination)
	return price.Mul(price, new(big.Int).SetUint64(gasLimit)), nil
}

func (d *dispatcher) Dispatch(_ context.Context, destination uint32, recipient common.Address, payload []byte, gasLimit uint64, fee *big.Int) (common.Hash, error) {
	quote, err := d.QuoteDispatch(destination, recipient, payload, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}
	if fee == nil || fee.Cmp(quote) < 0 {
		return common.Hash{}, fmt.Errorf("%w: need %s", interfaces.ErrInsufficientFee, quote)
	}
	dest, ok := d.mailbox.network.mailbox(destination)
	if !ok {
		return common.Hash{}, fmt.Errorf("no mailbox for domain %d", destination)
	}

	msg := &Message{
		Nonce:       d.mailbox.nextNonce(),
		Origin:      d.mailbox.domain,
		Sender:      d.sender,
		Destination: destination,
		Recipient:   interfaces.AddressToBytes32(recipient),
		Payload:     append([]byte(nil), payload...),
	}
	msg.ID = crypto.Keccak256Hash(msg.frame())
	dest.enqueue(msg)
	return msg.ID, nil
}
