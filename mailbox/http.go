package mailbox

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/builtbymom/tokenregistry/interfaces"
)

// InboundRequest is the wire form of a cross-domain delivery relayed over
// HTTP. Leaf servers accept it on POST /api/mailbox/inbound.
type InboundRequest struct {
	Origin    uint32        `json:"origin"`
	Sender    common.Hash   `json:"sender"`
	Recipient string        `json:"recipient"`
	Payload   hexutil.Bytes `json:"payload"`
	GasLimit  uint64        `json:"gas_limit"`
}

// InboundResponse acknowledges a relayed delivery.
type InboundResponse struct {
	MessageID common.Hash `json:"message_id"`
}

// QuoteResponse is returned by GET /api/mailbox/quote.
type QuoteResponse struct {
	Fee string `json:"fee"`
}

// HTTPMailbox implements interfaces.Mailbox over HTTP for multi-process
// topologies: the root process holds one and relays dispatches to leaf
// servers. Fees quoted by the remote side are echoed back verbatim.
type HTTPMailbox struct {
	mu        sync.RWMutex
	log       *slog.Logger
	client    *http.Client
	domain    uint32
	sender    common.Address
	endpoints map[uint32]string

	nonce uint32
}

// NewHTTPMailbox creates a relay bound to the local domain and sender
// identity. Endpoints map destination domains to leaf server base URLs.
func NewHTTPMailbox(domain uint32, sender common.Address, log *slog.Logger) *HTTPMailbox {
	return &HTTPMailbox{
		log:       log.With("component", "mailbox-http", "domain", domain),
		client:    &http.Client{Timeout: 30 * time.Second},
		domain:    domain,
		sender:    sender,
		endpoints: make(map[uint32]string),
	}
}

// SetEndpoint registers the base URL of the leaf server for a domain.
func (m *HTTPMailbox) SetEndpoint(domain uint32, baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[domain] = baseURL
}

func (m *HTTPMailbox) endpoint(domain uint32) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	baseURL, ok := m.endpoints[domain]
	if !ok {
		return "", fmt.Errorf("no endpoint for domain %d", domain)
	}
	return baseURL, nil
}

// QuoteDispatch asks the destination server for the current fee.
func (m *HTTPMailbox) QuoteDispatch(destination uint32, _ common.Address, _ []byte, gasLimit uint64) (*big.Int, error) {
	baseURL, err := m.endpoint(destination)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/mailbox/quote?gas_limit=%d", baseURL, gasLimit)
	resp, err := m.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("quote from domain %d: %w", destination, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("quote from domain %d: status %d: %s", destination, resp.StatusCode, body)
	}
	var quote QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("quote from domain %d: %w", destination, err)
	}
	fee, ok := new(big.Int).SetString(quote.Fee, 10)
	if !ok {
		return nil, fmt.Errorf("quote from domain %d: malformed fee %q", destination, quote.Fee)
	}
	return fee, nil
}

// Dispatch relays the payload to the destination server. The message id is
// computed locally over the same framing the in-process fabric uses so both
// topologies report identical ids for identical sends.
func (m *HTTPMailbox) Dispatch(ctx context.Context, destination uint32, recipient common.Address, payload []byte, gasLimit uint64, fee *big.Int) (common.Hash, error) {
	quote, err := m.QuoteDispatch(destination, recipient, payload, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}
	if fee == nil || fee.Cmp(quote) < 0 {
		return common.Hash{}, fmt.Errorf("%w: need %s", interfaces.ErrInsufficientFee, quote)
	}
	baseURL, err := m.endpoint(destination)
	if err != nil {
		return common.Hash{}, err
	}

	msg := &Message{
		Nonce:       m.nextNonce(),
		Origin:      m.domain,
		Sender:      interfaces.AddressToBytes32(m.sender),
		Destination: destination,
		Recipient:   interfaces.AddressToBytes32(recipient),
		Payload:     payload,
	}
	msg.ID = crypto.Keccak256Hash(msg.frame())

	body, err := json.Marshal(InboundRequest{
		Origin:    m.domain,
		Sender:    common.Hash(msg.Sender),
		Recipient: recipient.Hex(),
		Payload:   payload,
		GasLimit:  gasLimit,
	})
	if err != nil {
		return common.Hash{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/mailbox/inbound", bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("relay to domain %d: %w", destination, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return common.Hash{}, fmt.Errorf("relay to domain %d: status %d: %s", destination, resp.StatusCode, respBody)
	}

	m.log.Info("Message relayed", "destination", destination, "message_id", msg.ID.Hex())
	return msg.ID, nil
}

func (m *HTTPMailbox) nextNonce() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonce := m.nonce
	m.nonce++
	return nonce
}

// DeriveMailboxAddress returns the deterministic mailbox identity for a
// domain, shared by both the in-process fabric and HTTP relay so leaf
// agents authenticate the same caller either way.
func DeriveMailboxAddress(domain uint32) common.Address {
	var d [4]byte
	binary.BigEndian.PutUint32(d[:], domain)
	return common.BytesToAddress(crypto.Keccak256([]byte("local-mailbox"), d[:]))
}
