package httpserver

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/builtbymom/tokenregistry/crosschain"
	"github.com/builtbymom/tokenregistry/mailbox"
)

// HandleMailboxInbound handles POST /api/mailbox/inbound on a leaf node,
// accepting deliveries relayed from a root process.
func (h *Handler) HandleMailboxInbound(w http.ResponseWriter, r *http.Request) {
	if h.leaf == nil {
		h.writeError(w, http.StatusNotFound, "not a leaf node")
		return
	}
	var req mailbox.InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.leaf.Handle(r.Context(), h.mailboxAddr, req.Origin, [32]byte(req.Sender), req.Payload); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, mailbox.InboundResponse{
		MessageID: crosschain.MessageID(req.Payload),
	})
}

// HandleMailboxQuote handles GET /api/mailbox/quote on a leaf node. The fee
// is the configured local gas price times the requested gas limit.
func (h *Handler) HandleMailboxQuote(w http.ResponseWriter, r *http.Request) {
	if h.leaf == nil {
		h.writeError(w, http.StatusNotFound, "not a leaf node")
		return
	}
	gasLimit, err := strconv.ParseUint(r.URL.Query().Get("gas_limit"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid gas_limit")
		return
	}
	fee := new(big.Int).Mul(h.gasPrice, new(big.Int).SetUint64(gasLimit))
	h.writeJSON(w, http.StatusOK, mailbox.QuoteResponse{Fee: fee.String()})
}
