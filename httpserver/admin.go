package httpserver

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/builtbymom/tokenregistry/crosschain"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/tokenlist"
)

// reasonRequest carries the rejection reason for reject endpoints.
type reasonRequest struct {
	Reason string `json:"reason"`
}

// fieldRequest configures a metadata schema field.
type fieldRequest struct {
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Required bool   `json:"required"`
}

// HandleApproveToken handles POST /api/admin/tokens/{address}/approve.
func (h *Handler) HandleApproveToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	token, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	if err := h.ctrl.ApproveToken(r.Context(), actor, token); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.tokenResponse(token))
}

// HandleRejectToken handles POST /api/admin/tokens/{address}/reject.
func (h *Handler) HandleRejectToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	token, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.ctrl.RejectToken(r.Context(), actor, token, req.Reason); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.tokenResponse(token))
}

// HandleAcceptEdit handles POST /api/admin/tokens/{address}/edits/{id}/accept.
func (h *Handler) HandleAcceptEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	token, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	editID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid edit id")
		return
	}
	if err := h.ctrl.AcceptEdit(r.Context(), actor, token, editID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// HandleRejectEdit handles POST /api/admin/tokens/{address}/edits/{id}/reject.
func (h *Handler) HandleRejectEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	token, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	editID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid edit id")
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.ctrl.RejectEdit(r.Context(), actor, token, editID, req.Reason); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// HandleAddField handles POST /api/admin/metadata/fields.
func (h *Handler) HandleAddField(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.ctrl.AddMetadataField(r.Context(), actor, req.Name, req.Required); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// HandleUpdateField handles PUT /api/admin/metadata/fields/{name}.
func (h *Handler) HandleUpdateField(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.ctrl.UpdateMetadataField(r.Context(), actor, name, req.Active, req.Required); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// RegisterLeafRequest is the POST /api/admin/leaves body.
type RegisterLeafRequest struct {
	Domain    uint32 `json:"domain"`
	Recipient string `json:"recipient"`
}

// HandleRegisterLeaf handles POST /api/admin/leaves on a root node.
func (h *Handler) HandleRegisterLeaf(w http.ResponseWriter, r *http.Request) {
	if h.root == nil {
		h.writeError(w, http.StatusNotFound, "not a root node")
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req RegisterLeafRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	recipient, ok := parseAddress(req.Recipient)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}
	if err := h.root.RegisterLeaf(r.Context(), actor, req.Domain, recipient); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// SendCommandRequest is the POST /api/admin/leaves/{domain}/send body. The
// fields a command ignores may be omitted.
type SendCommandRequest struct {
	Command    string `json:"command"`
	Token      string `json:"token,omitempty"`
	EditID     uint64 `json:"edit_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Field      string `json:"field,omitempty"`
	Active     bool   `json:"active,omitempty"`
	Required   bool   `json:"required,omitempty"`
	NewAddress string `json:"new_address,omitempty"`
	Fee        string `json:"fee"`
	GasLimit   uint64 `json:"gas_limit,omitempty"`
}

// SendCommandResponse returns the dispatched message id.
type SendCommandResponse struct {
	MessageID string `json:"message_id"`
}

// HandleSendCommand handles POST /api/admin/leaves/{domain}/send on a root
// node.
func (h *Handler) HandleSendCommand(w http.ResponseWriter, r *http.Request) {
	if h.root == nil {
		h.writeError(w, http.StatusNotFound, "not a root node")
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	domain64, err := strconv.ParseUint(chi.URLParam(r, "domain"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid domain")
		return
	}
	domain := uint32(domain64)

	var req SendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	cmd, err := crosschain.ParseCommand(req.Command)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	fee, ok := new(big.Int).SetString(req.Fee, 10)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid fee")
		return
	}

	messageID, err := h.dispatchCommand(r, actor, domain, cmd, &req, fee)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SendCommandResponse{MessageID: messageID.Hex()})
}

func (h *Handler) dispatchCommand(r *http.Request, actor common.Address, domain uint32, cmd crosschain.Command, req *SendCommandRequest, fee *big.Int) (common.Hash, error) {
	ctx := r.Context()

	parseTarget := func(raw string) (common.Address, error) {
		addr, ok := parseAddress(raw)
		if !ok {
			return common.Address{}, fmt.Errorf("invalid address %q", raw)
		}
		return addr, nil
	}

	switch cmd {
	case crosschain.CommandApproveToken:
		token, err := parseTarget(req.Token)
		if err != nil {
			return common.Hash{}, err
		}
		return h.root.ApproveTokenOnLeaf(ctx, actor, domain, token, fee, req.GasLimit)
	case crosschain.CommandRejectToken:
		token, err := parseTarget(req.Token)
		if err != nil {
			return common.Hash{}, err
		}
		return h.root.RejectTokenOnLeaf(ctx, actor, domain, token, req.Reason, fee, req.GasLimit)
	case crosschain.CommandAcceptTokenEdit:
		token, err := parseTarget(req.Token)
		if err != nil {
			return common.Hash{}, err
		}
		return h.root.AcceptTokenEditOnLeaf(ctx, actor, domain, token, req.EditID, fee, req.GasLimit)
	case crosschain.CommandRejectTokenEdit:
		token, err := parseTarget(req.Token)
		if err != nil {
			return common.Hash{}, err
		}
		return h.root.RejectTokenEditOnLeaf(ctx, actor, domain, token, req.EditID, req.Reason, fee, req.GasLimit)
	case crosschain.CommandAddMetadataField:
		return h.root.AddMetadataFieldOnLeaf(ctx, actor, domain, req.Field, req.Required, fee, req.GasLimit)
	case crosschain.CommandUpdateMetadataField:
		return h.root.UpdateMetadataFieldOnLeaf(ctx, actor, domain, req.Field, req.Active, req.Required, fee, req.GasLimit)
	case crosschain.CommandUpdateRegistryController:
		next, err := parseTarget(req.NewAddress)
		if err != nil {
			return common.Hash{}, err
		}
		return h.root.UpdateRegistryControllerOnLeaf(ctx, actor, domain, next, fee, req.GasLimit)
	case crosschain.CommandUpdateTokenEdits:
		next, err := parseTarget(req.NewAddress)
		if err != nil {
			return common.Hash{}, err
		}
		return h.root.UpdateTokenEditsOnLeaf(ctx, actor, domain, next, fee, req.GasLimit)
	case crosschain.CommandUpdateOwner:
		next, err := parseTarget(req.NewAddress)
		if err != nil {
			return common.Hash{}, err
		}
		return h.root.UpdateOwnerOnLeaf(ctx, actor, domain, next, fee, req.GasLimit)
	default:
		return common.Hash{}, fmt.Errorf("%w: %s", interfaces.ErrUnknownCommand, cmd)
	}
}

// HandleQuoteCommand handles GET /api/admin/leaves/{domain}/quote.
func (h *Handler) HandleQuoteCommand(w http.ResponseWriter, r *http.Request) {
	if h.root == nil {
		h.writeError(w, http.StatusNotFound, "not a root node")
		return
	}
	domain64, err := strconv.ParseUint(chi.URLParam(r, "domain"), 10, 32)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid domain")
		return
	}
	cmd, err := crosschain.ParseCommand(r.URL.Query().Get("command"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	gasOverride, _ := strconv.ParseUint(r.URL.Query().Get("gas_limit"), 10, 64)

	fee, err := h.root.QuoteAction(uint32(domain64), cmd, nil, gasOverride)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"fee": fee.String()})
}

// SnapshotRequest selects the token-list version to publish.
type SnapshotRequest struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// HandlePublishTokenList handles POST /api/admin/snapshots/tokenlist.
func (h *Handler) HandlePublishTokenList(w http.ResponseWriter, r *http.Request) {
	if h.builder == nil || h.publisher == nil {
		h.writeError(w, http.StatusNotFound, "snapshot publishing not configured")
		return
	}
	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	list := h.builder.Build(tokenlist.Version{Major: req.Major, Minor: req.Minor, Patch: req.Patch})
	id, err := h.publisher.PublishList(r.Context(), list)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"content_id": id.String()})
}

// HandlePublishAuditLog handles POST /api/admin/snapshots/auditlog.
func (h *Handler) HandlePublishAuditLog(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil || h.publisher == nil {
		h.writeError(w, http.StatusNotFound, "audit publishing not configured")
		return
	}
	id, err := h.publisher.PublishAuditLog(r.Context(), h.recorder)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"content_id": id.String()})
}
