package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/builtbymom/tokenregistry/crosschain"
	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/tokenlist"
	"github.com/builtbymom/tokenregistry/tokentroller"
)

// actorHeader names the header carrying the caller identity. The server
// trusts it as-is; signature verification sits in front of this service.
const actorHeader = "X-Actor-Address"

// Handler implements the registry HTTP API against a local controller,
// optionally extended with cross-chain agents and snapshot publishing.
type Handler struct {
	log  *slog.Logger
	ctrl *tokentroller.Controller

	// root mode only
	root *crosschain.RootAgent

	// leaf mode only
	leaf        *crosschain.LeafAgent
	mailboxAddr common.Address
	gasPrice    *big.Int

	recorder  *events.Recorder
	builder   *tokenlist.Builder
	publisher *tokenlist.Publisher
}

// HandlerConfig wires a Handler. Controller and Log are required; the rest
// enable optional surfaces.
type HandlerConfig struct {
	Log        *slog.Logger
	Controller *tokentroller.Controller

	RootAgent *crosschain.RootAgent

	LeafAgent   *crosschain.LeafAgent
	MailboxAddr common.Address
	GasPrice    *big.Int

	Recorder  *events.Recorder
	Builder   *tokenlist.Builder
	Publisher *tokenlist.Publisher
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	gasPrice := cfg.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(1)
	}
	return &Handler{
		log:         cfg.Log,
		ctrl:        cfg.Controller,
		root:        cfg.RootAgent,
		leaf:        cfg.LeafAgent,
		mailboxAddr: cfg.MailboxAddr,
		gasPrice:    gasPrice,
		recorder:    cfg.Recorder,
		builder:     cfg.Builder,
		publisher:   cfg.Publisher,
	}
}

// SubmitTokenRequest is the POST /api/tokens body.
type SubmitTokenRequest struct {
	Address  string            `json:"address"`
	Name     string            `json:"name"`
	Symbol   string            `json:"symbol"`
	Decimals uint8             `json:"decimals"`
	Metadata map[string]string `json:"metadata"`
}

// TokenResponse is the public view of a registry entry.
type TokenResponse struct {
	Address  string            `json:"address"`
	Name     string            `json:"name"`
	Symbol   string            `json:"symbol"`
	Decimals uint8             `json:"decimals"`
	Status   string            `json:"status"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ProposeEditRequest is the POST /api/tokens/{address}/edits body.
type ProposeEditRequest struct {
	Updates []interfaces.FieldUpdate `json:"updates"`
}

// EditResponse is the public view of an edit proposal.
type EditResponse struct {
	ID        uint64                   `json:"id"`
	Token     string                   `json:"token"`
	Submitter string                   `json:"submitter"`
	Updates   []interfaces.FieldUpdate `json:"updates"`
	Status    string                   `json:"status"`
	Reason    string                   `json:"reason,omitempty"`
}

// HandleSubmitToken handles POST /api/tokens.
func (h *Handler) HandleSubmitToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req SubmitTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	token, ok := parseAddress(req.Address)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	err := h.ctrl.SubmitToken(r.Context(), actor, interfaces.TokenSubmission{
		Address:  token,
		Name:     req.Name,
		Symbol:   req.Symbol,
		Decimals: req.Decimals,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.tokenResponse(token))
}

// HandleListTokens handles GET /api/tokens.
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := interfaces.StatusAny
	if raw := query.Get("status"); raw != "" {
		parsed, err := interfaces.ParseTokenStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter = parsed
	}
	offset, _ := strconv.Atoi(query.Get("offset"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	infos := h.ctrl.Registry().ListTokens(offset, limit, filter)
	resp := make([]TokenResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, h.infoResponse(info))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetToken handles GET /api/tokens/{address}.
func (h *Handler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	token, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	if _, found := h.ctrl.Registry().Token(token); !found {
		h.writeError(w, http.StatusNotFound, "unknown token")
		return
	}
	h.writeJSON(w, http.StatusOK, h.tokenResponse(token))
}

// HandleProposeEdit handles POST /api/tokens/{address}/edits.
func (h *Handler) HandleProposeEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	token, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req ProposeEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	editID, err := h.ctrl.ProposeEdit(r.Context(), actor, token, req.Updates)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]uint64{"edit_id": editID})
}

// HandleListEdits handles GET /api/tokens/{address}/edits.
func (h *Handler) HandleListEdits(w http.ResponseWriter, r *http.Request) {
	token, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	query := r.URL.Query()

	filter := interfaces.EditAny
	if raw := query.Get("status"); raw != "" {
		parsed, err := interfaces.ParseEditStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filter = parsed
	}
	offset, _ := strconv.Atoi(query.Get("offset"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	proposals := h.ctrl.Edits().ListEdits(token, offset, limit, filter)
	resp := make([]EditResponse, 0, len(proposals))
	for _, proposal := range proposals {
		resp = append(resp, EditResponse{
			ID:        proposal.ID,
			Token:     proposal.Token.Hex(),
			Submitter: proposal.Submitter.Hex(),
			Updates:   proposal.Updates,
			Status:    proposal.Status.String(),
			Reason:    proposal.Reason,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleListFields handles GET /api/metadata/fields.
func (h *Handler) HandleListFields(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.Metadata().Fields())
}

func (h *Handler) tokenResponse(token common.Address) TokenResponse {
	info, _ := h.ctrl.Registry().Token(token)
	resp := h.infoResponse(info)
	resp.Metadata = h.ctrl.Metadata().Values(token)
	return resp
}

func (h *Handler) infoResponse(info interfaces.TokenInfo) TokenResponse {
	return TokenResponse{
		Address:  info.Address.Hex(),
		Name:     info.Name,
		Symbol:   info.Symbol,
		Decimals: info.Decimals,
		Status:   info.Status.String(),
		Reason:   info.Reason,
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	actor, ok := parseAddress(r.Header.Get(actorHeader))
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing or invalid "+actorHeader+" header")
		return common.Address{}, false
	}
	return actor, true
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request, param string) (common.Address, bool) {
	addr, ok := parseAddress(chi.URLParam(r, param))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid "+param)
		return common.Address{}, false
	}
	return addr, true
}

func parseAddress(raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain failures onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrNotAuthorized),
		errors.Is(err, interfaces.ErrNotController),
		errors.Is(err, interfaces.ErrNotMailbox),
		errors.Is(err, interfaces.ErrNotRoot):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrUnknownToken),
		errors.Is(err, interfaces.ErrUnknownField),
		errors.Is(err, interfaces.ErrUnknownEdit),
		errors.Is(err, interfaces.ErrUnknownLeaf):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrTokenExists),
		errors.Is(err, interfaces.ErrFieldExists),
		errors.Is(err, interfaces.ErrNotPending),
		errors.Is(err, interfaces.ErrEditResolved),
		errors.Is(err, interfaces.ErrAlreadyExecuting):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrInsufficientFee):
		status = http.StatusPaymentRequired
	case errors.Is(err, interfaces.ErrEmptyReason),
		errors.Is(err, interfaces.ErrEmptyEdit),
		errors.Is(err, interfaces.ErrInactiveField),
		errors.Is(err, interfaces.ErrMissingRequiredField),
		errors.Is(err, interfaces.ErrUnknownCommand):
		status = http.StatusBadRequest
	}
	h.writeError(w, status, err.Error())
}
