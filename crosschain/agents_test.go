package crosschain_test

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtbymom/tokenregistry/crosschain"
	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/mailbox"
	"github.com/builtbymom/tokenregistry/tokentroller"
)

const (
	rootDomain uint32 = 1
	leafDomain uint32 = 10
)

var (
	owner     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	submitter = common.HexToAddress("0x2000000000000000000000000000000000000002")
	stranger  = common.HexToAddress("0x3000000000000000000000000000000000000003")

	tokenA = common.HexToAddress("0xaaa0000000000000000000000000000000000aaa")
)

// fixture is a root and one leaf joined over the in-memory mailbox fabric.
type fixture struct {
	network  *mailbox.Network
	root     *crosschain.RootAgent
	leaf     *crosschain.LeafAgent
	leafCtrl *tokentroller.Controller
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := events.NewRecorder()

	network := mailbox.NewNetwork(log)
	rootMailbox := network.Join(rootDomain)
	leafMailbox := network.Join(leafDomain)

	rootCtrl := tokentroller.New(&tokentroller.Config{Owner: owner, Domain: rootDomain, Log: log, Events: recorder})
	leafCtrl := tokentroller.NewLeaf(&tokentroller.Config{Owner: owner, Domain: leafDomain, Log: log, Events: recorder})

	root := crosschain.NewRootAgent(rootCtrl, rootMailbox.Dispatcher(rootCtrl.Address()), crosschain.NewCommandTable(), log, recorder)
	leaf := crosschain.NewLeafAgent(leafCtrl, leafMailbox.Address(), rootDomain, rootCtrl.Address(), log, recorder)
	leafMailbox.RegisterRecipient(leafCtrl.Address(), leaf)

	require.NoError(t, root.RegisterLeaf(context.Background(), owner, leafDomain, leafCtrl.Address()))

	return &fixture{
		network:  network,
		root:     root,
		leaf:     leaf,
		leafCtrl: leafCtrl,
		recorder: recorder,
	}
}

// quote fetches the exact fee for one command with no gas override.
func (f *fixture) quote(t *testing.T, cmd crosschain.Command) *big.Int {
	t.Helper()
	fee, err := f.root.QuoteAction(leafDomain, cmd, nil, 0)
	require.NoError(t, err)
	return fee
}

func TestRegisterLeaf(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.root.RegisterLeaf(ctx, stranger, 20, stranger)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	err = f.root.RegisterLeaf(ctx, owner, 20, common.Address{})
	assert.Error(t, err)

	recipient, ok := f.root.Leaf(leafDomain)
	require.True(t, ok)
	assert.Equal(t, f.leafCtrl.Address(), recipient)

	_, ok = f.root.Leaf(99)
	assert.False(t, ok)
}

func TestApproveTokenOnLeaf(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.leafCtrl.SubmitToken(ctx, submitter, interfaces.TokenSubmission{
		Address: tokenA, Name: "Test", Symbol: "TST", Decimals: 18,
	}))

	// sends are owner-gated
	_, err := f.root.ApproveTokenOnLeaf(ctx, stranger, leafDomain, tokenA, f.quote(t, crosschain.CommandApproveToken), 0)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	// the fee must cover the quote
	_, err = f.root.ApproveTokenOnLeaf(ctx, owner, leafDomain, tokenA, big.NewInt(1), 0)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientFee)
	_, err = f.root.ApproveTokenOnLeaf(ctx, owner, leafDomain, tokenA, nil, 0)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientFee)

	// unknown destinations fail before dispatch
	_, err = f.root.ApproveTokenOnLeaf(ctx, owner, 99, tokenA, big.NewInt(1), 0)
	assert.ErrorIs(t, err, interfaces.ErrUnknownLeaf)

	messageID, err := f.root.ApproveTokenOnLeaf(ctx, owner, leafDomain, tokenA, f.quote(t, crosschain.CommandApproveToken), 0)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, messageID)

	// nothing changes until delivery
	assert.Equal(t, interfaces.StatusPending, f.leafCtrl.Registry().Status(tokenA))

	require.NoError(t, f.network.Flush(ctx))
	assert.Equal(t, interfaces.StatusApproved, f.leafCtrl.Registry().Status(tokenA))

	assert.Len(t, f.recorder.ByName("MessageSent"), 1)
	assert.Len(t, f.recorder.ByName("CrossChainMessageExecuted"), 1)
	assert.Empty(t, f.recorder.ByName("CrossChainMessageFailed"))
}

func TestFailedCommandEmitsFailureEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// approving a token that was never submitted fails on the leaf
	_, err := f.root.ApproveTokenOnLeaf(ctx, owner, leafDomain, tokenA, f.quote(t, crosschain.CommandApproveToken), 0)
	require.NoError(t, err)

	err = f.network.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrUnknownToken)

	assert.Len(t, f.recorder.ByName("CrossChainMessageFailed"), 1)
	assert.Empty(t, f.recorder.ByName("CrossChainMessageExecuted"))
	assert.Equal(t, interfaces.StatusNone, f.leafCtrl.Registry().Status(tokenA))
}

func TestRedeliveredApproveFailsSafely(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.leafCtrl.SubmitToken(ctx, submitter, interfaces.TokenSubmission{
		Address: tokenA, Name: "Test", Symbol: "TST", Decimals: 18,
	}))

	fee := f.quote(t, crosschain.CommandApproveToken)
	_, err := f.root.ApproveTokenOnLeaf(ctx, owner, leafDomain, tokenA, fee, 0)
	require.NoError(t, err)
	_, err = f.root.ApproveTokenOnLeaf(ctx, owner, leafDomain, tokenA, fee, 0)
	require.NoError(t, err)

	// the first delivery applies, the duplicate fails without corrupting
	// state
	err = f.network.Flush(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotPending)
	assert.Equal(t, interfaces.StatusApproved, f.leafCtrl.Registry().Status(tokenA))

	assert.Len(t, f.recorder.ByName("CrossChainMessageExecuted"), 1)
	assert.Len(t, f.recorder.ByName("CrossChainMessageFailed"), 1)
}

func TestHandleAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := crosschain.EncodeApproveToken(tokenA)
	rootSender := interfaces.AddressToBytes32(f.root.Controller().Address())

	// transport caller must be the local mailbox
	err := f.leaf.Handle(ctx, stranger, rootDomain, rootSender, payload)
	assert.ErrorIs(t, err, interfaces.ErrNotMailbox)

	// message sender must be the root agent
	err = f.leaf.Handle(ctx, mailbox.DeriveMailboxAddress(leafDomain), rootDomain, interfaces.AddressToBytes32(stranger), payload)
	assert.ErrorIs(t, err, interfaces.ErrNotRoot)

	// origin must be the root domain
	err = f.leaf.Handle(ctx, mailbox.DeriveMailboxAddress(leafDomain), 77, rootSender, payload)
	assert.ErrorIs(t, err, interfaces.ErrNotRoot)

	// authentication failures after the mailbox check are audited
	assert.Len(t, f.recorder.ByName("CrossChainMessageFailed"), 2)
}

func TestMetadataFieldCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.root.AddMetadataFieldOnLeaf(ctx, owner, leafDomain, "logoURI", false, f.quote(t, crosschain.CommandAddMetadataField), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	field, ok := f.leafCtrl.Metadata().Field("logoURI")
	require.True(t, ok)
	assert.True(t, field.IsActive)
	assert.False(t, field.IsRequired)

	_, err = f.root.UpdateMetadataFieldOnLeaf(ctx, owner, leafDomain, "logoURI", true, true, f.quote(t, crosschain.CommandUpdateMetadataField), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	field, _ = f.leafCtrl.Metadata().Field("logoURI")
	assert.True(t, field.IsRequired)
}

// TestLogoURIEditFlow walks the full listing story: schema rollout, open
// submission on the leaf, root-driven approval, a local edit proposal and
// its root-driven acceptance.
func TestLogoURIEditFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.root.AddMetadataFieldOnLeaf(ctx, owner, leafDomain, "logoURI", false, f.quote(t, crosschain.CommandAddMetadataField), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	require.NoError(t, f.leafCtrl.SubmitToken(ctx, submitter, interfaces.TokenSubmission{
		Address: tokenA, Name: "Test", Symbol: "TST", Decimals: 18,
		Metadata: map[string]string{"logoURI": "ipfs://old"},
	}))

	_, err = f.root.ApproveTokenOnLeaf(ctx, owner, leafDomain, tokenA, f.quote(t, crosschain.CommandApproveToken), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	// anyone proposes an edit against the approved token, locally
	editID, err := f.leafCtrl.ProposeEdit(ctx, stranger, tokenA, []interfaces.FieldUpdate{
		{Field: "logoURI", Value: "ipfs://new"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), editID)

	// acceptance only arrives from the root
	err = f.leafCtrl.AcceptEdit(ctx, owner, tokenA, editID)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	_, err = f.root.AcceptTokenEditOnLeaf(ctx, owner, leafDomain, tokenA, editID, f.quote(t, crosschain.CommandAcceptTokenEdit), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	value, ok := f.leafCtrl.Metadata().Value(tokenA, "logoURI")
	require.True(t, ok)
	assert.Equal(t, "ipfs://new", value)

	proposal, ok := f.leafCtrl.Edits().Edit(tokenA, editID)
	require.True(t, ok)
	assert.Equal(t, interfaces.EditAccepted, proposal.Status)
}

func TestRejectCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.leafCtrl.SubmitToken(ctx, submitter, interfaces.TokenSubmission{
		Address: tokenA, Name: "Test", Symbol: "TST", Decimals: 18,
	}))

	// an empty reason is refused before dispatch
	_, err := f.root.RejectTokenOnLeaf(ctx, owner, leafDomain, tokenA, "", f.quote(t, crosschain.CommandRejectToken), 0)
	assert.ErrorIs(t, err, interfaces.ErrEmptyReason)

	_, err = f.root.RejectTokenOnLeaf(ctx, owner, leafDomain, tokenA, "spam", f.quote(t, crosschain.CommandRejectToken), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	info, ok := f.leafCtrl.Registry().Token(tokenA)
	require.True(t, ok)
	assert.Equal(t, interfaces.StatusRejected, info.Status)
	assert.Equal(t, "spam", info.Reason)
}

func TestUpdateOwnerOnLeaf(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	newOwner := common.HexToAddress("0x4000000000000000000000000000000000000004")
	_, err := f.root.UpdateOwnerOnLeaf(ctx, owner, leafDomain, newOwner, f.quote(t, crosschain.CommandUpdateOwner), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	assert.Equal(t, newOwner, f.leafCtrl.Owner())
}

func TestControllerMigrationCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	next := tokentroller.NewLeaf(&tokentroller.Config{
		Owner:   owner,
		Address: common.HexToAddress("0x5000000000000000000000000000000000000005"),
		Domain:  leafDomain,
		Log:     log,
	})
	next.AdoptStores(f.leafCtrl)

	// an unregistered migration target is refused on the leaf
	_, err := f.root.UpdateRegistryControllerOnLeaf(ctx, owner, leafDomain, next.Address(), f.quote(t, crosschain.CommandUpdateRegistryController), 0)
	require.NoError(t, err)
	err = f.network.Flush(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotController)

	f.leaf.RegisterCandidate(next)

	_, err = f.root.UpdateRegistryControllerOnLeaf(ctx, owner, leafDomain, next.Address(), f.quote(t, crosschain.CommandUpdateRegistryController), 0)
	require.NoError(t, err)
	_, err = f.root.UpdateTokenEditsOnLeaf(ctx, owner, leafDomain, next.Address(), f.quote(t, crosschain.CommandUpdateTokenEdits), 0)
	require.NoError(t, err)
	require.NoError(t, f.network.Flush(ctx))

	// the old controller no longer governs the registry
	err = f.leafCtrl.UpdateRegistryController(
		interfaces.WithCrossChainContext(ctx, interfaces.CrossChainContext{Origin: rootDomain, Sender: owner}),
		owner, next)
	assert.ErrorIs(t, err, interfaces.ErrNotController)
}

func TestGasOverrideChangesQuote(t *testing.T) {
	f := newFixture(t)

	// the in-memory fabric quotes price * gas, so doubling the gas limit
	// doubles the fee
	base := f.quote(t, crosschain.CommandApproveToken)
	override, err := f.root.QuoteAction(leafDomain, crosschain.CommandApproveToken, nil, 404_000)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(base, big.NewInt(2)), override)

	_, err = f.root.QuoteAction(99, crosschain.CommandApproveToken, nil, 0)
	assert.ErrorIs(t, err, interfaces.ErrUnknownLeaf)
}
