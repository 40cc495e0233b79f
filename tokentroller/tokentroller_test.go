package tokentroller_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/tokentroller"
)

var (
	owner     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	submitter = common.HexToAddress("0x2000000000000000000000000000000000000002")
	stranger  = common.HexToAddress("0x3000000000000000000000000000000000000003")

	tokenA = common.HexToAddress("0xaaa0000000000000000000000000000000000aaa")
	tokenB = common.HexToAddress("0xbbb0000000000000000000000000000000000bbb")
)

func newTestController(t *testing.T) (*tokentroller.Controller, *events.Recorder) {
	t.Helper()
	recorder := events.NewRecorder()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := tokentroller.New(&tokentroller.Config{
		Owner:  owner,
		Domain: 1,
		Log:    log,
		Events: recorder,
	})
	return ctrl, recorder
}

func submission(token common.Address, md map[string]string) interfaces.TokenSubmission {
	return interfaces.TokenSubmission{
		Address:  token,
		Name:     "Test Token",
		Symbol:   "TST",
		Decimals: 18,
		Metadata: md,
	}
}

func TestTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	ctrl, recorder := newTestController(t)

	// submissions are open to anyone
	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, nil)))
	assert.Equal(t, interfaces.StatusPending, ctrl.Registry().Status(tokenA))

	// resubmitting the same address is rejected regardless of status
	err := ctrl.SubmitToken(ctx, stranger, submission(tokenA, nil))
	assert.ErrorIs(t, err, interfaces.ErrTokenExists)

	// only the owner approves
	err = ctrl.ApproveToken(ctx, stranger, tokenA)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)
	assert.Equal(t, interfaces.StatusPending, ctrl.Registry().Status(tokenA))

	require.NoError(t, ctrl.ApproveToken(ctx, owner, tokenA))
	assert.Equal(t, interfaces.StatusApproved, ctrl.Registry().Status(tokenA))

	// terminal states are final
	err = ctrl.ApproveToken(ctx, owner, tokenA)
	assert.ErrorIs(t, err, interfaces.ErrNotPending)
	err = ctrl.RejectToken(ctx, owner, tokenA, "changed my mind")
	assert.ErrorIs(t, err, interfaces.ErrNotPending)

	// unknown tokens cannot be resolved
	err = ctrl.ApproveToken(ctx, owner, tokenB)
	assert.ErrorIs(t, err, interfaces.ErrUnknownToken)

	assert.Len(t, recorder.ByName("TokenSubmitted"), 1)
	assert.Len(t, recorder.ByName("TokenApproved"), 1)
}

func TestRejectToken(t *testing.T) {
	ctx := context.Background()
	ctrl, recorder := newTestController(t)

	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, nil)))

	// a rejection without a reason is invalid
	err := ctrl.RejectToken(ctx, owner, tokenA, "")
	assert.ErrorIs(t, err, interfaces.ErrEmptyReason)
	assert.Equal(t, interfaces.StatusPending, ctrl.Registry().Status(tokenA))

	require.NoError(t, ctrl.RejectToken(ctx, owner, tokenA, "duplicate listing"))
	assert.Equal(t, interfaces.StatusRejected, ctrl.Registry().Status(tokenA))

	info, ok := ctrl.Registry().Token(tokenA)
	require.True(t, ok)
	assert.Equal(t, "duplicate listing", info.Reason)

	// a rejected token can never become approved
	err = ctrl.ApproveToken(ctx, owner, tokenA)
	assert.ErrorIs(t, err, interfaces.ErrNotPending)

	assert.Len(t, recorder.ByName("TokenRejected"), 1)
}

func TestSubmissionMetadataValidation(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "website", true))
	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "description", false))

	// required active fields must be present
	err := ctrl.SubmitToken(ctx, submitter, submission(tokenA, map[string]string{"description": "d"}))
	assert.ErrorIs(t, err, interfaces.ErrMissingRequiredField)
	assert.Equal(t, interfaces.StatusNone, ctrl.Registry().Status(tokenA))

	// unknown fields are rejected
	err = ctrl.SubmitToken(ctx, submitter, submission(tokenA, map[string]string{
		"website": "https://example.com",
		"twitter": "@example",
	}))
	assert.ErrorIs(t, err, interfaces.ErrUnknownField)

	// a deactivated required field no longer binds submissions, and values
	// for it are rejected
	require.NoError(t, ctrl.UpdateMetadataField(ctx, owner, "website", false, true))
	err = ctrl.SubmitToken(ctx, submitter, submission(tokenA, map[string]string{"website": "https://example.com"}))
	assert.ErrorIs(t, err, interfaces.ErrInactiveField)

	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, map[string]string{"description": "a fine token"})))
	value, ok := ctrl.Metadata().Value(tokenA, "description")
	require.True(t, ok)
	assert.Equal(t, "a fine token", value)
}

func TestMetadataFieldSchema(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	err := ctrl.AddMetadataField(ctx, stranger, "website", false)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "website", false))
	err = ctrl.AddMetadataField(ctx, owner, "website", true)
	assert.ErrorIs(t, err, interfaces.ErrFieldExists)

	err = ctrl.UpdateMetadataField(ctx, owner, "twitter", true, false)
	assert.ErrorIs(t, err, interfaces.ErrUnknownField)

	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "logoURI", false))
	fields := ctrl.Metadata().Fields()
	require.Len(t, fields, 2)
	// creation order is preserved
	assert.Equal(t, "website", fields[0].Name)
	assert.Equal(t, "logoURI", fields[1].Name)
}

func TestEditProposals(t *testing.T) {
	ctx := context.Background()
	ctrl, recorder := newTestController(t)

	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "logoURI", false))
	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, nil)))

	// edits only apply to approved tokens
	_, err := ctrl.ProposeEdit(ctx, submitter, tokenA, []interfaces.FieldUpdate{{Field: "logoURI", Value: "ipfs://x"}})
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.NoError(t, ctrl.ApproveToken(ctx, owner, tokenA))

	// empty proposals are invalid
	_, err = ctrl.ProposeEdit(ctx, submitter, tokenA, nil)
	assert.ErrorIs(t, err, interfaces.ErrEmptyEdit)

	// ids are sequential from zero per token
	first, err := ctrl.ProposeEdit(ctx, submitter, tokenA, []interfaces.FieldUpdate{{Field: "logoURI", Value: "ipfs://one"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)

	second, err := ctrl.ProposeEdit(ctx, stranger, tokenA, []interfaces.FieldUpdate{{Field: "logoURI", Value: "ipfs://two"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second)

	// only the owner resolves proposals
	err = ctrl.AcceptEdit(ctx, stranger, tokenA, first)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.NoError(t, ctrl.AcceptEdit(ctx, owner, tokenA, first))
	value, ok := ctrl.Metadata().Value(tokenA, "logoURI")
	require.True(t, ok)
	assert.Equal(t, "ipfs://one", value)

	// resolved proposals are final
	err = ctrl.AcceptEdit(ctx, owner, tokenA, first)
	assert.ErrorIs(t, err, interfaces.ErrEditResolved)
	err = ctrl.RejectEdit(ctx, owner, tokenA, first, "late")
	assert.ErrorIs(t, err, interfaces.ErrEditResolved)

	// rejection needs a reason and leaves values untouched
	err = ctrl.RejectEdit(ctx, owner, tokenA, second, "")
	assert.ErrorIs(t, err, interfaces.ErrEmptyReason)
	require.NoError(t, ctrl.RejectEdit(ctx, owner, tokenA, second, "wrong logo"))
	value, _ = ctrl.Metadata().Value(tokenA, "logoURI")
	assert.Equal(t, "ipfs://one", value)

	// ids keep growing after rejection, never reused
	third, err := ctrl.ProposeEdit(ctx, submitter, tokenA, []interfaces.FieldUpdate{{Field: "logoURI", Value: "ipfs://three"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), third)

	err = ctrl.AcceptEdit(ctx, owner, tokenA, 99)
	assert.ErrorIs(t, err, interfaces.ErrUnknownEdit)

	// negative paging values are clamped, not sliced
	assert.Len(t, ctrl.Edits().ListEdits(tokenA, -1, 0, interfaces.EditAny), 3)

	assert.Len(t, recorder.ByName("MetadataEditProposed"), 3)
	assert.Len(t, recorder.ByName("MetadataEditAccepted"), 1)
	assert.Len(t, recorder.ByName("MetadataEditRejected"), 1)
}

func TestAcceptEditIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "logoURI", false))
	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "website", false))
	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, map[string]string{"website": "https://old.example"})))
	require.NoError(t, ctrl.ApproveToken(ctx, owner, tokenA))

	editID, err := ctrl.ProposeEdit(ctx, submitter, tokenA, []interfaces.FieldUpdate{
		{Field: "website", Value: "https://new.example"},
		{Field: "logoURI", Value: "ipfs://logo"},
	})
	require.NoError(t, err)

	// deactivating one referenced field makes the whole accept fail
	require.NoError(t, ctrl.UpdateMetadataField(ctx, owner, "logoURI", false, false))
	err = ctrl.AcceptEdit(ctx, owner, tokenA, editID)
	assert.ErrorIs(t, err, interfaces.ErrInactiveField)

	value, _ := ctrl.Metadata().Value(tokenA, "website")
	assert.Equal(t, "https://old.example", value)
	_, ok := ctrl.Metadata().Value(tokenA, "logoURI")
	assert.False(t, ok)

	// the proposal stays pending and applies cleanly once the field is
	// active again
	require.NoError(t, ctrl.UpdateMetadataField(ctx, owner, "logoURI", true, false))
	require.NoError(t, ctrl.AcceptEdit(ctx, owner, tokenA, editID))

	value, _ = ctrl.Metadata().Value(tokenA, "website")
	assert.Equal(t, "https://new.example", value)
	value, _ = ctrl.Metadata().Value(tokenA, "logoURI")
	assert.Equal(t, "ipfs://logo", value)
}

func TestUpdateToken(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, nil)))

	// pending tokens cannot be updated
	err := ctrl.UpdateToken(ctx, submitter, tokenA, "New Name", "NEW", 8)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.NoError(t, ctrl.ApproveToken(ctx, owner, tokenA))
	require.NoError(t, ctrl.UpdateToken(ctx, submitter, tokenA, "New Name", "NEW", 8))

	info, ok := ctrl.Registry().Token(tokenA)
	require.True(t, ok)
	assert.Equal(t, "New Name", info.Name)
	assert.Equal(t, "NEW", info.Symbol)
	assert.Equal(t, uint8(8), info.Decimals)
	assert.Equal(t, interfaces.StatusApproved, info.Status)
}

func TestListTokens(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	tokens := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000011"),
		common.HexToAddress("0x0000000000000000000000000000000000000012"),
		common.HexToAddress("0x0000000000000000000000000000000000000013"),
	}
	for _, token := range tokens {
		require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(token, nil)))
	}
	require.NoError(t, ctrl.ApproveToken(ctx, owner, tokens[0]))
	require.NoError(t, ctrl.ApproveToken(ctx, owner, tokens[2]))

	all := ctrl.Registry().ListTokens(0, 0, interfaces.StatusAny)
	require.Len(t, all, 3)
	for i, info := range all {
		assert.Equal(t, tokens[i], info.Address)
	}

	approved := ctrl.Registry().ListTokens(0, 0, interfaces.StatusApproved)
	require.Len(t, approved, 2)
	assert.Equal(t, tokens[0], approved[0].Address)
	assert.Equal(t, tokens[2], approved[1].Address)

	page := ctrl.Registry().ListTokens(1, 1, interfaces.StatusAny)
	require.Len(t, page, 1)
	assert.Equal(t, tokens[1], page[0].Address)

	assert.Empty(t, ctrl.Registry().ListTokens(5, 0, interfaces.StatusAny))
	assert.Equal(t, 3, ctrl.Registry().Count())

	// negative paging values are clamped, not sliced
	assert.Len(t, ctrl.Registry().ListTokens(-1, 0, interfaces.StatusAny), 3)
	assert.Len(t, ctrl.Registry().ListTokens(-1, -1, interfaces.StatusAny), 3)
}

func TestUpdateOwner(t *testing.T) {
	ctx := context.Background()
	ctrl, recorder := newTestController(t)

	newOwner := common.HexToAddress("0x4000000000000000000000000000000000000004")

	err := ctrl.UpdateOwner(ctx, stranger, newOwner)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	err = ctrl.UpdateOwner(ctx, owner, common.Address{})
	assert.Error(t, err)

	require.NoError(t, ctrl.UpdateOwner(ctx, owner, newOwner))
	assert.Equal(t, newOwner, ctrl.Owner())

	// the old owner has no residual authority
	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, nil)))
	err = ctrl.ApproveToken(ctx, owner, tokenA)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)
	require.NoError(t, ctrl.ApproveToken(ctx, newOwner, tokenA))

	assert.Len(t, recorder.ByName("OwnerUpdated"), 1)
}

func TestLeafControllerRejectsDirectAdminCalls(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := tokentroller.NewLeaf(&tokentroller.Config{Owner: owner, Domain: 10, Log: log})

	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, nil)))

	// even the owner cannot administrate a leaf directly
	err := ctrl.ApproveToken(ctx, owner, tokenA)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)
	err = ctrl.AddMetadataField(ctx, owner, "website", false)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)
	err = ctrl.UpdateOwner(ctx, owner, stranger)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	// inside a cross-chain execution context the same calls pass
	ccCtx := interfaces.WithCrossChainContext(ctx, interfaces.CrossChainContext{
		Origin: 1,
		Sender: owner,
	})
	require.NoError(t, ctrl.ApproveToken(ccCtx, owner, tokenA))
	assert.Equal(t, interfaces.StatusApproved, ctrl.Registry().Status(tokenA))
}

func TestControllerMigration(t *testing.T) {
	ctx := context.Background()
	ctrl, recorder := newTestController(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, ctrl.SubmitToken(ctx, submitter, submission(tokenA, nil)))

	next := tokentroller.New(&tokentroller.Config{
		Owner:   owner,
		Address: common.HexToAddress("0x5000000000000000000000000000000000000005"),
		Domain:  1,
		Log:     log,
		Events:  recorder,
	})
	next.AdoptStores(ctrl)

	err := ctrl.UpdateRegistryController(ctx, stranger, next)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.NoError(t, ctrl.UpdateRegistryController(ctx, owner, next))
	require.NoError(t, ctrl.UpdateEditsController(ctx, owner, next))

	// the old controller lost the stores
	err = ctrl.UpdateRegistryController(ctx, owner, next)
	assert.ErrorIs(t, err, interfaces.ErrNotController)

	// governance continues through the new controller over the same state
	require.NoError(t, next.ApproveToken(ctx, owner, tokenA))
	assert.Equal(t, interfaces.StatusApproved, next.Registry().Status(tokenA))

	assert.Len(t, recorder.ByName("ControllerUpdated"), 2)
}

// A field deactivated between the submission boundary check and the
// metadata apply forces the registry insert to roll back. Concurrent
// submissions must survive that rollback with the token list intact.
func TestConcurrentSubmissionsSurviveFieldToggling(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newTestController(t)

	require.NoError(t, ctrl.AddMetadataField(ctx, owner, "logoURI", false))

	// flip the field while submissions are in flight, ending active so
	// retries terminate
	toggled := make(chan struct{})
	go func() {
		defer close(toggled)
		for i := 0; i < 200; i++ {
			_ = ctrl.UpdateMetadataField(ctx, owner, "logoURI", i%2 == 1, false)
		}
	}()

	const submitters = 8
	tokens := make([]common.Address, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		tokens[i] = common.HexToAddress(fmt.Sprintf("0x%040x", 0x100+i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				err := ctrl.SubmitToken(ctx, submitter, submission(tokens[i], map[string]string{"logoURI": "ipfs://x"}))
				if errors.Is(err, interfaces.ErrInactiveField) {
					continue
				}
				errs[i] = err
				return
			}
		}(i)
	}
	wg.Wait()
	<-toggled

	for i, err := range errs {
		require.NoError(t, err, "submitter %d", i)
	}

	all := ctrl.Registry().ListTokens(0, 0, interfaces.StatusAny)
	require.Len(t, all, submitters)
	assert.Equal(t, submitters, ctrl.Registry().Count())

	listed := make(map[common.Address]bool, len(all))
	for i, info := range all {
		assert.Equal(t, uint64(i), info.Index)
		listed[info.Address] = true
	}
	for _, token := range tokens {
		assert.True(t, listed[token], "token %s missing from list", token.Hex())
	}
}
