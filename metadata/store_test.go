package metadata_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/metadata"
)

var (
	admin  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	writer = common.HexToAddress("0x2000000000000000000000000000000000000002")
	other  = common.HexToAddress("0x3000000000000000000000000000000000000003")

	token = common.HexToAddress("0xaaa0000000000000000000000000000000000aaa")
)

// stubPolicy admits schema changes from admin and value writes from writer.
type stubPolicy struct{}

func (stubPolicy) CanAddToken(ctx context.Context, actor, token common.Address) bool     { return true }
func (stubPolicy) CanApproveToken(ctx context.Context, actor, token common.Address) bool { return true }
func (stubPolicy) CanRejectToken(ctx context.Context, actor, token common.Address) bool  { return true }
func (stubPolicy) CanUpdateToken(ctx context.Context, actor, token common.Address) bool  { return true }
func (stubPolicy) CanProposeTokenEdit(ctx context.Context, actor, token common.Address) bool {
	return true
}
func (stubPolicy) CanAcceptTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool {
	return true
}
func (stubPolicy) CanRejectTokenEdit(ctx context.Context, actor, token common.Address, editID uint64) bool {
	return true
}
func (stubPolicy) CanAddMetadataField(ctx context.Context, actor common.Address, field string) bool {
	return actor == admin
}
func (stubPolicy) CanUpdateMetadataField(ctx context.Context, actor common.Address, field string) bool {
	return actor == admin
}
func (stubPolicy) CanUpdateMetadata(ctx context.Context, caller, token common.Address, field string) bool {
	return caller == writer
}
func (stubPolicy) CanUpdateOwner(ctx context.Context, actor common.Address) bool      { return true }
func (stubPolicy) CanUpdateController(ctx context.Context, actor common.Address) bool { return true }

type stubController struct {
	addr common.Address
}

func (c *stubController) Address() common.Address            { return c.addr }
func (c *stubController) Policy() interfaces.AuthorityPolicy { return stubPolicy{} }

func newTestStore(t *testing.T) (*metadata.Store, *events.Recorder) {
	t.Helper()
	recorder := events.NewRecorder()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := &stubController{addr: common.HexToAddress("0x9000000000000000000000000000000000000009")}
	return metadata.NewStore(ctrl, log, recorder), recorder
}

func TestFieldSchema(t *testing.T) {
	ctx := context.Background()
	store, recorder := newTestStore(t)

	err := store.AddField(ctx, admin, "", false)
	assert.Error(t, err)

	err = store.AddField(ctx, other, "website", false)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.NoError(t, store.AddField(ctx, admin, "website", true))
	require.NoError(t, store.AddField(ctx, admin, "logoURI", false))

	err = store.AddField(ctx, admin, "website", false)
	assert.ErrorIs(t, err, interfaces.ErrFieldExists)

	field, ok := store.Field("website")
	require.True(t, ok)
	assert.True(t, field.IsActive)
	assert.True(t, field.IsRequired)

	fields := store.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "website", fields[0].Name)
	assert.Equal(t, "logoURI", fields[1].Name)

	err = store.UpdateField(ctx, admin, "missing", true, false)
	assert.ErrorIs(t, err, interfaces.ErrUnknownField)

	require.NoError(t, store.UpdateField(ctx, admin, "website", false, false))
	field, _ = store.Field("website")
	assert.False(t, field.IsActive)

	assert.Len(t, recorder.ByName("MetadataFieldAdded"), 2)
	assert.Len(t, recorder.ByName("MetadataFieldUpdated"), 1)
}

func TestCheckRequired(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddField(ctx, admin, "website", true))
	require.NoError(t, store.AddField(ctx, admin, "description", false))

	assert.ErrorIs(t, store.CheckRequired(nil), interfaces.ErrMissingRequiredField)
	assert.ErrorIs(t, store.CheckRequired(map[string]string{"description": "d"}), interfaces.ErrMissingRequiredField)
	assert.ErrorIs(t, store.CheckRequired(map[string]string{"website": "w", "twitter": "t"}), interfaces.ErrUnknownField)
	assert.NoError(t, store.CheckRequired(map[string]string{"website": "w"}))

	// an inactive field stops binding submissions but also rejects values
	require.NoError(t, store.UpdateField(ctx, admin, "website", false, true))
	assert.NoError(t, store.CheckRequired(nil))
	assert.ErrorIs(t, store.CheckRequired(map[string]string{"website": "w"}), interfaces.ErrInactiveField)
}

func TestApplyValuesAtomicity(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddField(ctx, admin, "website", false))
	require.NoError(t, store.AddField(ctx, admin, "logoURI", false))

	// only the authorized component identity writes values
	err := store.SetValue(ctx, other, token, "website", "https://example.com")
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	require.NoError(t, store.SetValue(ctx, writer, token, "website", "https://example.com"))

	// a batch with one bad update applies nothing
	require.NoError(t, store.UpdateField(ctx, admin, "logoURI", false, false))
	err = store.ApplyValues(ctx, writer, token, []interfaces.FieldUpdate{
		{Field: "website", Value: "https://changed.example"},
		{Field: "logoURI", Value: "ipfs://logo"},
	})
	assert.ErrorIs(t, err, interfaces.ErrInactiveField)

	value, ok := store.Value(token, "website")
	require.True(t, ok)
	assert.Equal(t, "https://example.com", value)
	_, ok = store.Value(token, "logoURI")
	assert.False(t, ok)

	err = store.ApplyValues(ctx, writer, token, []interfaces.FieldUpdate{{Field: "missing", Value: "x"}})
	assert.ErrorIs(t, err, interfaces.ErrUnknownField)

	values := store.Values(token)
	assert.Equal(t, map[string]string{"website": "https://example.com"}, values)
}

func TestSwapController(t *testing.T) {
	store, recorder := newTestStore(t)

	next := &stubController{addr: common.HexToAddress("0x8000000000000000000000000000000000000008")}

	err := store.SwapController(other, next)
	assert.ErrorIs(t, err, interfaces.ErrNotController)

	require.NoError(t, store.SwapController(common.HexToAddress("0x9000000000000000000000000000000000000009"), next))

	// the old controller cannot swap again
	err = store.SwapController(common.HexToAddress("0x9000000000000000000000000000000000000009"), next)
	assert.ErrorIs(t, err, interfaces.ErrNotController)

	assert.Len(t, recorder.ByName("ControllerUpdated"), 1)
}
