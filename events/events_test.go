package events_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/builtbymom/tokenregistry/events"
)

var token = common.HexToAddress("0xaaa0000000000000000000000000000000000aaa")

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	recorder := events.NewRecorder()
	assert.Zero(t, recorder.Len())

	recorder.Emit(ctx, events.TokenSubmitted{Token: token, Submitter: token})
	recorder.Emit(ctx, events.TokenApproved{Token: token})
	recorder.Emit(ctx, events.TokenRejected{Token: token, Reason: "spam"})

	assert.Equal(t, 3, recorder.Len())

	history := recorder.Events()
	require.Len(t, history, 3)
	assert.Equal(t, "TokenSubmitted", history[0].Name())
	assert.Equal(t, "TokenApproved", history[1].Name())

	approved := recorder.ByName("TokenApproved")
	require.Len(t, approved, 1)
	assert.Equal(t, token, approved[0].(events.TokenApproved).Token)

	assert.Empty(t, recorder.ByName("OwnerUpdated"))

	// Events returns a snapshot, not the live slice
	history = recorder.Events()
	recorder.Emit(ctx, events.TokenUpdated{Token: token})
	assert.Len(t, history, 3)
	assert.Equal(t, 4, recorder.Len())
}

func TestMultiSink(t *testing.T) {
	ctx := context.Background()
	first := events.NewRecorder()
	second := events.NewRecorder()

	sink := events.Multi(first, second, events.Discard{})
	sink.Emit(ctx, events.TokenApproved{Token: token})

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 1, second.Len())
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	sink := events.NewSlogSink(log)

	sink.Emit(context.Background(), events.TokenRejected{Token: token, Reason: "spam"})

	out := buf.String()
	assert.Contains(t, out, "TokenRejected")
	assert.Contains(t, out, "spam")
	assert.Contains(t, out, token.Hex())
}
