package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var capturedAt = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestSnapshot_CaptureAndPaste(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.createOperation(t, "SubmitQuote")
	order := f.createOperation(t, "ConfirmOrder")
	sales, ops, finance := f.role(model.RoleSales), f.role(model.RoleOps), f.role(model.RoleFinance)

	// source: sales
	_, err := f.matrix.SetEnabled(ctx, model.ProducerKey(sales, quote), true)
	require.NoError(t, err)
	_, err = f.matrix.SetEnabled(ctx, model.ReceiverKey(sales, quote, finance), true)
	require.NoError(t, err)
	_, err = f.matrix.SetConfigurable(ctx, model.ReceiverKey(sales, order, ops), false)
	require.NoError(t, err)

	// target: ops, with state of its own
	_, err = f.matrix.SetEnabled(ctx, model.ReceiverKey(ops, order, finance), true)
	require.NoError(t, err)

	snap, err := f.snapshots.Capture(ctx, sales)
	require.NoError(t, err)
	assert.Equal(t, sales, snap.RoleID())
	n := len(DefaultRoles)
	assert.Equal(t, 2*(1+n), snap.Len())

	// later writes do not show through the snapshot
	_, err = f.matrix.SetEnabled(ctx, model.ProducerKey(sales, order), true)
	require.NoError(t, err)

	res, err := f.snapshots.Paste(ctx, snap, ops)
	require.NoError(t, err)
	assert.Equal(t, snap.Len(), res.Applied)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Failed)

	assert.True(t, f.entry(t, model.ProducerKey(ops, quote)).Enabled)
	assert.True(t, f.entry(t, model.ReceiverKey(ops, quote, finance)).Enabled)
	assert.False(t, f.entry(t, model.ReceiverKey(ops, order, ops)).Configurable)
	assert.False(t, f.entry(t, model.ReceiverKey(ops, order, finance)).Enabled, "captured pair overwrites the target")
	assert.False(t, f.entry(t, model.ProducerKey(ops, order)).Enabled, "state written after capture is not pasted")

	// every captured pair now matches exactly
	for _, e := range snap.Entries() {
		got := f.entry(t, model.PermissionKey{ProducingRoleID: ops, OperationID: e.OperationID, ReceivingRoleID: e.ReceivingRoleID})
		assert.Equal(t, e.Enabled, got.Enabled)
		assert.Equal(t, e.Configurable, got.Configurable)
	}

	// paste is idempotent
	again, err := f.snapshots.Paste(ctx, snap, ops)
	require.NoError(t, err)
	assert.Equal(t, res.Applied, again.Applied)
}

func TestSnapshot_PasteSkipsMissingAndLeavesOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.createOperation(t, "SubmitQuote")
	sales, ops := f.role(model.RoleSales), f.role(model.RoleOps)

	ghostOp := uuid.New()
	snap := NewSnapshot(sales, capturedAt, []SnapshotEntry{
		{OperationID: quote, Enabled: true, Configurable: false},
		{OperationID: ghostOp, Enabled: true, Configurable: true},
	})

	_, err := f.matrix.SetEnabled(ctx, model.ReceiverKey(ops, quote, sales), true)
	require.NoError(t, err)

	res, err := f.snapshots.Paste(ctx, snap, ops)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ghostOp, res.Skipped[0].OperationID)

	producer := f.entry(t, model.ProducerKey(ops, quote))
	assert.True(t, producer.Enabled)
	assert.False(t, producer.Configurable)
	assert.True(t, f.entry(t, model.ReceiverKey(ops, quote, sales)).Enabled, "pairs absent from the snapshot are unchanged")
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createOperation(t, "SubmitQuote")

	snap, err := f.snapshots.Capture(ctx, f.role(model.RoleSales))
	require.NoError(t, err)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, snap.RoleID(), decoded.RoleID())
	assert.True(t, snap.CapturedAt().Equal(decoded.CapturedAt()))
	assert.Equal(t, snap.Entries(), decoded.Entries())
}

func TestSnapshot_EntriesAreCopies(t *testing.T) {
	recv := uuid.New()
	snap := NewSnapshot(uuid.New(), capturedAt, []SnapshotEntry{{OperationID: uuid.New(), ReceivingRoleID: &recv, Enabled: true}})

	entries := snap.Entries()
	entries[0].Enabled = false
	*entries[0].ReceivingRoleID = uuid.Nil

	again := snap.Entries()
	assert.True(t, again[0].Enabled)
	assert.Equal(t, recv, *again[0].ReceivingRoleID)
}

func TestSnapshot_CopyUnknownRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.snapshots.Copy(ctx, uuid.New(), f.role(model.RoleOps))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.snapshots.Copy(ctx, f.role(model.RoleOps), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := f.store.Permissions.ListEntries(ctx, repository.PermissionFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
