package service

import (
	"context"
	"testing"

	"opsconsole/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findNotification(t *testing.T, rows []NotificationEntry, opID, recvID uuid.UUID) NotificationEntry {
	t.Helper()
	for _, r := range rows {
		if r.OperationID == opID.String() && r.ReceivingRoleID == recvID.String() {
			return r
		}
	}
	t.Fatalf("no notification row for operation %s receiver %s", opID, recvID)
	return NotificationEntry{}
}

// SubmitQuote produced by Sales, delivered to Ops: toggle while configurable, then lock
// the cell and toggle again.
func TestNotifications_SubmitQuoteScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.createOperation(t, "SubmitQuote")
	sales, ops := f.role(model.RoleSales), f.role(model.RoleOps)
	key := model.ReceiverKey(sales, quote, ops)

	rows, err := f.notifications.List(ctx, sales)
	require.NoError(t, err)
	row := findNotification(t, rows, quote, ops)
	assert.False(t, row.Enabled)
	assert.True(t, row.Editable)

	got, err := f.notifications.Toggle(ctx, quote, sales, ops, true)
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	rows, err = f.notifications.List(ctx, sales)
	require.NoError(t, err)
	assert.True(t, findNotification(t, rows, quote, ops).Enabled)

	_, err = f.matrix.SetConfigurable(ctx, key, false)
	require.NoError(t, err)

	_, err = f.notifications.Toggle(ctx, quote, sales, ops, false)
	assert.ErrorIs(t, err, ErrNotEditable)

	rows, err = f.notifications.List(ctx, sales)
	require.NoError(t, err)
	row = findNotification(t, rows, quote, ops)
	assert.True(t, row.Enabled, "rejected toggle leaves enabled unchanged")
	assert.False(t, row.Editable)
}

func TestNotifications_EditableTracksConfigurable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.createOperation(t, "SubmitQuote")
	order := f.createOperation(t, "ConfirmOrder")
	sales := f.role(model.RoleSales)
	finance := f.role(model.RoleFinance)

	mutations := []func() error{
		func() error {
			_, err := f.matrix.SetConfigurable(ctx, model.ReceiverKey(sales, quote, finance), false)
			return err
		},
		func() error {
			_, err := f.matrix.SelectColumn(ctx, ColumnSelector{Level: LevelReceivers, ProducingRoleID: &sales, OperationID: &order, Field: FieldConfigurable, Value: false})
			return err
		},
		func() error {
			_, err := f.matrix.SetConfigurable(ctx, model.ReceiverKey(sales, order, finance), true)
			return err
		},
		func() error { _, err := f.snapshots.Copy(ctx, f.role(model.RoleOps), sales); return err },
	}

	for _, m := range mutations {
		require.NoError(t, m())

		rows, err := f.notifications.List(ctx, sales)
		require.NoError(t, err)
		assert.Len(t, rows, 2*len(DefaultRoles))
		for _, r := range rows {
			e := f.entry(t, model.ReceiverKey(sales, uuid.MustParse(r.OperationID), uuid.MustParse(r.ReceivingRoleID)))
			assert.Equal(t, e.Configurable, r.Editable)
			assert.Equal(t, e.Enabled, r.Enabled)
		}
	}
}

func TestNotifications_ToggleRereadsAtCallTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.createOperation(t, "SubmitQuote")
	sales, ops := f.role(model.RoleSales), f.role(model.RoleOps)

	// the list was read while the cell was still editable
	rows, err := f.notifications.List(ctx, sales)
	require.NoError(t, err)
	require.True(t, findNotification(t, rows, quote, ops).Editable)

	_, err = f.matrix.SetConfigurable(ctx, model.ReceiverKey(sales, quote, ops), false)
	require.NoError(t, err)

	_, err = f.notifications.Toggle(ctx, quote, sales, ops, true)
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.False(t, f.entry(t, model.ReceiverKey(sales, quote, ops)).Enabled)
}

func TestNotifications_UnknownIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.createOperation(t, "SubmitQuote")

	_, err := f.notifications.List(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.notifications.Toggle(ctx, uuid.New(), f.role(model.RoleSales), f.role(model.RoleOps), true)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.notifications.Toggle(ctx, quote, uuid.New(), f.role(model.RoleOps), true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriptions_UseSelfCell(t *testing.T) {
	f := newFixture(t)
	ctx := WithActor(context.Background(), "carol")
	quote := f.createOperation(t, "SubmitQuote")
	ops := f.role(model.RoleOps)

	got, err := f.subscriptions.Toggle(ctx, quote, ops, true)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, f.entry(t, model.ReceiverKey(ops, quote, ops)).Enabled)

	rows, err := f.subscriptions.List(ctx, ops)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Enabled)
	assert.True(t, rows[0].Editable)

	_, err = f.matrix.SetConfigurable(ctx, model.ReceiverKey(ops, quote, ops), false)
	require.NoError(t, err)
	_, err = f.subscriptions.Toggle(ctx, quote, ops, false)
	assert.ErrorIs(t, err, ErrNotEditable)

	logs, _, err := f.audit.GetAuditLogs(ctx, AuditQuery{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionSetPermission, logs[0].Action, "rejected toggles are not audited")
}
