// Package repotest holds the behaviour every repository.Store implementation must share.
// The gorm and memory stores both run it from their own tests.
package repotest

import (
	"context"
	"testing"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// Run executes the suite; newStore must return an empty store per call
func Run(t *testing.T, newStore func(t *testing.T) *repository.Store) {
	t.Run("operations", func(t *testing.T) { testOperations(t, newStore(t)) })
	t.Run("templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("roles", func(t *testing.T) { testRoles(t, newStore(t)) })
	t.Run("permissions", func(t *testing.T) { testPermissions(t, newStore(t)) })
	t.Run("audit", func(t *testing.T) { testAudit(t, newStore(t)) })
}

func operation(name string, updated time.Time) *model.Operation {
	return &model.Operation{
		Name:        name,
		Source:      "crm." + name,
		Status:      model.StatusEnabled,
		Creator:     "admin",
		Variables:   datatypes.NewJSONType(map[string]string{"customer": model.VarTypeString}),
		CreatedAt:   updated,
		LastUpdated: updated,
	}
}

func testOperations(t *testing.T, store *repository.Store) {
	ctx := context.Background()

	a := operation("SubmitQuote", t0)
	b := operation("ConfirmOrder", t0.Add(time.Hour))
	require.NoError(t, store.Operations.Create(ctx, a))
	require.NoError(t, store.Operations.Create(ctx, b))
	assert.NotEqual(t, uuid.Nil, a.ID)

	err := store.Operations.Create(ctx, operation("SubmitQuote", t0))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	got, err := store.Operations.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "SubmitQuote", got.Name)
	assert.Equal(t, model.VarTypeString, got.VariableMap()["customer"])

	_, err = store.Operations.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := store.Operations.LockByID(txCtx, a.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, a.Name, locked.Name)
		_, err = store.Operations.LockByID(txCtx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	page, total, err := store.Operations.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID, "most recently updated first")

	got.Remark = "from the quote form"
	require.NoError(t, store.Operations.Update(ctx, got))
	got, err = store.Operations.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "from the quote form", got.Remark)

	got.Name = b.Name
	assert.ErrorIs(t, store.Operations.Update(ctx, got), repository.ErrDuplicate)

	n, err := store.Operations.DisableOthersByName(ctx, "SubmitQuote", a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := store.Operations.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testTemplates(t *testing.T, store *repository.Store) {
	ctx := context.Background()
	opID := uuid.New()

	tpl := func(name string, created time.Time) *model.Template {
		return &model.Template{
			OperationID:  opID,
			TemplateType: model.TemplateTypeEmail,
			Status:       model.StatusEnabled,
			Name:         name,
			Subject:      "Quote for {{customer}}",
			Content:      "Hello",
			Variables:    datatypes.NewJSONType([]string{"customer"}),
			Creator:      "admin",
			CreatedAt:    created,
			LastUpdated:  created,
		}
	}
	first, second := tpl("first", t0), tpl("second", t0.Add(time.Minute))
	require.NoError(t, store.Templates.Create(ctx, first))
	require.NoError(t, store.Templates.Create(ctx, second))

	n, err := store.Templates.DisableSiblings(ctx, opID, second.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.Templates.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisabled, got.Status)
	assert.Equal(t, []string{"customer"}, got.Variables.Data())

	list, err := store.Templates.ListByOperation(ctx, opID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	require.NoError(t, store.Templates.Delete(ctx, first.ID))
	assert.ErrorIs(t, store.Templates.Delete(ctx, first.ID), repository.ErrNotFound)

	list, err = store.Templates.ListByOperation(ctx, opID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	none, err := store.Templates.ListByOperation(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRoles(t *testing.T, store *repository.Store) {
	ctx := context.Background()

	sales := &model.Role{Code: model.RoleSales, Name: "Sales", SortOrder: 10}
	admin := &model.Role{Code: model.RoleAdmin, Name: "Administrator", SortOrder: 0}
	require.NoError(t, store.Roles.Create(ctx, sales))
	require.NoError(t, store.Roles.Create(ctx, admin))

	err := store.Roles.Create(ctx, &model.Role{Code: model.RoleSales, Name: "Sales again"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	got, err := store.Roles.FindByCode(ctx, model.RoleSales)
	require.NoError(t, err)
	assert.Equal(t, sales.ID, got.ID)

	_, err = store.Roles.FindByCode(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got.Name = "Sales team"
	require.NoError(t, store.Roles.Update(ctx, got))
	got, err = store.Roles.FindByID(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sales team", got.Name)

	roles, err := store.Roles.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, model.RoleAdmin, roles[0].Code)
	assert.Equal(t, model.RoleSales, roles[1].Code)
}

func testPermissions(t *testing.T, store *repository.Store) {
	ctx := context.Background()
	r1, r2, op := uuid.New(), uuid.New(), uuid.New()

	cell := func(key model.PermissionKey) model.PermissionEntry {
		return model.PermissionEntry{
			ProducingRoleID: key.ProducingRoleID,
			OperationID:     key.OperationID,
			ReceivingRoleID: key.ReceivingRoleID,
			Configurable:    true,
		}
	}
	require.NoError(t, store.Permissions.CreateBatch(ctx, []model.PermissionEntry{
		cell(model.ProducerKey(r1, op)),
		cell(model.ReceiverKey(r1, op, r2)),
		cell(model.ProducerKey(r2, op)),
	}))
	require.NoError(t, store.Permissions.CreateBatch(ctx, nil))

	err := store.Permissions.CreateBatch(ctx, []model.PermissionEntry{cell(model.ReceiverKey(r1, op, r2))})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	err = store.Permissions.CreateBatch(ctx, []model.PermissionEntry{cell(model.ProducerKey(r1, op))})
	assert.ErrorIs(t, err, repository.ErrDuplicate, "one producer cell per role and operation")

	producers, err := store.Permissions.ListEntries(ctx, repository.PermissionFilter{ProducingRoleID: &r1, ProducerOnly: true})
	require.NoError(t, err)
	assert.Len(t, producers, 1)

	producer, err := store.Permissions.Find(ctx, model.ProducerKey(r1, op))
	require.NoError(t, err)
	assert.Nil(t, producer.ReceivingRoleID)
	assert.False(t, producer.Enabled)
	assert.True(t, producer.Configurable)

	receiver, err := store.Permissions.Find(ctx, model.ReceiverKey(r1, op, r2))
	require.NoError(t, err)
	require.NotNil(t, receiver.ReceivingRoleID)
	assert.Equal(t, r2, *receiver.ReceivingRoleID)

	_, err = store.Permissions.Find(ctx, model.ReceiverKey(r1, op, r1))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	enabled := true
	require.NoError(t, store.Permissions.UpdateFlags(ctx, receiver.ID, repository.PermissionFlags{Enabled: &enabled}))
	receiver, err = store.Permissions.Find(ctx, model.ReceiverKey(r1, op, r2))
	require.NoError(t, err)
	assert.True(t, receiver.Enabled)
	assert.True(t, receiver.Configurable, "nil flag is left untouched")

	locked := false
	require.NoError(t, store.Permissions.UpdateFlags(ctx, receiver.ID, repository.PermissionFlags{Configurable: &locked}))
	receiver, err = store.Permissions.Find(ctx, model.ReceiverKey(r1, op, r2))
	require.NoError(t, err)
	assert.True(t, receiver.Enabled)
	assert.False(t, receiver.Configurable)

	assert.ErrorIs(t, store.Permissions.UpdateFlags(ctx, uuid.New(), repository.PermissionFlags{Enabled: &enabled}), repository.ErrNotFound)

	cases := []struct {
		name   string
		filter repository.PermissionFilter
		want   int
	}{
		{"all", repository.PermissionFilter{}, 3},
		{"by producing role", repository.PermissionFilter{ProducingRoleID: &r1}, 2},
		{"producer cells", repository.PermissionFilter{ProducerOnly: true}, 2},
		{"receiver cells of operation", repository.PermissionFilter{OperationID: &op, ReceiversOnly: true}, 1},
		{"other operation", repository.PermissionFilter{OperationID: &r2}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := store.Permissions.ListEntries(ctx, tc.filter)
			require.NoError(t, err)
			assert.Len(t, entries, tc.want)
		})
	}
}

func testAudit(t *testing.T, store *repository.Store) {
	ctx := context.Background()

	for i, action := range []string{model.ActionCreateOperation, model.ActionSetPermission, model.ActionPasteSnapshot} {
		require.NoError(t, store.Audit.Log(ctx, &model.AuditLog{
			Actor:     "admin",
			Action:    action,
			EntityID:  uuid.NewString(),
			Details:   datatypes.JSON(`{"step":1}`),
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, total, err := store.Audit.List(ctx, repository.AuditFilter{}, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionPasteSnapshot, logs[0].Action)
	assert.Equal(t, model.ActionSetPermission, logs[1].Action)

	logs, _, err = store.Audit.List(ctx, repository.AuditFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionCreateOperation, logs[0].Action)

	logs, total, err = store.Audit.List(ctx, repository.AuditFilter{Action: model.ActionSetPermission, Actor: "admin"}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionSetPermission, logs[0].Action)

	_, total, err = store.Audit.List(ctx, repository.AuditFilter{Actor: "someone else"}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}
