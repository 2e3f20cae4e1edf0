package memory

import (
	"context"
	"testing"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	"opsconsole/internal/repository/repotest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestMemoryStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) *repository.Store {
		return NewStore()
	})
}

func TestRowsAreCopied(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	vars := map[string]string{"customer": model.VarTypeString}
	op := &model.Operation{Name: "SubmitQuote", Status: model.StatusEnabled, Variables: datatypes.NewJSONType(vars)}
	require.NoError(t, store.Operations.Create(ctx, op))

	vars["injected"] = model.VarTypeNumber
	got, err := store.Operations.FindByID(ctx, op.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.VariableMap(), "injected")

	got.VariableMap()["later"] = model.VarTypeBoolean
	again, err := store.Operations.FindByID(ctx, op.ID)
	require.NoError(t, err)
	assert.NotContains(t, again.VariableMap(), "later")

	recv := uuid.New()
	key := model.ReceiverKey(uuid.New(), op.ID, recv)
	require.NoError(t, store.Permissions.CreateBatch(ctx, []model.PermissionEntry{{
		ProducingRoleID: key.ProducingRoleID,
		OperationID:     key.OperationID,
		ReceivingRoleID: key.ReceivingRoleID,
		Configurable:    true,
	}}))

	entry, err := store.Permissions.Find(ctx, key)
	require.NoError(t, err)
	*entry.ReceivingRoleID = uuid.New()

	_, err = store.Permissions.Find(ctx, key)
	assert.NoError(t, err, "mutating a returned entry must not move the stored cell")
}

func TestCreateBatch_RejectsDuplicatesWithinBatch(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := model.ProducerKey(uuid.New(), uuid.New())
	row := model.PermissionEntry{ProducingRoleID: key.ProducingRoleID, OperationID: key.OperationID}

	err := store.Permissions.CreateBatch(ctx, []model.PermissionEntry{row, row})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	all, err := store.Permissions.ListEntries(ctx, repository.PermissionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "a rejected batch writes nothing")
}

func TestPaginate(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, paginate(rows, 1, 2))
	assert.Equal(t, []int{5}, paginate(rows, 3, 2))
	assert.Empty(t, paginate(rows, 4, 2))
	assert.Equal(t, []int{1, 2}, paginate(rows, 0, 2))
	assert.Equal(t, rows, paginate(rows, 1, 0))
}

func TestRunInTx_NestedUnitsDoNotDeadlock(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
			return store.Tx.RunInTx(txCtx, func(innerCtx context.Context) error {
				return store.Roles.Create(innerCtx, &model.Role{Code: model.RoleOps, Name: "Ops"})
			})
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("nested RunInTx blocked")
	}

	_, err := store.Roles.FindByCode(ctx, model.RoleOps)
	assert.NoError(t, err)
}
