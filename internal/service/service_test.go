package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	"opsconsole/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recorder collects published change events
type recorder struct {
	mu     sync.Mutex
	events []model.ChangeEvent
}

func (r *recorder) Publish(e model.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture wires every engine service against one in-memory store with the default roles seeded
type fixture struct {
	store         *repository.Store
	events        *recorder
	matrix        MatrixService
	roles         RoleService
	operations    OperationService
	templates     TemplateService
	notifications NotificationService
	subscriptions SubscriptionService
	snapshots     SnapshotService
	audit         AuditService

	roleIDs map[string]uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zaptest.NewLogger(t)
	store := memory.NewStore()
	events := &recorder{}
	clock := func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	opts := []Option{WithPublisher(events), WithClock(clock)}

	matrix := NewMatrixService(store, log, opts...)
	f := &fixture{
		store:         store,
		events:        events,
		matrix:        matrix,
		roles:         NewRoleService(store, matrix, log, opts...),
		operations:    NewOperationService(store, matrix, log, opts...),
		templates:     NewTemplateService(store, log, opts...),
		notifications: NewNotificationService(store, log, opts...),
		subscriptions: NewSubscriptionService(store, log, opts...),
		snapshots:     NewSnapshotService(store, log, opts...),
		audit:         NewAuditService(store, log),
		roleIDs:       make(map[string]uuid.UUID),
	}

	ctx := context.Background()
	require.NoError(t, f.roles.SeedDefaultRoles(ctx))
	roles, err := store.Roles.ListAll(ctx)
	require.NoError(t, err)
	for _, r := range roles {
		f.roleIDs[r.Code] = r.ID
	}
	return f
}

func (f *fixture) role(code string) uuid.UUID {
	return f.roleIDs[code]
}

func draft(name string) OperationDraft {
	return OperationDraft{
		Name:      name,
		Source:    "order-service:" + name,
		Status:    model.StatusEnabled,
		Variables: map[string]string{"customer": model.VarTypeString, "amount": model.VarTypeNumber},
	}
}

func (f *fixture) createOperation(t *testing.T, name string) uuid.UUID {
	t.Helper()
	resp, err := f.operations.CreateOperation(context.Background(), draft(name))
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

func (f *fixture) entry(t *testing.T, key model.PermissionKey) *model.PermissionEntry {
	t.Helper()
	e, err := f.store.Permissions.Find(context.Background(), key)
	require.NoError(t, err)
	return e
}
