// Package memory provides an in-memory implementation of the repository interfaces.
// It backs the service tests and the STORE_DRIVER=memory mode, and keeps the same
// uniqueness rules as the SQL schema (operation name, role code, matrix cell).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	"opsconsole/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Store holds every table behind one lock. Rows are copied on the way in and out
// so callers never alias stored state.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	now  func() time.Time

	operations  map[uuid.UUID]model.Operation
	opOrder     []uuid.UUID
	templates   map[uuid.UUID]model.Template
	tplOrder    []uuid.UUID
	roles       map[uuid.UUID]model.Role
	entries     map[uuid.UUID]model.PermissionEntry
	entryOrder  []uuid.UUID
	entryByCell map[model.Cell]uuid.UUID
	auditLogs   []model.AuditLog
}

// New returns an empty Store
func New() *Store {
	return &Store{
		now:         time.Now,
		operations:  make(map[uuid.UUID]model.Operation),
		templates:   make(map[uuid.UUID]model.Template),
		roles:       make(map[uuid.UUID]model.Role),
		entries:     make(map[uuid.UUID]model.PermissionEntry),
		entryByCell: make(map[model.Cell]uuid.UUID),
	}
}

// Repositories exposes the Store through the repository bundle
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Operations:  &operationRepo{s: s},
		Templates:   &templateRepo{s: s},
		Roles:       &roleRepo{s: s},
		Permissions: &permissionRepo{s: s},
		Audit:       &auditRepo{s: s},
		Tx:          txManager{mu: &s.txMu},
	}
}

// NewStore is a shortcut for New().Repositories()
func NewStore() *repository.Store {
	return New().Repositories()
}

type txKey struct{}

// txManager runs units of work one at a time. There is no rollback: a failing
// unit keeps the writes it already made.
type txManager struct {
	mu *sync.Mutex
}

func (t txManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

func cloneOperation(op model.Operation) model.Operation {
	vars := make(map[string]string, len(op.Variables.Data()))
	for k, v := range op.Variables.Data() {
		vars[k] = v
	}
	op.Variables = datatypes.NewJSONType(vars)
	return op
}

func cloneTemplate(t model.Template) model.Template {
	vars := append([]string(nil), t.Variables.Data()...)
	t.Variables = datatypes.NewJSONType(vars)
	return t
}

func cloneEntry(e model.PermissionEntry) model.PermissionEntry {
	if e.ReceivingRoleID != nil {
		r := *e.ReceivingRoleID
		e.ReceivingRoleID = &r
	}
	return e
}

// --- operations ---

type operationRepo struct{ s *Store }

func (r *operationRepo) nameTaken(name string, exceptID uuid.UUID) bool {
	for id, op := range r.s.operations {
		if id != exceptID && op.Name == name {
			return true
		}
	}
	return false
}

func (r *operationRepo) Create(ctx context.Context, op *model.Operation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if _, exists := r.s.operations[op.ID]; exists || r.nameTaken(op.Name, op.ID) {
		return repository.ErrDuplicate
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = r.s.now()
	}
	r.s.operations[op.ID] = cloneOperation(*op)
	r.s.opOrder = append(r.s.opOrder, op.ID)
	return nil
}

func (r *operationRepo) Update(ctx context.Context, op *model.Operation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.operations[op.ID]; !ok {
		return repository.ErrNotFound
	}
	if r.nameTaken(op.Name, op.ID) {
		return repository.ErrDuplicate
	}
	r.s.operations[op.ID] = cloneOperation(*op)
	return nil
}

func (r *operationRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	op, ok := r.s.operations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneOperation(op)
	return &out, nil
}

// LockByID is FindByID; units of work are already serialized by txManager
func (r *operationRepo) LockByID(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	return r.FindByID(ctx, id)
}

func (r *operationRepo) ListAll(ctx context.Context) ([]model.Operation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ops := make([]model.Operation, 0, len(r.s.opOrder))
	for _, id := range r.s.opOrder {
		ops = append(ops, cloneOperation(r.s.operations[id]))
	}
	return ops, nil
}

func (r *operationRepo) List(ctx context.Context, page, limit int) ([]model.Operation, int64, error) {
	all, _ := r.ListAll(ctx)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].LastUpdated.After(all[j].LastUpdated)
	})
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r *operationRepo) DisableOthersByName(ctx context.Context, name string, exceptID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, op := range r.s.operations {
		if id != exceptID && op.Name == name && op.Status == model.StatusEnabled {
			op.Status = model.StatusDisabled
			r.s.operations[id] = op
			n++
		}
	}
	return n, nil
}

// --- templates ---

type templateRepo struct{ s *Store }

func (r *templateRepo) Create(ctx context.Context, tpl *model.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	if _, exists := r.s.templates[tpl.ID]; exists {
		return repository.ErrDuplicate
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = r.s.now()
	}
	r.s.templates[tpl.ID] = cloneTemplate(*tpl)
	r.s.tplOrder = append(r.s.tplOrder, tpl.ID)
	return nil
}

func (r *templateRepo) Update(ctx context.Context, tpl *model.Template) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.templates[tpl.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.templates[tpl.ID] = cloneTemplate(*tpl)
	return nil
}

func (r *templateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.templates[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.templates, id)
	for i, tid := range r.s.tplOrder {
		if tid == id {
			r.s.tplOrder = append(r.s.tplOrder[:i], r.s.tplOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (r *templateRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	tpl, ok := r.s.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTemplate(tpl)
	return &out, nil
}

func (r *templateRepo) ListByOperation(ctx context.Context, operationID uuid.UUID) ([]model.Template, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var tpls []model.Template
	for _, id := range r.s.tplOrder {
		if tpl := r.s.templates[id]; tpl.OperationID == operationID {
			tpls = append(tpls, cloneTemplate(tpl))
		}
	}
	return tpls, nil
}

func (r *templateRepo) DisableSiblings(ctx context.Context, operationID, exceptID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, tpl := range r.s.templates {
		if id != exceptID && tpl.OperationID == operationID && tpl.Status == model.StatusEnabled {
			tpl.Status = model.StatusDisabled
			r.s.templates[id] = tpl
			n++
		}
	}
	return n, nil
}

// --- roles ---

type roleRepo struct{ s *Store }

func (r *roleRepo) Create(ctx context.Context, role *model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	for _, existing := range r.s.roles {
		if existing.ID == role.ID || existing.Code == role.Code {
			return repository.ErrDuplicate
		}
	}
	now := r.s.now()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	r.s.roles[role.ID] = *role
	return nil
}

func (r *roleRepo) Update(ctx context.Context, role *model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.roles[role.ID]; !ok {
		return repository.ErrNotFound
	}
	role.UpdatedAt = r.s.now()
	r.s.roles[role.ID] = *role
	return nil
}

func (r *roleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	role, ok := r.s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r *roleRepo) FindByCode(ctx context.Context, code string) (*model.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, role := range r.s.roles {
		if role.Code == code {
			out := role
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *roleRepo) ListAll(ctx context.Context) ([]model.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	roles := make([]model.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].SortOrder != roles[j].SortOrder {
			return roles[i].SortOrder < roles[j].SortOrder
		}
		return roles[i].Code < roles[j].Code
	})
	return roles, nil
}

// --- permission entries ---

type permissionRepo struct{ s *Store }

func (r *permissionRepo) Find(ctx context.Context, key model.PermissionKey) (*model.PermissionEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.entryByCell[key.Cell()]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneEntry(r.s.entries[id])
	return &out, nil
}

func (r *permissionRepo) CreateBatch(ctx context.Context, entries []model.PermissionEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	seen := make(map[model.Cell]bool, len(entries))
	for _, e := range entries {
		ck := e.Key().Cell()
		if _, exists := r.s.entryByCell[ck]; exists || seen[ck] {
			return repository.ErrDuplicate
		}
		seen[ck] = true
	}

	now := r.s.now()
	for i := range entries {
		e := &entries[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		r.s.entries[e.ID] = cloneEntry(*e)
		r.s.entryByCell[e.Key().Cell()] = e.ID
		r.s.entryOrder = append(r.s.entryOrder, e.ID)
	}
	return nil
}

func (r *permissionRepo) UpdateFlags(ctx context.Context, id uuid.UUID, flags repository.PermissionFlags) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	if flags.Enabled != nil {
		e.Enabled = *flags.Enabled
	}
	if flags.Configurable != nil {
		e.Configurable = *flags.Configurable
	}
	e.UpdatedAt = r.s.now()
	r.s.entries[id] = e
	return nil
}

func (r *permissionRepo) ListEntries(ctx context.Context, filter repository.PermissionFilter) ([]model.PermissionEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []model.PermissionEntry
	for _, id := range r.s.entryOrder {
		e := r.s.entries[id]
		if filter.ProducingRoleID != nil && e.ProducingRoleID != *filter.ProducingRoleID {
			continue
		}
		if filter.OperationID != nil && e.OperationID != *filter.OperationID {
			continue
		}
		if filter.ProducerOnly && e.ReceivingRoleID != nil {
			continue
		}
		if filter.ReceiversOnly && e.ReceivingRoleID == nil {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

// --- audit ---

type auditRepo struct{ s *Store }

func (r *auditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.s.now()
	}
	r.s.auditLogs = append(r.s.auditLogs, *entry)
	return nil
}

func (r *auditRepo) List(ctx context.Context, filter repository.AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var logs []model.AuditLog
	for i := len(r.s.auditLogs) - 1; i >= 0; i-- {
		if filter.Matches(r.s.auditLogs[i]) {
			logs = append(logs, r.s.auditLogs[i])
		}
	}
	return paginate(logs, page, limit), int64(len(logs)), nil
}

func paginate[T any](rows []T, page, limit int) []T {
	start, end := pagination.New(page, limit).Bounds(len(rows))
	return rows[start:end]
}
