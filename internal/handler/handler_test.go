package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/repository/memory"
	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	router *gin.Engine
	auth   *middleware.Auth
	roles  map[string]string // code -> id
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	store := memory.NewStore()
	auth := middleware.NewAuth("handler-secret")

	matrix := service.NewMatrixService(store, log)
	roleService := service.NewRoleService(store, matrix, log)
	require.NoError(t, roleService.SeedDefaultRoles(context.Background()))

	var codes []string
	for _, r := range service.DefaultRoles {
		codes = append(codes, r.Code)
	}

	router := gin.New()
	api := router.Group("")
	NewRoleHandler(roleService, auth, codes).RegisterRoutes(api)
	NewOperationHandler(service.NewOperationService(store, matrix, log), auth).RegisterRoutes(api)
	NewTemplateHandler(service.NewTemplateService(store, log), auth).RegisterRoutes(api)
	NewMatrixHandler(matrix, auth).RegisterRoutes(api)
	NewProjectionHandler(service.NewNotificationService(store, log), service.NewSubscriptionService(store, log), roleService, auth, codes).RegisterRoutes(api)
	NewSnapshotHandler(service.NewSnapshotService(store, log), auth).RegisterRoutes(api)
	NewAuditHandler(service.NewAuditService(store, log), auth).RegisterRoutes(api)

	roles, err := roleService.ListRoles(context.Background())
	require.NoError(t, err)
	ids := make(map[string]string, len(roles))
	for _, r := range roles {
		ids[r.Code] = r.ID
	}
	return &testServer{router: router, auth: auth, roles: ids}
}

// do sends body as JSON with a token for role and decodes the envelope
func (s *testServer) do(t *testing.T, role, method, path string, body interface{}) (int, response.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := s.auth.SignToken(middleware.Claims{Username: role + "-user", Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

// data re-decodes the envelope payload into out
func data(t *testing.T, resp response.Response, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func operationBody(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":      name,
		"source":    "crm.quote.submitted",
		"status":    "enabled",
		"variables": map[string]string{"customer": "string"},
	}
}

func (s *testServer) createOperation(t *testing.T, name string) service.OperationResponse {
	t.Helper()
	code, resp := s.do(t, model.RoleAdmin, http.MethodPost, "/api/operations", operationBody(name))
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var op service.OperationResponse
	data(t, resp, &op)
	return op
}

func TestOperationRoutes(t *testing.T) {
	s := newTestServer(t)

	op := s.createOperation(t, "SubmitQuote")
	assert.Equal(t, "admin-user", op.Creator)

	t.Run("duplicate name is a field error", func(t *testing.T) {
		code, resp := s.do(t, model.RoleAdmin, http.MethodPost, "/api/operations", operationBody("SubmitQuote"))
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Contains(t, resp.Fields["name"], "already exists")
	})

	t.Run("wrong types are field errors", func(t *testing.T) {
		body := operationBody("ConfirmOrder")
		body["source"] = 12
		code, resp := s.do(t, model.RoleAdmin, http.MethodPost, "/api/operations", body)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "source must be a string", resp.Fields["source"])
	})

	t.Run("status", func(t *testing.T) {
		code, resp := s.do(t, model.RoleAdmin, http.MethodPatch, "/api/operations/"+op.ID+"/status", map[string]bool{"enabled": false})
		require.Equal(t, http.StatusOK, code)
		var got service.OperationResponse
		data(t, resp, &got)
		assert.Equal(t, model.StatusDisabled, got.Status)

		code, _ = s.do(t, model.RoleAdmin, http.MethodPatch, "/api/operations/"+op.ID+"/status", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("not found and malformed ids", func(t *testing.T) {
		code, _ := s.do(t, model.RoleAdmin, http.MethodGet, "/api/operations/00000000-0000-0000-0000-000000000001", nil)
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = s.do(t, model.RoleAdmin, http.MethodGet, "/api/operations/nope", nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("auth", func(t *testing.T) {
		code, _ := s.do(t, "", http.MethodGet, "/api/operations", nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = s.do(t, model.RoleSales, http.MethodGet, "/api/operations", nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("list", func(t *testing.T) {
		code, resp := s.do(t, model.RoleAdmin, http.MethodGet, "/api/operations?page=1&limit=5", nil)
		require.Equal(t, http.StatusOK, code)
		var page struct {
			Operations []service.OperationResponse `json:"operations"`
			Total      int64                       `json:"total"`
		}
		data(t, resp, &page)
		assert.EqualValues(t, 1, page.Total)
		assert.Len(t, page.Operations, 1)
	})
}

func TestTemplateRoutes(t *testing.T) {
	s := newTestServer(t)
	op := s.createOperation(t, "SubmitQuote")
	base := "/api/operations/" + op.ID + "/templates"

	code, resp := s.do(t, model.RoleAdmin, http.MethodPost, base, map[string]string{
		"template_type": "email", "name": "quote mail", "subject": "Quote for {{customer}}", "content": "Hi",
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var tpl service.TemplateResponse
	data(t, resp, &tpl)
	assert.Equal(t, model.StatusEnabled, tpl.Status)

	code, resp = s.do(t, model.RoleAdmin, http.MethodPost, base, map[string]string{
		"template_type": "chat", "name": "card", "content": "{{total}}",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, resp.Fields, "content")

	code, _ = s.do(t, model.RoleAdmin, http.MethodDelete, "/api/templates/"+tpl.ID, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, model.RoleAdmin, http.MethodPatch, "/api/templates/"+tpl.ID+"/status", map[string]bool{"enabled": false})
	assert.Equal(t, http.StatusConflict, code)

	code, resp = s.do(t, model.RoleAdmin, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	var list []service.TemplateResponse
	data(t, resp, &list)
	assert.Len(t, list, 1)
}

func TestProjectionRoutes_SubmitQuoteScenario(t *testing.T) {
	s := newTestServer(t)
	op := s.createOperation(t, "SubmitQuote")
	sales, ops := s.roles[model.RoleSales], s.roles[model.RoleOps]

	toggle := map[string]interface{}{"operation_id": op.ID, "receiving_role_id": ops, "enabled": true}
	code, resp := s.do(t, model.RoleSales, http.MethodPatch, "/api/notifications/"+sales, toggle)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = s.do(t, model.RoleSales, http.MethodGet, "/api/notifications/"+sales, nil)
	require.Equal(t, http.StatusOK, code)
	var rows []service.NotificationEntry
	data(t, resp, &rows)
	found := false
	for _, r := range rows {
		if r.OperationID == op.ID && r.ReceivingRoleID == ops {
			found = true
			assert.True(t, r.Enabled)
		}
	}
	assert.True(t, found)

	code, resp = s.do(t, model.RoleAdmin, http.MethodPatch, "/api/matrix/entry", map[string]interface{}{
		"producing_role_id": sales, "operation_id": op.ID, "receiving_role_id": ops, "field": "configurable", "value": false,
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	toggle["enabled"] = false
	code, _ = s.do(t, model.RoleSales, http.MethodPatch, "/api/notifications/"+sales, toggle)
	assert.Equal(t, http.StatusConflict, code)

	code, resp = s.do(t, model.RoleAdmin, http.MethodGet, "/api/matrix/entry?producing_role_id="+sales+"&operation_id="+op.ID+"&receiving_role_id="+ops, nil)
	require.Equal(t, http.StatusOK, code)
	var entry service.EntryResponse
	data(t, resp, &entry)
	assert.True(t, entry.Enabled)
	assert.False(t, entry.Configurable)
}

func TestSubscriptionRoutes(t *testing.T) {
	s := newTestServer(t)
	op := s.createOperation(t, "SubmitQuote")
	ops := s.roles[model.RoleOps]

	code, resp := s.do(t, model.RoleOps, http.MethodPatch, "/api/subscriptions/"+ops, map[string]interface{}{"operation_id": op.ID, "enabled": true})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = s.do(t, model.RoleOps, http.MethodGet, "/api/subscriptions/"+ops, nil)
	require.Equal(t, http.StatusOK, code)
	var rows []service.SubscriptionEntry
	data(t, resp, &rows)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Enabled)
}

func TestProjectionRoutes_OtherRolesSettingsAreOffLimits(t *testing.T) {
	s := newTestServer(t)
	op := s.createOperation(t, "SubmitQuote")
	ops, finance := s.roles[model.RoleOps], s.roles[model.RoleFinance]

	subscribe := map[string]interface{}{"operation_id": op.ID, "enabled": true}
	code, _ := s.do(t, model.RoleSales, http.MethodPatch, "/api/subscriptions/"+ops, subscribe)
	assert.Equal(t, http.StatusForbidden, code)

	notify := map[string]interface{}{"operation_id": op.ID, "receiving_role_id": ops, "enabled": true}
	code, _ = s.do(t, model.RoleSales, http.MethodPatch, "/api/notifications/"+finance, notify)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, model.RoleSales, http.MethodGet, "/api/subscriptions/"+ops, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := s.do(t, model.RoleOps, http.MethodGet, "/api/subscriptions/"+ops, nil)
	require.Equal(t, http.StatusOK, code)
	var rows []service.SubscriptionEntry
	data(t, resp, &rows)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Enabled, "rejected calls leave the cell untouched")

	code, resp = s.do(t, model.RoleAdmin, http.MethodPatch, "/api/notifications/"+finance, notify)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var row service.NotificationEntry
	data(t, resp, &row)
	assert.True(t, row.Enabled)
}

func TestMatrixAndSnapshotRoutes(t *testing.T) {
	s := newTestServer(t)
	op := s.createOperation(t, "SubmitQuote")
	sales, finance := s.roles[model.RoleSales], s.roles[model.RoleFinance]

	code, resp := s.do(t, model.RoleAdmin, http.MethodPost, "/api/matrix/columns", map[string]interface{}{
		"level": "operations", "producing_role_id": sales, "field": "enabled", "value": true,
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var bulk service.BulkResult
	data(t, resp, &bulk)
	assert.Equal(t, 1, bulk.Updated)

	code, resp = s.do(t, model.RoleAdmin, http.MethodPost, "/api/matrix/columns", map[string]interface{}{"level": "cells", "field": "enabled"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, resp.Fields, "level")

	code, resp = s.do(t, model.RoleAdmin, http.MethodGet, "/api/snapshots/"+sales, nil)
	require.Equal(t, http.StatusOK, code)
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &snap))
	code, resp = s.do(t, model.RoleAdmin, http.MethodPost, "/api/snapshots/"+finance+"/paste", snap)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var pasted service.PasteResult
	data(t, resp, &pasted)
	assert.Equal(t, 1+len(service.DefaultRoles), pasted.Applied)

	code, resp = s.do(t, model.RoleAdmin, http.MethodGet, "/api/matrix", nil)
	require.Equal(t, http.StatusOK, code)
	var tree []service.RoleNode
	data(t, resp, &tree)
	for _, r := range tree {
		if r.RoleID == finance {
			require.Len(t, r.Operations, 1)
			assert.Equal(t, op.ID, r.Operations[0].OperationID)
			assert.True(t, r.Operations[0].Enabled)
			assert.Len(t, r.Operations[0].Receivers, len(service.DefaultRoles))
		}
	}

	code, _ = s.do(t, model.RoleAdmin, http.MethodPost, "/api/snapshots/copy", map[string]string{"from_role_id": sales, "to_role_id": "00000000-0000-0000-0000-000000000009"})
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = s.do(t, model.RoleAdmin, http.MethodGet, "/api/audit-logs?limit=50", nil)
	require.Equal(t, http.StatusOK, code)
	var audit struct {
		Logs  []service.AuditLogResponse `json:"logs"`
		Total int64                      `json:"total"`
	}
	data(t, resp, &audit)
	assert.EqualValues(t, 3, audit.Total)
	assert.Equal(t, model.ActionPasteSnapshot, audit.Logs[0].Action)
	assert.Equal(t, "admin-user", audit.Logs[0].Actor)

	code, resp = s.do(t, model.RoleAdmin, http.MethodGet, "/api/audit-logs?action="+model.ActionSelectColumn, nil)
	require.Equal(t, http.StatusOK, code)
	data(t, resp, &audit)
	assert.EqualValues(t, 1, audit.Total)
	require.Len(t, audit.Logs, 1)
	assert.Equal(t, model.ActionSelectColumn, audit.Logs[0].Action)
}

func TestRoleRoutes(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, model.RoleDispatcher, http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, code)
	var roles []service.RoleResponse
	data(t, resp, &roles)
	assert.Len(t, roles, len(service.DefaultRoles))

	code, _ = s.do(t, model.RoleDispatcher, http.MethodGet, "/api/roles/"+s.roles[model.RoleOps], nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, "intruder", http.MethodGet, "/api/roles", nil)
	assert.Equal(t, http.StatusForbidden, code)
}
