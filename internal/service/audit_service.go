package service

import (
	"context"
	"fmt"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"go.uber.org/zap"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditQuery filters the trail; empty fields match everything
type AuditQuery struct {
	Action   string `form:"action" json:"action"`
	Actor    string `form:"actor" json:"actor"`
	EntityID string `form:"entity_id" json:"entity_id"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, query AuditQuery, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	base
}

// NewAuditService creates a new AuditService instance
func NewAuditService(store *repository.Store, log *zap.Logger) AuditService {
	return &auditService{base: newBase(store, log, nil)}
}

// GetAuditLogs returns one page of the trail, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, query AuditQuery, page, limit int) ([]AuditLogResponse, int64, error) {
	filter := repository.AuditFilter{Action: query.Action, Actor: query.Actor, EntityID: query.EntityID}
	logs, total, err := s.store.Audit.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toAuditLogResponse(l))
	}
	return res, total, nil
}

func toAuditLogResponse(l model.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:         l.ID.String(),
		Actor:      l.Actor,
		Action:     l.Action,
		EntityID:   l.EntityID,
		EntityName: l.EntityName,
		Details:    string(l.Details),
		CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
