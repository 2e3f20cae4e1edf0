package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"opsconsole/internal/metrics"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotEntry is one captured cell, addressed relative to the captured role
type SnapshotEntry struct {
	OperationID     uuid.UUID  `json:"operation_id"`
	ReceivingRoleID *uuid.UUID `json:"receiving_role_id,omitempty"`
	Enabled         bool       `json:"enabled"`
	Configurable    bool       `json:"configurable"`
}

// Snapshot is an immutable copy of one role's slice of the matrix. Later writes to the
// matrix do not show through it.
type Snapshot struct {
	roleID     uuid.UUID
	capturedAt time.Time
	entries    []SnapshotEntry
}

func NewSnapshot(roleID uuid.UUID, capturedAt time.Time, entries []SnapshotEntry) Snapshot {
	return Snapshot{roleID: roleID, capturedAt: capturedAt, entries: cloneSnapshotEntries(entries)}
}

func (s Snapshot) RoleID() uuid.UUID        { return s.roleID }
func (s Snapshot) CapturedAt() time.Time    { return s.capturedAt }
func (s Snapshot) Len() int                 { return len(s.entries) }
func (s Snapshot) Entries() []SnapshotEntry { return cloneSnapshotEntries(s.entries) }

type snapshotJSON struct {
	RoleID     uuid.UUID       `json:"role_id"`
	CapturedAt time.Time       `json:"captured_at"`
	Entries    []SnapshotEntry `json:"entries"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	entries := s.entries
	if entries == nil {
		entries = []SnapshotEntry{}
	}
	return json.Marshal(snapshotJSON{RoleID: s.roleID, CapturedAt: s.capturedAt, Entries: entries})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSnapshot(raw.RoleID, raw.CapturedAt, raw.Entries)
	return nil
}

func cloneSnapshotEntries(in []SnapshotEntry) []SnapshotEntry {
	out := make([]SnapshotEntry, len(in))
	for i, e := range in {
		out[i] = e
		if e.ReceivingRoleID != nil {
			r := *e.ReceivingRoleID
			out[i].ReceivingRoleID = &r
		}
	}
	return out
}

// PasteResult reports what a paste did per row
type PasteResult struct {
	Applied int                   `json:"applied"`
	Skipped []model.PermissionKey `json:"skipped,omitempty"`
	Failed  []RowFailure          `json:"failed,omitempty"`
}

// --- Interface ---

type SnapshotService interface {
	Capture(ctx context.Context, roleID uuid.UUID) (Snapshot, error)
	Paste(ctx context.Context, snapshot Snapshot, targetRoleID uuid.UUID) (PasteResult, error)
	Copy(ctx context.Context, fromRoleID, toRoleID uuid.UUID) (PasteResult, error)
}

type snapshotService struct {
	base
}

func NewSnapshotService(store *repository.Store, log *zap.Logger, opts ...Option) SnapshotService {
	return &snapshotService{base: newBase(store, log, opts)}
}

// --- Implementation ---

func (s *snapshotService) Capture(ctx context.Context, roleID uuid.UUID) (Snapshot, error) {
	if _, err := loadRole(ctx, s.store, roleID); err != nil {
		return Snapshot{}, err
	}

	rows, err := s.store.Permissions.ListEntries(ctx, repository.PermissionFilter{ProducingRoleID: &roleID})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch permission entries: %w", err)
	}

	entries := make([]SnapshotEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, SnapshotEntry{
			OperationID:     r.OperationID,
			ReceivingRoleID: r.ReceivingRoleID,
			Enabled:         r.Enabled,
			Configurable:    r.Configurable,
		})
	}
	return NewSnapshot(roleID, s.now(), entries), nil
}

// Paste overwrites both flags on the target role's counterpart of every captured cell:
// same operation, same receiving role. Missing counterparts are skipped, failed rows are
// collected, and neither stops the rest of the paste.
func (s *snapshotService) Paste(ctx context.Context, snapshot Snapshot, targetRoleID uuid.UUID) (PasteResult, error) {
	if _, err := loadRole(ctx, s.store, targetRoleID); err != nil {
		return PasteResult{}, err
	}

	log := s.log.With(zap.String("source_role", snapshot.RoleID().String()), zap.String("target_role", targetRoleID.String()))

	var result PasteResult
	for _, e := range snapshot.entries {
		key := model.PermissionKey{ProducingRoleID: targetRoleID, OperationID: e.OperationID, ReceivingRoleID: e.ReceivingRoleID}

		target, err := s.store.Permissions.Find(ctx, key)
		if err != nil {
			if isNotFound(err) {
				log.Warn("paste: target entry missing, skipped", zap.String("key", key.String()))
				metrics.PasteRows.WithLabelValues("skipped").Inc()
				result.Skipped = append(result.Skipped, key)
				continue
			}
			metrics.PasteRows.WithLabelValues("failed").Inc()
			result.Failed = append(result.Failed, RowFailure{Key: key, Error: err.Error()})
			continue
		}

		enabled, configurable := e.Enabled, e.Configurable
		flags := repository.PermissionFlags{Enabled: &enabled, Configurable: &configurable}
		if err := s.store.Permissions.UpdateFlags(ctx, target.ID, flags); err != nil {
			log.Warn("paste: failed to update entry", zap.String("key", key.String()), zap.Error(err))
			metrics.PasteRows.WithLabelValues("failed").Inc()
			result.Failed = append(result.Failed, RowFailure{Key: key, Error: err.Error()})
			continue
		}
		metrics.PasteRows.WithLabelValues("applied").Inc()
		result.Applied++
	}
	metrics.MatrixMutations.WithLabelValues("paste").Add(float64(result.Applied))

	s.writeAuditLog(ctx, model.ActionPasteSnapshot, targetRoleID.String(), "snapshot", map[string]interface{}{
		"source_role": snapshot.RoleID(),
		"captured_at": snapshot.CapturedAt(),
		"applied":     result.Applied,
		"skipped":     len(result.Skipped),
		"failed":      len(result.Failed),
	})
	s.events.Publish(model.ChangeEvent{Type: model.EventMatrixChanged, RoleID: targetRoleID.String()})

	return result, nil
}

func (s *snapshotService) Copy(ctx context.Context, fromRoleID, toRoleID uuid.UUID) (PasteResult, error) {
	snap, err := s.Capture(ctx, fromRoleID)
	if err != nil {
		return PasteResult{}, err
	}
	return s.Paste(ctx, snap, toRoleID)
}
